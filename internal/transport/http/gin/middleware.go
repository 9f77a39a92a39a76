package httpgin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/auth"
	"github.com/kirinyoku/cinetix/internal/domain"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
)

const (
	ctxRequestID  = "request_id"
	ctxCapability = "capability"
)

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}

		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Set(ctxRequestID, reqID)

		c.Next()
	}
}

func CORS() gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
			"X-Request-ID",
			"Idempotency-Key",
			"If-None-Match",
			"Stripe-Signature",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"ETag",
			"Cache-Control",
			"Retry-After",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	return cors.New(cfg)
}

func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		status := c.Writer.Status()
		reqID, _ := c.Get(ctxRequestID)

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.String("ua", c.Request.UserAgent()),
			slog.Any("request_id", reqID),
			slog.Duration("latency", latency),
			slog.Int("bytes_out", c.Writer.Size()),
		}

		// convert []slog.Attr to []any for slog.Group variadic parameter
		anyAttrs := make([]any, len(attrs))
		for i := range attrs {
			anyAttrs[i] = attrs[i]
		}

		if len(c.Errors) > 0 {
			logger.Error("http", slog.Group("http", anyAttrs...))
		} else {
			logger.Info("http", slog.Group("http", anyAttrs...))
		}
	}
}

// Authenticator verifies bearer tokens and resolves the caller's capability
// once per request.
type Authenticator struct {
	tokens   *auth.Tokens
	resolver *auth.Resolver
}

func NewAuthenticator(tokens *auth.Tokens, resolver *auth.Resolver) *Authenticator {
	return &Authenticator{tokens: tokens, resolver: resolver}
}

func (a *Authenticator) authenticate(c *gin.Context) (auth.Capability, bool) {
	h := c.GetHeader("Authorization")
	raw, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
		return auth.Capability{}, false
	}

	claims, err := a.tokens.Parse(strings.TrimSpace(raw))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
		return auth.Capability{}, false
	}

	capab, err := a.resolver.Resolve(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownSubject) || errors.Is(err, auth.ErrInvalidToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return auth.Capability{}, false
		}
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return auth.Capability{}, false
	}

	c.Set(ctxCapability, capab)
	return capab, true
}

// RequireUser admits end users only.
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		capab, ok := a.authenticate(c)
		if !ok {
			return
		}
		if capab.Role != domain.RoleUser {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "user access only"})
			return
		}
		c.Next()
	}
}

// RequireAdmin admits every administrator role. Finer checks happen in the
// services through auth.Authorize.
func (a *Authenticator) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		capab, ok := a.authenticate(c)
		if !ok {
			return
		}
		if !capab.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "admin access only"})
			return
		}
		c.Next()
	}
}

func capability(c *gin.Context) auth.Capability {
	v, _ := c.Get(ctxCapability)
	capab, _ := v.(auth.Capability)
	return capab
}

type Limiter interface {
	Allow(ctx context.Context, suffix string) (redisrepo.Decision, error)
}

// RateLimit rejects requests over the limiter's budget with 429. A limiter
// failure lets the request through.
func RateLimit(l Limiter, logger *slog.Logger, key func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := l.Allow(c.Request.Context(), key(c))
		if err != nil {
			logger.Warn("rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			secs := max(int((d.RetryAfter+time.Second-1)/time.Second), 1)
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests, please try again later"})
			return
		}

		c.Next()
	}
}

func byClientIP(c *gin.Context) string { return "ip:" + c.ClientIP() }

// byUser keys on the authenticated caller and must run after the auth middleware.
func byUser(c *gin.Context) string {
	return "user:" + strconv.FormatInt(capability(c).SubjectID, 10)
}
