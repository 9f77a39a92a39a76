package redisrepo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock      = "LOCK"
	idemResPrefix = "RES:"
)

type IdemOutcome int

const (
	// IdemAcquired means the caller owns the key and must SaveResult or Release.
	IdemAcquired IdemOutcome = iota
	// IdemReplay means a stored response is available.
	IdemReplay
	// IdemInProgress means another request holds the key.
	IdemInProgress
)

// IdempotencyStore remembers the response of a request keyed by the client's
// Idempotency-Key. A key holds either "LOCK" while the first request is in
// flight or "RES:<json>" once it finished.
type IdempotencyStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewIdempotencyStore(rdb redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Begin claims key for lockTTL, or reports the stored response or a request
// in flight.
func (s *IdempotencyStore) Begin(ctx context.Context, key string, lockTTL time.Duration) (IdemOutcome, string, error) {
	if payload, ok, err := s.GetResult(ctx, key); err != nil {
		return 0, "", err
	} else if ok {
		return IdemReplay, payload, nil
	}

	locked, err := s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
	if err != nil {
		return 0, "", err
	}
	if locked {
		return IdemAcquired, "", nil
	}

	// the first request may have finished between GET and SETNX
	if payload, ok, err := s.GetResult(ctx, key); err != nil {
		return 0, "", err
	} else if ok {
		return IdemReplay, payload, nil
	}

	return IdemInProgress, "", nil
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemResPrefix+jsonPayload, s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if strings.HasPrefix(v, idemResPrefix) {
		return strings.TrimPrefix(v, idemResPrefix), true, nil
	}

	return "", false, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
