package service

import (
	"log/slog"
	"time"

	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/qrcode"
	"github.com/kirinyoku/cinetix/internal/repository"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
	"github.com/kirinyoku/cinetix/internal/service/admin"
	"github.com/kirinyoku/cinetix/internal/service/booking"
	"github.com/kirinyoku/cinetix/internal/service/history"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/kirinyoku/cinetix/internal/service/payment"
	"github.com/kirinyoku/cinetix/internal/service/query"
	"github.com/kirinyoku/cinetix/internal/service/schedule"
)

type Services struct {
	Booking  *booking.Service
	Payment  *payment.Service
	Schedule *schedule.Service
	Admin    *admin.Service
	Query    *query.Service
	History  *history.Service
}

type Config struct {
	Booking booking.Config
	Payment payment.Config
	Query   query.Config
	// Now overrides the clock of every service when set.
	Now func() time.Time
}

// NewServices wires the services over one store. pubsub may be nil; cache is
// required by the query service.
func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.SeatMapPubSub,
	gateway payment.Gateway,
	notifier notify.Publisher,
	qr *qrcode.Encoder,
	cfg Config,
	log *slog.Logger,
) *Services {
	var (
		invCache inventory.Cache
		schCache schedule.Cache
		events   inventory.Events
	)
	if cache != nil {
		invCache, schCache = cache, cache
	}
	if pubsub != nil {
		events = pubsub
	}

	inv := inventory.New(invCache, events, log)

	if cfg.Now != nil {
		cfg.Booking.Now = cfg.Now
		cfg.Query.Now = cfg.Now
	}

	return &Services{
		Booking:  booking.New(store, inv, notifier, qr, cfg.Booking, log),
		Payment:  payment.New(store, gateway, inv, notifier, cfg.Payment, log),
		Schedule: schedule.New(store, inv, schCache, notifier, cfg.Now, log),
		Admin:    admin.New(store, inv, schCache, notifier, cfg.Now, log),
		Query:    query.New(store, cache, cfg.Query),
		History:  history.New(store),
	}
}
