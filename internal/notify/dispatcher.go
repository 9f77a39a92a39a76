package notify

import (
	"context"
	"log/slog"
	"time"
)

// Dispatcher decouples request handling from the broker. Publish only
// enqueues; Run delivers events until its context is done and then drains
// what is left.
type Dispatcher struct {
	next    Publisher
	queue   chan Event
	log     *slog.Logger
	timeout time.Duration
}

func NewDispatcher(next Publisher, size int, log *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		next:    next,
		queue:   make(chan Event, size),
		log:     log,
		timeout: 5 * time.Second,
	}
}

// Publish drops the event when the queue is full.
func (d *Dispatcher) Publish(_ context.Context, ev Event) error {
	select {
	case d.queue <- ev:
	default:
		d.log.Warn("notification dropped, queue full", "event_type", ev.Type, "event_id", ev.ID)
	}
	return nil
}

func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return nil
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.next.Publish(ctx, ev); err != nil {
		d.log.Error("notification publish failed", "event_type", ev.Type, "event_id", ev.ID, "error", err)
	}
}

// Close closes the underlying publisher. Call it after Run returned.
func (d *Dispatcher) Close() error {
	return d.next.Close()
}
