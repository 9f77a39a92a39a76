package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	expires atomic.Int32
	purges  atomic.Int32
	fail    bool
	panics  bool
}

func (c *countingSweeper) ExpireStale(context.Context) (int, error) {
	c.expires.Add(1)
	if c.panics {
		panic("boom")
	}
	if c.fail {
		return 0, errors.New("db down")
	}
	return 2, nil
}

func (c *countingSweeper) PurgeCanceled(context.Context) (int64, error) {
	c.purges.Add(1)
	return 1, nil
}

func TestSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	sw := &countingSweeper{}
	s := New(sw, Config{ExpireInterval: 10 * time.Millisecond, PurgeInterval: time.Hour}, nil)

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return sw.expires.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), sw.purges.Load())

	after := sw.expires.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, sw.expires.Load())
}

func TestSchedulerKeepsRunningAfterFailures(t *testing.T) {
	for _, sw := range []*countingSweeper{{fail: true}, {panics: true}} {
		s := New(sw, Config{ExpireInterval: 5 * time.Millisecond, PurgeInterval: time.Hour}, nil)

		s.Start(context.Background())
		assert.Eventually(t, func() bool { return sw.expires.Load() >= 3 }, time.Second, 5*time.Millisecond)
		s.Stop()
	}
}

func TestRunStopsWithContext(t *testing.T) {
	sw := &countingSweeper{}
	s := New(sw, Config{ExpireInterval: time.Hour, PurgeInterval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return sw.expires.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	s.Stop()
}
