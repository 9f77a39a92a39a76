package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeatMapPubSub broadcasts seat availability changes per screen.
type SeatMapPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewSeatMapPubSub(rdb *redis.Client) *SeatMapPubSub {
	return &SeatMapPubSub{
		rdb:     rdb,
		channel: ChannelSeatMapChanged(),
	}
}

type seatMapChangedMsg struct {
	Type     string `json:"type"`
	ScreenID int64  `json:"screen_id"`
	TsUnix   int64  `json:"ts_unix"`
}

func (p *SeatMapPubSub) PublishSeatMapChanged(ctx context.Context, screenID int64) error {
	msg := seatMapChangedMsg{
		Type:     "seatmap_changed",
		ScreenID: screenID,
		TsUnix:   time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe blocks until ctx is done, calling handler for every change.
func (p *SeatMapPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, screenID int64)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev seatMapChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.ScreenID != 0 {
				handler(ctx, ev.ScreenID)
			}
		}
	}
}
