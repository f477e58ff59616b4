package store

import (
	"context"
	"encoding/json"
	"sync"

	"mindmeld/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

const feedChannelPrefix = "mindmeld:session:"

// Feed fans change events out to every connected client process through
// Redis pub/sub. One channel per session code.
type Feed struct {
	rdb *redis.Client
}

func NewFeed(rdb *redis.Client) *Feed {
	return &Feed{rdb: rdb}
}

func (f *Feed) Publish(ctx context.Context, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := f.rdb.Publish(ctx, feedChannelPrefix+ev.SessionCode, data).Err(); err != nil {
		return err
	}
	return nil
}

// Subscribe delivers change events for one session until cancel is called or
// ctx is done. Messages that fail to decode are dropped with a warning.
func (f *Feed) Subscribe(ctx context.Context, sessionCode string) (<-chan ChangeEvent, func(), error) {
	sub := f.rdb.Subscribe(ctx, feedChannelPrefix+sessionCode)

	// force the SUBSCRIBE round-trip so a broken connection surfaces here,
	// not on first receive
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan ChangeEvent, 64)
	done := make(chan struct{})

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("feed: dropping malformed change event", "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}
