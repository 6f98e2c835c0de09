package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "handoff:"

// Redis keeps pending selections as keys with a TTL and announces new ones on
// a pub/sub channel per surface, so any gateway instance can serve them.
type Redis struct {
	client *redis.Client
	log    *slog.Logger
	maxAge time.Duration
}

func NewRedis(client *redis.Client, log *slog.Logger, maxAge time.Duration) *Redis {
	return &Redis{client: client, log: log, maxAge: maxAge}
}

func key(s Surface) string     { return keyPrefix + string(s) }
func channel(s Surface) string { return keyPrefix + "events:" + string(s) }

func (r *Redis) Put(ctx context.Context, surface Surface, text string) (Selection, error) {
	sel := Selection{Surface: surface, Text: strings.TrimSpace(text), Timestamp: time.Now().UTC()}
	data, err := json.Marshal(sel)
	if err != nil {
		return Selection{}, err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key(surface), data, r.maxAge)
	pipe.Publish(ctx, channel(surface), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return Selection{}, fmt.Errorf("store hand-off for %s: %w", surface, err)
	}
	return sel, nil
}

func (r *Redis) Take(ctx context.Context, surface Surface) (Selection, error) {
	data, err := r.client.GetDel(ctx, key(surface)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Selection{}, ErrEmpty
	}
	if err != nil {
		return Selection{}, fmt.Errorf("take hand-off for %s: %w", surface, err)
	}
	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return Selection{}, fmt.Errorf("decode hand-off for %s: %w", surface, err)
	}
	if expired(sel, r.maxAge, time.Now()) {
		return Selection{}, ErrEmpty
	}
	return sel, nil
}

func (r *Redis) Watch(ctx context.Context, surface Surface) (<-chan Selection, error) {
	sub := r.client.Subscribe(ctx, channel(surface))
	// wait for the subscription to be confirmed so no Put is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to %s hand-offs: %w", surface, err)
	}

	out := make(chan Selection)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var sel Selection
				if err := json.Unmarshal([]byte(msg.Payload), &sel); err != nil {
					r.log.Warn("dropping malformed hand-off event", "surface", surface, "err", err)
					continue
				}
				select {
				case out <- sel:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *Redis) Close() error { return r.client.Close() }
