// Package redisstate keeps shared mutable state in Redis: the preference hash and the
// notification id sequence. Several cbwatch instances can point at the same Redis.
package redisstate

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/cbwatch/internal/prefs"
)

// Default key names.
const (
	DefaultPrefsKey    = "cbwatch:prefs"
	DefaultSequenceKey = "cbwatch:notification_seq"
)

// Connect parses url, connects, instruments the client for tracing and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisstate: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstate: instrument tracing: %w", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstate: ping: %w", err)
	}
	return client, nil
}

// Prefs is a prefs.Source stored in a Redis hash.
type Prefs struct {
	client redis.Cmdable
	key    string
}

// NewPrefs returns a preference source on the hash at key. An empty key uses DefaultPrefsKey.
func NewPrefs(client redis.Cmdable, key string) *Prefs {
	if key == "" {
		key = DefaultPrefsKey
	}
	return &Prefs{client: client, key: key}
}

// Snapshot reads the whole hash.
func (p *Prefs) Snapshot(ctx context.Context) (prefs.Snapshot, error) {
	values, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return prefs.Snapshot{}, fmt.Errorf("redisstate: load prefs: %w", err)
	}
	return prefs.NewSnapshot(values), nil
}

// Set validates and stores one preference.
func (p *Prefs) Set(ctx context.Context, key, value string) error {
	if err := prefs.Validate(key, value); err != nil {
		return err
	}
	if err := p.client.HSet(ctx, p.key, key, value).Err(); err != nil {
		return fmt.Errorf("redisstate: store pref %s: %w", key, err)
	}
	return nil
}

// Seed writes initial values for keys not yet present in the hash.
func (p *Prefs) Seed(ctx context.Context, initial map[string]string) error {
	for k, v := range initial {
		if err := prefs.Validate(k, v); err != nil {
			return err
		}
		if err := p.client.HSetNX(ctx, p.key, k, v).Err(); err != nil {
			return fmt.Errorf("redisstate: seed pref %s: %w", k, err)
		}
	}
	return nil
}

// Sequence hands out notification ids with INCR, so ids stay unique across restarts
// and instances.
type Sequence struct {
	client redis.Cmdable
	key    string
}

// NewSequence returns a sequence on the counter at key. An empty key uses DefaultSequenceKey.
func NewSequence(client redis.Cmdable, key string) *Sequence {
	if key == "" {
		key = DefaultSequenceKey
	}
	return &Sequence{client: client, key: key}
}

func (s *Sequence) Next(ctx context.Context) (int64, error) {
	n, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstate: next id: %w", err)
	}
	return n, nil
}
