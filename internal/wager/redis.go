package wager

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyWager           = "%swager:%s"
	FieldWagered       = "wagered"
	FieldObservedAt    = "observed_at"
	DefaultKeyPrefix   = "rewards:"
	defaultDialTimeout = 5 * time.Second
)

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisProvider reads the wager sheet cache. Each account is a hash at
// "<prefix>wager:<account>" with "wagered" and an optional unix-seconds
// "observed_at" field.
type RedisProvider struct {
	client *redis.Client
	prefix string
}

func NewRedisProvider(ctx context.Context, cfg RedisConfig) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: defaultDialTimeout,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisProvider{client: client, prefix: prefix}, nil
}

func (p *RedisProvider) key(accountID string) string {
	return fmt.Sprintf(KeyWager, p.prefix, accountID)
}

func (p *RedisProvider) GetWagerSnapshot(ctx context.Context, accountID string) (Snapshot, error) {
	fields, err := p.client.HGetAll(ctx, p.key(accountID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, fmt.Errorf("failed to read wager for %s: %w", accountID, err)
	}
	// Accounts the refresh job has not seen yet have wagered nothing.
	if len(fields) == 0 {
		return Snapshot{AccountID: accountID, ObservedAt: time.Now()}, nil
	}

	wagered, err := strconv.ParseInt(fields[FieldWagered], 10, 64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("bad wager value for %s: %w", accountID, err)
	}
	if wagered < 0 {
		wagered = 0
	}

	observedAt := time.Now()
	if raw, ok := fields[FieldObservedAt]; ok {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			observedAt = time.Unix(secs, 0)
		}
	}
	return Snapshot{AccountID: accountID, WageredAmount: wagered, ObservedAt: observedAt}, nil
}

// Put writes a snapshot the way the refresh job does. Used by seeding tools
// and tests.
func (p *RedisProvider) Put(ctx context.Context, s Snapshot) error {
	return p.client.HSet(ctx, p.key(s.AccountID),
		FieldWagered, s.WageredAmount,
		FieldObservedAt, s.ObservedAt.Unix(),
	).Err()
}

func (p *RedisProvider) Close() error {
	return p.client.Close()
}
