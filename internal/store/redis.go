package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisLinksKey   = "lisho:links"
	redisVersionKey = "lisho:links:version"
	redisOpTimeout  = 2 * time.Second
)

// redisCmds is the slice of the go-redis client this store needs. Tests
// stand in a fake built from the redis.New*Result constructors.
type redisCmds interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// RedisStore serves links from a Redis hash. Writers bump a version key
// alongside every edit; HasChanged is one GET against that key, and Refresh
// is one HGETALL. A missing version key reads as version zero, so a fresh
// database is simply empty rather than an error.
type RedisStore struct {
	rdb redisCmds
	log *slog.Logger

	links   map[string]string
	version int64
}

// OpenRedis connects, pings, and loads the initial snapshot.
func OpenRedis(addr, password string, db int, log *slog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := opCtx()
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}

	s := &RedisStore{rdb: rdb, log: log, links: map[string]string{}}
	if err := s.Refresh(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	s.log.Debug("redis store connected", "addr", addr, "links", s.Len())
	return s, nil
}

func (s *RedisStore) HasChanged() (bool, error) {
	v, err := s.currentVersion()
	if err != nil {
		return false, err
	}
	return v != s.version, nil
}

func (s *RedisStore) Refresh() error {
	// version first, for the same reason the sqlite store reads
	// data_version before the rows
	v, err := s.currentVersion()
	if err != nil {
		return err
	}

	ctx, cancel := opCtx()
	defer cancel()
	links, err := s.rdb.HGetAll(ctx, redisLinksKey).Result()
	if err != nil {
		return fmt.Errorf("load links: %w", err)
	}

	s.links = links
	s.version = v
	return nil
}

func (s *RedisStore) Len() int {
	return len(s.links)
}

func (s *RedisStore) Get(token string) (string, bool) {
	url, ok := s.links[token]
	return url, ok
}

func (s *RedisStore) Close() error {
	if c, ok := s.rdb.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (s *RedisStore) Put(token, url string) error {
	ctx, cancel := opCtx()
	defer cancel()
	if err := s.rdb.HSet(ctx, redisLinksKey, token, url).Err(); err != nil {
		return fmt.Errorf("store link: %w", err)
	}
	return s.bumpVersion(ctx)
}

func (s *RedisStore) Delete(token string) error {
	ctx, cancel := opCtx()
	defer cancel()
	n, err := s.rdb.HDel(ctx, redisLinksKey, token).Result()
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no link named %q", token)
	}
	return s.bumpVersion(ctx)
}

func (s *RedisStore) Entries() (map[string]string, error) {
	ctx, cancel := opCtx()
	defer cancel()
	links, err := s.rdb.HGetAll(ctx, redisLinksKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	return links, nil
}

func (s *RedisStore) currentVersion() (int64, error) {
	ctx, cancel := opCtx()
	defer cancel()

	raw, err := s.rdb.Get(ctx, redisVersionKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read version key: %w", err)
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version key %q is not a number: %w", redisVersionKey, err)
	}
	return v, nil
}

func (s *RedisStore) bumpVersion(ctx context.Context) error {
	if err := s.rdb.Incr(ctx, redisVersionKey).Err(); err != nil {
		return fmt.Errorf("bump version key: %w", err)
	}
	return nil
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}
