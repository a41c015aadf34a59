package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
)

type redisStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisStore connects to REDIS_ADDR and stores sessions as JSON blobs
// with a sliding TTL. Session expiry is how abandoned documents eventually
// stop being "active".
func NewRedisStore(log *logger.Logger) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	ttl := 24 * time.Hour
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			ttl = d
		}
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisStore{
		log: log.With("service", "RedisSessionStore"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func sessionKey(sessionID string) string { return "session:" + sessionID }

func (s *redisStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *redisStore) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return nil
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(session.ID), raw, s.ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.rdb.Del(ctx, sessionKey(sessionID)).Err()
}
