package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mindseye/pkg/domain"
)

const (
	defaultGalleryPrefix = "mindseye:gallery"
	defaultGalleryLimit  = 50
	galleryOpTimeout     = 3 * time.Second
)

// RedisGalleryStore keeps one capped Redis list per session and kind.
type RedisGalleryStore struct {
	client *redis.Client
	prefix string
	limit  int
	ttl    time.Duration
}

// NewRedisGalleryStore builds a gallery store on an existing client. Lists are
// capped at limit entries and expire with the session after ttl.
func NewRedisGalleryStore(client *redis.Client, limit int, ttl time.Duration) (*RedisGalleryStore, error) {
	if client == nil {
		return nil, errors.New("gallery store requires a redis client")
	}
	if limit <= 0 {
		limit = defaultGalleryLimit
	}
	return &RedisGalleryStore{
		client: client,
		prefix: defaultGalleryPrefix,
		limit:  limit,
		ttl:    ttl,
	}, nil
}

func (s *RedisGalleryStore) key(sid string, kind domain.MediaKind) (string, error) {
	sid = strings.TrimSpace(sid)
	if sid == "" || strings.Contains(sid, ":") {
		return "", errors.New("gallery store requires a session id without ':'")
	}
	if !kind.Valid() {
		return "", fmt.Errorf("unknown media kind %q", kind)
	}
	return s.prefix + ":" + sid + ":" + string(kind), nil
}

// Prepend stores art at the head of its kind's list.
func (s *RedisGalleryStore) Prepend(ctx context.Context, sid string, art domain.Artifact) error {
	key, err := s.key(sid, art.Kind)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, galleryOpTimeout)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, int64(s.limit-1))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	return nil
}

// List returns the stored artifacts newest first. Repeated ids keep their
// newest entry and unreadable entries are skipped.
func (s *RedisGalleryStore) List(ctx context.Context, sid string, kind domain.MediaKind) ([]domain.Artifact, error) {
	key, err := s.key(sid, kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, galleryOpTimeout)
	defer cancel()
	values, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out := make([]domain.Artifact, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		var art domain.Artifact
		if err := json.Unmarshal([]byte(v), &art); err != nil {
			slog.Warn("skipping unreadable gallery entry", "key", key, "err", err)
			continue
		}
		if _, dup := seen[art.ID]; dup {
			continue
		}
		seen[art.ID] = struct{}{}
		out = append(out, art)
	}
	return out, nil
}

// Clear drops every artifact of kind for sid.
func (s *RedisGalleryStore) Clear(ctx context.Context, sid string, kind domain.MediaKind) error {
	key, err := s.key(sid, kind)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, galleryOpTimeout)
	defer cancel()
	if err := s.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	return nil
}

// Move renames from's lists to to's. Kinds from has no list for are skipped.
func (s *RedisGalleryStore) Move(ctx context.Context, from, to string) error {
	ctx, cancel := context.WithTimeout(ctx, galleryOpTimeout)
	defer cancel()
	for _, kind := range []domain.MediaKind{domain.KindImage, domain.KindVideo} {
		src, err := s.key(from, kind)
		if err != nil {
			return err
		}
		dst, err := s.key(to, kind)
		if err != nil {
			return err
		}
		n, err := s.client.Exists(ctx, src).Result()
		if err != nil {
			return fmt.Errorf("move artifacts: %w", err)
		}
		if n == 0 {
			continue
		}
		if err := s.client.Rename(ctx, src, dst).Err(); err != nil {
			return fmt.Errorf("move artifacts: %w", err)
		}
	}
	return nil
}
