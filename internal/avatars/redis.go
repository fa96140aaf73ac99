package avatars

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"avatarmail/internal/domain"
)

// RedisConfig selects the Redis instance backing a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps one JSON document per avatar plus a set of known names.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "avatarmail:"
	}
	return &RedisStore{client: client, keyPrefix: prefix}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) avatarKey(name string) string {
	return s.keyPrefix + "avatar:" + name
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "avatars"
}

func (s *RedisStore) GetAvatar(ctx context.Context, name string) (*domain.AvatarRecord, error) {
	data, err := s.client.Get(ctx, s.avatarKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get avatar: %w", err)
	}

	var record domain.AvatarRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode avatar %s: %w", name, err)
	}
	return &record, nil
}

func (s *RedisStore) SaveAvatar(ctx context.Context, record *domain.AvatarRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	doc := *record
	doc.Recordings = nonNilRecordings(doc.Recordings)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode avatar: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.avatarKey(record.Name), data, 0)
	pipe.SAdd(ctx, s.indexKey(), record.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save avatar: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteAvatar(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	deleted := pipe.Del(ctx, s.avatarKey(name))
	pipe.SRem(ctx, s.indexKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete avatar: %w", err)
	}
	if deleted.Val() == 0 {
		return fmt.Errorf("%w: avatar %s", domain.ErrNotFound, name)
	}
	return nil
}

func (s *RedisStore) ListAvatars(ctx context.Context) ([]domain.AvatarRecord, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list avatars: %w", err)
	}
	out := make([]domain.AvatarRecord, 0, len(names))
	if len(names) == 0 {
		return out, nil
	}

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = s.avatarKey(name)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load avatars: %w", err)
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry without a document; skip it.
			continue
		}
		var record domain.AvatarRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("decode avatar %s: %w", names[i], err)
		}
		out = append(out, record)
	}
	sortByName(out)
	return out, nil
}
