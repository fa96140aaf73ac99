package avatars

import (
	"context"
	"fmt"
	"io"

	"avatarmail/internal/ports"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Store is an avatar store that owns a connection.
type Store interface {
	ports.AvatarStore
	io.Closer
}

// Config selects and configures one backend.
type Config struct {
	Backend    string
	SQLitePath string
	Redis      RedisConfig
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported avatar backend %q", cfg.Backend)
	}
}
