package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/formgate/internal/allowlist"
	"github.com/charlesng35/formgate/internal/database"
	"github.com/charlesng35/formgate/internal/locks"
	"github.com/charlesng35/formgate/internal/services"
)

// Stores bundles the persistent state shared by the server and the CLI.
type Stores struct {
	DB        *gorm.DB
	Records   *services.SubmissionStore
	Allowlist *allowlist.FileStore
	Locker    locks.Locker
	// Redis is nil unless cache.redis is enabled.
	Redis *redis.Client
}

// OpenStores opens the record store, ensures its schema, and prepares the allowlist
// file and the mutation lock. The lock is a sidecar file next to the allowlist unless
// Redis is enabled, in which case Redis must be reachable.
func OpenStores(ctx context.Context, cfg *Config, log *zap.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	stores := &Stores{}
	success := false
	defer func() {
		if !success {
			_ = stores.Close()
		}
	}()

	db, err := database.Open(cfg.Database.DatabaseSettings())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	stores.DB = db

	stores.Records, err = services.NewSubmissionStore(db)
	if err != nil {
		return nil, err
	}
	if err := stores.Records.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	stores.Allowlist, err = allowlist.NewFileStore(cfg.Storage.AllowlistPath)
	if err != nil {
		return nil, err
	}

	fileLock, err := locks.NewFileLocker(locks.SidecarPath(cfg.Storage.AllowlistPath))
	if err != nil {
		return nil, err
	}
	stores.Locker = fileLock

	if cfg.Cache.Redis.Enabled {
		client, err := locks.NewRedisClient(ctx, cfg.Cache.RedisClientConfig())
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		stores.Redis = client

		locker, err := locks.NewRedisLocker(client, cfg.Cache.Redis.LockTTL)
		if err != nil {
			return nil, err
		}
		stores.Locker = locker
		log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
	}

	success = true
	return stores, nil
}

// Close releases the database and Redis connections.
func (s *Stores) Close() error {
	if s == nil {
		return nil
	}

	var errs error
	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
		s.Redis = nil
	}
	if s.DB != nil {
		errs = multierr.Append(errs, database.Close(s.DB))
		s.DB = nil
	}
	return errs
}
