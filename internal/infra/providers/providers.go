package providers

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/totegamma/trustledger/internal/config"
	"github.com/totegamma/trustledger/internal/infra/cache"
	"github.com/totegamma/trustledger/internal/infra/database"
	"github.com/totegamma/trustledger/internal/infra/memory"
	"github.com/totegamma/trustledger/internal/infra/repository"
	"github.com/totegamma/trustledger/internal/service"
	"github.com/totegamma/trustledger/internal/usecase"
)

// NewDatabase opens a Postgres connection using the configured DSN.
func NewDatabase(conf config.Server) (*gorm.DB, error) {
	return database.NewPostgres(conf.PostgresDsn)
}

// MigrateDatabase applies migrations for the application models.
func MigrateDatabase(db *gorm.DB) error {
	return database.MigratePostgres(db)
}

// NewStore builds the Store selected by conf.StorageDriver. Postgres is
// migrated on open.
func NewStore(conf config.Server) (usecase.Store, error) {
	switch conf.StorageDriver {
	case "memory":
		return memory.NewStore(), nil
	case "postgres", "":
		db, err := NewDatabase(conf)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect database")
		}
		if err := MigrateDatabase(db); err != nil {
			return nil, errors.Wrap(err, "failed to migrate database")
		}
		return repository.NewStore(db), nil
	default:
		return nil, errors.Errorf("unsupported storage driver: %s", conf.StorageDriver)
	}
}

// NewEntityCache prefers memcached when configured, so that replicas share
// invalidations; otherwise entities are cached in process.
func NewEntityCache(conf config.Server, ttl time.Duration) usecase.EntityCache {
	if conf.MemcachedAddr != "" {
		return cache.NewMemcacheCache(database.NewMemcached(conf.MemcachedAddr), ttl)
	}
	return cache.NewLocalCache(ttl)
}

// NewSignalService returns nil when no redis address is configured.
func NewSignalService(conf config.Server, logger zerolog.Logger) *service.SignalService {
	if conf.RedisAddr == "" {
		return nil
	}
	rdb := database.NewRedis(conf.RedisAddr, conf.RedisPassword, conf.RedisDB)
	return service.NewSignalService(rdb, logger)
}
