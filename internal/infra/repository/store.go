package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/totegamma/trustledger/internal/infra/database"
	"github.com/totegamma/trustledger/internal/usecase"
)

// Store is the Postgres-backed usecase.Store.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Entities() usecase.EntityRepository {
	return NewEntityRepository(s.db)
}

func (s *Store) Vouches() usecase.VouchRepository {
	return NewVouchRepository(s.db)
}

// Transaction runs fn inside a database transaction. A Store handed to fn
// that starts its own Transaction joins the outer one through a savepoint.
func (s *Store) Transaction(ctx context.Context, fn func(tx usecase.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
	return database.TranslateError(err)
}

// Snapshot runs fn in a read-only REPEATABLE READ transaction, so every
// statement fn issues sees the snapshot taken by its first one.
func (s *Store) Snapshot(ctx context.Context, fn func(tx usecase.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	return database.TranslateError(err)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "Store.Ping: s.db.DB failed")
	}
	return database.TranslateError(sqlDB.PingContext(ctx))
}
