// Package store owns the persisted Customer, Product, Order and OrderItem
// rows. Every write validates first, runs in one unit of work, and surfaces
// failures as the typed errors of package model.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crmcore/db"
	"crmcore/model"
)

// Scope narrows a query; filter.Query values are passed in as scopes.
type Scope = func(*gorm.DB) *gorm.DB

// Store is the entity store. It is safe for concurrent use.
type Store struct {
	db    *gorm.DB
	locks *db.KeyLocks
	log   *zap.Logger
}

// New returns a Store over gdb. A nil log discards output.
func New(gdb *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: gdb, locks: db.NewKeyLocks(), log: log.Named("store")}
}

// Unit starts a unit of work sharing the store's key locks.
func (s *Store) Unit() *db.UnitOfWork { return db.New(s.db, s.locks) }

// DB returns the root connection for read-only queries.
func (s *Store) DB() *gorm.DB { return s.db }

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) now() time.Time { return s.db.NowFunc() }

func orderKey(id uuid.UUID) string { return "order:" + id.String() }

// translate maps driver and GORM errors onto the model taxonomy. Errors that
// already belong to it pass through untouched.
func translate(entity string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrConflict):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &model.ConflictError{Entity: entity, Message: entity + " violates a uniqueness constraint"}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &model.ConflictError{Entity: entity, Message: entity + " violates a foreign key constraint"}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &model.NotFoundError{Entity: entity}
	}
	return fmt.Errorf("store %s: %w", entity, err)
}

func first(tx *gorm.DB, out any, entity string, id uuid.UUID) error {
	if err := tx.First(out, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.NotFoundError{Entity: entity, ID: id.String()}
		}
		return fmt.Errorf("load %s %s: %w", entity, id, err)
	}
	return nil
}

func exists(tx *gorm.DB, m any, entity string, id uuid.UUID) error {
	var n int64
	if err := tx.Model(m).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check %s %s: %w", entity, id, err)
	}
	if n == 0 {
		return &model.NotFoundError{Entity: entity, ID: id.String()}
	}
	return nil
}

func apply(q *gorm.DB, scopes []Scope) *gorm.DB {
	if len(scopes) > 0 {
		q = q.Scopes(scopes...)
	}
	return q
}
