// Package store is the durable catalog: images, machines, targets, sessions,
// users, and conversion jobs, with transactional updates and optimistic
// concurrency on status transitions (spec.md §4.1, module A "Store").
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/types"
)

// Store wraps a gorm.DB bound to the catalog schema. Every exported method
// either runs standalone (its own implicit transaction) or must be called
// from inside a WithTx callback.
type Store struct {
	db *gorm.DB
}

// Open establishes the sqlite connection and runs auto-migration for every
// catalog entity. dsn is config.Config.DatabaseDSN.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, ggerr.Wrap(ggerr.KindFatal, "store.open", err, "open database")
	}
	// sqlite serializes writers; a single pooled connection avoids
	// "database is locked" under concurrent access and, for in-memory
	// DSNs, keeps every caller on the same database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, ggerr.Wrap(ggerr.KindFatal, "store.open", err, "access underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&types.Image{},
		&types.Machine{},
		&types.Target{},
		&types.Session{},
		&types.User{},
		&types.ConversionJob{},
	); err != nil {
		return nil, ggerr.Wrap(ggerr.KindFatal, "store.migrate", err, "run migrations")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// txKey threads a *gorm.DB bound to the active transaction through ctx, so
// helpers called from inside WithTx reuse it instead of opening a second
// connection and deadlocking on sqlite's single writer.
type txKey struct{}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return s.db.WithContext(ctx)
}

// WithTx executes fn against a single transaction (spec.md §4.1 `with_tx`):
// on success the transaction commits, on any error (including panics gorm
// recovers from) it rolls back. Every multi-row state change in the session
// orchestrator's start/stop sequence runs inside one WithTx.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	if err != nil {
		var gerr *ggerr.Error
		if errors.As(err, &gerr) {
			return err
		}
		return ggerr.Wrap(ggerr.KindTransient, "store.tx", err, "transaction failed")
	}
	return nil
}

// ClaimStatus performs an atomic compare-and-set on the status column of
// entity's row (spec.md §4.1 `claim_status`): it returns true iff the row
// currently has status = from, updating it to to in the same statement.
// Used to linearise concurrent session starts on the same machine/target.
func ClaimStatus[T any](ctx context.Context, s *Store, id string, from, to any) (bool, error) {
	res := s.conn(ctx).Model(new(T)).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, ggerr.Wrap(ggerr.KindTransient, "store.claim_status", res.Error, "claim status")
	}
	return res.RowsAffected == 1, nil
}

func timestamps() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now, now
}
