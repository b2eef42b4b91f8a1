package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GormStore implements Store on top of a gorm handle.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db. The schema is expected to be migrated already.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Pods() PodRepository { return &gormPods{db: s.db} }

func (s *GormStore) Sessions() SessionRepository { return &gormSessions{db: s.db} }

func (s *GormStore) Waitlist() WaitlistRepository { return &gormWaitlist{db: s.db} }

// WithinTx runs fn in a database transaction. An error from fn rolls back every write made through tx.
func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// DB exposes the underlying handle for collaborators that share the database.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("store: %s: %w", what, err)
}
