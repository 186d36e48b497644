package corpus

import (
	"context"

	"gorm.io/gorm"
)

// gormAdapter satisfies the gormDB interface over a real *gorm.DB, so
// GormStore only needs the handful of query-builder methods it actually
// calls and can be exercised with a fake in tests.
type gormAdapter struct{ db *gorm.DB }

// NewGorm wraps db for use as a corpus.Store backing store.
func NewGorm(db *gorm.DB) gormDB { return gormAdapter{db: db} }

func (a gormAdapter) WithContext(ctx context.Context) gormDB { return gormAdapter{db: a.db.WithContext(ctx)} }
func (a gormAdapter) Where(query any, args ...any) gormDB     { return gormAdapter{db: a.db.Where(query, args...)} }
func (a gormAdapter) Not(query any, args ...any) gormDB       { return gormAdapter{db: a.db.Not(query, args...)} }
func (a gormAdapter) Find(dest any) error                     { return a.db.Find(dest).Error }
