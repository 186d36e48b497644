package corpus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nntndfrk/alias-game/internal/apierr"
)

// UserRecord is the gorm model backing the "users" table, unique on the
// external identity provider's subject claim.
type UserRecord struct {
	ID         uint   `gorm:"primaryKey"`
	ExternalID string `gorm:"column:external_id;uniqueIndex;not null"`
	Name       string `gorm:"column:name"`
	Email      string `gorm:"column:email"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (UserRecord) TableName() string { return "users" }

// UserStore persists the local user record keyed by the identity provider's
// subject claim, upserting on every successful authentication.
type UserStore struct {
	db      *gorm.DB
	breaker breaker
}

// NewUserStore wraps db with the given breaker.
func NewUserStore(db *gorm.DB, b breaker) *UserStore {
	return &UserStore{db: db, breaker: b}
}

// Upsert creates or updates the local user record for externalID.
func (s *UserStore) Upsert(ctx context.Context, externalID, name, email string) (*UserRecord, error) {
	result, err := s.breaker.Execute(ctx, func() (any, error) {
		var rec UserRecord
		err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = UserRecord{ExternalID: externalID, Name: name, Email: email}
			if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
				return nil, fmt.Errorf("create user: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("lookup user: %w", err)
		default:
			rec.Name = name
			rec.Email = email
			if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
				return nil, fmt.Errorf("update user: %w", err)
			}
		}
		return &rec, nil
	})
	if err != nil {
		return nil, apierr.NewTransient("user store unavailable", err)
	}
	return result.(*UserRecord), nil
}

// FindByExternalID looks up a user record without creating one.
func (s *UserStore) FindByExternalID(ctx context.Context, externalID string) (*UserRecord, error) {
	result, err := s.breaker.Execute(ctx, func() (any, error) {
		var rec UserRecord
		err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		return &rec, nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apierr.NewNotFound("user not found")
		}
		return nil, apierr.NewTransient("user store unavailable", err)
	}
	return result.(*UserRecord), nil
}
