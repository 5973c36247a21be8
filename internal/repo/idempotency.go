// This file provides repository helpers for the Idempotency model used to
// make retried create requests safe.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/instalist/instalist-server/internal/domain"
)

// IdempotencyScope identifies the caller a key belongs to.
type IdempotencyScope struct {
	GroupID  uint64
	DeviceID uint64
}

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, scope IdempotencyScope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("group_id = ? AND device_id = ? AND key = ? AND expires_at > ?", scope.GroupID, scope.DeviceID, key, now).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency stores the outcome of a create and returns ErrDuplicate
// when the key was already used by this caller.
func CreateIdempotency(ctx context.Context, db *gorm.DB, scope IdempotencyScope, key string, kind domain.Kind, recordUUID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		GroupID:    scope.GroupID,
		DeviceID:   scope.DeviceID,
		Key:        key,
		Kind:       kind,
		RecordUUID: recordUUID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, mapWriteErr(err)
	}
	return rec, nil
}

// PurgeExpiredIdempotency deletes rows whose expiry is at or before now and
// returns how many were removed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
