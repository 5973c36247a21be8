// This file provides repository functions for tombstones, the permanent
// deletion markers that let pull-sync clients learn about deletes.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/instalist/instalist-server/internal/domain"
	"github.com/instalist/instalist-server/internal/utils"
)

// GetTombstone fetches the tombstone for an identity, or ErrNotFound.
func GetTombstone(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string) (*domain.Tombstone, error) {
	var tb domain.Tombstone
	err := db.WithContext(ctx).
		Where("group_id = ? AND kind = ? AND uuid = ?", groupID, kind, uuid).
		First(&tb).Error
	if err != nil {
		return nil, err
	}
	return &tb, nil
}

// CreateTombstone inserts a tombstone. A second tombstone for the same
// identity yields ErrDuplicate.
func CreateTombstone(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string, deletedAt time.Time) (*domain.Tombstone, error) {
	tb := &domain.Tombstone{
		GroupID:   groupID,
		Kind:      kind,
		UUID:      uuid,
		DeletedAt: utils.Normalize(deletedAt),
	}
	if err := db.WithContext(ctx).Create(tb).Error; err != nil {
		return nil, mapWriteErr(err)
	}
	return tb, nil
}

// ListTombstonesChangedSince returns tombstones of a kind deleted strictly
// after since, or all of them when since is nil.
func ListTombstonesChangedSince(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, since *time.Time) ([]domain.Tombstone, error) {
	q := db.WithContext(ctx).Where("group_id = ? AND kind = ?", groupID, kind)
	if since != nil {
		q = q.Where("deleted_at > ?", utils.Normalize(*since))
	}
	var out []domain.Tombstone
	err := q.Order("deleted_at ASC").Order("uuid ASC").Find(&out).Error
	return out, err
}
