// This file provides repository functions for live records. A record is
// addressed by (group, kind, uuid); every function accepts a *gorm.DB that
// may be a transaction so the sync engine can compose them atomically.
//
// Error semantics:
//   - Missing rows yield ErrNotFound.
//   - Unique violations on (group, kind, uuid) yield ErrDuplicate.
//   - Other driver errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/instalist/instalist-server/internal/domain"
	"github.com/instalist/instalist-server/internal/utils"
)

// GetRecord fetches the live record for an identity, or ErrNotFound.
func GetRecord(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string) (*domain.Record, error) {
	var rec domain.Record
	err := db.WithContext(ctx).
		Where("group_id = ? AND kind = ? AND uuid = ?", groupID, kind, uuid).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateRecord inserts a record with the given change time.
func CreateRecord(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string, fields domain.Fields, updatedAt time.Time) (*domain.Record, error) {
	rec := &domain.Record{
		GroupID:   groupID,
		Kind:      kind,
		UUID:      uuid,
		Fields:    fields,
		CreatedAt: utils.Normalize(time.Now()),
		UpdatedAt: utils.Normalize(updatedAt),
		Version:   1,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, mapWriteErr(err)
	}
	return rec, nil
}

// UpdateRecordIfNotNewer replaces a record's fields and change time, but
// only while the stored change time is not after updatedAt, and bumps its
// version. It returns ErrNotFound when no row qualified (deleted or
// overtaken meanwhile). Callers run it inside a transaction so the two
// statements apply together.
func UpdateRecordIfNotNewer(ctx context.Context, db *gorm.DB, id uint64, fields domain.Fields, updatedAt time.Time) error {
	ts := utils.Normalize(updatedAt)
	res := db.WithContext(ctx).
		Model(&domain.Record{ID: id}).
		Where("updated_at <= ?", ts).
		Select("fields", "updated_at").
		Updates(&domain.Record{Fields: fields, UpdatedAt: ts})
	if res.Error != nil {
		return mapWriteErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return db.WithContext(ctx).
		Model(&domain.Record{ID: id}).
		UpdateColumn("version", gorm.Expr("version + 1")).Error
}

// DeleteRecord removes a record by primary key, returning ErrNotFound if it
// was already gone.
func DeleteRecord(ctx context.Context, db *gorm.DB, id uint64) error {
	res := db.WithContext(ctx).Delete(&domain.Record{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecordsChangedSince returns the live records of a kind whose change
// time is strictly after since, or all of them when since is nil. Results
// are ordered by change time, then uuid.
func ListRecordsChangedSince(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, since *time.Time) ([]domain.Record, error) {
	q := db.WithContext(ctx).Where("group_id = ? AND kind = ?", groupID, kind)
	if since != nil {
		q = q.Where("updated_at > ?", utils.Normalize(*since))
	}
	var out []domain.Record
	err := q.Order("updated_at ASC").Order("uuid ASC").Find(&out).Error
	return out, err
}
