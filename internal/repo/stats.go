// This file provides a small aggregate query used for conditional list
// responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/instalist/instalist-server/internal/domain"
)

// ChangeStats summarizes the change feed of one kind in a group.
type ChangeStats struct {
	Records    int64
	Tombstones int64
	// Revisions is the sum of the live records' versions. Together with the
	// two counts it changes on every accepted write, even when the client
	// change times do not move forward.
	Revisions int64
	// Latest is the newest change time across records and tombstones, or
	// nil when the feed is empty.
	Latest *time.Time
}

// KindChangeStats counts records and tombstones of a kind, sums the record
// versions and finds the newest change time among them.
func KindChangeStats(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind) (ChangeStats, error) {
	var st ChangeStats

	records := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Record{}).Where("group_id = ? AND kind = ?", groupID, kind)
	}
	tombstones := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Tombstone{}).Where("group_id = ? AND kind = ?", groupID, kind)
	}

	if err := records().Count(&st.Records).Error; err != nil {
		return ChangeStats{}, err
	}
	if err := tombstones().Count(&st.Tombstones).Error; err != nil {
		return ChangeStats{}, err
	}
	if err := records().Select("COALESCE(SUM(version), 0)").Row().Scan(&st.Revisions); err != nil {
		return ChangeStats{}, err
	}

	// Latest timestamps (avoid MAX() -> TEXT in SQLite)
	if st.Records > 0 {
		var row struct{ UpdatedAt time.Time }
		if err := records().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
			return ChangeStats{}, err
		}
		st.Latest = &row.UpdatedAt
	}
	if st.Tombstones > 0 {
		var row struct{ DeletedAt time.Time }
		if err := tombstones().Select("deleted_at").Order("deleted_at DESC").Limit(1).Scan(&row).Error; err != nil {
			return ChangeStats{}, err
		}
		if st.Latest == nil || row.DeletedAt.After(*st.Latest) {
			st.Latest = &row.DeletedAt
		}
	}
	return st, nil
}
