// This file provides repository functions for device groups and their
// devices.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/instalist/instalist-server/internal/domain"
)

// CreateGroup inserts a group carrying an active pairing code. A code that
// is already active on another group yields ErrDuplicate.
func CreateGroup(ctx context.Context, db *gorm.DB, pairingCode string) (*domain.Group, error) {
	code := pairingCode
	g := &domain.Group{PairingCode: &code, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(g).Error; err != nil {
		return nil, mapWriteErr(err)
	}
	return g, nil
}

// GetGroup fetches a group by id, or ErrNotFound.
func GetGroup(ctx context.Context, db *gorm.DB, id uint64) (*domain.Group, error) {
	var g domain.Group
	if err := db.WithContext(ctx).First(&g, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// ConsumePairingCode clears the group's pairing code if it still equals
// code. The compare-and-clear is a single statement; ErrNotFound means the
// code was not (or no longer) active.
func ConsumePairingCode(ctx context.Context, db *gorm.DB, groupID uint64, code string) error {
	res := db.WithContext(ctx).
		Model(&domain.Group{}).
		Where("id = ? AND pairing_code = ?", groupID, code).
		Update("pairing_code", gorm.Expr("NULL"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountDevices returns the number of devices paired with a group.
func CountDevices(ctx context.Context, db *gorm.DB, groupID uint64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Device{}).Where("group_id = ?", groupID).Count(&n).Error
	return n, err
}

// CreateDevice inserts a device row.
func CreateDevice(ctx context.Context, db *gorm.DB, groupID uint64, name, secretHash string, authorized bool) (*domain.Device, error) {
	d := &domain.Device{
		GroupID:    groupID,
		Name:       name,
		SecretHash: secretHash,
		Authorized: authorized,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, mapWriteErr(err)
	}
	return d, nil
}

// GetDevice fetches a device by id, or ErrNotFound.
func GetDevice(ctx context.Context, db *gorm.DB, id uint64) (*domain.Device, error) {
	var d domain.Device
	if err := db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDevices returns a group's devices in pairing order.
func ListDevices(ctx context.Context, db *gorm.DB, groupID uint64) ([]domain.Device, error) {
	var out []domain.Device
	err := db.WithContext(ctx).Where("group_id = ?", groupID).Order("id ASC").Find(&out).Error
	return out, err
}
