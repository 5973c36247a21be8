package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/instalist/instalist-server/internal/domain"
)

// Store exposes the record, tombstone, group and device functions as methods
// so it satisfies the services' repository interfaces.
type Store struct{}

func (Store) GetRecord(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string) (*domain.Record, error) {
	return GetRecord(ctx, db, groupID, kind, uuid)
}

func (Store) CreateRecord(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string, fields domain.Fields, updatedAt time.Time) (*domain.Record, error) {
	return CreateRecord(ctx, db, groupID, kind, uuid, fields, updatedAt)
}

func (Store) UpdateRecordIfNotNewer(ctx context.Context, db *gorm.DB, id uint64, fields domain.Fields, updatedAt time.Time) error {
	return UpdateRecordIfNotNewer(ctx, db, id, fields, updatedAt)
}

func (Store) DeleteRecord(ctx context.Context, db *gorm.DB, id uint64) error {
	return DeleteRecord(ctx, db, id)
}

func (Store) ListRecordsChangedSince(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, since *time.Time) ([]domain.Record, error) {
	return ListRecordsChangedSince(ctx, db, groupID, kind, since)
}

func (Store) GetTombstone(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string) (*domain.Tombstone, error) {
	return GetTombstone(ctx, db, groupID, kind, uuid)
}

func (Store) CreateTombstone(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, uuid string, deletedAt time.Time) (*domain.Tombstone, error) {
	return CreateTombstone(ctx, db, groupID, kind, uuid, deletedAt)
}

func (Store) ListTombstonesChangedSince(ctx context.Context, db *gorm.DB, groupID uint64, kind domain.Kind, since *time.Time) ([]domain.Tombstone, error) {
	return ListTombstonesChangedSince(ctx, db, groupID, kind, since)
}

func (Store) CreateGroup(ctx context.Context, db *gorm.DB, pairingCode string) (*domain.Group, error) {
	return CreateGroup(ctx, db, pairingCode)
}

func (Store) GetGroup(ctx context.Context, db *gorm.DB, id uint64) (*domain.Group, error) {
	return GetGroup(ctx, db, id)
}

func (Store) ConsumePairingCode(ctx context.Context, db *gorm.DB, groupID uint64, code string) error {
	return ConsumePairingCode(ctx, db, groupID, code)
}

func (Store) CountDevices(ctx context.Context, db *gorm.DB, groupID uint64) (int64, error) {
	return CountDevices(ctx, db, groupID)
}

func (Store) CreateDevice(ctx context.Context, db *gorm.DB, groupID uint64, name, secretHash string, authorized bool) (*domain.Device, error) {
	return CreateDevice(ctx, db, groupID, name, secretHash, authorized)
}

func (Store) GetDevice(ctx context.Context, db *gorm.DB, id uint64) (*domain.Device, error) {
	return GetDevice(ctx, db, id)
}

func (Store) ListDevices(ctx context.Context, db *gorm.DB, groupID uint64) ([]domain.Device, error) {
	return ListDevices(ctx, db, groupID)
}

// IdempotencyKeys binds the idempotency functions to a handle and a TTL.
type IdempotencyKeys struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Get returns the unexpired outcome stored for key, or ErrNotFound.
func (k IdempotencyKeys) Get(ctx context.Context, scope IdempotencyScope, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, k.DB, scope, key, now)
}

// Put stores the outcome of a keyed create.
func (k IdempotencyKeys) Put(ctx context.Context, scope IdempotencyScope, key string, kind domain.Kind, recordUUID string, status int) error {
	_, err := CreateIdempotency(ctx, k.DB, scope, key, kind, recordUUID, status, k.TTL)
	return err
}

// Exists reports whether an unexpired outcome is stored for key.
func (k IdempotencyKeys) Exists(ctx context.Context, groupID, deviceID uint64, key string, now time.Time) (bool, error) {
	_, err := GetIdempotency(ctx, k.DB, IdempotencyScope{GroupID: groupID, DeviceID: deviceID}, key, now)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ChangeStatsReader binds KindChangeStats to a handle.
type ChangeStatsReader struct {
	DB *gorm.DB
}

func (r ChangeStatsReader) KindChangeStats(ctx context.Context, groupID uint64, kind domain.Kind) (ChangeStats, error) {
	return KindChangeStats(ctx, r.DB, groupID, kind)
}
