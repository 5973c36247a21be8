package domain

import "time"

// Idempotency records the outcome of a create request that carried an
// Idempotency-Key, keyed by (group_id, device_id, key). A retried request
// with the same key is answered from this row instead of being re-executed.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	GroupID    uint64    `gorm:"not null;uniqueIndex:ux_group_device_key,priority:1"`
	DeviceID   uint64    `gorm:"not null;uniqueIndex:ux_group_device_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_group_device_key,priority:3"`
	Kind       Kind      `gorm:"type:varchar(32);not null"`
	RecordUUID string    `gorm:"type:char(36);not null"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
