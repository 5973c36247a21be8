// Package domain defines the persistence models for groups, devices, synced
// records and their tombstones. These types are mapped with GORM and shared
// across the repository and service layers.
package domain

import (
	"time"
)

// Kind names an entity type that takes part in synchronization.
type Kind string

const (
	KindCategory      Kind = "category"
	KindProduct       Kind = "product"
	KindUnit          Kind = "unit"
	KindRecipe        Kind = "recipe"
	KindIngredient    Kind = "ingredient"
	KindTag           Kind = "tag"
	KindTaggedProduct Kind = "tagged_product"
	KindList          Kind = "list"
	KindEntry         Kind = "entry"
)

// Fields carries the kind-specific attributes of a record, keyed by their
// wire name. Reference fields hold the referenced record's UUID string.
type Fields map[string]any

// Group is a set of paired devices sharing one synchronized dataset.
//
// PairingCode is non-nil until the first device registers; it is unique
// among active codes (NULLs do not collide in a unique index).
type Group struct {
	ID          uint64    `json:"id"           gorm:"primaryKey;autoIncrement"`
	PairingCode *string   `json:"pairing_code" gorm:"type:varchar(16);uniqueIndex:ux_group_pairing_code"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Group.
func (Group) TableName() string { return "device_groups" }

// Device is a client paired with a group. Only authorized devices may
// obtain access tokens.
type Device struct {
	ID         uint64    `json:"id"         gorm:"primaryKey;autoIncrement"`
	GroupID    uint64    `json:"group_id"   gorm:"not null;index:idx_group_devices"`
	Name       string    `json:"name"       gorm:"type:varchar(255);not null"`
	SecretHash string    `json:"-"          gorm:"type:varchar(100);not null"`
	Authorized bool      `json:"authorized" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`

	Group Group `json:"-" gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Device.
func (Device) TableName() string { return "devices" }

// Record is a live entity of any kind, identified by (GroupID, Kind, UUID).
// The UUID is chosen by the client. UpdatedAt is the client-supplied change
// time and is never touched by GORM. Version starts at 1 and is bumped by the
// server on every accepted update, whatever UpdatedAt says.
type Record struct {
	ID        uint64    `json:"-"           gorm:"primaryKey;autoIncrement"`
	GroupID   uint64    `json:"-"           gorm:"not null;uniqueIndex:ux_record_identity,priority:1;index:idx_record_changes,priority:1"`
	Kind      Kind      `json:"-"           gorm:"type:varchar(32);not null;uniqueIndex:ux_record_identity,priority:2;index:idx_record_changes,priority:2"`
	UUID      string    `json:"uuid"        gorm:"type:char(36);not null;uniqueIndex:ux_record_identity,priority:3"`
	Fields    Fields    `json:"fields"      gorm:"type:text;not null;serializer:json"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"lastChanged" gorm:"not null;autoUpdateTime:false;index:idx_record_changes,priority:3"`
	Version   uint64    `json:"-"           gorm:"not null;default:1"`

	Group Group `json:"-" gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Record.
func (Record) TableName() string { return "records" }

// Tombstone marks an identity as deleted. Tombstones are permanent; a live
// Record and a Tombstone never exist for the same identity.
type Tombstone struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	GroupID   uint64    `gorm:"not null;uniqueIndex:ux_tombstone_identity,priority:1;index:idx_tombstone_changes,priority:1"`
	Kind      Kind      `gorm:"type:varchar(32);not null;uniqueIndex:ux_tombstone_identity,priority:2;index:idx_tombstone_changes,priority:2"`
	UUID      string    `gorm:"type:char(36);not null;uniqueIndex:ux_tombstone_identity,priority:3"`
	DeletedAt time.Time `gorm:"not null;index:idx_tombstone_changes,priority:3"`

	Group Group `gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Tombstone.
func (Tombstone) TableName() string { return "tombstones" }
