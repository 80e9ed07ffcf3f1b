package indexer

import (
	"time"

	"github.com/google/uuid"
)

// EventRecord journals one engine event. Attributes are stored as a JSON
// document so new event fields never require a migration.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"size:64;index"`
	Actor      string    `gorm:"size:128;index"`
	Pool       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	Timestamp  uint64    `gorm:"index"`
	CreatedAt  time.Time
}

// PoolSnapshot mirrors the latest observed accounting state of a pool, one
// row per pool, overwritten as deposit/borrow events arrive.
type PoolSnapshot struct {
	PoolID      string `gorm:"size:64;primaryKey"`
	Asset       string `gorm:"size:32"`
	LastEventID uuid.UUID
	LastEventAt uint64
	UpdatedAt   time.Time
}

// ActorActivity aggregates per-actor operation counts for dashboard queries.
type ActorActivity struct {
	Actor      string `gorm:"size:128;primaryKey"`
	Operations uint64
	LastSeenAt uint64
	UpdatedAt  time.Time
}
