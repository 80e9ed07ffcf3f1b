package indexer

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dlend/core/types"
)

// Indexer persists engine events into a relational store for offline queries.
// It implements the engine's event emitter interface, so it can be wired into
// the emitter fan-out directly.
type Indexer struct {
	db  *gorm.DB
	log *slog.Logger
}

// New migrates the schema and returns an indexer bound to the database.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}, &PoolSnapshot{}, &ActorActivity{}); err != nil {
		return nil, err
	}
	return &Indexer{db: db, log: log}, nil
}

// OpenSQLite opens (or creates) a file-backed SQLite database. Tests pass
// ":memory:".
func OpenSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

// OpenPostgres connects to the production database.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// Emit implements the events.Emitter interface. Failures are logged rather
// than propagated: indexing lags must never block or fail engine operations.
func (ix *Indexer) Emit(evt *types.Event) {
	if ix == nil || evt == nil {
		return
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		ix.log.Error("encode event attributes", "type", evt.Type, "error", err)
		return
	}

	actor := evt.Attributes["actor"]
	if actor == "" {
		actor = evt.Attributes["borrower"]
	}
	pool := evt.Attributes["pool"]
	if pool == "" {
		pool = evt.Attributes["debtPool"]
	}
	ts, _ := strconv.ParseUint(evt.Attributes["timestamp"], 10, 64)

	record := EventRecord{
		ID:         uuid.New(),
		Type:       evt.Type,
		Actor:      actor,
		Pool:       pool,
		Attributes: string(attrs),
		Timestamp:  ts,
	}

	err = ix.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if pool != "" {
			snapshot := PoolSnapshot{
				PoolID:      pool,
				Asset:       evt.Attributes["asset"],
				LastEventID: record.ID,
				LastEventAt: ts,
			}
			if err := tx.Save(&snapshot).Error; err != nil {
				return err
			}
		}
		if actor != "" {
			activity := ActorActivity{Actor: actor}
			if err := tx.FirstOrCreate(&activity, ActorActivity{Actor: actor}).Error; err != nil {
				return err
			}
			activity.Operations++
			activity.LastSeenAt = ts
			if err := tx.Save(&activity).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		ix.log.Error("index event", "type", evt.Type, "error", err)
	}
}

// RecentEvents returns the newest events, most recent first.
func (ix *Indexer) RecentEvents(limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []EventRecord
	err := ix.db.Order("created_at desc").Limit(limit).Find(&records).Error
	return records, err
}

// EventsByActor returns an actor's events, most recent first.
func (ix *Indexer) EventsByActor(actor string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []EventRecord
	err := ix.db.Where("actor = ?", actor).Order("created_at desc").Limit(limit).Find(&records).Error
	return records, err
}

// Activity returns the aggregate operation counters for an actor.
func (ix *Indexer) Activity(actor string) (*ActorActivity, error) {
	var activity ActorActivity
	err := ix.db.First(&activity, "actor = ?", actor).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}
