package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/instalist/instalist-server/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := repo.WithPragmas(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newFileDB opens a migrated SQLite file under t.TempDir(). Concurrency
// tests need it: shared-cache memory databases lock per table instead.
func newFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// at returns epoch plus n seconds.
func at(n int) *time.Time {
	t := epoch.Add(time.Duration(n) * time.Second)
	return &t
}

func newSyncFixture(t *testing.T) (*SyncService, *clock, uint64) {
	t.Helper()
	db := newSvcDB(t)
	g, err := repo.CreateGroup(context.Background(), db, "TEST01")
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}
	c := &clock{t: epoch.Add(time.Hour)}
	s := NewSyncService(db, repo.Store{})
	s.Now = c.Now
	return s, c, g.ID
}
