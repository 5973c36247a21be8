package cli

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/instalist/instalist-server/internal/config"
	"github.com/instalist/instalist-server/internal/repo"
)

// openDB opens the configured SQLite file and migrates the schema. The
// returned close func releases the connection pool.
func openDB(cfg config.Config, tracing bool) (*gorm.DB, func(), error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if tracing {
		if err := repo.EnableTracing(db); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("enable db tracing: %w", err)
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db, closeFn, nil
}
