package db

import (
	"database/sql"
	"fmt"
	"time"

	"checkout-core/internal/config"
	"checkout-core/internal/logger"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// NewDatabase opens and pings the attempt journal database.
func NewDatabase(cfg *config.Config) (*sql.DB, error) {
	return newDatabaseWithDriver(cfg, "postgres")
}

func newDatabaseWithDriver(cfg *config.Config, driver string) (*sql.DB, error) {
	db, err := sql.Open(driver, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return db, nil
}

// InitDB returns nil when no DB_URL is configured; callers fall back to
// the in-memory journal. A configured but unreachable database is fatal.
func InitDB(cfg *config.Config) *sql.DB {
	if cfg.DBURL == "" {
		logger.L().Info("DB_URL not set, attempt journal stays in memory")
		return nil
	}

	db, err := NewDatabase(cfg)
	if err != nil {
		logger.L().Fatal("database unavailable", zap.Error(err))
	}

	logger.L().Info("database connection established")
	return db
}
