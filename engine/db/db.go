package db

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	db *gorm.DB
)

// dialector picks sqlite for "sqlite:<file>" urls and postgres otherwise
func dialector(connectURL string) gorm.Dialector {
	if strings.HasPrefix(connectURL, "sqlite:") {
		split := strings.SplitN(connectURL, ":", 2)
		filename := split[1]
		return sqlite.Open(fmt.Sprintf("%s?mode=rwc", filename))
	} else {
		return postgres.Open(connectURL)
	}
}

func Connect(connectURL string) error {
	// gorm warnings (slow queries, failed statements) go through slog
	gormLogger := logger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			IgnoreRecordNotFoundError: true,
			LogLevel:                  logger.Warn,
		},
	)

	conn, err := gorm.Open(dialector(connectURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect database %s: %w", connectURL, err)
	}

	if err := conn.AutoMigrate(&AlarmSchema{}, &SolutionSchema{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	db = conn
	slog.Info("Connected to DB", "dialect", db.Dialector.Name())
	return nil
}

func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
