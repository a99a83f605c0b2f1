package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"wb-margin-bot/internal/config"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

func migrationsDir(driver string) (dialect, dir string) {
	if driver == config.DriverSQLite {
		return "sqlite3", "migrations/sqlite"
	}
	return "postgres", "migrations/postgres"
}

func setup(driver string) (string, error) {
	dialect, dir := migrationsDir(driver)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("failed to set dialect: %w", err)
	}
	return dir, nil
}

func RunMigrations(ctx context.Context, db *sql.DB, driver string, logger *zap.Logger) error {
	const operation = "storage.RunMigrations"

	logger.Info("Running database migrations...", zap.String("driver", driver))

	dir, err := setup(driver)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", operation, err)
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

func RollbackMigration(ctx context.Context, db *sql.DB, driver string, logger *zap.Logger) error {
	const operation = "storage.RollbackMigration"

	logger.Info("Rolling back last migration...")

	dir, err := setup(driver)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	if err := goose.DownContext(ctx, db, dir); err != nil {
		return fmt.Errorf("%s: failed to rollback migration: %w", operation, err)
	}

	logger.Info("Migration rollback completed")
	return nil
}

// Version returns the applied schema version.
func Version(ctx context.Context, db *sql.DB, driver string) (int64, error) {
	const operation = "storage.Version"

	if _, err := setup(driver); err != nil {
		return 0, fmt.Errorf("%s: %w", operation, err)
	}

	v, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to get version: %w", operation, err)
	}
	return v, nil
}
