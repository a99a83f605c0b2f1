package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"wb-margin-bot/internal/config"
	"wb-margin-bot/internal/margin"
)

var ErrNotFound = errors.New("not found")

func init() {
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

type Storage struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

type User struct {
	ID                int64      `db:"id"`
	Username          string     `db:"username"`
	FirstName         string     `db:"first_name"`
	CalculationsCount int        `db:"calculations_count"`
	SubscriptionUntil *time.Time `db:"subscription_until"`
	CreatedAt         time.Time  `db:"created_at"`
}

// HasSubscription reports whether the subscription is active at now.
func (u User) HasSubscription(now time.Time) bool {
	return u.SubscriptionUntil != nil && u.SubscriptionUntil.After(now)
}

type Calculation struct {
	ID int64 `db:"id"`
	margin.Record
}

type Stats struct {
	Users               int `db:"users"`
	Calculations        int `db:"calculations"`
	ActiveSubscriptions int `db:"active_subscriptions"`
	CalculationsToday   int `db:"calculations_today"`
}

func New(ctx context.Context, cfg config.Database, logger *zap.Logger) (*Storage, error) {
	const operation = "storage.New"

	var db *sqlx.DB
	var err error

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.MaxElapsedTime = 2 * time.Minute
	retryPolicy.MaxInterval = 15 * time.Second

	logger.Info("Connecting to database...", zap.String("driver", cfg.Driver))

	if cfg.Driver == config.DriverSQLite && cfg.DSN == "" && cfg.SQLitePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("%s: create sqlite directory: %w", operation, err)
		}
	}

	err = backoff.RetryNotify(
		func() error {
			db, err = sqlx.ConnectContext(ctx, cfg.Driver, cfg.ConnString())
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			if err = db.PingContext(ctx); err != nil {
				_ = db.Close()
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
		backoff.WithContext(retryPolicy, ctx),
		func(err error, duration time.Duration) {
			logger.Warn("Database connection failed, retrying...",
				zap.Error(err),
				zap.Duration("next_attempt_in", duration))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect after retries: %w", operation, err)
	}

	if cfg.Driver == config.DriverSQLite {
		// one connection keeps :memory: databases whole and serializes writers
		db.SetMaxOpenConns(1)

		if _, err := db.ExecContext(ctx, `
			PRAGMA journal_mode = WAL;
			PRAGMA foreign_keys = ON;
			PRAGMA busy_timeout = 5000;
		`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: set sqlite pragmas: %w", operation, err)
		}
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	logger.Info("Successfully connected to database")
	return &Storage{
		db:     db,
		driver: cfg.Driver,
		logger: logger,
	}, nil
}

// Migrate applies the embedded migrations for the storage driver.
func (s *Storage) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, s.db.DB, s.driver, s.logger)
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser creates the user or refreshes the Telegram names of an existing one.
func (s *Storage) UpsertUser(ctx context.Context, u User) error {
	const operation = "storage.UpsertUser"

	query := s.db.Rebind(`
		INSERT INTO users (id, username, first_name)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name`)

	if _, err := s.db.ExecContext(ctx, query, u.ID, u.Username, u.FirstName); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

func (s *Storage) GetUser(ctx context.Context, id int64) (User, error) {
	const operation = "storage.GetUser"

	var u User
	query := s.db.Rebind(`
		SELECT id, username, first_name, calculations_count, subscription_until, created_at
		FROM users WHERE id = ?`)

	err := s.db.GetContext(ctx, &u, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%s: user %d: %w", operation, id, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", operation, err)
	}
	return u, nil
}

// SaveCalculation stores the row and bumps the owner's counter in one transaction.
func (s *Storage) SaveCalculation(ctx context.Context, rec margin.Record) (int64, error) {
	const operation = "storage.SaveCalculation"

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin: %w", operation, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO users (id) VALUES (?) ON CONFLICT (id) DO NOTHING`),
		rec.UserID,
	); err != nil {
		return 0, fmt.Errorf("%s: ensure user: %w", operation, err)
	}

	rows, err := sqlx.NamedQueryContext(ctx, tx, `
		INSERT INTO calculations (
			user_id, cost_price, selling_price, wb_commission, logistics, storage,
			return_percent, return_cost_per_unit, packaging_cost, other_expenses, delivery_cost,
			commission_amount, total_costs, profit, margin_percent, markup, created_at
		) VALUES (
			:user_id, :cost_price, :selling_price, :wb_commission, :logistics, :storage,
			:return_percent, :return_cost_per_unit, :packaging_cost, :other_expenses, :delivery_cost,
			:commission_amount, :total_costs, :profit, :margin_percent, :markup, :created_at
		) RETURNING id`, rec)
	if err != nil {
		return 0, fmt.Errorf("%s: insert: %w", operation, err)
	}

	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("%s: scan id: %w", operation, err)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("%s: insert: %w", operation, err)
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("%s: close rows: %w", operation, err)
	}

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE users SET calculations_count = calculations_count + 1 WHERE id = ?`),
		rec.UserID,
	); err != nil {
		return 0, fmt.Errorf("%s: increment counter: %w", operation, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", operation, err)
	}
	return id, nil
}

// ListCalculations returns the newest calculations first. A limit of 0 returns all of them.
func (s *Storage) ListCalculations(ctx context.Context, userID int64, limit int) ([]Calculation, error) {
	const operation = "storage.ListCalculations"

	query := `
		SELECT id, user_id, cost_price, selling_price, wb_commission, logistics, storage,
			return_percent, return_cost_per_unit, packaging_cost, other_expenses, delivery_cost,
			commission_amount, total_costs, profit, margin_percent, markup, created_at
		FROM calculations
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var calcs []Calculation
	if err := s.db.SelectContext(ctx, &calcs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return calcs, nil
}

func (s *Storage) SetSubscription(ctx context.Context, userID int64, until time.Time) error {
	const operation = "storage.SetSubscription"

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE users SET subscription_until = ? WHERE id = ?`),
		until.UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", operation, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: user %d: %w", operation, userID, ErrNotFound)
	}
	return nil
}

// ListExpiringSubscriptions returns users whose subscription ends within (from, to].
func (s *Storage) ListExpiringSubscriptions(ctx context.Context, from, to time.Time) ([]User, error) {
	const operation = "storage.ListExpiringSubscriptions"

	query := s.db.Rebind(`
		SELECT id, username, first_name, calculations_count, subscription_until, created_at
		FROM users
		WHERE subscription_until > ? AND subscription_until <= ?
		ORDER BY subscription_until`)

	var users []User
	if err := s.db.SelectContext(ctx, &users, query, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return users, nil
}

func (s *Storage) Stats(ctx context.Context, now time.Time) (Stats, error) {
	const operation = "storage.Stats"

	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	query := s.db.Rebind(`
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM calculations) AS calculations,
			(SELECT COUNT(*) FROM users WHERE subscription_until > ?) AS active_subscriptions,
			(SELECT COUNT(*) FROM calculations WHERE created_at >= ?) AS calculations_today`)

	var st Stats
	if err := s.db.GetContext(ctx, &st, query, now, dayStart); err != nil {
		return Stats{}, fmt.Errorf("%s: %w", operation, err)
	}
	return st, nil
}
