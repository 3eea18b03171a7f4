// Package sqlite is the production store: modernc.org/sqlite behind database/sql, with the
// schema managed by golang-migrate from embedded migration files. The pool is limited to one
// connection, so units of work serialise and must not issue queries outside their Tx.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/repository"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store implements the repository contracts on sqlite.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the database at path and applies pending migrations.
func Open(path string, logger logging.Logger) (*Store, error) {
	logger = logging.OrDefault(logger)
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Database ready", logging.F("path", path))
	return s, nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("could not load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration instance creation failed: %w", err)
	}

	// m.Close would close the shared *sql.DB, so the instance is left to the collector.
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("No new database migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	s.logger.Info("Database migrations applied")
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTx implements repository.UnitOfWork.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&sqlTx{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.WithError(rbErr).Error("Rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ActiveFeeRanges implements repository.FeeRangeRepository.
func (s *Store) ActiveFeeRanges(ctx context.Context) ([]models.FeeRange, error) {
	return s.feeRanges(ctx, `is_active = 1`)
}

// PercentageFeeRanges implements repository.FeeRangeRepository.
func (s *Store) PercentageFeeRanges(ctx context.Context) ([]models.FeeRange, error) {
	return s.feeRanges(ctx, `is_percentage = 1`)
}

func (s *Store) feeRanges(ctx context.Context, where string) ([]models.FeeRange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, min_amount, max_amount, fixed_charge, is_percentage, percentage_rate, additional_fee, is_active
		FROM fee_ranges WHERE `+where)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee ranges: %w", err)
	}
	defer rows.Close()

	var ranges []models.FeeRange
	for rows.Next() {
		var r models.FeeRange
		if err := rows.Scan(&r.ID, &r.MinAmount, &r.MaxAmount, &r.FixedCharge, &r.IsPercentage,
			&r.PercentageRate, &r.AdditionalFee, &r.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan fee range: %w", err)
		}
		ranges = append(ranges, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Amounts are stored as text, so numeric ordering happens here.
	sortByMin(ranges)
	return ranges, nil
}

// ReplaceFeeRanges implements repository.FeeRangeWriter.
func (s *Store) ReplaceFeeRanges(ctx context.Context, ranges []models.FeeRange) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fee_ranges`); err != nil {
		return fmt.Errorf("failed to clear fee ranges: %w", err)
	}
	for _, r := range ranges {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fee_ranges (min_amount, max_amount, fixed_charge, is_percentage, percentage_rate, additional_fee, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.MinAmount, r.MaxAmount, r.FixedCharge, r.IsPercentage, r.PercentageRate, r.AdditionalFee, r.IsActive); err != nil {
			return fmt.Errorf("failed to insert fee range: %w", err)
		}
	}
	return tx.Commit()
}
