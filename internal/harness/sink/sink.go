// Package sink persists finished runs to ClickHouse so results can be
// compared across runs and deployments.
package sink

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ethpandaops/market-sim-harness/internal/harness/recorder"
	"github.com/ethpandaops/market-sim-harness/internal/harness/report"
	"github.com/golang-migrate/migrate/v4"
	migrateclickhouse "github.com/golang-migrate/migrate/v4/database/clickhouse"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsTable = "schema_migrations_harness"
	pingTimeout     = 5 * time.Second
)

var (
	// ErrNotStarted is returned when writing before Start succeeded.
	ErrNotStarted = errors.New("results sink not started")
	// ErrInvalidDatabase is returned for database names that are not plain identifiers.
	ErrInvalidDatabase = errors.New("invalid database name")
)

// Run is everything persisted for one suite execution.
type Run struct {
	ID         uuid.UUID
	BackendURL string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    report.Summary
	Outcomes   []recorder.Outcome
}

// Sink writes runs to a results store.
type Sink interface {
	Start(ctx context.Context) error
	Stop() error
	Write(ctx context.Context, run Run) error
}

// Config identifies the ClickHouse server and database.
type Config struct {
	DSN      string
	Database string
}

type clickhouseSink struct {
	log logrus.FieldLogger
	cfg Config

	conn driver.Conn
	db   *sql.DB
}

// New creates a ClickHouse-backed sink. Nothing is dialed until Start.
func New(log logrus.FieldLogger, cfg Config) Sink {
	return &clickhouseSink{
		log: log.WithField("component", "sink"),
		cfg: cfg,
	}
}

// Start connects, creates the database and applies pending migrations.
func (s *clickhouseSink) Start(ctx context.Context) error {
	if !validIdentifier(s.cfg.Database) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabase, s.cfg.Database)
	}

	opts, err := clickhouse.ParseDSN(s.cfg.DSN)
	if err != nil {
		return fmt.Errorf("parsing clickhouse dsn: %w", err)
	}

	opts.DialTimeout = 10 * time.Second
	opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", s.cfg.Database)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create database: %w", err)
	}

	dbOpts := *opts
	dbOpts.Auth.Database = s.cfg.Database
	db := clickhouse.OpenDB(&dbOpts)

	if err := s.migrate(ctx, db); err != nil {
		_ = db.Close()
		_ = conn.Close()

		return err
	}

	s.conn = conn
	s.db = db

	s.log.WithField("database", s.cfg.Database).Info("Results sink ready")

	return nil
}

func (s *clickhouseSink) migrate(ctx context.Context, db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating source driver: %w", err)
	}

	target, err := migrateclickhouse.WithInstance(db, &migrateclickhouse.Config{
		DatabaseName:          s.cfg.Database,
		MigrationsTable:       migrationsTable,
		MultiStatementEnabled: true,
		MultiStatementMaxSize: 1024 * 1024,
	})
	if err != nil {
		return fmt.Errorf("creating clickhouse driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, s.cfg.Database, target)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	done := make(chan error, 1)

	go func() {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			done <- fmt.Errorf("running migrations: %w", err)
			return
		}

		done <- nil
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("migration canceled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

// Stop closes both connections.
func (s *clickhouseSink) Stop() error {
	var errs []error

	if s.db != nil {
		errs = append(errs, s.db.Close())
	}

	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}

	return errors.Join(errs...)
}

// Write inserts the run summary and one row per outcome.
func (s *clickhouseSink) Write(ctx context.Context, run Run) error {
	if s.conn == nil {
		return ErrNotStarted
	}

	rows, err := outcomeRows(run)
	if err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO `%s`.check_outcomes", s.cfg.Database))
	if err != nil {
		return fmt.Errorf("preparing outcome batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("appending outcome: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending outcome batch: %w", err)
	}

	err = s.conn.Exec(ctx,
		fmt.Sprintf("INSERT INTO `%s`.run_summaries VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.cfg.Database),
		summaryRow(run)...,
	)
	if err != nil {
		return fmt.Errorf("inserting run summary: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"outcomes": len(rows),
	}).Debug("Persisted run")

	return nil
}

// outcomeRows flattens outcomes into check_outcomes column order.
func outcomeRows(run Run) ([][]any, error) {
	rows := make([][]any, 0, len(run.Outcomes))

	for _, o := range run.Outcomes {
		detail := ""

		if o.Detail != nil {
			raw, err := json.Marshal(o.Detail)
			if err != nil {
				return nil, fmt.Errorf("encoding detail for %s: %w", o.Name, err)
			}

			detail = string(raw)
		}

		rows = append(rows, []any{
			run.ID,
			run.BackendURL,
			o.Name,
			categoryOf(o.Name),
			o.Passed,
			o.Message,
			detail,
			o.RecordedAt.UTC(),
		})
	}

	return rows, nil
}

func summaryRow(run Run) []any {
	return []any{
		run.ID,
		run.BackendURL,
		uint32(run.Summary.TotalTests),
		uint32(run.Summary.TestsPassed),
		uint32(run.Summary.TestsFailed),
		run.Summary.SuccessRate,
		string(run.Summary.Verdict),
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	}
}

func categoryOf(name string) string {
	for _, c := range report.CategoryNames() {
		if strings.HasPrefix(name, c) {
			return c
		}
	}

	return "Other"
}

func validIdentifier(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}

	return true
}
