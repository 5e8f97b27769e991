// Package loader appends flattened tables to PostgreSQL.
//
// Each Append runs in a single transaction: the schema is created if
// missing, the table is created from the inferred column types if missing,
// and the rows are streamed with COPY. Existing tables are never altered;
// a batch carrying a column the table lacks is rejected.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/yelp-loader/pkg/flatten"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrTableExists is returned when the target exists and IfExists is "fail".
var ErrTableExists = errors.New("table already exists")

// Prometheus metrics for loads.
var (
	yelpRowsLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yelp_rows_loaded_total",
		Help: "Total rows appended to the database by target table",
	}, []string{"table"})

	yelpLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yelp_load_duration_seconds",
		Help:    "Duration of a load transaction by target table",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"table"})
)

// IfExists selects what happens when the target table already exists.
type IfExists string

const (
	// IfExistsAppend inserts into the existing table.
	IfExistsAppend IfExists = "append"

	// IfExistsFail aborts the load with ErrTableExists.
	IfExistsFail IfExists = "fail"

	// IfExistsReplace drops and recreates the table.
	IfExistsReplace IfExists = "replace"
)

// ParseIfExists validates a policy name. Empty means append.
func ParseIfExists(s string) (IfExists, error) {
	switch IfExists(strings.ToLower(strings.TrimSpace(s))) {
	case "", IfExistsAppend:
		return IfExistsAppend, nil
	case IfExistsFail:
		return IfExistsFail, nil
	case IfExistsReplace:
		return IfExistsReplace, nil
	default:
		return "", fmt.Errorf("unsupported if_exists policy %q (want append, fail or replace)", s)
	}
}

// Target names the destination table.
type Target struct {
	// Schema is the table's schema (default "public").
	Schema string

	// Table is the table name.
	Table string

	// IfExists is the policy for an existing table (default append).
	IfExists IfExists
}

// Identifier returns the quoted-ready schema-qualified identifier.
func (t Target) Identifier() pgx.Identifier {
	return pgx.Identifier{t.schema(), t.Table}
}

// String returns schema.table.
func (t Target) String() string {
	return t.schema() + "." + t.Table
}

func (t Target) schema() string {
	if t.Schema == "" {
		return "public"
	}
	return t.Schema
}

// Beginner starts transactions. *pgxpool.Pool implements it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// Loader appends tables to PostgreSQL.
type Loader struct {
	db     Beginner
	logger zerolog.Logger
}

// New creates a Loader.
func New(db Beginner, opts ...Option) *Loader {
	l := &Loader{
		db:     db,
		logger: log.With().Str("component", "loader").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

const columnsQuery = `
	SELECT coalesce(json_object_agg(column_name, data_type), '{}')
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2`

// Append writes every row of table to target and returns the number of rows
// copied. An empty table is a no-op.
func (l *Loader) Append(ctx context.Context, target Target, table *flatten.Table) (int64, error) {
	if target.Table == "" {
		return 0, fmt.Errorf("target table is required")
	}
	policy, err := ParseIfExists(string(target.IfExists))
	if err != nil {
		return 0, err
	}

	if table == nil || table.Len() == 0 {
		l.logger.Info().Str("table", target.String()).Msg("Nothing to load")
		return 0, nil
	}

	start := time.Now()
	defer func() {
		yelpLoadDuration.WithLabelValues(target.String()).Observe(time.Since(start).Seconds())
	}()

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ident := target.Identifier()

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{target.schema()}.Sanitize()); err != nil {
		return 0, fmt.Errorf("create schema %s: %w", target.schema(), err)
	}

	existing := map[string]string{}
	if err := tx.QueryRow(ctx, columnsQuery, target.schema(), target.Table).Scan(&existing); err != nil {
		return 0, fmt.Errorf("inspect %s: %w", target, err)
	}
	exists := len(existing) > 0

	if exists {
		switch policy {
		case IfExistsFail:
			return 0, fmt.Errorf("%s: %w", target, ErrTableExists)
		case IfExistsReplace:
			if _, err := tx.Exec(ctx, "DROP TABLE "+ident.Sanitize()); err != nil {
				return 0, fmt.Errorf("drop %s: %w", target, err)
			}
			l.logger.Info().Str("table", target.String()).Msg("Dropped existing table")
			exists = false
		}
	}

	var types map[string]string
	if exists {
		for _, col := range table.Columns {
			if _, ok := existing[col]; !ok {
				return 0, fmt.Errorf("column %q does not exist in %s", col, target)
			}
		}
		types = existing
	} else {
		types = InferTypes(table)
		if _, err := tx.Exec(ctx, createTableSQL(ident, table.Columns, types)); err != nil {
			return 0, fmt.Errorf("create %s: %w", target, err)
		}
		l.logger.Info().
			Str("table", target.String()).
			Int("columns", len(table.Columns)).
			Msg("Created table")
	}

	rows := coerceRows(table, types)

	n, err := tx.CopyFrom(ctx, ident, table.Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", target, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	yelpRowsLoadedTotal.WithLabelValues(target.String()).Add(float64(n))

	l.logger.Info().
		Str("table", target.String()).
		Int64("rows", n).
		Str("if_exists", string(policy)).
		Dur("duration", time.Since(start)).
		Msg("Loaded rows")

	return n, nil
}

func createTableSQL(ident pgx.Identifier, columns []string, types map[string]string) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = pgx.Identifier{col}.Sanitize() + " " + types[col]
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", ident.Sanitize(), strings.Join(defs, ", "))
}
