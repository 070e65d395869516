package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

type Config struct {
	Driver           string // postgres | sqlite | memory
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// SQL is a RecordStore over database/sql.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	closers []func()
}

// NewSQL wraps an open *sql.DB.
func NewSQL(db *sql.DB, d Dialect, logger *slog.Logger) *SQL {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQL{db: db, dialect: d, logger: logger}
}

var _ RecordStore = (*SQL)(nil)

// Open returns the store selected by cfg.Driver, ready to use (migrated for SQL backends).
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (RecordStore, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "memory":
		return NewMemory(), func() {}, nil
	case "postgres", "":
		s, err := OpenPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return migrated(ctx, s)
	case "sqlite":
		s, err := OpenSQLite(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return migrated(ctx, s)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Driver)
	}
}

func migrated(ctx context.Context, s *SQL) (RecordStore, func(), error) {
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, s.Close, nil
}

// OpenPostgres creates a pgx pool and exposes it through database/sql.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*SQL, error) {
	logger.Info("connecting to database", "driver", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "receipt-analyzer"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	s := NewSQL(stdlib.OpenDBFromPool(pool), Postgres, logger)
	s.closers = append(s.closers, pool.Close)
	logger.Info("successfully connected to database")
	return s, nil
}

// OpenSQLite opens a SQLite database through the otelsql wrapper. ":memory:"
// gives a private in-process database.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*SQL, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := otelsql.Open("sqlite", dsn, otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	// one connection: an in-memory database is per connection, and SQLite
	// serializes writers anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	logger.Info("successfully opened database", "driver", "sqlite")
	return NewSQL(db, SQLite, logger), nil
}

// Migrate applies the dialect's schema steps in order. Every step is idempotent.
func (s *SQL) Migrate(ctx context.Context) error {
	for i, stmt := range s.dialect.Migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Error("store.migrate.failed", "step", i+1, "error", err)
			return wrap("migrate", fmt.Errorf("step %d: %w", i+1, err), s.dialect.Classify)
		}
	}
	s.logger.Debug("store.migrate.ok", "dialect", s.dialect.Name, "steps", len(s.dialect.Migrations))
	return nil
}

func (s *SQL) Put(ctx context.Context, receiptID string, r entity.CanonicalReceipt) error {
	if receiptID == "" {
		return &Error{Kind: Permanent, Op: "put", Err: ErrEmptyID}
	}
	items := r.LineItems
	if items == nil {
		items = []entity.LineItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return &Error{Kind: Permanent, Op: "put", Err: fmt.Errorf("encode line items: %w", err)}
	}

	_, err = s.db.ExecContext(ctx, s.dialect.Upsert,
		receiptID,
		r.Merchant,
		r.ISODate,
		r.TotalAmount,
		r.CurrencyCode,
		r.Category,
		r.ConfidenceScore,
		nullFloat(r.Subtotal),
		nullFloat(r.Tax),
		string(itemsJSON),
		r.HasDetailedItems,
		r.Degraded,
		r.OriginalText,
		r.SourceDocumentRef,
		r.CreatedAt.UTC(),
	)
	if err != nil {
		return wrap("put", err, s.dialect.Classify)
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, receiptID string) (entity.CanonicalReceipt, error) {
	var (
		out       entity.CanonicalReceipt
		subtotal  sql.NullFloat64
		tax       sql.NullFloat64
		itemsJSON []byte
	)
	err := s.db.QueryRowContext(ctx, s.dialect.SelectByID, receiptID).Scan(
		&out.ReceiptID,
		&out.Merchant,
		&out.ISODate,
		&out.TotalAmount,
		&out.CurrencyCode,
		&out.Category,
		&out.ConfidenceScore,
		&subtotal,
		&tax,
		&itemsJSON,
		&out.HasDetailedItems,
		&out.Degraded,
		&out.OriginalText,
		&out.SourceDocumentRef,
		&out.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.CanonicalReceipt{}, &Error{Kind: Permanent, Op: "get", Err: ErrNotFound}
	}
	if err != nil {
		return entity.CanonicalReceipt{}, wrap("get", err, s.dialect.Classify)
	}

	if subtotal.Valid {
		out.Subtotal = &subtotal.Float64
	}
	if tax.Valid {
		out.Tax = &tax.Float64
	}
	out.LineItems = []entity.LineItem{}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &out.LineItems); err != nil {
			return entity.CanonicalReceipt{}, &Error{Kind: Permanent, Op: "get", Err: fmt.Errorf("decode line items: %w", err)}
		}
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return out, nil
}

// Ping checks connectivity using database/sql to catch DSN issues early.
func (s *SQL) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx), s.dialect.Classify)
}

// Close closes the database connections gracefully.
func (s *SQL) Close() {
	s.logger.Info("closing database connections")
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close database", "error", err)
	}
	for _, c := range s.closers {
		c()
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
