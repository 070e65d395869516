package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect carries the SQL that differs between backends.
type Dialect struct {
	Name       string
	Migrations []string
	Upsert     string
	SelectByID string
	// Classify recognizes driver-specific transient failures.
	Classify func(error) (Kind, bool)
}

var Postgres = Dialect{
	Name: "postgres",
	Migrations: []string{
		`CREATE TABLE IF NOT EXISTS receipts (
			receipt_id          TEXT PRIMARY KEY,
			merchant            TEXT NOT NULL DEFAULT '',
			iso_date            TEXT NOT NULL,
			total_amount        NUMERIC(14,2) NOT NULL,
			currency_code       CHAR(3) NOT NULL,
			category            TEXT NOT NULL,
			confidence_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
			subtotal            NUMERIC(14,2),
			tax                 NUMERIC(14,2),
			line_items          JSONB NOT NULL DEFAULT '[]'::jsonb,
			has_detailed_items  BOOLEAN NOT NULL DEFAULT FALSE,
			degraded            BOOLEAN NOT NULL DEFAULT FALSE,
			original_text       TEXT NOT NULL DEFAULT '',
			source_document_ref TEXT NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS receipts_iso_date_idx ON receipts (iso_date)`,
		`CREATE INDEX IF NOT EXISTS receipts_source_ref_idx ON receipts (source_document_ref)`,
	},
	Upsert: `
		INSERT INTO receipts (receipt_id, merchant, iso_date, total_amount, currency_code, category,
			confidence_score, subtotal, tax, line_items, has_detailed_items, degraded, original_text,
			source_document_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (receipt_id) DO UPDATE SET
			merchant = EXCLUDED.merchant,
			iso_date = EXCLUDED.iso_date,
			total_amount = EXCLUDED.total_amount,
			currency_code = EXCLUDED.currency_code,
			category = EXCLUDED.category,
			confidence_score = EXCLUDED.confidence_score,
			subtotal = EXCLUDED.subtotal,
			tax = EXCLUDED.tax,
			line_items = EXCLUDED.line_items,
			has_detailed_items = EXCLUDED.has_detailed_items,
			degraded = EXCLUDED.degraded,
			original_text = EXCLUDED.original_text,
			source_document_ref = EXCLUDED.source_document_ref,
			created_at = EXCLUDED.created_at
	`,
	SelectByID: `
		SELECT receipt_id, merchant, iso_date, total_amount, currency_code, category,
			confidence_score, subtotal, tax, line_items, has_detailed_items, degraded, original_text,
			source_document_ref, created_at
		FROM receipts
		WHERE receipt_id = $1
	`,
	Classify: classifyPostgres,
}

var SQLite = Dialect{
	Name: "sqlite",
	Migrations: []string{
		`CREATE TABLE IF NOT EXISTS receipts (
			receipt_id          TEXT PRIMARY KEY,
			merchant            TEXT NOT NULL DEFAULT '',
			iso_date            TEXT NOT NULL,
			total_amount        REAL NOT NULL,
			currency_code       TEXT NOT NULL,
			category            TEXT NOT NULL,
			confidence_score    REAL NOT NULL DEFAULT 0,
			subtotal            REAL,
			tax                 REAL,
			line_items          TEXT NOT NULL DEFAULT '[]',
			has_detailed_items  BOOLEAN NOT NULL DEFAULT 0,
			degraded            BOOLEAN NOT NULL DEFAULT 0,
			original_text       TEXT NOT NULL DEFAULT '',
			source_document_ref TEXT NOT NULL,
			created_at          TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS receipts_iso_date_idx ON receipts (iso_date)`,
		`CREATE INDEX IF NOT EXISTS receipts_source_ref_idx ON receipts (source_document_ref)`,
	},
	Upsert: `
		INSERT INTO receipts (receipt_id, merchant, iso_date, total_amount, currency_code, category,
			confidence_score, subtotal, tax, line_items, has_detailed_items, degraded, original_text,
			source_document_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (receipt_id) DO UPDATE SET
			merchant = excluded.merchant,
			iso_date = excluded.iso_date,
			total_amount = excluded.total_amount,
			currency_code = excluded.currency_code,
			category = excluded.category,
			confidence_score = excluded.confidence_score,
			subtotal = excluded.subtotal,
			tax = excluded.tax,
			line_items = excluded.line_items,
			has_detailed_items = excluded.has_detailed_items,
			degraded = excluded.degraded,
			original_text = excluded.original_text,
			source_document_ref = excluded.source_document_ref,
			created_at = excluded.created_at
	`,
	SelectByID: `
		SELECT receipt_id, merchant, iso_date, total_amount, currency_code, category,
			confidence_score, subtotal, tax, line_items, has_detailed_items, degraded, original_text,
			source_document_ref, created_at
		FROM receipts
		WHERE receipt_id = ?
	`,
	Classify: classifySQLite,
}

// classifyPostgres treats connection, transaction-rollback, resource and
// operator-intervention classes as transient.
func classifyPostgres(err error) (Kind, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
			return Transient, true
		}
		return 0, false
	}
	code := pgErr.Code
	switch {
	case strings.HasPrefix(code, "08"), // connection exception
		strings.HasPrefix(code, "40"), // serialization failure, deadlock
		strings.HasPrefix(code, "53"), // insufficient resources
		code == "55P03",               // lock not available
		code == "57014",               // query canceled (statement_timeout)
		code == "57P01", code == "57P02", code == "57P03":
		return Transient, true
	default:
		return Permanent, true
	}
}

func classifySQLite(err error) (Kind, bool) {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return 0, false
	}
	switch sqErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return Transient, true
	default:
		return Permanent, true
	}
}
