// Package store persists canonical receipts.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

// RecordStore is the persistence boundary of the pipeline. Put is an upsert
// keyed by receiptID, so a retried Put never duplicates a record.
type RecordStore interface {
	Put(ctx context.Context, receiptID string, r entity.CanonicalReceipt) error
	Get(ctx context.Context, receiptID string) (entity.CanonicalReceipt, error)
	Ping(ctx context.Context) error
}

type Kind int

const (
	Transient Kind = iota + 1
	Permanent
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound     = errors.New("receipt not found")
	ErrEmptyID      = errors.New("empty receipt id")
	ErrUnknownStore = errors.New("unknown store driver")
)

// Error is returned by every RecordStore operation that fails.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a store error worth retrying.
func IsTransient(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == Transient
}

// wrap classifies err; dialect-specific codes are checked by classify.
func wrap(op string, err error, classify func(error) (Kind, bool)) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if classify != nil {
		if k, ok := classify(err); ok {
			return &Error{Kind: k, Op: op, Err: err}
		}
	}
	return &Error{Kind: genericKind(err), Op: op, Err: err}
}

func genericKind(err error) Kind {
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return Transient
	default:
		return Permanent
	}
}
