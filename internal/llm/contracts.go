package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

// Invoker sends a prompt to a language model and returns its raw text answer.
type Invoker interface {
	Invoke(ctx context.Context, p Prompt) (string, error)
	Model() string
}

// Analyzer is what the pipeline depends on to turn a prompt into a candidate receipt.
type Analyzer interface {
	Extract(ctx context.Context, p Prompt) (entity.ParsedReceipt, error)
}

type ErrorKind int

const (
	KindTransient ErrorKind = iota + 1
	KindPermanent
	KindMalformed
	KindSchemaViolation
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindMalformed:
		return "malformed"
	case KindSchemaViolation:
		return "schema_violation"
	default:
		return "unknown"
	}
}

// CallError is a failed provider call.
type CallError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s call (%s, status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s call (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status code onto a retry kind.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == 408, code == 409, code == 425, code == 429:
		return KindTransient
	case code >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// ClassifyTransport decides whether a transport-level failure is worth retrying.
func ClassifyTransport(err error) ErrorKind {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTransient
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return KindTransient
	case errors.As(err, &netErr):
		return KindTransient
	default:
		return KindPermanent
	}
}

// ExtractionError is returned by StructuredExtractor. For SchemaViolation,
// Candidate holds whatever fields could be decoded.
type ExtractionError struct {
	Kind      ErrorKind
	Candidate *entity.ParsedReceipt
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

var (
	ErrNoJSON        = errors.New("no JSON object in model response")
	ErrEmptyResponse = errors.New("empty model response")
	ErrRefused       = errors.New("model refused the request")
)
