package migrate

import (
	"errors"
	"fmt"

	"github.com/ase-101/hackathon/internal/sheets"
	"github.com/ase-101/hackathon/internal/storage"
)

// Kind classifies a migration failure so the batch loop can decide whether
// to move on to the next row or stop the run.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindAuthentication
	KindSheetRead
	KindTransfer
	KindSheetUpdate
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindSheetRead:
		return "sheet_read"
	case KindTransfer:
		return "transfer"
	case KindSheetUpdate:
		return "sheet_update"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Fatal kinds stop the whole run.
func (k Kind) Fatal() bool {
	return k == KindConfiguration || k == KindAuthentication || k == KindSheetRead
}

type Error struct {
	Kind Kind
	Op   string
	Row  int    // sheet row number, 0 when not row specific
	Key  string // object key, when the failure concerns one file
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Row > 0 && e.Key != "":
		return fmt.Sprintf("%s: %s row %d key %s: %v", e.Kind, e.Op, e.Row, e.Key, e.Err)
	case e.Row > 0:
		return fmt.Sprintf("%s: %s row %d: %v", e.Kind, e.Op, e.Row, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return 0
}

// IsFatal reports whether err should end the run.
func IsFatal(err error) bool {
	return KindOf(err).Fatal()
}

// newError refines kind using the storage and sheets sentinels in err.
// Per-object or per-cell denials stay row errors; only credential failures
// and a denied sheet read end the run.
func newError(kind Kind, op string, row int, key string, err error) *Error {
	switch {
	case errors.Is(err, storage.ErrInvalidCredentials),
		errors.Is(err, sheets.ErrUnauthorized),
		errors.Is(err, sheets.ErrInvalidCredentials),
		kind == KindSheetRead && errors.Is(err, sheets.ErrForbidden):
		kind = KindAuthentication
	case errors.Is(err, storage.ErrBucketNotFound),
		kind == KindSheetRead && errors.Is(err, sheets.ErrNotFound):
		kind = KindConfiguration
	}
	return &Error{Kind: kind, Op: op, Row: row, Key: key, Err: err}
}

// ConfigurationError wraps a setup failure detected before any row runs.
func ConfigurationError(op string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}

// AuthenticationError wraps a credential failure detected before any row runs.
func AuthenticationError(op string, err error) error {
	return &Error{Kind: KindAuthentication, Op: op, Err: err}
}
