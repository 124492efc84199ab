// Package apperr defines the error taxonomy shared by the ingestion pipeline.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindInvalidRequest
	KindNotFound
	KindConflict
	KindUnsupportedMedia
	KindTrigger
	KindTimeout
	KindSync
	KindIndexRemoveFailed
	KindStoreDeleteFailed
)

var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrTrigger           = errors.New("transformation trigger failed")
	ErrTimeout           = errors.New("transformation timed out")
	ErrSync              = errors.New("index sync failed")
	ErrIndexRemoveFailed = errors.New("index removal failed")
	ErrStoreDeleteFailed = errors.New("store deletion failed")
)

var sentinels = map[Kind]error{
	KindValidation:        ErrValidation,
	KindInvalidRequest:    ErrInvalidRequest,
	KindNotFound:          ErrNotFound,
	KindConflict:          ErrConflict,
	KindUnsupportedMedia:  ErrUnsupportedMedia,
	KindTrigger:           ErrTrigger,
	KindTimeout:           ErrTimeout,
	KindSync:              ErrSync,
	KindIndexRemoveFailed: ErrIndexRemoveFailed,
	KindStoreDeleteFailed: ErrStoreDeleteFailed,
}

var codes = map[Kind]string{
	KindValidation:        "validation_error",
	KindInvalidRequest:    "invalid_request",
	KindNotFound:          "not_found",
	KindConflict:          "conflict",
	KindUnsupportedMedia:  "unsupported_media",
	KindTrigger:           "trigger_error",
	KindTimeout:           "timeout",
	KindSync:              "sync_error",
	KindIndexRemoveFailed: "index_remove_failed",
	KindStoreDeleteFailed: "store_delete_failed",
}

// Code returns a stable machine-readable identifier for the kind.
func (k Kind) Code() string {
	if c, ok := codes[k]; ok {
		return c
	}
	return "internal_error"
}

// Error is a classified failure with enough context for an operator to act on it.
type Error struct {
	Kind Kind
	Op   string // operation, e.g. "upload", "delete"
	Path string // fully-qualified artifact path when known
	Msg  string // human-readable detail or external message
	Err  error  // underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if s, ok := sentinels[e.Kind]; ok {
		b.WriteString(s.Error())
	} else {
		b.WriteString("error")
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " [%s]", e.Path)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New creates a classified error.
func New(kind Kind, op, path, msg string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}

// Retryable reports whether re-issuing the same action may succeed without user correction.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindInvalidRequest, KindConflict, KindUnsupportedMedia, KindNotFound:
		return false
	}
	return true
}
