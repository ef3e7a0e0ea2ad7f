package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"

	"persistence-engine/internal/envelope"
	"persistence-engine/internal/security"
	"persistence-engine/internal/serializer"
)

// Result is the outcome of every provider operation. Expected conditions
// such as a missing key are results, not errors.
type Result int

const (
	Success Result = iota
	Failed
	NotFound
	Unauthorized
	Corrupted
	NetworkError
	InsufficientSpace
	InvalidData
	EncryptionError
	CompressionError
	PartialSuccess
	NotImplemented
	NotInitialized
	UnsupportedStorageType
	OtherError
)

var resultNames = [...]string{
	Success:                "Success",
	Failed:                 "Failed",
	NotFound:               "NotFound",
	Unauthorized:           "Unauthorized",
	Corrupted:              "Corrupted",
	NetworkError:           "NetworkError",
	InsufficientSpace:      "InsufficientSpace",
	InvalidData:            "InvalidData",
	EncryptionError:        "EncryptionError",
	CompressionError:       "CompressionError",
	PartialSuccess:         "PartialSuccess",
	NotImplemented:         "NotImplemented",
	NotInitialized:         "NotInitialized",
	UnsupportedStorageType: "UnsupportedStorageType",
	OtherError:             "OtherError",
}

func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// OK reports whether r is Success.
func (r Result) OK() bool { return r == Success }

// ParseResult is the inverse of String.
func ParseResult(name string) (Result, bool) {
	for r, n := range resultNames {
		if n == name {
			return Result(r), true
		}
	}
	return 0, false
}

// Sentinel causes providers wrap so ResultFromError can classify them.
var (
	ErrNotFound       = errors.New("storage: key not found")
	ErrInvalidKey     = errors.New("storage: invalid key")
	ErrInvalidData    = errors.New("storage: invalid data")
	ErrCorrupted      = errors.New("storage: stored data is corrupted")
	ErrCompression    = errors.New("storage: compression failed")
	ErrEncryption     = errors.New("storage: encryption failed")
	ErrNotInitialized = errors.New("storage: provider not initialized")
	ErrUnsupported    = errors.New("storage: unsupported storage kind")
	ErrNotImplemented = errors.New("storage: not implemented")
	ErrNetwork        = errors.New("storage: network failure")
)

// ResultFromError maps an error to the closest Result. Unknown errors,
// including context cancellation, are Failed.
func ResultFromError(err error) Result {
	var netErr net.Error

	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, sql.ErrNoRows):
		return NotFound
	case errors.Is(err, ErrNotInitialized):
		return NotInitialized
	case errors.Is(err, ErrUnsupported):
		return UnsupportedStorageType
	case errors.Is(err, ErrNotImplemented):
		return NotImplemented
	case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrInvalidData), errors.Is(err, serializer.ErrInvalidTarget):
		return InvalidData
	case errors.Is(err, ErrCorrupted),
		errors.Is(err, envelope.ErrTruncated),
		errors.Is(err, envelope.ErrUnsupportedVersion),
		errors.Is(err, envelope.ErrLengthMismatch),
		errors.Is(err, envelope.ErrInvalidFlag):
		return Corrupted
	case errors.Is(err, ErrCompression), errors.Is(err, serializer.ErrDecompress):
		return CompressionError
	case errors.Is(err, ErrEncryption), errors.Is(err, security.ErrCiphertextShort):
		return EncryptionError
	case errors.Is(err, fs.ErrPermission):
		return Unauthorized
	case errors.Is(err, syscall.ENOSPC):
		return InsufficientSpace
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Failed
	case errors.Is(err, ErrNetwork), errors.As(err, &netErr):
		return NetworkError
	default:
		return Failed
	}
}

// OperationError carries a non-success Result together with its cause.
type OperationError struct {
	Op     string
	Kind   Kind
	Key    string
	Result Result
	Err    error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Kind, e.Op)
	if e.Key != "" {
		msg += fmt.Sprintf(" %q", e.Key)
	}
	msg += ": " + e.Result.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OperationError) Unwrap() error { return e.Err }

// AsError returns nil for Success and an *OperationError otherwise.
func (r Result) AsError(kind Kind, op, key string) error {
	if r.OK() {
		return nil
	}
	return &OperationError{Op: op, Kind: kind, Key: key, Result: r}
}

// Aggregate folds per-kind results: any Failed makes the whole Failed.
func Aggregate(results ...Result) Result {
	for _, r := range results {
		if r == Failed {
			return Failed
		}
	}
	return Success
}
