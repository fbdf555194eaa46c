package mainmemory

import (
	"errors"
	"fmt"
	"syscall"
)

// Error represents a structured MainMemory error with context and errno mapping.
type Error struct {
	Op        string    // Operation that failed (e.g., "table.insert", "conn.read")
	Partition int       // Partition index (-1 if not applicable)
	Code      ErrorCode // High-level error category
	Errno     syscall.Errno
	Msg       string
	Inner     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Partition >= 0 {
		parts = append(parts, fmt.Sprintf("partition=%d", e.Partition))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("mainmemory: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("mainmemory: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support comparing by error code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents the error kinds enumerated in §7 of the specification.
type ErrorCode string

const (
	// CodeProtocol is a client protocol error: malformed command, bad length, etc.
	// The session continues; the caller formats a protocol-level reply.
	CodeProtocol ErrorCode = "protocol error"
	// CodeSessionFatal means the connection must be dropped: bad binary magic,
	// excessive junk, or an I/O error that survived retry.
	CodeSessionFatal ErrorCode = "session fatal"
	// CodeOutOfMemory means eviction could not free enough room; the table is full.
	CodeOutOfMemory ErrorCode = "out of memory"
	// CodeCASMismatch means a cas/update with an explicit stamp did not match.
	CodeCASMismatch ErrorCode = "cas mismatch"
	// CodeNotFound means the key does not exist (or is logically expired/flushed).
	CodeNotFound ErrorCode = "not found"
	// CodeInvalid means caller-supplied arguments are invalid (bad key length,
	// non-numeric value for incr/decr, etc).
	CodeInvalid ErrorCode = "invalid arguments"
	// CodeInternal is a programmer error: broken invariant, ring overflow.
	// These must never be produced by adversarial client input.
	CodeInternal ErrorCode = "internal error"
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Partition: -1, Code: code, Msg: msg}
}

// NewPartitionError creates a partition-scoped error.
func NewPartitionError(op string, partition int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Partition: partition, Code: code, Msg: msg}
}

// WrapError wraps an existing error with MainMemory context, mapping syscall
// errnos to the closest error code.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if me, ok := inner.(*Error); ok {
		return &Error{
			Op:        op,
			Partition: me.Partition,
			Code:      me.Code,
			Errno:     me.Errno,
			Msg:       me.Msg,
			Inner:     me.Inner,
		}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{
			Op:        op,
			Partition: -1,
			Code:      mapErrnoToCode(errno),
			Errno:     errno,
			Msg:       errno.Error(),
			Inner:     inner,
		}
	}

	return &Error{Op: op, Partition: -1, Code: CodeSessionFatal, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG:
		return CodeInvalid
	case syscall.ENOMEM, syscall.ENOSPC:
		return CodeOutOfMemory
	case syscall.ETIMEDOUT, syscall.EAGAIN:
		return CodeSessionFatal
	default:
		return CodeSessionFatal
	}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
