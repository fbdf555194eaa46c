package mainmemory

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError(t *testing.T) {
	err := NewError("table.insert", CodeInvalid, "key too long")

	assert.Equal(t, "table.insert", err.Op)
	assert.Equal(t, CodeInvalid, err.Code)
	assert.Equal(t, "mainmemory: key too long (op=table.insert)", err.Error())
}

func TestPartitionError(t *testing.T) {
	err := NewPartitionError("table.evict", 3, CodeOutOfMemory, "volume budget exceeded")

	assert.Equal(t, 3, err.Partition)
	assert.Equal(t, "mainmemory: volume budget exceeded (op=table.evict)", err.Error())
}

func TestWrapError(t *testing.T) {
	inner := syscall.EINVAL
	err := WrapError("conn.read", inner)

	assert.Equal(t, CodeInvalid, err.Code)
	assert.Equal(t, syscall.EINVAL, err.Errno)
	assert.True(t, errors.Is(err, inner))
}

func TestWrapErrorPreservesStructuredError(t *testing.T) {
	original := NewPartitionError("table.update", 1, CodeCASMismatch, "stamp mismatch")
	wrapped := WrapError("conn.execute", original)

	assert.Equal(t, CodeCASMismatch, wrapped.Code)
	assert.Equal(t, 1, wrapped.Partition)
	assert.Equal(t, "conn.execute", wrapped.Op)
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError("conn.read", nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("command.incr", CodeNotFound, "key not found")

	assert.True(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(err, CodeInvalid))
	assert.False(t, IsCode(nil, CodeNotFound))
}

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		errno    syscall.Errno
		expected ErrorCode
	}{
		{syscall.EINVAL, CodeInvalid},
		{syscall.E2BIG, CodeInvalid},
		{syscall.ENOMEM, CodeOutOfMemory},
		{syscall.ENOSPC, CodeOutOfMemory},
		{syscall.ETIMEDOUT, CodeSessionFatal},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, mapErrnoToCode(tc.errno))
	}
}
