package qerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := New(BadCursor, "sortpage.DecodeCursor", "checksum mismatch")
	assert.Equal(t, "sortpage.DecodeCursor: checksum mismatch", err.Error())

	wrapped := Wrap(CacheIOError, "cache.Get", "disk read failed", errors.New("permission denied"))
	assert.Equal(t, "cache.Get: disk read failed: permission denied", wrapped.Error())
	assert.Equal(t, "permission denied", errors.Unwrap(wrapped).Error())
}

func TestIsHelpers(t *testing.T) {
	err := New(TooComplex, "optimizer.Plan", "too many filters")

	assert.True(t, IsTooComplex(err))
	assert.False(t, IsBadCursor(err))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, TooComplex, kind)

	_, ok = KindOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestErrorsJoinPreservesKind(t *testing.T) {
	inner := New(QueryTimeout, "orchestrator.Run", "deadline exceeded")
	outer := errors.Join(inner, errors.New("context cancelled"))

	assert.True(t, errors.Is(outer, ErrQueryTimeout))
}
