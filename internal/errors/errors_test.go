package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CarriesKindAndCallSite(t *testing.T) {
	err := New(NotFound, "order missing")
	assert.Equal(t, NotFound, err.Kind)
	assert.Equal(t, "order missing", err.Message)
	assert.NotEmpty(t, err.File)
	assert.NotZero(t, err.Line)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf(InvalidState, "order %q must be %s, was %s", "abc", "EN_PROCESO", "CREADA")
	assert.Equal(t, `order "abc" must be EN_PROCESO, was CREADA`, err.Message)
}

func TestWrap_PreservesExistingCoreErrorKind(t *testing.T) {
	inner := New(Conflict, "already open")
	wrapped := Wrap(inner, Internal, "should be ignored")
	assert.Same(t, inner, wrapped)
	assert.Equal(t, Conflict, wrapped.Kind)
}

func TestWrap_WrapsPlainErrorAsInternal(t *testing.T) {
	plain := errors.New("boom")
	wrapped := Wrap(plain, Internal, "store failure")
	require.NotNil(t, wrapped)
	assert.Equal(t, Internal, wrapped.Kind)
	assert.Same(t, plain, wrapped.Cause)
	assert.Contains(t, wrapped.Error(), "boom")
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, Internal, "unused"))
}

func TestIsAndKindOf(t *testing.T) {
	err := New(AlreadyExists, "duplicate cod order")
	assert.True(t, Is(err, AlreadyExists))
	assert.False(t, Is(err, NotFound))
	assert.Equal(t, AlreadyExists, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestAs_UnwrapsChain(t *testing.T) {
	inner := New(NotFound, "missing pause")
	outer := &wrapper{cause: inner}

	var ce *CoreError
	require.True(t, As(outer, &ce))
	assert.Equal(t, NotFound, ce.Kind)
}

type wrapper struct{ cause error }

func (w *wrapper) Error() string { return "wrapped: " + w.cause.Error() }
func (w *wrapper) Unwrap() error { return w.cause }

func TestWithDetailAndWithCause(t *testing.T) {
	cause := errors.New("db down")
	err := New(Internal, "create failed").WithDetail("table", "orders").WithCause(cause)
	assert.Equal(t, "orders", err.Details["table"])
	assert.Same(t, cause, err.Cause)
	assert.Contains(t, err.Error(), "db down")
}
