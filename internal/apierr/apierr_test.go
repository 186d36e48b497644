package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[*Error]int{
		NewUnauthenticated("x"):    http.StatusUnauthorized,
		NewForbidden("x"):          http.StatusForbidden,
		NewNotFound("x"):           http.StatusNotFound,
		NewBadRequest("x"):         http.StatusBadRequest,
		NewTransient("x", nil):     http.StatusServiceUnavailable,
	}
	for err, status := range cases {
		assert.Equal(t, status, err.HTTPStatus())
	}
}

func TestFrameOmitsKind(t *testing.T) {
	err := NewForbidden("only the admin may do this")
	frame := err.Frame()
	assert.Equal(t, "only the admin may do this", frame["message"])
	_, hasKind := frame["kind"]
	assert.False(t, hasKind)
}

func TestErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransient("corpus unavailable", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestOfPassesThroughTypedError(t *testing.T) {
	original := NewNotFound("room not found")
	assert.Same(t, original, Of(original))
}

func TestOfDefaultsUnknownErrorsToTransient(t *testing.T) {
	err := Of(errors.New("boom"))
	assert.Equal(t, Transient, err.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus())
}

func TestOfNil(t *testing.T) {
	assert.Nil(t, Of(nil))
}

func TestAs(t *testing.T) {
	wrapped := errors.New("just a plain error")
	_, ok := As(wrapped)
	assert.False(t, ok)

	_, ok = As(NewBadRequest("bad"))
	assert.True(t, ok)
}
