package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("rollno", "rollno is required"), http.StatusBadRequest},
		{Auth("Invalid credentials"), http.StatusUnauthorized},
		{Forbidden("Password change required"), http.StatusForbidden},
		{NotFound("Reference ID not found"), http.StatusNotFound},
		{Infrastructure("Database error", errors.New("conn refused")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	base := NotFound("User not found")
	wrapped := fmt.Errorf("rotate: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindNotFound))
	assert.Equal(t, "User not found", Message(wrapped))
	assert.False(t, Retryable(wrapped))
}

func TestInfrastructure_UnwrapsCause(t *testing.T) {
	cause := errors.New("tx aborted")
	err := Infrastructure("Failed to save details", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
	assert.Equal(t, "Failed to save details: tx aborted", err.Error())
	assert.Equal(t, "Failed to save details", Message(err))
}

func TestValidation_CarriesField(t *testing.T) {
	err := Validation("guests[1]", "guest %d (%s): phone must be exactly 10 digits", 2, "Jane")

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "guests[1]", e.Field)
	assert.Equal(t, "guest 2 (Jane): phone must be exactly 10 digits", e.Message)
	assert.Equal(t, "validation", e.Kind.String())
}
