package apperr_test

import (
	"anonchat/backend/internal/apperr"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := fmt.Errorf("send: %w", apperr.Wrap(apperr.Internal, "Failed to send message", cause))

	assert.Equal(t, apperr.PolicyViolation, apperr.KindOf(apperr.New(apperr.PolicyViolation, "nope")))
	assert.Equal(t, apperr.Internal, apperr.KindOf(wrapped))
	assert.Equal(t, apperr.Internal, apperr.KindOf(cause))
	assert.ErrorIs(t, wrapped, cause)
}

func TestReasonOf_HidesCause(t *testing.T) {
	err := apperr.Wrap(apperr.Internal, "Failed to send message", errors.New("pq: deadlock detected"))

	assert.Equal(t, "Failed to send message", apperr.ReasonOf(err))
	assert.Equal(t, "Internal server error", apperr.ReasonOf(errors.New("boom")))
	assert.Contains(t, err.Error(), "deadlock")
}

func TestHTTPStatus(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.NotFound:        http.StatusNotFound,
		apperr.PolicyViolation: http.StatusUnprocessableEntity,
		apperr.InvalidInput:    http.StatusBadRequest,
		apperr.Unauthorized:    http.StatusUnauthorized,
		apperr.Internal:        http.StatusInternalServerError,
	}
	for kind, status := range tests {
		assert.Equal(t, status, apperr.HTTPStatus(kind), string(kind))
	}
}
