package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad"), http.StatusUnprocessableEntity},
		{"wrapped validation", fmt.Errorf("create: %w", FieldError("name", "name is required")), http.StatusUnprocessableEntity},
		{"not found", NotFound("cooperative", "1"), http.StatusNotFound},
		{"no rows", fmt.Errorf("get: %w", sql.ErrNoRows), http.StatusNotFound},
		{"conflict", Conflict("dup"), http.StatusConflict},
		{"rate", RateLimitExceeded(5, "1s"), http.StatusTooManyRequests},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestFieldErrorDetails(t *testing.T) {
	err := FieldError("amount", "amount must be positive")
	assert.Equal(t, "amount must be positive", err.Details["amount"])
	assert.True(t, Is(err, CodeValidation))
	assert.False(t, Is(err, CodeConflict))
}
