package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorIsKind(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	tests := []struct {
		name string
		err  error
		kind error
		want string
	}{
		{"validation", NewValidationError("bad payload", nil), ErrValidation, "validation"},
		{"not found", NewNotFoundError("object missing", cause), ErrNotFound, "not_found"},
		{"transient", NewTransientError("download", cause), ErrTransient, "transient"},
		{"extraction", NewExtractionError("parse pdf", cause), ErrExtraction, "extraction"},
		{"config", NewConfigError("DB_URL is required"), ErrConfiguration, "configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("processor: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind)
			assert.Equal(t, tt.want, Kind(wrapped))
		})
	}
}

func TestAppErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewTransientError("update candidate", cause)

	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "TRANSIENT_ERROR: update candidate: connection reset", err.Error())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewTransientError("x", nil)))
	assert.False(t, Retryable(NewNotFoundError("x", nil)))
	assert.False(t, Retryable(NewValidationError("x", nil)))
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(nil))
}

func TestKindUnknown(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "unknown", Kind(errors.New("boom")))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "ctx"))
	err := WrapError(NewNotFoundError("gone", nil), "download")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "download: ")
}
