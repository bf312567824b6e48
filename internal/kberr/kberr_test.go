package kberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := ConfigurationError("chunk_overlap must be smaller than chunk_size", nil)
	assert.Equal(t, "[KB_CONFIG_INVALID] chunk_overlap must be smaller than chunk_size", err.Error())

	cause := errors.New("connection refused")
	err = TransientBackendError("embedding request failed", cause)
	assert.Equal(t, "[KB_BACKEND_UNAVAILABLE] embedding request failed: connection refused", err.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("no such file")
	err := ConfigurationError("cannot read policy file", cause)

	require.ErrorIs(t, err, cause)
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("loading config: %w", ConfigurationError("bad yaml", nil))

	assert.True(t, errors.Is(err, &Error{Code: CodeConfigInvalid}))
	assert.False(t, errors.Is(err, &Error{Code: CodeCorpusCorrupt}))
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(TransientBackendError("lock held", nil)))
	assert.False(t, IsRetryable(ConfigurationError("bad value", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeModelUnavailable, GetCode(ModelUnavailableError("model missing", nil)))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestCategories(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
	}{
		{"config", ConfigurationError("m", nil), CategoryConfig},
		{"backend", TransientBackendError("m", nil), CategoryBackend},
		{"model", ModelUnavailableError("m", nil), CategoryModel},
		{"corpus", CorpusError("m", nil), CategoryCorpus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var kbe *Error
			require.ErrorAs(t, tt.err, &kbe)
			assert.Equal(t, tt.category, kbe.Category)
		})
	}
}
