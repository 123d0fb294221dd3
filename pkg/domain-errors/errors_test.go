package domainerrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "everkeep/pkg/domain-errors"
)

func TestHasCodeThroughWrapping(t *testing.T) {
	base := dErrors.New(dErrors.CodeNotFound, "consent record not found")
	wrapped := fmt.Errorf("handling request: %w", base)

	assert.True(t, dErrors.HasCode(wrapped, dErrors.CodeNotFound))
	assert.False(t, dErrors.HasCode(wrapped, dErrors.CodeConflict))
	assert.False(t, dErrors.HasCode(errors.New("plain"), dErrors.CodeNotFound))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := dErrors.Wrap(cause, dErrors.CodeStorage, "failed to store consent record")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, dErrors.CodeStorage, dErrors.CodeOf(err))
	assert.Contains(t, err.Error(), "failed to store consent record")
}

func TestCodeOfUnknownError(t *testing.T) {
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(errors.New("anything")))
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(nil))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeValidation:           http.StatusBadRequest,
		dErrors.CodeInvalidInput:         http.StatusBadRequest,
		dErrors.CodeUnauthorized:         http.StatusUnauthorized,
		dErrors.CodeForbidden:            http.StatusForbidden,
		dErrors.CodeConsentRequired:      http.StatusForbidden,
		dErrors.CodeRevoked:              http.StatusForbidden,
		dErrors.CodeAuthorizationPending: http.StatusAccepted,
		dErrors.CodeNotFound:             http.StatusNotFound,
		dErrors.CodeConflict:             http.StatusConflict,
		dErrors.CodeStorage:              http.StatusServiceUnavailable,
		dErrors.CodeInternal:             http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, dErrors.ToHTTPStatus(code), string(code))
	}
}

func TestErrorsAsExtractsTyped(t *testing.T) {
	err := dErrors.New(dErrors.CodeRevoked, "consent was revoked")
	var domainErr *dErrors.Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, dErrors.CodeRevoked, domainErr.Code)
	assert.Equal(t, "consent was revoked", domainErr.Message)
}
