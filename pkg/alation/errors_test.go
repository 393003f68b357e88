package alation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStatusErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		wantClass ErrorClass
		wantCode  string
	}{
		{http.StatusUnauthorized, ErrorClassAuth, ErrCodeUnauthorized},
		{http.StatusForbidden, ErrorClassAuth, ErrCodeUnauthorized},
		{http.StatusNotFound, ErrorClassNotFound, ErrCodeNotFound},
		{http.StatusTooManyRequests, ErrorClassTransient, ErrCodeRateLimited},
		{http.StatusBadGateway, ErrorClassTransient, ErrCodeServer},
		{http.StatusBadRequest, ErrorClassPermanent, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := newStatusError("get_folders", tt.status, nil)
			assert.Equal(t, tt.wantClass, err.Class)
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestErrorDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", ""},
		{"detail", `{"detail": "Invalid token."}`, "Invalid token."},
		{"error", `{"error": "nope"}`, "nope"},
		{"errors list", `{"errors": ["first", "second"]}`, "first"},
		{"plain text", "  Bad Gateway \n", "Bad Gateway"},
		{"json without known keys", `{"x": 1}`, `{"x": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorDetail([]byte(tt.body)))
		})
	}

	long := strings.Repeat("x", 300)
	assert.Len(t, errorDetail([]byte(long)), 203)
}

func TestAPIErrorChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("fetch: %w", newTransportError("get_document_hubs", cause))

	assert.True(t, IsTransient(err))
	assert.False(t, IsAuth(err))
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &APIError{Class: ErrorClassTransient, Code: ErrCodeNetwork})
	assert.Contains(t, err.Error(), "operation=get_document_hubs")
	assert.Contains(t, err.Error(), "connection refused")

	status := newStatusError("refresh_token", http.StatusUnauthorized, []byte(`{"detail":"Refresh token expired"}`))
	assert.True(t, IsAuth(status))
	assert.Equal(t, "[auth] unexpected status 401 (operation=refresh_token, status=401): Refresh token expired", status.Error())

	assert.False(t, IsPermanent(errors.New("plain")))
	assert.True(t, IsPermanent(newDecodeError("get_templates", errors.New("eof"))))
}
