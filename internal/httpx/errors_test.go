package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// TestIsTransient разделяет ошибки на ретраябельные и постоянные.
func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"сетевой таймаут", timeoutError{}, true},
		{"обёрнутый таймаут", fmt.Errorf("ruz request: %w", timeoutError{}), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"5xx", &StatusError{Service: "erudite", Code: http.StatusBadGateway}, true},
		{"429", &StatusError{Service: "gcalendar", Code: http.StatusTooManyRequests}, true},
		{"4xx", &StatusError{Service: "erudite", Code: http.StatusBadRequest}, false},
		{"404", &StatusError{Service: "erudite", Code: http.StatusNotFound}, false},
		{"прикладная ошибка", errors.New("malformed payload"), false},
		{"отмена контекста", fmt.Errorf("wait: %w", context.Canceled), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

// TestStatusError_Message: текст ошибки содержит сервис, код и тело ответа.
func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Service: "erudite", Code: 500, Body: "oops"}
	assert.Contains(t, err.Error(), "erudite")
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "oops")
}
