package acl

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotebook/internal/adapters/clients"
	"github.com/jsamuelsen/quotebook/internal/domain"
)

func response(status int, body string) *http.Response {
	resp := &http.Response{StatusCode: status}
	if body != "" {
		resp.Body = io.NopCloser(strings.NewReader(body))
	}

	return resp
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		resp      *http.Response
		clientErr error
		wantIs    error
		wantMsg   string
	}{
		{name: "success", resp: response(http.StatusCreated, "")},
		{name: "no response", wantIs: domain.ErrUnavailable},
		{name: "circuit open", clientErr: clients.ErrCircuitOpen, wantIs: domain.ErrUnavailable, wantMsg: "circuit breaker open"},
		{name: "retries exhausted", clientErr: fmt.Errorf("get: %w", clients.ErrMaxRetriesExceeded), wantIs: domain.ErrUnavailable},
		{name: "transport error", clientErr: errors.New("dial tcp: refused"), wantIs: domain.ErrUnavailable, wantMsg: "refused"},
		{name: "not found status", resp: response(http.StatusNotFound, ""), wantIs: domain.ErrNotFound},
		{name: "conflict status", resp: response(http.StatusConflict, `{"message":"exists"}`), wantIs: domain.ErrConflict, wantMsg: "exists"},
		{
			name:    "conflict details kept",
			resp:    response(http.StatusConflict, `{"error":{"code":"CONFLICT","message":"exists","details":{"text":"Ship it.","category":"Work"}}}`),
			wantIs:  domain.ErrConflict,
			wantMsg: "quote-source conflict: exists (category=Work, text=Ship it.)",
		},
		{name: "unauthorized", resp: response(http.StatusUnauthorized, ""), wantIs: domain.ErrForbidden},
		{name: "rate limited", resp: response(http.StatusTooManyRequests, ""), wantIs: domain.ErrUnavailable, wantMsg: "rate limit"},
		{name: "server error", resp: response(http.StatusBadGateway, "<html>"), wantIs: domain.ErrUnavailable, wantMsg: "status 502"},
		{name: "code beats status", resp: response(http.StatusBadGateway, `{"error":{"code":"NOT_FOUND"}}`), wantIs: domain.ErrNotFound},
		{
			name:    "field detail",
			resp:    response(http.StatusUnprocessableEntity, `{"error":{"code":"VALIDATION_ERROR","message":"bad","details":{"category":"required"}}}`),
			wantIs:  domain.ErrValidation,
			wantMsg: "validation failed for category: required",
		},
		{name: "unexpected status", resp: response(http.StatusTeapot, ""), wantIs: domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.resp, tt.clientErr, "quote-source", "fetch quotes")

			if tt.wantIs == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantIs)

			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParseErrorResponse(t *testing.T) {
	assert.Nil(t, ParseErrorResponse(nil))
	assert.Nil(t, ParseErrorResponse(strings.NewReader("not json")))
	assert.Nil(t, ParseErrorResponse(strings.NewReader(`{}`)))

	flat := ParseErrorResponse(strings.NewReader(`{"code":"CONFLICT","message":"exists"}`))
	require.NotNil(t, flat)
	assert.Equal(t, "CONFLICT", flat.GetCode())
	assert.Equal(t, "exists", flat.GetMessage())

	nested := ParseErrorResponse(strings.NewReader(`{"error":{"code":"FORBIDDEN","message":"nope"},"code":"X"}`))
	require.NotNil(t, nested)
	assert.Equal(t, "FORBIDDEN", nested.GetCode())
	assert.Equal(t, "nope", nested.GetMessage())
}
