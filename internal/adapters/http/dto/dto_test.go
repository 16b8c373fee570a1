package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotebook/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "duplicate quote",
			err:        fmt.Errorf("adding quote: %w", domain.ErrDuplicateQuote),
			wantStatus: http.StatusConflict,
			wantCode:   ErrorCodeConflict,
		},
		{
			name:       "malformed document",
			err:        fmt.Errorf("importing: %w", domain.ErrMalformedDocument),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeMalformedDocument,
		},
		{
			name:       "persistence",
			err:        domain.NewPersistenceError("dynamic_quotes_v1", errors.New("disk full")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrorCodePersistence,
			wantMsg:    `saving "dynamic_quotes_v1": disk full`,
		},
		{
			name:       "not found",
			err:        domain.NewNotFoundError("quote", "x"),
			wantStatus: http.StatusNotFound,
			wantCode:   ErrorCodeNotFound,
		},
		{
			name:       "unavailable",
			err:        domain.NewUnavailableError("quote-source", "timeout"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrorCodeUnavailable,
		},
		{
			name:       "forbidden",
			err:        domain.NewForbiddenError("add", "read only"),
			wantStatus: http.StatusForbidden,
			wantCode:   ErrorCodeForbidden,
		},
		{
			name:       "unknown error hides details",
			err:        errors.New("pq: connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrorCodeInternal,
			wantMsg:    internalMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := MapDomainError(tt.err)

			assert.Equal(t, tt.wantStatus, status)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantCode, resp.Error.Code)

			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Error.Message)
			}
		})
	}
}

func TestMapDomainError_ValidationDetails(t *testing.T) {
	status, resp := MapDomainError(fmt.Errorf("adding quote: %w", domain.NewValidationError("text", "must not be empty")))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrorCodeValidation, resp.Error.Code)
	assert.Equal(t, map[string]string{"text": "must not be empty"}, resp.Error.Details)

	status, resp = MapDomainError(nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, resp)
}

func TestHTTPStatusFromCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromCode(ErrorCodeMalformedDocument))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatusFromCode(ErrorCodeUnauthorized))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatusFromCode(ErrorCodeTimeout))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode(ErrorCodePersistence))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_ELSE"))
}

func TestHandleError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	HandleError(c, domain.ErrDuplicateQuote)

	assert.Equal(t, http.StatusConflict, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrorCodeConflict, resp.Error.Code)
	assert.Empty(t, resp.TraceID)
}

func TestAbort(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Abort(c, ErrorCodeForbidden, "authentication required")

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":{"code":"FORBIDDEN","message":"authentication required"}}`, w.Body.String())
}

func TestPaginate(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}

	first := Paginate(items, 0, 2)
	assert.Equal(t, []int{0, 1}, first.Items)
	assert.True(t, first.HasMore)
	assert.Equal(t, 5, first.Total)

	req := PaginationRequest{Cursor: first.NextCursor}
	offset, err := req.Offset()
	require.NoError(t, err)
	assert.Equal(t, 2, offset)

	last := Paginate(items, 4, 2)
	assert.Equal(t, []int{4}, last.Items)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.NextCursor)

	past := Paginate(items, 10, 2)
	assert.Equal(t, []int{}, past.Items)
	assert.False(t, past.HasMore)
}

func TestPaginationRequest(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: DefaultLimit},
		{limit: -3, want: DefaultLimit},
		{limit: 7, want: 7},
		{limit: 500, want: MaxLimit},
	}

	for _, tt := range tests {
		p := PaginationRequest{Limit: tt.limit}
		assert.Equal(t, tt.want, p.GetLimit(), "limit %d", tt.limit)
	}

	offset, err := (&PaginationRequest{}).Offset()
	require.NoError(t, err)
	assert.Zero(t, offset)

	for _, cursor := range []string{"%%%", "bm90LWpzb24=", EncodeCursor(&CursorData{Offset: -1})} {
		_, err := (&PaginationRequest{Cursor: cursor}).Offset()
		require.ErrorIs(t, err, ErrInvalidCursor, "cursor %q", cursor)
	}

	assert.Empty(t, EncodeCursor(nil))
}

func TestValidate_AddQuoteRequest(t *testing.T) {
	tests := []struct {
		name       string
		req        AddQuoteRequest
		wantFields map[string]string
	}{
		{name: "valid", req: AddQuoteRequest{Text: "Stay hungry.", Category: "Motivation"}},
		{
			name:       "blank text",
			req:        AddQuoteRequest{Text: "   ", Category: "Motivation"},
			wantFields: map[string]string{"text": "must not be empty"},
		},
		{
			name: "both missing",
			req:  AddQuoteRequest{},
			wantFields: map[string]string{
				"text":     "must not be empty",
				"category": "must not be empty",
			},
		},
		{
			name:       "too long",
			req:        AddQuoteRequest{Text: strings.Repeat("x", MaxFieldLength+1), Category: "Life"},
			wantFields: map[string]string{"text": "must be at most 2000 characters"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)

			if tt.wantFields == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.wantFields, ValidationErrors(err))
		})
	}
}

func TestBindAndValidate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    error
		wantStatus int
	}{
		{name: "valid", body: `{"text":"A","category":"B"}`},
		{name: "not json", body: `{`, wantErr: ErrBinding, wantStatus: http.StatusBadRequest},
		{name: "wrong type", body: `{"text":1,"category":"B"}`, wantErr: ErrBinding, wantStatus: http.StatusBadRequest},
		{name: "blank", body: `{"text":"","category":"B"}`, wantErr: ErrValidation, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req AddQuoteRequest
			err := BindAndValidate(c, &req)

			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, AddQuoteRequest{Text: "A", Category: "B"}, req)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)

			RespondBindError(c, err)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestBindQueryAndValidate(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=5&category=Life&cursor=abc", nil)

	var req ListQuotesRequest
	require.NoError(t, BindQueryAndValidate(c, &req))

	assert.Equal(t, 5, req.Limit)
	assert.Equal(t, "abc", req.Cursor)
	assert.Equal(t, "Life", req.Category)

	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=1000", nil)

	var bad ListQuotesRequest
	err := BindQueryAndValidate(c, &bad)

	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, map[string]string{"limit": "must be less than or equal to 100"}, ValidationErrors(err))
}

func TestFromDomainList(t *testing.T) {
	assert.Equal(t, []Quote{}, FromDomainList(nil))
	assert.Equal(t,
		[]Quote{{Text: "A", Category: "B"}},
		FromDomainList([]domain.Quote{{Text: "A", Category: "B"}}),
	)
}
