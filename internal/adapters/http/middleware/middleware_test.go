package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotebook/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotebook/internal/platform/config"
	"github.com/jsamuelsen/quotebook/internal/platform/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer

	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var lines []map[string]any

	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)

		lines = append(lines, m)
	}

	return lines
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	return w
}

func TestIDMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		requestID     string
		correlationID string
	}{
		{name: "generated"},
		{name: "propagated", requestID: "req-123", correlationID: "corr-456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := bufferLogger()

			var gotReq, gotCorr, ctxReq, ctxCorr string

			engine := gin.New()
			engine.Use(ContextLogger(logger), RequestID(), CorrelationID())
			engine.GET("/quotes", func(c *gin.Context) {
				gotReq, gotCorr = GetRequestID(c), GetCorrelationID(c)
				ctxReq = RequestIDFromContext(c.Request.Context())
				ctxCorr = CorrelationIDFromContext(c.Request.Context())

				logging.FromContext(c.Request.Context()).Info("handled")
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/quotes", nil)
			if tt.requestID != "" {
				req.Header.Set(HeaderRequestID, tt.requestID)
				req.Header.Set(HeaderCorrelationID, tt.correlationID)
			}

			w := serve(engine, req)

			assert.Equal(t, gotReq, w.Header().Get(HeaderRequestID))
			assert.Equal(t, gotCorr, w.Header().Get(HeaderCorrelationID))
			assert.Equal(t, gotReq, ctxReq)
			assert.Equal(t, gotCorr, ctxCorr)

			if tt.requestID != "" {
				assert.Equal(t, tt.requestID, gotReq)
				assert.Equal(t, tt.correlationID, gotCorr)
			} else {
				_, err := uuid.Parse(gotReq)
				require.NoError(t, err)
				assert.NotEqual(t, gotReq, gotCorr)
			}

			lines := logLines(t, buf)
			require.Len(t, lines, 1)
			assert.Equal(t, gotReq, lines[0]["request_id"])
			assert.Equal(t, gotCorr, lines[0]["correlation_id"])
		})
	}
}

func TestContextIDs_Unset(t *testing.T) {
	var nilCtx context.Context

	assert.Empty(t, RequestIDFromContext(nilCtx))
	assert.Empty(t, CorrelationIDFromContext(context.Background()))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetRequestID(c))
	assert.Empty(t, GetCorrelationID(c))
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{name: "success", path: "/api/v1/quotes", status: http.StatusOK, wantLevel: "INFO"},
		{name: "client error", path: "/api/v1/quotes", status: http.StatusConflict, wantLevel: "WARN"},
		{name: "server error", path: "/api/v1/quotes", status: http.StatusInternalServerError, wantLevel: "ERROR"},
		{name: "probe skipped", path: "/-/live", status: http.StatusOK},
		{name: "feed skipped", path: "/api/v1/events", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := bufferLogger()

			engine := gin.New()
			engine.Use(Logging(logger, "/api/v1/events"))
			engine.GET(tt.path, func(c *gin.Context) { c.Status(tt.status) })

			serve(engine, httptest.NewRequest(http.MethodGet, tt.path+"?limit=5", nil))

			lines := logLines(t, buf)
			if tt.wantLevel == "" {
				assert.Empty(t, lines)
				return
			}

			require.Len(t, lines, 1)
			assert.Equal(t, tt.wantLevel, lines[0]["level"])
			assert.Equal(t, "request completed", lines[0]["msg"])
			assert.Equal(t, tt.path, lines[0]["route"])
			assert.Equal(t, "limit=5", lines[0]["query"])
			assert.InDelta(t, tt.status, lines[0]["status"], 0)
		})
	}
}

func TestRecovery(t *testing.T) {
	logger, buf := bufferLogger()

	engine := gin.New()
	engine.Use(Recovery(logger))
	engine.GET("/boom", func(*gin.Context) { panic("store exploded") })
	engine.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("after write")
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrorCodeInternal, resp.Error.Code)
	assert.NotContains(t, w.Body.String(), "store exploded")

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "panic recovered", lines[0]["msg"])
	assert.Equal(t, "store exploded", lines[0]["panic"])
	assert.NotEmpty(t, lines[0]["stack"])

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/late", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}

func TestTimeout(t *testing.T) {
	tests := []struct {
		name         string
		timeout      time.Duration
		wantDeadline bool
	}{
		{name: "deadline set", timeout: time.Minute, wantDeadline: true},
		{name: "disabled", timeout: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hasDeadline bool

			engine := gin.New()
			engine.Use(Timeout(tt.timeout))
			engine.GET("/", func(c *gin.Context) {
				_, hasDeadline = c.Request.Context().Deadline()
				c.Status(http.StatusOK)
			})

			serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantDeadline, hasDeadline)
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	var readErr error

	engine := gin.New()
	engine.Use(MaxBodySize(8))
	engine.POST("/", func(c *gin.Context) {
		_, readErr = io.ReadAll(c.Request.Body)
		c.Status(http.StatusOK)
	})

	serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	require.NoError(t, readErr)

	serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[{"text":"much too long"}]`)))

	var maxErr *http.MaxBytesError
	require.ErrorAs(t, readErr, &maxErr)
	assert.Equal(t, int64(8), maxErr.Limit)
}

func TestExtractClaims(t *testing.T) {
	cfg := &config.AuthConfig{SubjectHeader: "X-Sub", ScopesHeader: "X-Scp"}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-Sub", " user-1 ")
	c.Request.Header.Set(defaultRolesHeader, "editor, ,admin")
	c.Request.Header.Set("X-Scp", "quotes:read  quotes:write")

	claims := ExtractClaims(c, cfg)

	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []string{"editor", "admin"}, claims.Roles)
	assert.Equal(t, []string{"quotes:read", "quotes:write"}, claims.Scopes)
	assert.True(t, claims.HasRole("admin"))
	assert.True(t, claims.HasAllScopes("quotes:write"))
	assert.False(t, claims.HasAllScopes("quotes:write", "quotes:admin"))

	empty := ExtractClaims(c, nil)
	assert.Empty(t, empty.Subject)
}

func TestRequireAuthAndScopes(t *testing.T) {
	cfg := &config.AuthConfig{}

	var seen *Claims

	engine := gin.New()
	engine.POST("/quotes", RequireAuth(cfg), RequireScopes(cfg, "quotes:write"), func(c *gin.Context) {
		seen = GetClaims(c)
		c.Status(http.StatusCreated)
	})
	engine.PUT("/selection", RequireScopes(cfg, "quotes:write"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name       string
		method     string
		path       string
		subject    string
		scopes     string
		wantStatus int
		wantCode   string
	}{
		{name: "anonymous", method: http.MethodPost, path: "/quotes", wantStatus: http.StatusUnauthorized, wantCode: dto.ErrorCodeUnauthorized},
		{name: "missing scope", method: http.MethodPost, path: "/quotes", subject: "u1", scopes: "quotes:read", wantStatus: http.StatusForbidden, wantCode: dto.ErrorCodeForbidden},
		{name: "allowed", method: http.MethodPost, path: "/quotes", subject: "u1", scopes: "quotes:write", wantStatus: http.StatusCreated},
		{name: "scopes without auth", method: http.MethodPut, path: "/selection", scopes: "quotes:write", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set(defaultSubjectHeader, tt.subject)
			req.Header.Set(defaultScopesHeader, tt.scopes)

			w := serve(engine, req)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantCode != "" {
				var resp dto.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantCode, resp.Error.Code)

				return
			}

			if tt.path == "/quotes" {
				require.NotNil(t, seen)
				assert.Equal(t, "u1", seen.Subject)
			}
		})
	}
}

func TestGetClaims_WrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetClaims(c))

	c.Set(ContextKeyClaims, errors.New("not claims"))
	assert.Nil(t, GetClaims(c))
}
