package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkmeter/server/internal/shared/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Helpers ---

func newTestLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(&logger.Config{Level: "debug", Format: "json", Output: buf})
}

func serve(r *gin.Engine, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/v1/accounts/:id", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when absent", incoming: ""},
		{name: "bot turn id kept", incoming: "turn-42:1709280000", keep: true},
		{name: "too long replaced", incoming: strings.Repeat("a", 65)},
		{name: "unsafe characters replaced", incoming: "id with spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.incoming != "" {
				h.Set(RequestIDHeader, tt.incoming)
			}
			w := serve(r, http.MethodGet, "/v1/accounts/1", h)

			require.Equal(t, http.StatusOK, w.Code)
			got := w.Header().Get(RequestIDHeader)
			assert.Equal(t, got, w.Body.String())
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.Len(t, got, 36)
				assert.NotEqual(t, tt.incoming, got)
			}
		})
	}

	t.Run("empty outside middleware", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.Empty(t, GetRequestID(c))
	})
}

func TestLogging(t *testing.T) {
	newRouter := func(buf *bytes.Buffer) *gin.Engine {
		r := gin.New()
		r.Use(RequestID(), Logging(newTestLogger(buf), "/health"))
		r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		r.GET("/v1/accounts/:id", func(c *gin.Context) {
			c.Set(AccountIDKey, int64(42))
			c.Status(http.StatusOK)
		})
		r.GET("/admin/accounts", func(c *gin.Context) {
			c.Set(AdminIDKey, int64(7))
			c.Status(http.StatusOK)
		})
		r.GET("/status/:code", func(c *gin.Context) {
			switch c.Param("code") {
			case "409":
				c.Status(http.StatusConflict)
			case "503":
				c.Status(http.StatusServiceUnavailable)
			}
		})
		return r
	}

	decode := func(t *testing.T, buf *bytes.Buffer) map[string]any {
		t.Helper()
		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		return line
	}

	t.Run("account route", func(t *testing.T) {
		buf := &bytes.Buffer{}
		serve(newRouter(buf), http.MethodGet, "/v1/accounts/42?verbose=1", nil)

		line := decode(t, buf)
		assert.Equal(t, "http request", line["msg"])
		assert.Equal(t, "INFO", line["level"])
		assert.Equal(t, "/v1/accounts/:id", line["route"])
		assert.Equal(t, "/v1/accounts/42", line["path"])
		assert.Equal(t, "verbose=1", line["query"])
		assert.EqualValues(t, 42, line["account_id"])
		assert.NotEmpty(t, line["request_id"])
	})

	t.Run("admin id", func(t *testing.T) {
		buf := &bytes.Buffer{}
		serve(newRouter(buf), http.MethodGet, "/admin/accounts", nil)
		assert.EqualValues(t, 7, decode(t, buf)["admin_id"])
	})

	t.Run("levels follow status", func(t *testing.T) {
		for code, level := range map[string]string{"409": "WARN", "503": "ERROR"} {
			buf := &bytes.Buffer{}
			serve(newRouter(buf), http.MethodGet, "/status/"+code, nil)
			line := decode(t, buf)
			assert.Equal(t, level, line["level"], code)
		}
	})

	t.Run("quiet route skipped on success", func(t *testing.T) {
		buf := &bytes.Buffer{}
		serve(newRouter(buf), http.MethodGet, "/health", nil)
		assert.Empty(t, buf.String())
	})

	t.Run("unmatched route logged with empty route", func(t *testing.T) {
		buf := &bytes.Buffer{}
		serve(newRouter(buf), http.MethodGet, "/nope", nil)
		line := decode(t, buf)
		assert.Equal(t, "WARN", line["level"])
		assert.Equal(t, "", line["route"])
	})
}

func TestRecovery(t *testing.T) {
	t.Run("panic becomes internal_error", func(t *testing.T) {
		buf := &bytes.Buffer{}
		r := gin.New()
		r.Use(RequestID(), Recovery(newTestLogger(buf)))
		r.POST("/v1/accounts/:id/turns", func(c *gin.Context) {
			panic("generator exploded")
		})

		var w *httptest.ResponseRecorder
		require.NotPanics(t, func() {
			w = serve(r, http.MethodPost, "/v1/accounts/1/turns", nil)
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"code":"internal_error","message":"internal server error"}`, w.Body.String())
		assert.Contains(t, buf.String(), "panic recovered")
		assert.Contains(t, buf.String(), "generator exploded")
		assert.Contains(t, buf.String(), `"route":"/v1/accounts/:id/turns"`)
	})

	t.Run("nil logger", func(t *testing.T) {
		r := gin.New()
		r.Use(Recovery(nil))
		r.GET("/panic", func(c *gin.Context) { panic("boom") })

		require.NotPanics(t, func() {
			w := serve(r, http.MethodGet, "/panic", nil)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
		})
	})
}

func TestCORS(t *testing.T) {
	preflight := func(origin, method string) http.Header {
		h := http.Header{}
		h.Set("Origin", origin)
		h.Set("Access-Control-Request-Method", method)
		return h
	}
	newRouter := func(origins []string) *gin.Engine {
		r := gin.New()
		r.Use(CORS(origins))
		r.PUT("/admin/accounts/:id/summary", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	t.Run("any origin without list", func(t *testing.T) {
		w := serve(newRouter(nil), http.MethodOptions, "/admin/accounts/1/summary",
			preflight("https://bot.example.com", http.MethodPut))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	})

	t.Run("listed origin gets credentials", func(t *testing.T) {
		w := serve(newRouter([]string{"https://pay.example.com"}), http.MethodOptions, "/admin/accounts/1/summary",
			preflight("https://pay.example.com", http.MethodPut))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://pay.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unlisted origin rejected", func(t *testing.T) {
		w := serve(newRouter([]string{"https://pay.example.com"}), http.MethodOptions, "/admin/accounts/1/summary",
			preflight("https://evil.example.com", http.MethodPut))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
