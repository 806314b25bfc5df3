package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"society-ticketing/internal/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		assert.Equal(t, seen, logging.FromContext(r.Context()).Data["request_id"])
	}))

	t.Run("generates an id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/cart", nil))

		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
	})

	t.Run("keeps a caller supplied uuid", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest("GET", "/api/cart", nil)
		req.Header.Set(RequestIDHeader, id)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, id, seen)
	})

	t.Run("replaces a malformed id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/cart", nil)
		req.Header.Set(RequestIDHeader, "not a uuid\n")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.NotEqual(t, "not a uuid\n", seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})
}

func TestLoggingMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	entry := logrus.NewEntry(logger)

	tests := []struct {
		name      string
		status    int
		wantLevel logrus.Level
	}{
		{"success", http.StatusOK, logrus.InfoLevel},
		{"client error", http.StatusConflict, logrus.WarnLevel},
		{"server error", http.StatusInternalServerError, logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()
			handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("body"))
			}))

			req := httptest.NewRequest("POST", "/api/checkout", nil)
			req = req.WithContext(logging.ToContext(req.Context(), entry.WithField("request_id", "abc")))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Len(t, hook.Entries, 1)
			logged := hook.LastEntry()
			assert.Equal(t, tt.wantLevel, logged.Level)
			assert.Equal(t, "POST", logged.Data["method"])
			assert.Equal(t, "/api/checkout", logged.Data["path"])
			assert.Equal(t, tt.status, logged.Data["status"])
			assert.Equal(t, 4, logged.Data["bytes"])
			assert.Equal(t, "abc", logged.Data["request_id"])
		})
	}
}

func TestResponseWriter_ImplicitStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	rw.Write([]byte("hello"))
	rw.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, 5, rw.size)
}
