package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureRequest(t *testing.T, status int) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte("x"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/licenses", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestRequestLoggerLevelTracksStatusClass(t *testing.T) {
	cases := []struct {
		status int
		level  string
		msg    string
	}{
		{http.StatusOK, "INFO", "request served"},
		{http.StatusNotFound, "WARN", "request rejected"},
		{http.StatusInternalServerError, "ERROR", "request failed"},
	}
	for _, tc := range cases {
		entry := captureRequest(t, tc.status)
		assert.Equal(t, tc.level, entry["level"])
		assert.Equal(t, tc.msg, entry["msg"])
		assert.Equal(t, float64(tc.status), entry["status"])
	}
}

func TestRequestLoggerRecordsRequestShape(t *testing.T) {
	entry := captureRequest(t, http.StatusOK)

	assert.Equal(t, http.MethodGet, entry["method"])
	assert.Equal(t, "/v1/licenses", entry["path"])
	assert.Equal(t, float64(1), entry["bytes"])
	assert.Contains(t, entry, "elapsed_ms")
	assert.Contains(t, entry, "request_id")
}
