package verifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func balanceServer(t *testing.T, status int, balance float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/balance", r.URL.Path)
		assert.Equal(t, "abc123456", r.URL.Query().Get("wallet"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"wallet": "abc123456", "symbol": "BTC", "balance": balance})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIsPaid(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		balance float64
		want    bool
	}{
		{name: "exact balance", status: http.StatusOK, balance: 0.003, want: true},
		{name: "overpaid", status: http.StatusOK, balance: 0.01, want: true},
		{name: "underpaid", status: http.StatusOK, balance: 0.002999},
		{name: "server error", status: http.StatusInternalServerError, balance: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := balanceServer(t, tt.status, tt.balance)
			client := New(srv.URL, time.Second, testLogger())
			assert.Equal(t, tt.want, client.IsPaid(context.Background(), "abc123456", "BTC", 0.003))
		})
	}
}

func TestIsPaidSwallowsTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url, 100*time.Millisecond, testLogger())
	assert.False(t, client.IsPaid(context.Background(), "abc123456", "BTC", 0.003))
}
