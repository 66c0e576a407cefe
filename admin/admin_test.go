package admin_test

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-cmd/admin"
	"mini-cmd/logger"
	"mini-cmd/message"
	"mini-cmd/metrics"
)

func TestHealthz(t *testing.T) {
	srv := admin.NewServer(admin.Config{}, metrics.NewAggregator(), logger.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	agg := metrics.NewAggregator()
	agg.Record(message.KindPing, 1)
	agg.Record(message.KindPing, 3)
	agg.Record(message.KindCalculate, 0.5)

	srv := admin.NewServer(admin.Config{}, agg, logger.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var s metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, uint64(2), s.Count[message.KindPing])
	assert.Equal(t, 1.0, s.MinMs[message.KindPing])
	assert.Equal(t, 3.0, s.MaxMs[message.KindPing])
	assert.Equal(t, 2.0, s.AvgMs[message.KindPing])
	assert.Equal(t, uint64(1), s.Count[message.KindCalculate])
	assert.Contains(t, s.Latency, message.KindPing)
}

func TestUnknownRoute(t *testing.T) {
	srv := admin.NewServer(admin.Config{}, metrics.NewAggregator(), logger.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeAndShutdown(t *testing.T) {
	srv := admin.NewServer(admin.Config{}, metrics.NewAggregator(), logger.NewNop())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(t.Context()))
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
