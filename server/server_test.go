package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/code19m/errx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-cmd/dispatch"
	"mini-cmd/logger"
	"mini-cmd/message"
	"mini-cmd/metrics"
	"mini-cmd/middleware"
	"mini-cmd/registry"
	"mini-cmd/server"
)

func testConfig() server.Config {
	return server.Config{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		MaxRequestBytes: 1 << 20,
		ShutdownTimeout: time.Second,
	}
}

// startServer serves on a fresh loopback listener until the test ends.
func startServer(t *testing.T, cfg server.Config, setup func(*server.Server), opts ...server.Option) (*server.Server, *metrics.Aggregator) {
	t.Helper()

	agg := metrics.NewAggregator()
	srv := server.NewServer(dispatch.New(agg), cfg, opts...)
	if setup != nil {
		setup(srv)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(l) }()

	t.Cleanup(func() {
		_ = srv.Shutdown(time.Second)
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after Shutdown")
		}
	})

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	return srv, agg
}

// roundTrip writes payload, half-closes and reads the whole reply.
func roundTrip(t *testing.T, addr string, payload string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, payload)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(data)
}

func decodeResponse(t *testing.T, data string) message.Response {
	t.Helper()
	var resp message.Response
	require.NoError(t, json.Unmarshal([]byte(data), &resp), data)
	return resp
}

func TestServerCommands(t *testing.T) {
	srv, _ := startServer(t, testConfig(), nil)
	addr := srv.Addr().String()
	id := uuid.NewString()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "ping",
			input: `{"request_id":"` + id + `","command":"ping"}`,
			want:  `{"request_id":"` + id + `","status":"ok","response":"pong"}`,
		},
		{
			name:  "echo object",
			input: `{"request_id":"` + id + `","command":"echo","payload":{"key":"value"}}`,
			want:  `{"request_id":"` + id + `","status":"ok","response":{"key":"value"}}`,
		},
		{
			name:  "echo without payload",
			input: `{"request_id":"` + id + `","command":"echo"}`,
			want:  `{"request_id":"` + id + `","status":"ok","response":null}`,
		},
		{
			name:  "calculate",
			input: `{"request_id":"` + id + `","command":"calculate","payload":{"operation":"add","a":0.1,"b":0.2}}`,
			want:  `{"request_id":"` + id + `","status":"ok","response":{"result":0.30000000000000004}}`,
		},
		{
			name:  "batch",
			input: `{"request_id":"` + id + `","command":"batch","payload":[{"request_id":"` + id + `","command":"ping"}]}`,
			want:  `{"request_id":"` + id + `","status":"ok","response":[{"request_id":"` + id + `","status":"ok","response":"pong"}]}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.JSONEq(t, tc.want, roundTrip(t, addr, tc.input))
		})
	}
}

func TestServerErrors(t *testing.T) {
	srv, agg := startServer(t, testConfig(), nil)
	addr := srv.Addr().String()
	id := uuid.New()

	t.Run("not json", func(t *testing.T) {
		assert.JSONEq(t, `{"request_id":null,"status":"error","error":"request is not a valid JSON"}`,
			roundTrip(t, addr, "definitely not json"))
	})

	t.Run("empty request", func(t *testing.T) {
		resp := decodeResponse(t, roundTrip(t, addr, ""))
		assert.True(t, resp.IsError())
		assert.Nil(t, resp.RequestID)
	})

	t.Run("missing request_id", func(t *testing.T) {
		resp := decodeResponse(t, roundTrip(t, addr, `{"command":"ping"}`))
		assert.True(t, resp.IsError())
		assert.Nil(t, resp.RequestID)
	})

	t.Run("unknown command keeps id", func(t *testing.T) {
		resp := decodeResponse(t, roundTrip(t, addr, `{"request_id":"`+id.String()+`","command":"reboot"}`))
		require.True(t, resp.IsError())
		require.NotNil(t, resp.RequestID)
		assert.Equal(t, id, *resp.RequestID)
	})

	t.Run("division by zero", func(t *testing.T) {
		resp := decodeResponse(t, roundTrip(t, addr,
			`{"request_id":"`+id.String()+`","command":"calculate","payload":{"operation":"divide","a":1,"b":0}}`))
		require.True(t, resp.IsError())
		assert.Equal(t, id, *resp.RequestID)
		assert.Contains(t, resp.Error, "division by zero")
	})

	// Only the division reached the dispatcher.
	assert.Equal(t, map[message.CommandKind]uint64{message.KindCalculate: 1}, agg.Snapshot().Count)
}

func TestServerRequestTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequestBytes = 64
	srv, agg := startServer(t, cfg, nil)

	payload := `{"request_id":"` + uuid.NewString() + `","command":"echo","payload":"` + strings.Repeat("x", 128) + `"}`

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, payload)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, err := io.ReadAll(conn)
	require.NoError(t, err)

	resp := decodeResponse(t, string(data))
	require.True(t, resp.IsError())
	assert.Nil(t, resp.RequestID)
	assert.Contains(t, resp.Error, "64 bytes")
	assert.Empty(t, agg.Snapshot().Count)
}

func TestServerReadTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	srv, _ := startServer(t, cfg, nil)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// The request is never finished, so the server gives up and closes without replying.
	_, err = io.WriteString(conn, `{"request_id":`)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, _ := io.ReadAll(conn)
	assert.Empty(t, data)
}

func TestServerMiddleware(t *testing.T) {
	var seen []message.CommandKind
	var mu sync.Mutex
	record := func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req message.Request) message.Response {
			mu.Lock()
			seen = append(seen, req.Command.Kind())
			mu.Unlock()
			if _, ok := req.Command.(message.Time); ok {
				panic("clock unavailable")
			}
			return next(ctx, req)
		}
	}

	srv, _ := startServer(t, testConfig(), func(s *server.Server) {
		s.Use(middleware.Recovery(logger.NewNop()))
		s.Use(record)
	})
	addr := srv.Addr().String()

	resp := decodeResponse(t, roundTrip(t, addr, `{"request_id":"`+uuid.NewString()+`","command":"ping"}`))
	assert.False(t, resp.IsError())

	id := uuid.New()
	resp = decodeResponse(t, roundTrip(t, addr, `{"request_id":"`+id.String()+`","command":"time"}`))
	require.True(t, resp.IsError())
	assert.Equal(t, id, *resp.RequestID)
	assert.Equal(t, middleware.InternalErrorMessage, resp.Error)

	// Undecodable input never reaches the chain.
	roundTrip(t, addr, "garbage")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []message.CommandKind{message.KindPing, message.KindTime}, seen)
}

func TestServerConcurrentClients(t *testing.T) {
	srv, agg := startServer(t, testConfig(), nil)
	addr := srv.Addr().String()

	const clients = 20
	var wg sync.WaitGroup
	for range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.NewString()
			data := roundTrip(t, addr, `{"request_id":"`+id+`","command":"calculate","payload":{"operation":"multiply","a":6,"b":7}}`)
			assert.JSONEq(t, `{"request_id":"`+id+`","status":"ok","response":{"result":42}}`, data)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(clients), agg.Snapshot().Count[message.KindCalculate])
}

func TestServerRegistry(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	regCfg := registry.Config{Service: "mini-cmd-test", TTL: 10, Weight: 3, Version: "1.2.3"}

	agg := metrics.NewAggregator()
	srv := server.NewServer(dispatch.New(agg), testConfig(), server.WithRegistry(reg, regCfg))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(l) }()

	require.Eventually(t, func() bool {
		instances, _ := reg.Discover(t.Context(), regCfg.Service)
		return len(instances) == 1
	}, time.Second, 5*time.Millisecond)

	instances, err := reg.Discover(t.Context(), regCfg.Service)
	require.NoError(t, err)
	assert.Equal(t, registry.ServiceInstance{Addr: l.Addr().String(), Weight: 3, Version: "1.2.3"}, instances[0])

	require.NoError(t, srv.Shutdown(time.Second))
	require.NoError(t, <-served)

	instances, err = reg.Discover(t.Context(), regCfg.Service)
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestServerShutdownTimeout(t *testing.T) {
	agg := metrics.NewAggregator()
	srv := server.NewServer(dispatch.New(agg), testConfig())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(l) }()

	// An open connection that never sends keeps its handler busy.
	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	err = srv.Shutdown(50 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errx.IsCodeIn(err, server.CodeShutdownTimeout))
	require.NoError(t, <-served)

	conn.Close()
}

func TestServerServeTwice(t *testing.T) {
	srv, _ := startServer(t, testConfig(), nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	err = srv.Serve(l)
	require.Error(t, err)
	assert.True(t, errx.IsCodeIn(err, server.CodeAlreadyServing))
}
