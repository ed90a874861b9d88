package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/config"
	"github.com/medora/medora/pkg/observability"
)

type stubAuthenticator struct {
	mu      sync.Mutex
	caller  *auth.Context
	headers []http.Header
}

func (s *stubAuthenticator) Resolve(ctx context.Context, header http.Header) (*auth.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, header)
	return s.caller, nil
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.InfoLevel, io.Discard)
}

func newCaller() *auth.Context {
	return auth.NewContext(auth.Identity{AccountID: uuid.New(), ProviderID: uuid.New(), Kind: auth.KindDoctor}, nil)
}

func dial(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestHub_LocalBroadcast(t *testing.T) {
	caller := newCaller()
	hub := NewHub(config.RealtimeConfig{}, &stubAuthenticator{caller: caller}, nil, nil, testLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)

	provider := caller.ProviderID.String()
	require.Eventually(t, func() bool { return hub.RoomSize(provider) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.RoomSize(caller.AccountID.String()))

	require.NoError(t, hub.Broadcast(context.Background(), uuid.NewString(), "other.room", map[string]string{"x": "y"}))
	require.NoError(t, hub.Broadcast(context.Background(), provider, "article.comment.created", map[string]string{"body": "hi"}))

	f := readFrame(t, conn)
	assert.Equal(t, "article.comment.created", f.Event)
	assert.JSONEq(t, `{"body":"hi"}`, string(f.Data))

	conn.Close()
	require.Eventually(t, func() bool { return hub.RoomSize(provider) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_RejectsAnonymousHandshake(t *testing.T) {
	hub := NewHub(config.RealtimeConfig{}, &stubAuthenticator{}, nil, nil, testLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, resp, err := dial(t, srv, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_TokenQueryParameter(t *testing.T) {
	authn := &stubAuthenticator{caller: newCaller()}
	hub := NewHub(config.RealtimeConfig{}, authn, nil, nil, testLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, _, err := dial(t, srv, "?token=abc")
	require.NoError(t, err)

	authn.mu.Lock()
	defer authn.mu.Unlock()
	require.Len(t, authn.headers, 1)
	assert.Equal(t, "Bearer abc", authn.headers[0].Get("Authorization"))
}

func TestHub_CallerFromRequestContext(t *testing.T) {
	caller := newCaller()
	hub := NewHub(config.RealtimeConfig{}, nil, nil, nil, testLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeHTTP(w, r.WithContext(auth.WithContext(r.Context(), caller)))
	}))
	defer srv.Close()

	_, _, err := dial(t, srv, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.RoomSize(caller.ProviderID.String()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestHub_RedisFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.RealtimeConfig{Channel: "medora:realtime:test"}

	newRedis := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return client
	}

	caller := newCaller()
	publisher := NewHub(cfg, nil, newRedis(), nil, testLogger())
	receiver := NewHub(cfg, &stubAuthenticator{caller: caller}, newRedis(), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- receiver.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(cfg.Channel)[cfg.Channel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(receiver)
	defer srv.Close()
	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return receiver.RoomSize(caller.AccountID.String()) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, publisher.Broadcast(context.Background(), caller.AccountID.String(), "role.updated", map[string]int{"n": 1}))

	f := readFrame(t, conn)
	assert.Equal(t, "role.updated", f.Event)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestHub_RunWithoutRedis(t *testing.T) {
	hub := NewHub(config.RealtimeConfig{}, nil, nil, nil, testLogger())
	assert.NoError(t, hub.Run(context.Background()))
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(config.RealtimeConfig{AllowedOrigins: []string{"https://app.medora.test"}}, nil, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://app.medora.test")
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.test")
	assert.False(t, hub.checkOrigin(req))
}
