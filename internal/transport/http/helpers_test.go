package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/auth"
	"github.com/vovakirdan/strangerchat-server/internal/config"
	"github.com/vovakirdan/strangerchat-server/internal/core"
	"github.com/vovakirdan/strangerchat-server/internal/proto"
	"github.com/vovakirdan/strangerchat-server/internal/store/sqlite"
)

const (
	testOperator = "root"
	testPassword = "hunter22"
)

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.SQLiteStore
	auth  *auth.Service
	wsURL string
}

// startTestServer runs the full HTTP stack over an in-memory store.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.Nop()
	registry, err := core.NewRegistry(context.Background(), core.NewLocalBus(), &disabledLogger, nil)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	hub := core.NewHub(st, registry, core.Options{
		ClaimAttempts: cfg.ClaimAttempts,
		AdminEcho:     cfg.AdminEcho,
	}, &disabledLogger, nil)

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	authService := auth.NewService(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	}, []auth.Operator{{Username: testOperator, PasswordHash: hash}})

	server := NewServer(hub, authService, nil, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:    ts,
		store: st,
		auth:  authService,
		wsURL: strings.Replace(ts.URL, "http", "ws", 1),
	}
}

func (e *testEnv) token(t *testing.T, username string, staff bool) string {
	t.Helper()

	token, err := e.auth.IssueToken(username, staff)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// dial opens a socket on path, authenticating with token when it is non-empty.
func (e *testEnv) dial(ctx context.Context, t *testing.T, path, token string) *websocket.Conn {
	t.Helper()

	url := e.wsURL + path
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func readChat(ctx context.Context, t *testing.T, conn *websocket.Conn) proto.ChatOutbound {
	t.Helper()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var out proto.ChatOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read chat frame: %v", err)
	}
	return out
}

func readAdmin(ctx context.Context, t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var out map[string]any
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read admin frame: %v", err)
	}
	return out
}

// expectClosed reads until the server closes the socket and checks the status.
func expectClosed(ctx context.Context, t *testing.T, conn *websocket.Conn, want websocket.StatusCode) {
	t.Helper()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for {
		_, _, err := conn.Read(ctx)
		if err == nil {
			continue
		}
		if got := websocket.CloseStatus(err); got != want {
			t.Fatalf("expected close status %v, got %v (%v)", want, got, err)
		}
		return
	}
}

func sendChat(ctx context.Context, t *testing.T, conn *websocket.Conn, in proto.ChatInbound) {
	t.Helper()

	if err := wsjson.Write(ctx, conn, in); err != nil {
		t.Fatalf("write chat frame: %v", err)
	}
}

// pair connects two anonymous participants and returns them with their room token.
func pair(ctx context.Context, t *testing.T, env *testEnv) (*websocket.Conn, *websocket.Conn, string) {
	t.Helper()

	a := env.dial(ctx, t, "/ws/chat/", "")
	waiting := readChat(ctx, t, a)
	if waiting.Status != proto.OutboundStatusWaiting || waiting.Room == "" {
		t.Fatalf("expected waiting frame, got %+v", waiting)
	}

	b := env.dial(ctx, t, "/ws/chat/", "")
	for _, conn := range []*websocket.Conn{a, b} {
		if got := readChat(ctx, t, conn); got.Message != core.NoticeConnected {
			t.Fatalf("expected connected notice, got %+v", got)
		}
	}
	return a, b, waiting.Room
}
