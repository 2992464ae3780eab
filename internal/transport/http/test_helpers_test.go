package http

import (
	"context"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ventihq/clubchat-server/internal/auth"
	"github.com/ventihq/clubchat-server/internal/chat"
	"github.com/ventihq/clubchat-server/internal/config"
	"github.com/ventihq/clubchat-server/internal/log"
	"github.com/ventihq/clubchat-server/internal/store"
	"github.com/ventihq/clubchat-server/internal/store/sqlite"
)

// testEnv bundles a running gateway with direct handles on its
// collaborators so tests can seed state and observe the registry.
type testEnv struct {
	ts       *httptest.Server
	registry *chat.Registry
	st       *sqlite.SQLiteStore
	auth     *auth.Service
	jwtCfg   *auth.JWTConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := log.NewWithOutput("error", io.Discard)

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtCfg)

	registry := chat.NewRegistry()
	oracle := chat.NewMembershipOracle(st, logger)

	server := NewServer(registry, oracle, authService, st, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:       ts,
		registry: registry,
		st:       st,
		auth:     authService,
		jwtCfg:   jwtCfg,
	}
}

// createUser seeds a user and mints a token for them.
func (env *testEnv) createUser(t *testing.T, username string, superuser bool) (*store.User, string) {
	t.Helper()
	ctx := context.Background()

	user, err := env.st.CreateUser(ctx, username, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	if superuser {
		if err := env.st.SetSuperuser(ctx, user.ID, true); err != nil {
			t.Fatalf("set superuser: %v", err)
		}
		user, err = env.st.GetUserByID(ctx, user.ID)
		if err != nil {
			t.Fatalf("reload user: %v", err)
		}
	}

	token, err := auth.GenerateToken(env.jwtCfg, user.ID, user.Username, user.IsSuperuser)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return user, token
}

// createActiveClub seeds an approved club administered by admin.
func (env *testEnv) createActiveClub(t *testing.T, name string, adminID int64) *store.Club {
	t.Helper()
	ctx := context.Background()

	club, err := env.st.CreateClub(ctx, name, "", adminID)
	if err != nil {
		t.Fatalf("create club: %v", err)
	}
	if err := env.st.ApproveClub(ctx, club.ID); err != nil {
		t.Fatalf("approve club: %v", err)
	}
	return club
}

// wsURL builds the gateway URL for a room. Empty room targets the
// default room endpoint.
func (env *testEnv) wsURL(room, token string) string {
	url := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws/chat/"
	if room != "" {
		url += room + "/"
	}
	if token != "" {
		url += "?token=" + token
	}
	return url
}

// dial connects to the gateway, failing the test on handshake errors.
func (env *testEnv) dial(ctx context.Context, t *testing.T, room, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, env.wsURL(room, token), nil)
	if err != nil {
		t.Fatalf("dial room %q: %v", room, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// waitForMembers polls the registry until the room reaches n subscribers.
func (env *testEnv) waitForMembers(t *testing.T, room string, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.registry.MemberCount(room) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %q never reached %d members (have %d)", room, n, env.registry.MemberCount(room))
}

func clubRoomName(club *store.Club) string {
	return strconv.FormatInt(club.ID, 10)
}
