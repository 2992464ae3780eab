package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket/wsjson"

	"github.com/ventihq/clubchat-server/internal/chat"
)

// doJSON fires a request against the test server with an optional bearer
// token and JSON body, decoding the response into out when non-nil.
func (env *testEnv) doJSON(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req, err := stdhttp.NewRequest(method, env.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var auth AuthResponse
	code := env.doJSON(t, stdhttp.MethodPost, "/api/register", "",
		RegisterRequest{Username: "alice", Password: "password123"}, &auth)
	if code != stdhttp.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if auth.Token == "" {
		t.Fatalf("expected token in response")
	}

	// Duplicate username.
	code = env.doJSON(t, stdhttp.MethodPost, "/api/register", "",
		RegisterRequest{Username: "alice", Password: "password123"}, nil)
	if code != stdhttp.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}

	// Binding rejects a short password before the service sees it.
	code = env.doJSON(t, stdhttp.MethodPost, "/api/register", "",
		map[string]string{"username": "bob", "password": "123"}, nil)
	if code != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.doJSON(t, stdhttp.MethodPost, "/api/register", "",
		RegisterRequest{Username: "alice", Password: "password123"}, nil)

	var auth AuthResponse
	code := env.doJSON(t, stdhttp.MethodPost, "/api/login", "",
		LoginRequest{Username: "alice", Password: "password123"}, &auth)
	if code != stdhttp.StatusOK || auth.Token == "" {
		t.Fatalf("expected 200 with token, got %d", code)
	}

	code = env.doJSON(t, stdhttp.MethodPost, "/api/login", "",
		LoginRequest{Username: "alice", Password: "wrong"}, nil)
	if code != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

// TestClubLifecycleFlow walks the whole surface: a user registers and
// founds a club, a superuser approves it, another user joins, chats over
// the gateway and reads the history back through the REST API.
func TestClubLifecycleFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var founder AuthResponse
	env.doJSON(t, stdhttp.MethodPost, "/api/register", "",
		RegisterRequest{Username: "alice", Password: "password123"}, &founder)
	_, rootToken := env.createUser(t, "root", true)
	_, bobToken := env.createUser(t, "bob", false)

	var club ClubResponse
	code := env.doJSON(t, stdhttp.MethodPost, "/api/clubs", founder.Token,
		CreateClubRequest{Name: "chess", Description: "weekly games"}, &club)
	if code != stdhttp.StatusCreated {
		t.Fatalf("create club: expected 201, got %d", code)
	}
	if club.Status != "pending" {
		t.Fatalf("new club should be pending, got %s", club.Status)
	}
	if club.ChatURL == "" {
		t.Fatalf("expected chat_url in club response")
	}

	room := strconv.FormatInt(club.ID, 10)
	clubPath := "/api/clubs/" + room

	// Joining before approval is refused.
	if code := env.doJSON(t, stdhttp.MethodPost, clubPath+"/join", bobToken, nil, nil); code != stdhttp.StatusConflict {
		t.Fatalf("join pending club: expected 409, got %d", code)
	}

	// Only superusers may approve.
	if code := env.doJSON(t, stdhttp.MethodPost, clubPath+"/approve", bobToken, nil, nil); code != stdhttp.StatusForbidden {
		t.Fatalf("approve as regular user: expected 403, got %d", code)
	}
	if code := env.doJSON(t, stdhttp.MethodPost, clubPath+"/approve", rootToken, nil, nil); code != stdhttp.StatusNoContent {
		t.Fatalf("approve club: expected 204, got %d", code)
	}

	if code := env.doJSON(t, stdhttp.MethodPost, clubPath+"/join", bobToken, nil, nil); code != stdhttp.StatusNoContent {
		t.Fatalf("join active club: expected 204, got %d", code)
	}

	// bob can now chat in the club's room.
	conn := env.dial(ctx, t, room, bobToken)
	env.waitForMembers(t, room, 1)
	if err := wsjson.Write(ctx, conn, chat.Inbound{Message: "good game"}); err != nil {
		t.Fatalf("send message: %v", err)
	}
	readFrame(ctx, t, conn)

	var messages []MessageResponse
	if code := env.doJSON(t, stdhttp.MethodGet, clubPath+"/messages", bobToken, nil, &messages); code != stdhttp.StatusOK {
		t.Fatalf("list messages: expected 200, got %d", code)
	}
	if len(messages) != 1 || messages[0].Text != "good game" || messages[0].AuthorUsername != "bob" {
		t.Fatalf("unexpected history: %+v", messages)
	}

	// Non-members cannot read the history.
	_, carolToken := env.createUser(t, "carol", false)
	if code := env.doJSON(t, stdhttp.MethodGet, clubPath+"/messages", carolToken, nil, nil); code != stdhttp.StatusForbidden {
		t.Fatalf("list messages as outsider: expected 403, got %d", code)
	}
}

func TestClubRejectFlow(t *testing.T) {
	env := newTestEnv(t)

	_, aliceToken := env.createUser(t, "alice", false)
	_, rootToken := env.createUser(t, "root", true)

	var club ClubResponse
	env.doJSON(t, stdhttp.MethodPost, "/api/clubs", aliceToken,
		CreateClubRequest{Name: "skydiving"}, &club)

	clubPath := "/api/clubs/" + strconv.FormatInt(club.ID, 10)
	if code := env.doJSON(t, stdhttp.MethodPost, clubPath+"/reject", rootToken,
		RejectClubRequest{Reason: "insurance"}, nil); code != stdhttp.StatusNoContent {
		t.Fatalf("reject club: expected 204, got %d", code)
	}

	var got ClubResponse
	if code := env.doJSON(t, stdhttp.MethodGet, clubPath, aliceToken, nil, &got); code != stdhttp.StatusOK {
		t.Fatalf("get club: expected 200, got %d", code)
	}
	if got.Status != "rejected" {
		t.Fatalf("expected rejected status, got %s", got.Status)
	}
}

func TestListClubsStatusFilter(t *testing.T) {
	env := newTestEnv(t)

	alice, aliceToken := env.createUser(t, "alice", false)
	env.createActiveClub(t, "chess", alice.ID)
	if _, err := env.st.CreateClub(context.Background(), "debate", "", alice.ID); err != nil {
		t.Fatalf("create club: %v", err)
	}

	var active []ClubResponse
	if code := env.doJSON(t, stdhttp.MethodGet, "/api/clubs?status=active", aliceToken, nil, &active); code != stdhttp.StatusOK {
		t.Fatalf("list active clubs: expected 200, got %d", code)
	}
	if len(active) != 1 || active[0].Name != "chess" {
		t.Fatalf("unexpected active clubs: %+v", active)
	}

	if code := env.doJSON(t, stdhttp.MethodGet, "/api/clubs?status=bogus", aliceToken, nil, nil); code != stdhttp.StatusBadRequest {
		t.Fatalf("bogus status filter: expected 400, got %d", code)
	}
}

func TestPostsAndEventsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	alice, aliceToken := env.createUser(t, "alice", false)
	club := env.createActiveClub(t, "chess", alice.ID)
	clubPath := "/api/clubs/" + clubRoomName(club)

	var post PostResponse
	if code := env.doJSON(t, stdhttp.MethodPost, clubPath+"/posts", aliceToken,
		CreatePostRequest{Content: "tournament soon"}, &post); code != stdhttp.StatusCreated {
		t.Fatalf("create post: expected 201, got %d", code)
	}
	if post.AuthorUsername != "alice" {
		t.Fatalf("unexpected post: %+v", post)
	}

	var event EventResponse
	date := time.Date(2026, 9, 15, 18, 0, 0, 0, time.UTC)
	if code := env.doJSON(t, stdhttp.MethodPost, clubPath+"/events", aliceToken,
		CreateEventRequest{Title: "blitz night", Date: date}, &event); code != stdhttp.StatusCreated {
		t.Fatalf("create event: expected 201, got %d", code)
	}

	var events []EventResponse
	if code := env.doJSON(t, stdhttp.MethodGet, clubPath+"/events", aliceToken, nil, &events); code != stdhttp.StatusOK {
		t.Fatalf("list events: expected 200, got %d", code)
	}
	if len(events) != 1 || events[0].Title != "blitz night" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
