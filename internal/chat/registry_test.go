package chat

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ventihq/clubchat-server/internal/store"
)

func newTestSession(t *testing.T, username string, room string) *Session {
	t.Helper()
	user := &store.User{ID: 1, Username: username}
	return NewSession(user, ParseRoom(room), func() {})
}

func mustFrame(t *testing.T, s *Session) []byte {
	t.Helper()
	select {
	case payload := <-s.Frames():
		return payload
	case <-time.After(2 * time.Second):
		t.Fatalf("expected frame not received")
		return nil
	}
}

func TestRegistryJoinBroadcastLeave(t *testing.T) {
	reg := NewRegistry()

	alice := newTestSession(t, "alice", "7")
	bob := newTestSession(t, "bob", "7")

	reg.Join("7", alice)
	reg.Join("7", bob)

	if got := reg.MemberCount("7"); got != 2 {
		t.Fatalf("expected 2 members, got %d", got)
	}

	payload := []byte(`{"text":"hi"}`)
	reg.Broadcast("7", payload)

	for _, s := range []*Session{alice, bob} {
		got := mustFrame(t, s)
		if !bytes.Equal(got, payload) {
			t.Fatalf("expected identical payload, got %q", got)
		}
	}

	reg.Leave("7", alice)
	if got := reg.MemberCount("7"); got != 1 {
		t.Fatalf("expected 1 member after leave, got %d", got)
	}
}

func TestRegistryLeaveIsIdempotent(t *testing.T) {
	reg := NewRegistry()

	alice := newTestSession(t, "alice", "general")
	ghost := newTestSession(t, "ghost", "general")

	reg.Join("general", alice)

	// Leaving a session that never joined changes nothing.
	reg.Leave("general", ghost)
	if got := reg.MemberCount("general"); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}

	reg.Leave("general", alice)
	reg.Leave("general", alice)
	reg.Leave("nonexistent", alice)

	if got := reg.MemberCount("general"); got != 0 {
		t.Fatalf("expected empty room, got %d members", got)
	}
}

func TestRegistryRoomRemovedWhenEmpty(t *testing.T) {
	reg := NewRegistry()

	alice := newTestSession(t, "alice", "7")
	bob := newTestSession(t, "bob", "7")

	reg.Join("7", alice)
	reg.Join("7", bob)
	if got := reg.RoomCount(); got != 1 {
		t.Fatalf("expected 1 room, got %d", got)
	}

	reg.Leave("7", alice)
	if got := reg.RoomCount(); got != 1 {
		t.Fatalf("room should survive while members remain, got %d rooms", got)
	}

	reg.Leave("7", bob)
	if got := reg.RoomCount(); got != 0 {
		t.Fatalf("expected registry without rooms, got %d", got)
	}
}

func TestRegistryFanOutCompleteness(t *testing.T) {
	reg := NewRegistry()

	const n = 10
	sessions := make([]*Session, 0, n)
	for i := 0; i < n; i++ {
		s := newTestSession(t, fmt.Sprintf("user%d", i), "42")
		sessions = append(sessions, s)
		reg.Join("42", s)
	}

	payload := []byte(`{"id":1,"club":42,"author_username":"user0","text":"hello"}`)
	reg.Broadcast("42", payload)

	for i, s := range sessions {
		got := mustFrame(t, s)
		if !bytes.Equal(got, payload) {
			t.Fatalf("session %d received different payload: %q", i, got)
		}
	}

	// A session joining after the broadcast returned gets nothing.
	late := newTestSession(t, "late", "42")
	reg.Join("42", late)
	select {
	case payload := <-late.Frames():
		t.Fatalf("late joiner should not receive earlier broadcast, got %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegistryBroadcastOrderPreserved(t *testing.T) {
	reg := NewRegistry()

	alice := newTestSession(t, "alice", "7")
	bob := newTestSession(t, "bob", "7")
	reg.Join("7", alice)
	reg.Join("7", bob)

	const n = 10
	for i := 0; i < n; i++ {
		reg.Broadcast("7", []byte(fmt.Sprintf("msg-%d", i)))
	}

	for _, s := range []*Session{alice, bob} {
		for i := 0; i < n; i++ {
			got := mustFrame(t, s)
			want := fmt.Sprintf("msg-%d", i)
			if string(got) != want {
				t.Fatalf("expected %q, got %q", want, got)
			}
		}
	}
}

func TestRegistryBroadcastIsolatedPerRoom(t *testing.T) {
	reg := NewRegistry()

	alice := newTestSession(t, "alice", "7")
	carol := newTestSession(t, "carol", "9")
	reg.Join("7", alice)
	reg.Join("9", carol)

	reg.Broadcast("7", []byte("for room 7"))

	if got := mustFrame(t, alice); string(got) != "for room 7" {
		t.Fatalf("unexpected payload: %q", got)
	}
	select {
	case payload := <-carol.Frames():
		t.Fatalf("room 9 session received room 7 payload: %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegistryConcurrentJoinsNoLostUpdates(t *testing.T) {
	reg := NewRegistry()

	const n = 50
	var wg sync.WaitGroup
	sessions := make([]*Session, n)
	for i := 0; i < n; i++ {
		sessions[i] = newTestSession(t, fmt.Sprintf("user%d", i), "7")
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			reg.Join("7", s)
		}(sessions[i])
	}
	wg.Wait()

	if got := reg.MemberCount("7"); got != n {
		t.Fatalf("expected %d members after concurrent joins, got %d", n, got)
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			reg.Leave("7", s)
		}(sessions[i])
	}
	wg.Wait()

	if got := reg.RoomCount(); got != 0 {
		t.Fatalf("expected no rooms after concurrent leaves, got %d", got)
	}
}

func TestRegistrySlowSubscriberEvicted(t *testing.T) {
	reg := NewRegistry()

	var evicted atomic.Bool
	user := &store.User{ID: 1, Username: "slow"}
	slow := NewSession(user, ParseRoom("7"), func() { evicted.Store(true) })
	reg.Join("7", slow)

	// Overflow the session queue without draining it.
	for i := 0; i <= sessionBuffer; i++ {
		reg.Broadcast("7", []byte("x"))
	}

	if !evicted.Load() {
		t.Fatalf("expected slow subscriber to be evicted")
	}
}
