package mcpd_test

import (
	"testing"
	"time"

	"github.com/toolwire/mcpd"
)

func TestSessionValidAfterCreate(t *testing.T) {
	m := mcpd.NewSessionManager(time.Minute, time.Minute, nil)
	defer m.Shutdown()

	id := m.Create()
	if id == "" {
		t.Fatal("expected non-empty session id")
	}
	if !m.Validate(id) {
		t.Fatal("session must be valid immediately after creation")
	}
}

func TestSessionUnknownAndEmptyID(t *testing.T) {
	m := mcpd.NewSessionManager(time.Minute, time.Minute, nil)
	defer m.Shutdown()

	if m.Validate("") {
		t.Fatal("empty id must not validate")
	}
	if m.Validate("not-a-session") {
		t.Fatal("unknown id must not validate")
	}
}

func TestSessionExpiry(t *testing.T) {
	m := mcpd.NewSessionManager(100*time.Millisecond, time.Hour, nil)
	defer m.Shutdown()

	id := m.Create()
	time.Sleep(250 * time.Millisecond)

	if m.Validate(id) {
		t.Fatal("session must expire once idle time exceeds the timeout")
	}
	// Lazy expiration removes the entry on the failed check.
	if m.Len() != 0 {
		t.Fatalf("expected expired session to be removed, have %d sessions", m.Len())
	}
}

func TestSessionTouchExtendsExpiry(t *testing.T) {
	m := mcpd.NewSessionManager(200*time.Millisecond, time.Hour, nil)
	defer m.Shutdown()

	id := m.Create()

	// A session accessed every timeout/2 never expires.
	for i := 0; i < 6; i++ {
		time.Sleep(100 * time.Millisecond)
		if !m.Validate(id) {
			t.Fatalf("session expired on access %d despite regular touches", i)
		}
	}
}

func TestSessionRemoveIdempotent(t *testing.T) {
	m := mcpd.NewSessionManager(time.Minute, time.Minute, nil)
	defer m.Shutdown()

	id := m.Create()
	m.Remove(id)
	if m.Validate(id) {
		t.Fatal("removed session must not validate")
	}

	// Removing again is a no-op.
	m.Remove(id)
	m.Remove("never-existed")
}

func TestSessionSweepEvictsIdle(t *testing.T) {
	m := mcpd.NewSessionManager(50*time.Millisecond, 25*time.Millisecond, nil)
	defer m.Shutdown()

	m.Create()
	m.Create()

	// The sweeper must evict without any Validate call touching the sessions.
	deadline := time.Now().Add(2 * time.Second)
	for m.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper did not evict idle sessions, %d remain", m.Len())
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestSessionShutdownClearsAll(t *testing.T) {
	m := mcpd.NewSessionManager(time.Minute, time.Minute, nil)

	id := m.Create()
	m.Create()

	m.Shutdown()

	if m.Len() != 0 {
		t.Fatalf("expected no sessions after shutdown, have %d", m.Len())
	}
	if m.Validate(id) {
		t.Fatal("session must not validate after shutdown")
	}
}
