package session

import (
	"errors"
	"testing"
	"time"
)

func TestSession_New(t *testing.T) {
	sess := New("test-id", "test-token", time.Now().Add(24*time.Hour))

	if sess.ID != "test-id" || sess.Token != "test-token" {
		t.Errorf("New() = %q/%q, want test-id/test-token", sess.ID, sess.Token)
	}
	if !sess.IsNew() {
		t.Error("IsNew() = false, want true")
	}
	if !sess.IsDirty() {
		t.Error("IsDirty() = false, want true")
	}
	if sess.Values == nil {
		t.Error("Values is nil")
	}
}

func TestSession_Authenticate(t *testing.T) {
	sess := New("id", "token", time.Now().Add(time.Hour))
	sess.ClearDirty()

	if sess.IsAuthenticated() {
		t.Error("IsAuthenticated() = true for new session, want false")
	}

	sess.Authenticate("principal-1")
	if !sess.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after Authenticate")
	}
	if !sess.IsDirty() {
		t.Error("Authenticate should mark session as dirty")
	}

	empty := ""
	sess.PrincipalID = &empty
	if sess.IsAuthenticated() {
		t.Error("IsAuthenticated() = true for empty principal")
	}
}

func TestSession_Values(t *testing.T) {
	sess := New("id", "token", time.Now().Add(time.Hour))
	sess.ClearDirty()

	sess.SetValue("farm", "abc")
	if !sess.IsDirty() {
		t.Error("SetValue should mark session as dirty")
	}
	if v, ok := sess.GetValue("farm"); !ok || v != "abc" {
		t.Errorf("GetValue = %v, %v", v, ok)
	}

	sess.ClearDirty()
	sess.DeleteValue("missing")
	if sess.IsDirty() {
		t.Error("DeleteValue on missing key should not mark dirty")
	}
	sess.DeleteValue("farm")
	if !sess.IsDirty() {
		t.Error("DeleteValue should mark session as dirty")
	}
}

func TestSession_IsExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sess := New("id", "token", now)

	if !sess.IsExpired(now) {
		t.Error("session should be expired at its expiry instant")
	}
	if sess.IsExpired(now.Add(-time.Second)) {
		t.Error("session should be valid before expiry")
	}
}

func TestValue(t *testing.T) {
	sess := New("id", "token", time.Now().Add(time.Hour))
	sess.SetValue("count", 3)

	n, err := Value[int](sess, "count")
	if err != nil || n != 3 {
		t.Errorf("Value[int] = %d, %v", n, err)
	}

	if _, err := Value[string](sess, "count"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Value[string] err = %v, want ErrTypeMismatch", err)
	}
	if _, err := Value[int](sess, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Value missing err = %v, want ErrNotFound", err)
	}
	if _, err := Value[int](nil, "count"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Value nil err = %v, want ErrNotFound", err)
	}
	if got := ValueOr(sess, "missing", 7); got != 7 {
		t.Errorf("ValueOr = %d, want 7", got)
	}
}
