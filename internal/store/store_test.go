package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/semillerodigital/classroomplus/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestSession(t *testing.T, s *Store, userID, providerToken string, ttl time.Duration) string {
	t.Helper()
	token, err := s.CreateAuthSession(model.AuthSession{
		UserID:               userID,
		Email:                userID + "@example.com",
		DisplayName:          "User " + userID,
		ProviderToken:        providerToken,
		ProviderRefreshToken: "refresh-" + userID,
	}, ttl)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	return token
}

func TestAuthSessionLifecycle(t *testing.T) {
	s := newTestStore(t)

	token := createTestSession(t, s, "u1", "ya29.token", time.Hour)
	if len(token) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.UserID != "u1" || sess.Email != "u1@example.com" || sess.DisplayName != "User u1" {
		t.Errorf("unexpected identity fields: %+v", sess)
	}
	if sess.ProviderToken != "ya29.token" || sess.ProviderRefreshToken != "refresh-u1" {
		t.Errorf("unexpected provider tokens: %q %q", sess.ProviderToken, sess.ProviderRefreshToken)
	}
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		t.Errorf("ExpiresAt %v not after CreatedAt %v", sess.ExpiresAt, sess.CreatedAt)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession after delete: %v", err)
	}
	if sess != nil {
		t.Error("expected nil after delete")
	}
}

func TestAuthSessionUnknownToken(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.GetAuthSession("nope")
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil, got %+v", sess)
	}
}

func TestAuthSessionEmptyProviderTokenIsKept(t *testing.T) {
	s := newTestStore(t)
	token := createTestSession(t, s, "u2", "", time.Hour)

	sess, err := s.GetAuthSession(token)
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession = %v, %v", sess, err)
	}
	if sess.ProviderToken != "" {
		t.Errorf("ProviderToken = %q, want empty", sess.ProviderToken)
	}
}

func TestExpiredSessions(t *testing.T) {
	s := newTestStore(t)

	expired := createTestSession(t, s, "u1", "tok", time.Nanosecond)
	live := createTestSession(t, s, "u2", "tok", time.Hour)
	time.Sleep(5 * time.Millisecond)

	n, err := s.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d sessions, want 1", n)
	}
	if sess, _ := s.GetAuthSession(expired); sess != nil {
		t.Error("expired session still returned")
	}
	if sess, _ := s.GetAuthSession(live); sess == nil {
		t.Error("live session removed")
	}

	// Expired sessions are also dropped on read.
	lazy := createTestSession(t, s, "u3", "tok", time.Nanosecond)
	time.Sleep(5 * time.Millisecond)
	if sess, _ := s.GetAuthSession(lazy); sess != nil {
		t.Error("expired session returned on read")
	}
	if n, _ := s.CleanupExpiredSessions(); n != 0 {
		t.Errorf("lazy delete left %d rows", n)
	}
}

func TestRolePreference(t *testing.T) {
	s := newTestStore(t)

	role, err := s.GetRolePreference("u1")
	if err != nil {
		t.Fatalf("GetRolePreference: %v", err)
	}
	if role != "" {
		t.Errorf("expected empty role, got %q", role)
	}

	for _, want := range []model.Role{model.RoleTeacher, model.RoleCoordinator} {
		if err := s.SetRolePreference("u1", want); err != nil {
			t.Fatalf("SetRolePreference: %v", err)
		}
		got, err := s.GetRolePreference("u1")
		if err != nil {
			t.Fatalf("GetRolePreference: %v", err)
		}
		if got != want {
			t.Errorf("role = %q, want %q", got, want)
		}
	}

	if err := s.DeleteRolePreference("u1"); err != nil {
		t.Fatalf("DeleteRolePreference: %v", err)
	}
	if got, _ := s.GetRolePreference("u1"); got != "" {
		t.Errorf("role after delete = %q", got)
	}
}

func TestCacheEntries(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	if _, _, ok, err := s.LoadCacheEntry("missing"); ok || err != nil {
		t.Fatalf("LoadCacheEntry(missing) = %v, %v", ok, err)
	}

	entries := map[string]string{
		"user:1:student-assignments":  `{"a":1}`,
		"user:1:progress":             `{"b":2}`,
		"user:10:student-assignments": `{"c":3}`,
	}
	for k, v := range entries {
		if err := s.SaveCacheEntry(k, []byte(v), at); err != nil {
			t.Fatalf("SaveCacheEntry(%s): %v", k, err)
		}
	}

	data, fetchedAt, ok, err := s.LoadCacheEntry("user:1:progress")
	if err != nil || !ok {
		t.Fatalf("LoadCacheEntry = %v, %v", ok, err)
	}
	if !bytes.Equal(data, []byte(`{"b":2}`)) || !fetchedAt.Equal(at) {
		t.Errorf("loaded %s at %v", data, fetchedAt)
	}

	// Overwrite keeps one row with the newer payload.
	later := at.Add(time.Minute)
	if err := s.SaveCacheEntry("user:1:progress", []byte(`{"b":3}`), later); err != nil {
		t.Fatalf("SaveCacheEntry: %v", err)
	}
	data, fetchedAt, _, _ = s.LoadCacheEntry("user:1:progress")
	if string(data) != `{"b":3}` || !fetchedAt.Equal(later) {
		t.Errorf("after overwrite: %s at %v", data, fetchedAt)
	}

	if err := s.SaveCacheEntry("user:1", []byte(`{}`), at); err != nil {
		t.Fatalf("SaveCacheEntry: %v", err)
	}
	if err := s.DeleteCacheEntry("user:1"); err != nil {
		t.Fatalf("DeleteCacheEntry: %v", err)
	}
	if _, _, ok, _ := s.LoadCacheEntry("user:1:progress"); !ok {
		t.Error("exact delete of user:1 removed user:1:progress")
	}

	if err := s.DeleteCacheEntries("user:1:"); err != nil {
		t.Fatalf("DeleteCacheEntries: %v", err)
	}
	if _, _, ok, _ := s.LoadCacheEntry("user:1:student-assignments"); ok {
		t.Error("user:1 entry survived prefix delete")
	}
	if _, _, ok, _ := s.LoadCacheEntry("user:10:student-assignments"); !ok {
		t.Error("user:10 entry removed by user:1: prefix")
	}

	if err := s.DeleteCacheEntries(""); err != nil {
		t.Fatalf("DeleteCacheEntries(all): %v", err)
	}
	if _, _, ok, _ := s.LoadCacheEntry("user:10:student-assignments"); ok {
		t.Error("entry survived full clear")
	}
}
