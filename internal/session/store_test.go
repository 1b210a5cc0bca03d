package session

import (
	"testing"
	"time"

	"github.com/gatewarden/internal/domain"
)

func newSession(name string, created time.Time, ttl time.Duration) *domain.PurgatorySession {
	return &domain.PurgatorySession{
		Name:        name,
		DiscordID:   "discord-123",
		DiscordName: "tester",
		CreatedAt:   created,
		ExpiresAt:   created.Add(ttl),
	}
}

func TestStore_PutAndGet(t *testing.T) {
	store := NewStore()
	now := time.Now()

	store.Put(newSession("Steve", now, 10*time.Minute))

	sess, ok := store.Get("Steve")
	if !ok {
		t.Fatal("Get(Steve) = not found, want session")
	}
	if sess.DiscordID != "discord-123" {
		t.Errorf("DiscordID = %q, want discord-123", sess.DiscordID)
	}
}

func TestStore_GetIsCaseInsensitive(t *testing.T) {
	store := NewStore()
	store.Put(newSession("Steve", time.Now(), 10*time.Minute))

	if _, ok := store.Get("steve"); !ok {
		t.Error("Get(steve) = not found, want session stored as Steve")
	}
	if _, ok := store.Get("  STEVE  "); !ok {
		t.Error("Get with surrounding whitespace = not found, want session")
	}
}

func TestStore_PutReplacesExisting(t *testing.T) {
	store := NewStore()
	now := time.Now()

	first := newSession("Steve", now, 10*time.Minute)
	first.Attempts = 4
	store.Put(first)

	store.Put(newSession("Steve", now.Add(time.Minute), 10*time.Minute))

	sess, ok := store.Get("Steve")
	if !ok {
		t.Fatal("Get(Steve) = not found after replacement")
	}
	if sess.Attempts != 0 {
		t.Errorf("Attempts = %d after replacement, want 0", sess.Attempts)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestStore_GetExpiry(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	store.SetNowFunc(func() time.Time { return current })

	store.Put(newSession("Steve", base, 10*time.Minute))

	current = base.Add(9*time.Minute + 59*time.Second)
	if _, ok := store.Get("Steve"); !ok {
		t.Error("Get just before expiry = not found, want session")
	}

	current = base.Add(10*time.Minute + time.Second)
	if _, ok := store.Get("Steve"); ok {
		t.Error("Get after expiry = found, want absent")
	}

	// Lazy expiry removed the entry
	if store.Len() != 0 {
		t.Errorf("Len() = %d after expired read, want 0", store.Len())
	}
}

func TestStore_IncrementAttempts(t *testing.T) {
	store := NewStore()
	store.Put(newSession("Steve", time.Now(), 10*time.Minute))

	for want := 1; want <= 3; want++ {
		got, ok := store.IncrementAttempts("Steve")
		if !ok || got != want {
			t.Fatalf("IncrementAttempts = %d, %v, want %d, true", got, ok, want)
		}
	}

	if _, ok := store.IncrementAttempts("Alex"); ok {
		t.Error("IncrementAttempts for unknown name = true, want false")
	}
}

func TestStore_IncrementAttempts_ExpiredSession(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	store.SetNowFunc(func() time.Time { return current })

	store.Put(newSession("Steve", base, 10*time.Minute))
	current = base.Add(11 * time.Minute)

	if _, ok := store.IncrementAttempts("Steve"); ok {
		t.Error("IncrementAttempts on expired session = true, want false")
	}
}

func TestStore_Remove(t *testing.T) {
	store := NewStore()
	store.Put(newSession("Steve", time.Now(), 10*time.Minute))

	if !store.Remove("steve") {
		t.Error("Remove(steve) = false, want true")
	}
	if store.Remove("steve") {
		t.Error("second Remove(steve) = true, want false")
	}
}

func TestStore_SweepExpired(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	store.SetNowFunc(func() time.Time { return current })

	store.Put(newSession("Steve", base, 5*time.Minute))
	store.Put(newSession("Alex", base, 20*time.Minute))
	store.Put(newSession("Herobrine", base, time.Minute))

	current = base.Add(10 * time.Minute)

	if removed := store.SweepExpired(); removed != 2 {
		t.Errorf("SweepExpired() = %d, want 2", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d after sweep, want 1", store.Len())
	}
	if _, ok := store.Get("Alex"); !ok {
		t.Error("surviving session missing after sweep")
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Put(newSession("Steve", time.Now(), 10*time.Minute))

	sess, _ := store.Get("Steve")
	sess.Attempts = 99

	again, _ := store.Get("Steve")
	if again.Attempts != 0 {
		t.Errorf("mutating the returned session leaked into the store: Attempts = %d", again.Attempts)
	}
}
