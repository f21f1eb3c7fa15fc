package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegisterLookup(t *testing.T) {
	r := New()
	if _, ok := r.Lookup("u1"); ok {
		t.Fatal("Lookup on empty registry should miss")
	}

	r.Register("u1", "c1")
	c, ok := r.Lookup("u1")
	if !ok || c != "c1" {
		t.Errorf("Lookup(u1) = %q, %v; want c1, true", c, ok)
	}
}

func TestSecondRegistrationWins(t *testing.T) {
	r := New()
	r.Register("u1", "c1")
	r.Register("u1", "c2")

	c, ok := r.Lookup("u1")
	if !ok || c != "c2" {
		t.Fatalf("Lookup(u1) = %q, %v; want c2, true", c, ok)
	}

	if u, ok := r.Unregister("c1"); ok {
		t.Errorf("Unregister(superseded c1) = %q, true; want miss", u)
	}
	if c, _ := r.Lookup("u1"); c != "c2" {
		t.Errorf("superseded unregister removed live binding, Lookup = %q", c)
	}

	u, ok := r.Unregister("c2")
	if !ok || u != "u1" {
		t.Errorf("Unregister(c2) = %q, %v; want u1, true", u, ok)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestOneConnectionManyUsers(t *testing.T) {
	r := New()
	r.Register("u1", "c1")
	r.Register("u2", "c1")

	if _, ok := r.Unregister("c1"); !ok {
		t.Fatal("Unregister(c1) should remove one binding")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (one binding per unregister)", r.Len())
	}
}

func TestUnregisterUnknown(t *testing.T) {
	r := New()
	if u, ok := r.Unregister("nope"); ok || u != "" {
		t.Errorf("Unregister(nope) = %q, %v", u, ok)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	r.Register("u1", "c1")
	snap := r.Snapshot()
	snap["u1"] = "changed"
	if c, _ := r.Lookup("u1"); c != "c1" {
		t.Errorf("registry mutated through snapshot: %q", c)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%5)
			conn := fmt.Sprintf("c%d", i)
			r.Register(user, conn)
			r.Lookup(user)
			r.Unregister(conn)
		}()
	}
	wg.Wait()
	if r.Len() > 5 {
		t.Errorf("Len() = %d, want <= 5", r.Len())
	}
}
