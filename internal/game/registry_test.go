package game

import (
	"sync"
	"testing"
)

func TestAcquireReturnsSameLockPerSession(t *testing.T) {
	r := NewRegistry()
	if r.Acquire("a") != r.Acquire("a") {
		t.Fatal("same session must map to the same mutex")
	}
	if r.Acquire("a") == r.Acquire("b") {
		t.Fatal("different sessions must not share a mutex")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 locks, got %d", r.Len())
	}
}

func TestAcquireConcurrentFirstAccess(t *testing.T) {
	r := NewRegistry()
	const workers = 32
	results := make([]*sync.Mutex, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Acquire("shared")
		}(i)
	}
	wg.Wait()
	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent first access produced distinct locks")
		}
	}
	if r.Len() != 1 {
		t.Fatalf("expected a single lock entry, got %d", r.Len())
	}
}

func TestRegistrySerializesCriticalSections(t *testing.T) {
	r := NewRegistry()
	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu := r.Acquire("s")
			mu.Lock()
			counter++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if counter != workers {
		t.Fatalf("lost updates under contention: %d", counter)
	}
}
