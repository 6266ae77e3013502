package hostsched

import (
	"context"
	"testing"
	"time"
)

type fakeItem struct {
	host string
	id   int
}

func (f fakeItem) Host() string { return f.host }

func TestListDistributeInterleavesHosts(t *testing.T) {
	items := []fakeItem{
		{"a", 1}, {"a", 2}, {"a", 3},
		{"b", 4},
		{"c", 5}, {"c", 6},
	}

	out := ListDistribute(items)
	if len(out) != len(items) {
		t.Fatalf("ListDistribute dropped items: got %d, want %d", len(out), len(items))
	}

	// host "a" has the longest bucket (3) so it leads; no host may
	// appear three times in a row.
	for i := 1; i < len(out)-1; i++ {
		if out[i].Host() == out[i-1].Host() && out[i].Host() == out[i+1].Host() {
			t.Fatalf("host %q ran three in a row at index %d: %+v", out[i].Host(), i, out)
		}
	}

	seen := map[string]int{}
	for _, it := range out {
		seen[it.host]++
	}
	if seen["a"] != 3 || seen["b"] != 1 || seen["c"] != 2 {
		t.Fatalf("ListDistribute lost items per host: %+v", seen)
	}
}

func TestListDistributeEmpty(t *testing.T) {
	out := ListDistribute([]fakeItem{})
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d", len(out))
	}
}

func TestSchedulerAcquireRespectsPerHostConcurrency(t *testing.T) {
	s := New(Config{RequestsPerSecond: 1000, MaxConcurrentPerHost: 1, GlobalCap: 10}, []string{"example.com"})

	ctx := context.Background()
	release1, err := s.Acquire(ctx, "example.com")
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		release2, err := s.Acquire(ctx, "example.com")
		if err != nil {
			return
		}
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatalf("second Acquire should not have completed while the first slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	release1()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second Acquire did not complete after release")
	}
}

func TestSchedulerAcquireLazyHost(t *testing.T) {
	s := New(Config{RequestsPerSecond: 1000, MaxConcurrentPerHost: 2, GlobalCap: 10}, nil)

	release, err := s.Acquire(context.Background(), "unseen.example.com")
	if err != nil {
		t.Fatalf("Acquire on lazily-created host failed: %v", err)
	}
	release()
}

func TestSchedulerAcquireCanceledContext(t *testing.T) {
	s := New(Config{RequestsPerSecond: 1000, MaxConcurrentPerHost: 1, GlobalCap: 10}, []string{"x"})

	ctx, cancel := context.WithCancel(context.Background())
	release, err := s.Acquire(ctx, "x")
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer release()

	cancel()
	if _, err := s.Acquire(ctx, "x"); err == nil {
		t.Fatalf("expected Acquire to fail on a canceled context")
	}
}
