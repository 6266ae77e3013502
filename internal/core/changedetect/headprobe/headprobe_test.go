package headprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/hostsched"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/retrypolicy"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"

	"github.com/rs/zerolog"
)

func newTestScheduler(hosts []string) *hostsched.Scheduler {
	return hostsched.New(hostsched.Config{RequestsPerSecond: 1000, MaxConcurrentPerHost: 10, GlobalCap: 100}, hosts)
}

func TestRunHeadOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "42")
		w.Header().Set("Etag", `"abc123"`)
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sched := newTestScheduler(nil)
	retry := retrypolicy.Config{MaxAttempts: 1}
	p := New(Config{}, sched, retry, zerolog.Nop())

	resources := []domain.ResourceRecord{{ResourceID: "r1", URL: srv.URL}}
	out := p.Run(context.Background(), resources)

	oc, ok := out["r1"]
	if !ok {
		t.Fatalf("expected an outcome for r1")
	}
	if oc.Status != domain.Status(http.StatusOK) {
		t.Fatalf("Status = %v, want 200", oc.Status)
	}
	if !oc.HasDigest || oc.Digest != `"abc123"` {
		t.Fatalf("expected the ETag to be captured as the digest, got %+v", oc)
	}
	if !oc.HasSize || oc.Size != 42 {
		t.Fatalf("expected size 42, got %+v", oc)
	}
}

func TestRunHeadNonRetryableStatus(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sched := newTestScheduler(nil)
	retry := retrypolicy.Config{MaxAttempts: 3, Min: time.Millisecond}
	p := New(Config{}, sched, retry, zerolog.Nop())

	resources := []domain.ResourceRecord{{ResourceID: "r1", URL: srv.URL}}
	out := p.Run(context.Background(), resources)

	if out["r1"].Status != domain.Status(http.StatusNotFound) {
		t.Fatalf("Status = %v, want 404", out["r1"].Status)
	}
	if attempts != 1 {
		t.Fatalf("a non-retryable status should not be retried, got %d attempts", attempts)
	}
}

func TestRunHeadRetriesRateLimited(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sched := newTestScheduler(nil)
	retry := retrypolicy.Config{ExpBase: 1, Multiplier: 0.001, Min: time.Millisecond, MinMultiplier: 1, MaxAttempts: 3}
	p := New(Config{}, sched, retry, zerolog.Nop())

	resources := []domain.ResourceRecord{{ResourceID: "r1", URL: srv.URL}}
	out := p.Run(context.Background(), resources)

	if out["r1"].Status != domain.Status(http.StatusOK) {
		t.Fatalf("Status = %v, want 200 after retry", out["r1"].Status)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestRunMultipleResourcesAllGetOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sched := newTestScheduler(nil)
	retry := retrypolicy.Config{MaxAttempts: 1}
	p := New(Config{}, sched, retry, zerolog.Nop())

	resources := []domain.ResourceRecord{
		{ResourceID: "r1", URL: srv.URL},
		{ResourceID: "r2", URL: srv.URL},
		{ResourceID: "r3", URL: srv.URL},
	}
	out := p.Run(context.Background(), resources)
	if len(out) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(out))
	}
}
