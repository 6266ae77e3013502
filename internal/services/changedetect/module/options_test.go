package module

import (
	"testing"
	"time"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/config"
)

func TestFromConfigDefaults(t *testing.T) {
	opts := FromConfig(config.New())

	if opts.RequestsPerSecond != 4 {
		t.Fatalf("RequestsPerSecond = %v, want 4", opts.RequestsPerSecond)
	}
	if opts.MaxConcurrentPerHost != 10 {
		t.Fatalf("MaxConcurrentPerHost = %v, want 10", opts.MaxConcurrentPerHost)
	}
	if opts.GlobalConnectionCap != 100 {
		t.Fatalf("GlobalConnectionCap = %v, want 100", opts.GlobalConnectionCap)
	}
	if opts.RetryMinWait != 4*time.Second {
		t.Fatalf("RetryMinWait = %v, want 4s", opts.RetryMinWait)
	}
	if opts.Revise {
		t.Fatalf("Revise should default to false")
	}
	if len(opts.FormatsIgnore) != 1 || opts.FormatsIgnore[0] != "web app" {
		t.Fatalf("FormatsIgnore default = %+v, want [web app]", opts.FormatsIgnore)
	}
}

func TestFromConfigOverrides(t *testing.T) {
	t.Setenv("CHANGEDETECT_REQUESTS_PER_SECOND", "8")
	t.Setenv("CHANGEDETECT_REVISE", "true")
	t.Setenv("CHANGEDETECT_USE_DISTRIBUTED", "true")
	t.Setenv("CHANGEDETECT_SHARD_LENGTH", "2")
	t.Setenv("CHANGEDETECT_NETLOCS_IGNORE", "a.example,b.example")

	opts := FromConfig(config.New())

	if opts.RequestsPerSecond != 8 {
		t.Fatalf("RequestsPerSecond = %v, want 8", opts.RequestsPerSecond)
	}
	if !opts.Revise {
		t.Fatalf("expected Revise to be true")
	}
	if !opts.UseDistributed {
		t.Fatalf("expected UseDistributed to be true")
	}
	if opts.ShardLength != 2 {
		t.Fatalf("ShardLength = %d, want 2", opts.ShardLength)
	}
	if len(opts.NetlocsIgnore) != 2 || opts.NetlocsIgnore[0] != "a.example" {
		t.Fatalf("NetlocsIgnore = %+v, want [a.example b.example]", opts.NetlocsIgnore)
	}
}
