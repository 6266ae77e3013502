package catalogfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"
)

func writeFixture(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.ndjson")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestSourceLoadReadsAllRecords(t *testing.T) {
	path := writeFixture(t, []string{
		`{"url":"https://example.com/a.csv","resource_id":"r1","format":"CSV","dataset_id":"d1","stored_size":100}`,
		"",
		`{"url":"https://example.com/b.csv","resource_id":"r2","format":"csv","dataset_id":"d1"}`,
	})

	src := Source{Path: path}
	it, err := src.Load(context.Background(), domain.CatalogFilter{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer it.Close()

	var got []domain.ResourceRecord
	for {
		r, ok, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, r)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 records (blank line skipped), got %d", len(got))
	}
	if got[0].Format != "csv" {
		t.Fatalf("expected format to be lowercased, got %q", got[0].Format)
	}
	if !got[0].HasStoredSize || got[0].StoredSize != 100 {
		t.Fatalf("expected stored size 100, got %+v", got[0])
	}
	if got[1].HasStoredSize {
		t.Fatalf("expected no stored size for r2, got %+v", got[1])
	}
}

func TestSourceLoadAppliesShardPrefix(t *testing.T) {
	path := writeFixture(t, []string{
		`{"url":"https://example.com/a.csv","resource_id":"a1","format":"csv","dataset_id":"d1"}`,
		`{"url":"https://example.com/b.csv","resource_id":"b1","format":"csv","dataset_id":"d1"}`,
	})

	src := Source{Path: path}
	it, err := src.Load(context.Background(), domain.CatalogFilter{ShardPrefix: "a"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer it.Close()

	r, ok, err := it.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected one matching record, err=%v ok=%v", err, ok)
	}
	if r.ResourceID != "a1" {
		t.Fatalf("ResourceID = %q, want a1", r.ResourceID)
	}

	_, ok, err = it.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ok {
		t.Fatalf("expected no further records after the shard-filtered one")
	}
}

func TestSinkApplyWritesPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")

	plan := domain.RevisionPlan{
		"d1": domain.DatasetRevision{
			DatasetID: "d1",
			UpdateResources: map[string]domain.Patch{
				"r1": {Hash: "h1", HasHash: true},
			},
		},
	}

	sink := Sink{Path: path}
	if err := sink.Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var roundTripped domain.RevisionPlan
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if roundTripped["d1"].UpdateResources["r1"].Hash != "h1" {
		t.Fatalf("round-tripped plan mismatch: %+v", roundTripped)
	}
}
