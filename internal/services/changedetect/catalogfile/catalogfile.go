// Package catalogfile is a minimal local-file CatalogSource and
// RevisionSink: reading resources from a newline-delimited JSON file and
// writing the RevisionPlan back out the same way. A real catalog API
// client is its own integration concern; this adapter gives the CLI
// entrypoint and tests something concrete to wire against without
// fabricating one.
package catalogfile

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"
)

// record is the on-disk shape of one ResourceRecord line.
type record struct {
	URL                string `json:"url"`
	ResourceID         string `json:"resource_id"`
	Format             string `json:"format"`
	DatasetID          string `json:"dataset_id"`
	StoredSize         *int64 `json:"stored_size,omitempty"`
	StoredLastModified string `json:"stored_last_modified,omitempty"`
	StoredHash         string `json:"stored_hash,omitempty"`
	StoredBroken       bool   `json:"stored_broken,omitempty"`
}

// Source reads ResourceRecords from a newline-delimited JSON file.
type Source struct {
	Path string
}

// Load implements domain.CatalogSource. The shard-prefix filter, if
// set, is applied by comparing against ResourceID's hex prefix.
func (s Source) Load(ctx context.Context, filter domain.CatalogFilter) (domain.ResourceIterator, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	return &iterator{f: f, scanner: bufio.NewScanner(f), shardPrefix: filter.ShardPrefix}, nil
}

type iterator struct {
	f           *os.File
	scanner     *bufio.Scanner
	shardPrefix string
}

func (it *iterator) Next(ctx context.Context) (domain.ResourceRecord, bool, error) {
	for it.scanner.Scan() {
		line := strings.TrimSpace(it.scanner.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return domain.ResourceRecord{}, false, err
		}
		if it.shardPrefix != "" && !strings.HasPrefix(rec.ResourceID, it.shardPrefix) {
			continue
		}

		r := domain.ResourceRecord{
			URL:          rec.URL,
			ResourceID:   rec.ResourceID,
			Format:       strings.ToLower(rec.Format),
			DatasetID:    rec.DatasetID,
			StoredHash:   rec.StoredHash,
			StoredBroken: rec.StoredBroken,
		}
		if rec.StoredSize != nil {
			r.StoredSize, r.HasStoredSize = *rec.StoredSize, true
		}
		if rec.StoredLastModified != "" {
			if t, err := time.Parse(time.RFC3339, rec.StoredLastModified); err == nil {
				r.StoredLastModified, r.HasStoredModified = t, true
			}
		}
		if rec.StoredHash != "" {
			r.HasStoredHash = true
		}
		return r, true, nil
	}
	if err := it.scanner.Err(); err != nil && err != io.EOF {
		return domain.ResourceRecord{}, false, err
	}
	return domain.ResourceRecord{}, false, nil
}

func (it *iterator) Close() error { return it.f.Close() }

// Sink writes the RevisionPlan as a single JSON document, the local
// stand-in for "POST the plan to the catalog".
type Sink struct {
	Path string
}

// Apply implements domain.RevisionSink.
func (s Sink) Apply(ctx context.Context, plan domain.RevisionPlan) error {
	f, err := os.Create(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
