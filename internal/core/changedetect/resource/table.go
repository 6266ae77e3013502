// Package resource holds the in-memory keyed table of resources a sweep
// consumes from the catalog.
package resource

import (
	"context"
	"net/url"
	"strings"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"
)

// Table is the in-memory, read-only-after-load set of resources a sweep
// processes, keyed by resource ID.
type Table struct {
	byID     map[string]domain.ResourceRecord
	order    []string
	netlocs  map[string]struct{}
}

// Load drains the given CatalogSource, discarding records whose URL has
// no parseable netloc, whose netloc is in netlocIgnore, or whose format
// is in formatIgnore. It records the set of distinct netlocs observed,
// used to pre-size the host scheduler.
func Load(ctx context.Context, src domain.CatalogSource, filter domain.CatalogFilter) (*Table, error) {
	it, err := src.Load(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	netlocIgnore := toSet(filter.NetlocsIgnore)
	formatIgnore := toSet(filter.FormatsIgnore)

	t := &Table{
		byID:    make(map[string]domain.ResourceRecord),
		netlocs: make(map[string]struct{}),
	}

	for {
		rec, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		netloc := Netloc(rec.URL)
		if netloc == "" {
			continue // structural: no parseable netloc, excluded per spec.md §7 kind 4
		}
		if _, skip := netlocIgnore[strings.ToLower(netloc)]; skip {
			continue
		}
		if _, skip := formatIgnore[strings.ToLower(rec.Format)]; skip {
			continue
		}

		// duplicate resource_id: last-seen mapping wins (spec.md §9 open question)
		if _, dup := t.byID[rec.ResourceID]; !dup {
			t.order = append(t.order, rec.ResourceID)
		}
		t.byID[rec.ResourceID] = rec
		t.netlocs[netloc] = struct{}{}
	}

	return t, nil
}

// Netloc extracts host[:port] from a URL, or "" if unparseable.
func Netloc(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// Get returns the record for id and whether it was present.
func (t *Table) Get(id string) (domain.ResourceRecord, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// Len returns the number of distinct resources loaded.
func (t *Table) Len() int { return len(t.order) }

// All returns records in load order (first occurrence of each resource ID).
func (t *Table) All() []domain.ResourceRecord {
	out := make([]domain.ResourceRecord, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// DistinctNetlocs returns the set of distinct netlocs observed during load,
// used to pre-size the host scheduler (spec.md §4.1).
func (t *Table) DistinctNetlocs() []string {
	out := make([]string, 0, len(t.netlocs))
	for n := range t.netlocs {
		out = append(out, n)
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[strings.ToLower(strings.TrimSpace(it))] = struct{}{}
	}
	return s
}
