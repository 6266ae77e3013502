package domain

import "context"

// CatalogFilter scopes a catalog load: ignore sets applied during load
// and an optional shard-prefix filter for distributed mode.
type CatalogFilter struct {
	NetlocsIgnore []string
	FormatsIgnore []string
	ShardPrefix   string // "" means unscoped
}

// CatalogSource is the external catalog collaborator. The core never
// talks to the catalog API directly; it consumes whatever this port
// yields.
type CatalogSource interface {
	Load(ctx context.Context, filter CatalogFilter) (ResourceIterator, error)
}

// ResourceIterator yields ResourceRecords one at a time. Next returns
// (ResourceRecord{}, false, nil) when exhausted.
type ResourceIterator interface {
	Next(ctx context.Context) (ResourceRecord, bool, error)
	Close() error
}

// RevisionSink applies a RevisionPlan to the catalog. Only invoked when
// the sweep's revise configuration value is true.
type RevisionSink interface {
	Apply(ctx context.Context, plan RevisionPlan) error
}

// AuditSink persists the accumulated audit rows for a sweep (aggregated
// console summary plus a CSV dump).
type AuditSink interface {
	Write(ctx context.Context, rows []AuditRow) error
}
