// Package planner implements the revision plan aggregator (C7): merging
// per-resource patches into per-dataset update documents.
package planner

import "github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"

// Aggregator accumulates (dataset_id, resource_id, patch) triples into a
// RevisionPlan. When the same resource_id receives two patches, the
// later one replaces the earlier (spec.md §4.7).
type Aggregator struct {
	plan domain.RevisionPlan
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{plan: make(domain.RevisionPlan)}
}

// Add merges one patch for resourceID into datasetID's revision. An
// empty patch is a no-op (nothing to record).
func (a *Aggregator) Add(datasetID, resourceID string, patch domain.Patch) {
	if patch.IsEmpty() {
		return
	}
	rev, ok := a.plan[datasetID]
	if !ok {
		rev = domain.DatasetRevision{
			DatasetID:       datasetID,
			UpdateResources: make(map[string]domain.Patch),
		}
	}
	rev.UpdateResources[resourceID] = patch // later call replaces earlier
	a.plan[datasetID] = rev
}

// Plan returns the accumulated RevisionPlan.
func (a *Aggregator) Plan() domain.RevisionPlan { return a.plan }
