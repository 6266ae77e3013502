// Package module wires the change-detection service from process-wide
// Deps plus the external catalog collaborators a caller supplies.
package module

import (
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/modkit"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/partition"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/report"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/service"
)

// Module wires the sweep service. Catalog search/read and revision
// application are external collaborators the caller supplies, not
// something this module owns.
type Module struct {
	Service *service.Service
}

// New constructs the change-detection module. catalog is required;
// revision may be nil when the caller never sets Revise.
func New(deps modkit.Deps, catalog domain.CatalogSource, revision domain.RevisionSink) *Module {
	opts := FromConfig(deps.Cfg)

	audit := report.CSVSink{Path: opts.CSVPath, Log: deps.Log}

	var partitioner *partition.Partitioner
	if opts.UseDistributed && deps.KV != nil {
		partitioner = partition.New(deps.KV, opts.ShardLength)
	}

	svc := service.New(catalog, revision, audit, partitioner, opts, deps.Log)
	return &Module{Service: svc}
}

// Name returns the module name.
func (m *Module) Name() string { return "changedetect" }
