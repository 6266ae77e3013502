// Package service orchestrates one change-detection sweep: loading
// resources, running both probe phases through the host scheduler and
// retry policy, reconciling outcomes through the decision engine,
// aggregating revisions, and handing off to the configured sinks.
package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/decision"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/fixture"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/getprobe"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/headprobe"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/hostsched"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/planner"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/resource"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/core/changedetect/retrypolicy"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/modkit/scope"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/domain"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/module"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/partition"

	"github.com/rs/zerolog"
)

// Config is the resolved, ready-to-run sweep configuration.
type Config = module.Options

// Service runs sweeps. It is constructed once per process and Run may
// be called per sweep (or per shard, in distributed mode).
type Service struct {
	Catalog  domain.CatalogSource
	Revision domain.RevisionSink
	Audit    domain.AuditSink

	Partitioner *partition.Partitioner // nil when not in distributed mode

	Cfg Config
	Log zerolog.Logger
}

// New builds a Service. Catalog and Audit are required; Revision and
// Partitioner may be nil (Revision is only invoked when Cfg.Revise is
// true; Partitioner is only invoked when Cfg.UseDistributed is true).
func New(catalog domain.CatalogSource, revision domain.RevisionSink, audit domain.AuditSink, partitioner *partition.Partitioner, cfg Config, log zerolog.Logger) *Service {
	if catalog == nil {
		panic("service: Catalog is required")
	}
	if audit == nil {
		panic("service: Audit is required")
	}
	return &Service{
		Catalog:     catalog,
		Revision:    revision,
		Audit:       audit,
		Partitioner: partitioner,
		Cfg:         cfg,
		Log:         log,
	}
}

// Run executes one full sweep: in distributed mode it loops claiming
// shards until none remain; otherwise it runs a single unscoped sweep.
func (s *Service) Run(ctx context.Context) error {
	if s.Partitioner != nil {
		ctx = scope.With(ctx, map[string]string{"instance_id": s.Partitioner.InstanceID()})
	}

	if !s.Cfg.UseDistributed || s.Partitioner == nil {
		return s.runOnce(ctx, "")
	}

	for {
		prefix, ok, err := s.Partitioner.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire shard: %w", err)
		}
		if !ok {
			return nil
		}

		shardCtx := scope.With(ctx, map[string]string{"shard_prefix": prefix})
		if err := s.runOnce(shardCtx, prefix); err != nil {
			return fmt.Errorf("shard %s: %w", prefix, err)
		}
		if err := s.Partitioner.Finish(ctx, prefix); err != nil {
			return fmt.Errorf("finish shard %s: %w", prefix, err)
		}
	}
}

// fixtureTransport builds the save/replay decorator named by spec.md §6's
// save_downloaded/use_saved configuration values. use_saved takes
// precedence over save_downloaded when both are set (a replay run never
// also wants to overwrite its own fixtures); nil means a plain network
// transport.
func (s *Service) fixtureTransport() http.RoundTripper {
	switch {
	case s.Cfg.UseSaved:
		return &fixture.ReplayTransport{Dir: s.Cfg.FixtureDir}
	case s.Cfg.SaveDownloaded:
		return &fixture.SavingTransport{Dir: s.Cfg.FixtureDir}
	default:
		return nil
	}
}

// runOnce runs one sweep scoped to shardPrefix ("" means unscoped).
func (s *Service) runOnce(ctx context.Context, shardPrefix string) error {
	today := time.Now().UTC()

	log := s.Log
	if v, ok := scope.Get(ctx, "shard_prefix"); ok {
		log = log.With().Str("shard_prefix", v).Logger()
	}
	if v, ok := scope.Get(ctx, "instance_id"); ok {
		log = log.With().Str("instance_id", v).Logger()
	}
	log.Info().Str("shard_prefix", shardPrefix).Msg("sweep starting")

	filter := domain.CatalogFilter{
		NetlocsIgnore: s.Cfg.NetlocsIgnore,
		FormatsIgnore: s.Cfg.FormatsIgnore,
		ShardPrefix:   shardPrefix,
	}
	table, err := resource.Load(ctx, s.Catalog, filter)
	if err != nil {
		return fmt.Errorf("load resources: %w", err)
	}

	sched := hostsched.New(hostsched.Config{
		RequestsPerSecond:    s.Cfg.RequestsPerSecond,
		MaxConcurrentPerHost: s.Cfg.MaxConcurrentPerHost,
		GlobalCap:            s.Cfg.GlobalConnectionCap,
	}, table.DistinctNetlocs())

	retry := retrypolicy.Config{
		ExpBase:       s.Cfg.RetryExpBase,
		Multiplier:    s.Cfg.RetryMultiplier,
		Min:           s.Cfg.RetryMinWait,
		MinMultiplier: s.Cfg.RetryMinMultiplier,
		MaxAttempts:   s.Cfg.RetryMaxAttempts,
	}

	transport := s.fixtureTransport()

	head := headprobe.New(headprobe.Config{
		UserAgent:       s.Cfg.UserAgent,
		SockConnectWait: s.Cfg.HeadSockConnectWait,
		TotalWait:       s.Cfg.HeadTotalWait,
		Transport:       transport,
	}, sched, retry, log)

	get := getprobe.New(getprobe.Config{
		UserAgent: s.Cfg.UserAgent,
		TotalWait: s.Cfg.GetTotalWait,
		URLIgnore: s.Cfg.URLIgnore,
		Transport: transport,
	}, sched, retry, log)

	all := table.All()
	headOutcomes := head.Run(ctx, all)

	agg := planner.New()
	rows := make(map[string]domain.AuditRow, len(all))
	var getWorklist []domain.ResourceRecord

	for _, r := range all {
		outcome, ok := headOutcomes[r.ResourceID]
		if !ok {
			continue
		}
		res := decision.Pass1(r, outcome)
		rows[r.ResourceID] = res.Row
		if !res.Patch.IsEmpty() {
			agg.Add(r.DatasetID, r.ResourceID, res.Patch)
		}
		if res.EnqueueGET {
			getWorklist = append(getWorklist, r)
		}
	}

	if len(getWorklist) > 0 {
		getOutcomes := get.Run(ctx, getWorklist)
		for _, r := range getWorklist {
			outcome, ok := getOutcomes[r.ResourceID]
			if !ok {
				continue
			}
			row := rows[r.ResourceID]
			row, patch := decision.Pass2(r, outcome, row, today)
			rows[r.ResourceID] = row
			if !patch.IsEmpty() {
				agg.Add(r.DatasetID, r.ResourceID, patch)
			}
		}
	}

	auditRows := make([]domain.AuditRow, 0, len(rows))
	for _, r := range all {
		if row, ok := rows[r.ResourceID]; ok {
			auditRows = append(auditRows, row)
		}
	}
	if err := s.Audit.Write(ctx, auditRows); err != nil {
		return fmt.Errorf("write audit: %w", err)
	}

	plan := agg.Plan()
	if s.Cfg.Revise && s.Revision != nil {
		if err := s.Revision.Apply(ctx, plan); err != nil {
			return fmt.Errorf("apply revision plan: %w", err)
		}
	}

	return nil
}
