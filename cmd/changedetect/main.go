// Command changedetect runs one change-detection sweep over a catalog
// of externally hosted resources.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/modkit"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/config"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/logger"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/store"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/catalogfile"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/services/changedetect/module"

	"github.com/redis/go-redis/v9"
)

func main() {
	root := config.New()
	l := logger.Get()

	var (
		fCatalogPath  = flag.String("catalog", "", "path to a newline-delimited JSON catalog fixture")
		fPlanOut      = flag.String("plan-out", "revision_plan.json", "where to write the revision plan")
		fDryRun       = flag.Bool("dry-run", false, "force revise=false regardless of configuration")
		fDistributed  = flag.Bool("distributed", false, "enable the shard partitioner regardless of configuration")
	)
	flag.Parse()

	if *fCatalogPath == "" {
		l.Fatal().Msg("-catalog is required (path to a newline-delimited JSON resource fixture)")
	}
	if *fDryRun {
		_ = os.Setenv("CHANGEDETECT_REVISE", "0")
	}
	if *fDistributed {
		_ = os.Setenv("CHANGEDETECT_USE_DISTRIBUTED", "1")
	}

	ctx := context.Background()

	opts := module.FromConfig(root)

	rds := store.RedisConfig{Enabled: opts.UseDistributed}
	if opts.UseDistributed {
		parsed, err := redis.ParseURL(opts.SharedKVURL)
		if err != nil {
			l.Fatal().Err(err).Str("shared_kv_url", opts.SharedKVURL).Msg("invalid CHANGEDETECT_SHARED_KV_URL")
		}
		rds.Addr = parsed.Addr
		rds.DB = parsed.DB
	}

	st, err := store.Open(ctx, store.Config{
		AppName: "changedetect",
		RDS:     rds,
	}, store.WithLogger(*l))
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(ctx); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	deps := modkit.Deps{
		Log: *l,
		Cfg: root,
		KV:  st.KV,
	}

	catalog := catalogfile.Source{Path: *fCatalogPath}
	revision := catalogfile.Sink{Path: *fPlanOut}

	mod := module.New(deps, catalog, revision)

	if err := mod.Service.Run(ctx); err != nil {
		l.Fatal().Err(err).Msg("sweep failed")
	}
}
