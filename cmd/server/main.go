// Command server is the engine's HTTP entrypoint: resolves configuration,
// wires every client and the job orchestrator, registers routes, and
// serves. Grounded on the teacher's cmd/api/main.go wiring shape (load
// config -> construct dependencies -> http.HandleFunc per route -> serve),
// generalized from a single global agent.Manager to an explicitly
// constructed dependency graph.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ncrc/justdata/pkg/api/analysis"
	"github.com/ncrc/justdata/pkg/core/aiclient"
	"github.com/ncrc/justdata/pkg/core/census"
	"github.com/ncrc/justdata/pkg/core/config"
	"github.com/ncrc/justdata/pkg/core/job"
	"github.com/ncrc/justdata/pkg/core/logging"
	"github.com/ncrc/justdata/pkg/core/pipeline"
	"github.com/ncrc/justdata/pkg/core/recipe"
	"github.com/ncrc/justdata/pkg/core/reportwriter"
	"github.com/ncrc/justdata/pkg/core/store"
	"github.com/ncrc/justdata/pkg/core/warehouse"
)

// Version is the build-time release string, overwritten at release via:
//
//	go build -ldflags "-X main.Version=v1.2.3"
//
// reported verbatim by GET /health.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("resolving configuration: %w", err)
	}

	log, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("constructing logger: %w", err)
	}
	defer log.Sync()

	if err := recipe.LoadOverrides("config/recipes.yaml"); err != nil {
		return fmt.Errorf("loading recipe overrides: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := warehouse.Dial(ctx, cfg.Warehouse.DSN)
	if err != nil {
		log.Error("warehouse unreachable at startup", zap.Error(err))
		return fmt.Errorf("warehouse: %w", err)
	}
	defer pool.Close()
	wh := warehouse.NewPoolClient(pool, cfg.Warehouse.MaxConcurrency)

	var cs census.Client
	if cfg.CensusReady {
		cs = census.NewHTTPClient(cfg.Census.BaseURL, cfg.Census.APIKey, cfg.Census.MaxConcurrency, cfg.Census.RatePerSecond, cfg.Census.VintageTimeout)
	} else {
		log.Warn("census API key absent; demographic context will be unavailable for all jobs")
	}

	var ai *aiclient.Client
	if cfg.AIReady {
		ai = aiclient.NewClient(cfg.AI.PrimaryAPIKey, cfg.AI.FallbackAPIKey, cfg.AI.PrimaryModel, cfg.AI.FallbackModel, cfg.AI.Temperature, cfg.AI.SectionTimeout)
	} else {
		log.Warn("AI provider keys absent; narrative sections will be unavailable for all jobs")
	}

	pl := pipeline.New(wh, cs, ai, pipeline.StageTimeouts{
		Warehouse: cfg.Warehouse.QueryTimeout,
		Census:    cfg.Census.VintageTimeout,
		Narrative: cfg.AI.SectionTimeout,
	}, log)

	rs := store.New(cfg.Jobs.ReportTTL, reportwriter.New())
	defer rs.Close()

	orch := job.New(pl, rs, log, cfg.Jobs.WallClock)
	defer orch.Close()

	h := analysis.New(orch, rs, wh, Version, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", h.HandleAnalyze)
	mux.HandleFunc("/status", h.HandleStatus)
	mux.HandleFunc("/progress/", h.HandleProgress)
	mux.HandleFunc("/report-data", h.HandleReportData)
	mux.HandleFunc("/download", h.HandleDownload)
	mux.HandleFunc("/cancel", h.HandleCancel)
	mux.HandleFunc("/health", h.HandleHealth)

	log.Info("server listening", zap.String("addr", cfg.BindAddr))
	return http.ListenAndServe(cfg.BindAddr, mux)
}
