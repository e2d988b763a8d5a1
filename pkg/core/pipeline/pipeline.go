// Package pipeline wires the per-job analysis flow (spec.md §2 "Data
// flow"): Query Builders -> Warehouse Client -> Aggregation Engine ->
// Census Client join -> Narrative Assembler, reporting progress at each
// stage boundary and honoring cooperative cancellation at every boundary
// (spec.md §5).
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ncrc/justdata/pkg/core/aggregation"
	"github.com/ncrc/justdata/pkg/core/aiclient"
	"github.com/ncrc/justdata/pkg/core/census"
	"github.com/ncrc/justdata/pkg/core/demographics"
	"github.com/ncrc/justdata/pkg/core/engerr"
	"github.com/ncrc/justdata/pkg/core/filterset"
	"github.com/ncrc/justdata/pkg/core/geo"
	"github.com/ncrc/justdata/pkg/core/narrative"
	"github.com/ncrc/justdata/pkg/core/progress"
	"github.com/ncrc/justdata/pkg/core/querybuilder"
	"github.com/ncrc/justdata/pkg/core/recipe"
	"github.com/ncrc/justdata/pkg/core/report"
	"github.com/ncrc/justdata/pkg/core/warehouse"
)

// StageTimeouts bounds each stage independently (spec.md §5: "each stage
// has its own timeout").
type StageTimeouts struct {
	Warehouse time.Duration // default 10m
	Census    time.Duration // default 2m per vintage
	Narrative time.Duration // default 90s per section
}

// Pipeline runs one job's analysis from FilterSet to finished Report.
type Pipeline struct {
	Warehouse    warehouse.Client
	Census       census.Client
	AI           *aiclient.Client
	StageTimeout StageTimeouts
	Log          *zap.Logger
}

// New constructs a Pipeline from the process-wide clients.
func New(wh warehouse.Client, cs census.Client, ai *aiclient.Client, timeouts StageTimeouts, log *zap.Logger) *Pipeline {
	return &Pipeline{Warehouse: wh, Census: cs, AI: ai, StageTimeout: timeouts, Log: log}
}

// Run executes every stage for jobID/fs/rec, emitting progress events to ch
// and returning the finished Report, or a fatal error if the warehouse
// stage failed or the run was cancelled/timed out (spec.md §7: "warehouse
// failures are fatal; non-warehouse external failures degrade gracefully").
func (p *Pipeline) Run(ctx context.Context, jobID string, fs filterset.FilterSet, rec recipe.Recipe, ch *progress.Channel) (*report.Report, error) {
	var seq int64
	emit := func(pct int, status, substep string) {
		seq++
		ch.Publish(progress.Event{Seq: seq, Percent: pct, Status: status, Substep: substep})
	}

	emit(2, "validate", "")
	if err := fs.Validate(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctxError("validate", "wall-clock", ctx)
	}

	emit(8, "build-query", "")
	plan, err := querybuilder.Build(fs)
	if err != nil {
		return nil, err
	}
	hash, err := fs.Hash()
	if err != nil {
		return nil, err
	}

	meta := report.Metadata{
		JobID:              jobID,
		DataDomain:         fs.DataDomain,
		FilterSet:          fs.Canonicalize(),
		RecipeName:         string(rec.Name),
		WarehouseQueryHash: hash,
		CreatedAt:          time.Now(),
		Denominator:        string(rec.Denominator),
	}
	for _, v := range rec.Vintages {
		meta.CensusVintages = append(meta.CensusVintages, string(v))
	}
	rep := report.New(meta)

	if ctx.Err() != nil {
		return nil, ctxError("build-query", "wall-clock", ctx)
	}

	emit(20, "warehouse-execute", "")
	whCtx, cancel := warehouse.WithTimeout(ctx, p.orDefault(p.StageTimeout.Warehouse, 10*time.Minute))
	table, err := p.executeWithRetry(whCtx, plan)
	cancel()
	if err != nil {
		return nil, err
	}

	emit(45, "aggregate", "")
	engine := aggregation.New(rec.Denominator)
	lenderTotals := engine.Run(table, plan, rep)
	if fs.SubjectLenderID != "" {
		band := filterset.DefaultPeerVolumeBand
		if fs.PeerVolumeBand != nil {
			band = *fs.PeerVolumeBand
		}
		if rec.IncludesPeerComparison {
			rep.PeerComparison = aggregation.BuildPeerComparison(lenderTotals, fs.SubjectLenderID, band.LowMultiplier, band.HighMultiplier)
			if rep.PeerComparison == nil || rep.PeerComparison.PeerCount == 0 {
				rep.Metadata.Warnings = append(rep.Metadata.Warnings, "peer-comparison-empty")
			}
		}
	}
	if ctx.Err() != nil {
		return nil, ctxError("aggregate", "wall-clock", ctx)
	}

	emit(65, "census-join", "")
	if p.Census != nil && len(rec.Vintages) > 0 {
		censusCtx, cancel := context.WithTimeout(ctx, p.orDefault(p.StageTimeout.Census, 2*time.Minute)*time.Duration(len(rec.Vintages)))
		counties, cerr := geo.NewCountySet(fs.Geography)
		if cerr == nil {
			joiner := demographics.New(p.Census)
			joiner.Join(censusCtx, counties.Sorted(), rec.Vintages, rep)
		}
		cancel()
	} else {
		rep.Metadata.Warnings = append(rep.Metadata.Warnings, "census-unavailable")
	}

	if len(rec.NarrativeSections) > 0 {
		if p.AI != nil {
			for i, section := range rec.NarrativeSections {
				emit(70+i*5, "narrative-section:"+string(section), "")
				narrCtx, cancel := context.WithTimeout(ctx, p.orDefault(p.StageTimeout.Narrative, 90*time.Second))
				assembler := narrative.New(p.AI)
				assembler.Assemble(narrCtx, []narrative.Section{section}, rep)
				cancel()
				if ctx.Err() != nil {
					return nil, ctxError("narrative", "wall-clock", ctx)
				}
			}
		} else {
			rep.Metadata.Warnings = append(rep.Metadata.Warnings, "ai-unavailable")
		}
	}

	emit(100, "finalize", "")
	return rep, nil
}

// executeWithRetry retries a WarehouseTransient failure up to 3 attempts
// (spec.md §4.1: "the orchestrator can retry the entire stage with backoff
// up to 3 attempts"), converting exhaustion into *engerr.WarehouseFatal
// with Reason "retries-exhausted" that wraps the last error.
func (p *Pipeline) executeWithRetry(ctx context.Context, plan querybuilder.Plan) (*warehouse.Table, error) {
	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctxError("warehouse-execute", "warehouse", ctx)
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		table, err := p.Warehouse.Execute(ctx, plan.Query, plan.Params)
		if err == nil {
			return table, nil
		}
		lastErr = err
		var transient *engerr.WarehouseTransient
		if !errors.As(err, &transient) {
			return nil, err
		}
	}
	return nil, &engerr.WarehouseFatal{Stage: "warehouse-execute", Reason: "retries-exhausted", Err: lastErr}
}

// ctxError classifies a stage-boundary cancellation: a deadline exceeded by
// the stage's own timeout or the job's wall-clock budget surfaces as
// *engerr.Timeout (terminates the job Failed); an explicit /cancel call
// surfaces as *engerr.Cancelled (spec.md §5/§7).
func ctxError(stage, budget string, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &engerr.Timeout{Stage: stage, Budget: budget}
	}
	return &engerr.Cancelled{Stage: stage}
}

func (p *Pipeline) orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
