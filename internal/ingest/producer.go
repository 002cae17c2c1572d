package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flume-producer/internal/domain"
	"github.com/couchcryptid/flume-producer/internal/observability"
)

// StateStore loads and persists the whole ingestion checkpoint. Load returns
// an empty document when none exists yet.
type StateStore interface {
	Load(ctx context.Context) (domain.IngestionState, error)
	Save(ctx context.Context, state domain.IngestionState) error
}

// sourceResult is the explicit per-source outcome the orchestrator
// aggregates: either a replacement sub-state or a failure reason.
type sourceResult struct {
	src   domain.Source
	state domain.SourceState
	err   error
}

// Producer orchestrates one ingestion run across all sources: load the
// checkpoint, process each source with failures isolated, merge, and persist
// the whole document exactly once at the end.
type Producer struct {
	store     StateStore
	processor *Processor
	sources   []domain.Source
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	ready     atomic.Bool
}

// NewProducer creates a Producer over the given sources.
func NewProducer(store StateStore, processor *Processor, sources []domain.Source, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Producer {
	return &Producer{
		store:     store,
		processor: processor,
		sources:   sources,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
	}
}

// CheckReadiness returns nil once at least one run has completed, including
// its final checkpoint write.
func (p *Producer) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("producer has not completed a run yet")
	}
	return nil
}

// RunOnce executes one full ingestion run. A source failure is isolated:
// its pre-run sub-state is kept and the remaining sources still run. Only
// two failures are fatal: the checkpoint cannot be loaded, or the final
// checkpoint write fails. The latter is deliberate — losing the write means
// the next run re-fetches a whole window, which must be visible, not silent.
func (p *Producer) RunOnce(ctx context.Context) error {
	runStart := p.clock.Now()
	p.metrics.ProducerRunning.Set(1)
	defer p.metrics.ProducerRunning.Set(0)

	state, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ingestion state: %w", err)
	}
	p.logger.Info("ingestion run starting", "sources", len(p.sources), "known_sources", len(state))

	// The sources mutate disjoint sub-states, so they can run concurrently.
	// Failures are captured per source, never returned to the group: one bad
	// source must not cancel the others.
	results := make([]sourceResult, len(p.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range p.sources {
		prev := state[src.Name].Clone()
		g.Go(func() error {
			next, perr := p.processor.Process(gctx, src, prev)
			results[i] = sourceResult{src: src, state: next, err: perr}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines only ever return nil

	// Merge: a failed source keeps its pre-run sub-state.
	for _, res := range results {
		if res.err != nil {
			p.metrics.RunsTotal.WithLabelValues(res.src.Name, "failure").Inc()
			p.logger.Error("source failed, keeping previous checkpoint",
				"source", res.src.Name, "error", res.err)
			continue
		}
		p.metrics.RunsTotal.WithLabelValues(res.src.Name, "success").Inc()
		state[res.src.Name] = res.state
	}

	p.logStateSummary(state)

	if err := p.store.Save(ctx, state); err != nil {
		p.logger.Error("failed to persist ingestion state, next run will reprocess the window", "error", err)
		return fmt.Errorf("persist ingestion state: %w", err)
	}

	p.ready.Store(true)
	p.logger.Info("ingestion run complete", "duration", p.clock.Now().Sub(runStart))
	return nil
}

func (p *Producer) logStateSummary(state domain.IngestionState) {
	for _, src := range p.sources {
		sub, ok := state[src.Name]
		if !ok {
			continue
		}
		attrs := []any{
			"source", src.Name,
			"last_processed", sub.GlobalLastProcessed,
			"stations_tracked", sub.StationsTracked,
		}
		if md := sub.RunMetadata; md != nil {
			attrs = append(attrs,
				"fetched", md.FeaturesFetched,
				"new", md.FeaturesNew,
				"rejected_quality", md.RejectedQuality,
				"rejected_timestamp", md.RejectedTimestamp,
			)
		}
		p.logger.Info("source checkpoint", attrs...)
	}
}
