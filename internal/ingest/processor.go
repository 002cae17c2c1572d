package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flume-producer/internal/domain"
	"github.com/couchcryptid/flume-producer/internal/observability"
)

// FeatureFetcher retrieves every feature a source has published since start.
// An empty result with a nil error means "nothing new this cycle" (including
// the aborted-pagination case); a non-nil error is a fatal transport failure
// for this source's run.
type FeatureFetcher interface {
	FetchSince(ctx context.Context, src domain.Source, start time.Time) ([]domain.Feature, error)
}

// DeltaWriter persists one run's accepted features as an immutable artifact
// and returns the object key it was written under.
type DeltaWriter interface {
	WriteDelta(ctx context.Context, src domain.Source, features []domain.Feature, now time.Time) (string, error)
}

// DeltaNotifier publishes accepted features to downstream consumers.
// Publishing is advisory; the delta artifact is the durable hand-off.
type DeltaNotifier interface {
	NotifyDelta(ctx context.Context, src domain.Source, features []domain.Feature) error
}

// Processor runs one source end-to-end: derive the fetch window from the
// checkpoint, fetch, filter, write the delta, and produce the new sub-state.
type Processor struct {
	fetcher  FeatureFetcher
	deltas   DeltaWriter
	notifier DeltaNotifier // nil disables publishing
	parser   domain.TimestampParser
	quality  domain.QualityFilter
	overlap  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
}

// ProcessorOptions bundles the tunables for NewProcessor.
type ProcessorOptions struct {
	// Overlap is subtracted from the prior global watermark when deriving
	// the fetch window, re-admitting late-arriving data. Strict-greater-than
	// inclusion keeps the overlap from producing duplicates.
	Overlap time.Duration

	MaxFutureDays  int
	MinQAThreshold float64

	// Notifier may be nil.
	Notifier DeltaNotifier
}

// NewProcessor creates a Processor.
func NewProcessor(fetcher FeatureFetcher, deltas DeltaWriter, opts ProcessorOptions, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Processor {
	return &Processor{
		fetcher:  fetcher,
		deltas:   deltas,
		notifier: opts.Notifier,
		parser:   domain.TimestampParser{MaxFutureDays: opts.MaxFutureDays, Logger: logger},
		quality:  domain.QualityFilter{MinThreshold: opts.MinQAThreshold},
		overlap:  opts.Overlap,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
	}
}

// Process runs one ingestion cycle for src against its prior checkpoint and
// returns the replacement sub-state. On error the returned state is
// meaningless and the caller must keep the pre-run sub-state.
func (p *Processor) Process(ctx context.Context, src domain.Source, prev domain.SourceState) (domain.SourceState, error) {
	runStart := p.clock.Now().UTC()
	logger := p.logger.With("source", src.Name)

	fetchStart := p.fetchWindowStart(src, prev, logger)
	logger.Info("fetching window", "start", fetchStart, "overlap", p.overlap)

	features, err := p.fetcher.FetchSince(ctx, src, fetchStart)
	if err != nil {
		return domain.SourceState{}, err
	}
	p.metrics.FeaturesFetched.WithLabelValues(src.Name).Add(float64(len(features)))

	if len(features) == 0 {
		logger.Info("no features since window start", "start", fetchStart)
		next := prev.Clone()
		next.LastRunTimestamp = p.clock.Now().UTC().Format(time.RFC3339)
		next.RunMetadata = &domain.RunMetadata{
			RunDurationSeconds: p.clock.Now().UTC().Sub(runStart).Seconds(),
		}
		p.observeRun(src, runStart)
		return next, nil
	}

	tracker := NewWatermarkTracker(prev)
	accepted, md := p.filterBatch(src, features, tracker, logger)

	logger.Info("batch processed",
		"fetched", md.FeaturesFetched,
		"new", md.FeaturesNew,
		"rejected_quality", md.RejectedQuality,
		"rejected_timestamp", md.RejectedTimestamp,
	)

	if len(accepted) > 0 {
		key, err := p.deltas.WriteDelta(ctx, src, accepted, p.clock.Now().UTC())
		if err != nil {
			return domain.SourceState{}, err
		}
		p.metrics.DeltasWritten.WithLabelValues(src.Name).Inc()
		logger.Info("delta artifact written", "key", key, "count", len(accepted))

		p.notify(ctx, src, accepted, logger)
	} else {
		logger.Info("no delta to write")
	}

	now := p.clock.Now().UTC()
	md.RunDurationSeconds = now.Sub(runStart).Seconds()

	global, perStation := tracker.Snapshot()
	next := domain.SourceState{
		GlobalLastProcessed: global,
		PerStation:          perStation,
		LastRunTimestamp:    now.Format(time.RFC3339),
		StationsTracked:     tracker.StationCount(),
		RunMetadata:         &md,
	}

	if g := tracker.Global(); !g.IsZero() {
		p.metrics.Watermark.WithLabelValues(src.Name).Set(float64(g.Unix()))
	}
	p.observeRun(src, runStart)

	logger.Info("state updated",
		"global_watermark", next.GlobalLastProcessed,
		"stations_tracked", next.StationsTracked,
	)
	return next, nil
}

// fetchWindowStart derives the window start: prior watermark minus the
// overlap buffer when a checkpoint exists, otherwise the source's initial
// lookback from now.
func (p *Processor) fetchWindowStart(src domain.Source, prev domain.SourceState, logger *slog.Logger) time.Time {
	if last, ok := domain.ParseWatermark(prev.GlobalLastProcessed); ok {
		logger.Info("resuming from checkpoint", "last_processed", last)
		return last.Add(-p.overlap)
	}
	logger.Info("no checkpoint, using initial lookback", "lookback", src.InitialLookback)
	return p.clock.Now().UTC().Add(-src.InitialLookback)
}

// filterBatch applies, in arrival order: batch dedup by feature id, station
// resolution, timestamp validation, watermark inclusion, and the quality
// gate. Only final inclusion advances watermarks.
func (p *Processor) filterBatch(src domain.Source, features []domain.Feature, tracker *WatermarkTracker, logger *slog.Logger) ([]domain.Feature, domain.RunMetadata) {
	md := domain.RunMetadata{FeaturesFetched: len(features)}

	accepted := make([]domain.Feature, 0, len(features))
	seen := make(map[string]struct{}, len(features))
	var oldest, newest time.Time

	for _, feat := range features {
		if feat.ID != "" {
			if _, dup := seen[feat.ID]; dup {
				logger.Debug("skipping duplicate feature id", "id", feat.ID)
				continue
			}
			seen[feat.ID] = struct{}{}
		}

		station := src.StationID(feat)

		obs, ok := p.parser.Parse(src.ObservationTimestamp(feat))
		if !ok {
			md.RejectedTimestamp++
			p.metrics.FeaturesRejected.WithLabelValues(src.Name, "timestamp").Inc()
			logger.Warn("feature has invalid timestamp", "id", feat.ID, "station", station)
			continue
		}

		if oldest.IsZero() || obs.Before(oldest) {
			oldest = obs
		}
		if newest.IsZero() || obs.After(newest) {
			newest = obs
		}

		if !tracker.ShouldInclude(station, obs) {
			continue
		}

		if !p.quality.Accept(src, feat) {
			md.RejectedQuality++
			p.metrics.FeaturesRejected.WithLabelValues(src.Name, "quality").Inc()
			logger.Debug("feature rejected by quality gate", "id", feat.ID, "station", station)
			continue
		}

		accepted = append(accepted, feat)
		tracker.Advance(station, obs)
	}

	md.FeaturesNew = len(accepted)
	if !oldest.IsZero() {
		md.OldestObservation = oldest.Format(time.RFC3339)
	}
	if !newest.IsZero() {
		md.NewestObservation = newest.Format(time.RFC3339)
	}

	p.metrics.FeaturesAccepted.WithLabelValues(src.Name).Add(float64(len(accepted)))
	return accepted, md
}

func (p *Processor) notify(ctx context.Context, src domain.Source, accepted []domain.Feature, logger *slog.Logger) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyDelta(ctx, src, accepted); err != nil {
		p.metrics.NotifyErrors.WithLabelValues(src.Name).Inc()
		logger.Warn("delta publish failed", "error", err, "count", len(accepted))
	}
}

func (p *Processor) observeRun(src domain.Source, runStart time.Time) {
	p.metrics.RunDuration.WithLabelValues(src.Name).Observe(p.clock.Now().UTC().Sub(runStart).Seconds())
}
