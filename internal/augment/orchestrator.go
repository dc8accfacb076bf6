package augment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"matchstage/pkg/contracts/domain"
)

// FeatureSource computes the derived features for one fixture. Satisfied by
// statsapi.Client.
type FeatureSource interface {
	Features(ctx context.Context, league, home, away string) (map[string]float64, error)
}

// Notifier receives fan-out progress. Implemented by the websocket hub; the
// CLI runs with NopNotifier.
type Notifier interface {
	AugmentProgress(batchID string, done, total, failed int)
}

// NopNotifier discards progress events.
type NopNotifier struct{}

// AugmentProgress implements Notifier.
func (NopNotifier) AugmentProgress(string, int, int, int) {}

// PartialError reports that one or more per-row feature requests failed.
// The affected rows stay in the batch with raw fields only; the condition is
// surfaced instead of silently swallowed so the commit gate can reject a
// fully incomplete batch.
type PartialError struct {
	BatchID    string
	Total      int
	FailedRows []int
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("feature augmentation failed for %d of %d rows", len(e.FailedRows), e.Total)
}

// Options tunes the fan-out.
type Options struct {
	// Concurrency caps simultaneous feature requests; 0 means unbounded,
	// the reference behavior, acceptable for realistic batch sizes.
	Concurrency int
	// BatchTimeout caps the collective wall-clock time of one fan-out.
	BatchTimeout time.Duration
}

// Orchestrator runs the concurrent feature fan-out for a staged batch.
type Orchestrator struct {
	source   FeatureSource
	notifier Notifier
	opts     Options
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator with an injected logger.
func NewOrchestrator(source FeatureSource, notifier Notifier, opts Options, logger *slog.Logger) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchTimeout == 0 {
		opts.BatchTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		source:   source,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With(slog.String("component", "augment_orchestrator")),
	}
}

// Augment issues one feature request per candidate, all concurrently, and
// merges the responses back in original row order. Results are collected
// into an indexed slot per row, never by completion order. A failed request
// leaves its row with raw fields only and is reported through the returned
// PartialError; only context cancellation aborts the whole fan-out.
func (o *Orchestrator) Augment(ctx context.Context, batch *domain.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.BatchTimeout)
	defer cancel()

	tracer := otel.Tracer("matchstage/augment")
	ctx, span := tracer.Start(ctx, "augment.batch")
	span.SetAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.String("batch.league", batch.League),
		attribute.Int("batch.rows", batch.Len()),
	)
	defer span.End()

	start := time.Now()
	total := batch.Len()

	// One result slot per row index keeps merge order independent of
	// response arrival order.
	features := make([]map[string]float64, total)
	failures := make([]error, total)
	progress := make(chan int, total)

	g, gctx := errgroup.WithContext(ctx)
	if o.opts.Concurrency > 0 {
		g.SetLimit(o.opts.Concurrency)
	}

	for i, row := range batch.Rows {
		i, row := i, row
		g.Go(func() error {
			feats, err := o.source.Features(gctx, batch.League, row.Record.HomeTeam(), row.Record.AwayTeam())
			if err != nil {
				failures[i] = err
				o.logger.WarnContext(gctx, "feature request failed",
					slog.String("batch_id", batch.ID),
					slog.Int("row", i),
					slog.String("home", row.Record.HomeTeam()),
					slog.String("away", row.Record.AwayTeam()),
					slog.String("error", err.Error()))
			} else {
				features[i] = feats
			}
			progress <- i
			return nil
		})
	}

	// Progress events carry completion counts only; merge still waits for
	// the single join below.
	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		done, failed := 0, 0
		for idx := range progress {
			done++
			if failures[idx] != nil {
				failed++
			}
			o.notifier.AugmentProgress(batch.ID, done, total, failed)
		}
	}()

	_ = g.Wait()
	close(progress)
	<-notifyDone

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("augmentation abandoned: %w", err)
	}

	var failedRows []int
	for i, row := range batch.Rows {
		if failures[i] != nil {
			failedRows = append(failedRows, i)
			continue
		}
		row.Features = features[i]
		row.Augmented = true
	}

	o.logger.InfoContext(ctx, "batch augmentation complete",
		slog.String("batch_id", batch.ID),
		slog.Int("rows", total),
		slog.Int("failed", len(failedRows)),
		slog.Duration("elapsed", time.Since(start)))

	if len(failedRows) > 0 {
		err := &PartialError{BatchID: batch.ID, Total: total, FailedRows: failedRows}
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
