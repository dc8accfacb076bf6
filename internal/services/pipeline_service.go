package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"matchstage/internal/augment"
	"matchstage/internal/classify"
	"matchstage/internal/display"
	"matchstage/internal/infrastructure"
	"matchstage/internal/ingest"
	"matchstage/internal/stage"
	"matchstage/pkg/contracts/domain"
)

// Collaborator is the statistical computation service consumed by the
// pipeline. Satisfied by statsapi.Client.
type Collaborator interface {
	Leagues(ctx context.Context) ([]string, error)
	Teams(ctx context.Context, league string) ([]string, error)
	Features(ctx context.Context, league, home, away string) (map[string]float64, error)
	SaveNewMatches(ctx context.Context, league, credential string, batch *domain.Batch) error
}

// Events receives batch lifecycle announcements. Implemented by the
// websocket hub; NopEvents is used where no live surface exists.
type Events interface {
	BatchStaged(batchID, league string, rows int)
	BatchCommitted(batchID, league string, rows int)
}

// NopEvents discards batch lifecycle events.
type NopEvents struct{}

// BatchStaged implements Events.
func (NopEvents) BatchStaged(string, string, int) {}

// BatchCommitted implements Events.
func (NopEvents) BatchCommitted(string, string, int) {}

// Upload is one raw input. Workbook takes precedence over Text when set.
type Upload struct {
	Text     string
	Workbook io.Reader
}

// IngestResult is the staged outcome of one ingestion run, formatted for
// display.
type IngestResult struct {
	BatchID    string     `json:"batch_id"`
	League     string     `json:"league"`
	Columns    []string   `json:"columns"`
	Rows       [][]string `json:"rows"`
	NewCount   int        `json:"new_count"`
	FailedRows []int      `json:"failed_rows,omitempty"`
}

// PipelineService runs the ingestion-diff-augmentation-commit pipeline.
type PipelineService struct {
	collaborator Collaborator
	orchestrator *augment.Orchestrator
	events       Events
	metrics      *infrastructure.PipelineMetrics
	logger       *slog.Logger
}

// NewPipelineService creates a pipeline service with injected dependencies.
func NewPipelineService(
	collaborator Collaborator,
	orchestrator *augment.Orchestrator,
	events Events,
	metrics *infrastructure.PipelineMetrics,
	logger *slog.Logger,
) *PipelineService {
	if events == nil {
		events = NopEvents{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineService{
		collaborator: collaborator,
		orchestrator: orchestrator,
		events:       events,
		metrics:      metrics,
		logger:       logger.With(slog.String("component", "pipeline_service")),
	}
}

// Leagues returns the league identifiers available for selection.
func (s *PipelineService) Leagues(ctx context.Context) ([]string, error) {
	leagues, err := s.collaborator.Leagues(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch leagues: %w", err)
	}
	if len(leagues) == 0 {
		return nil, ErrNoLeaguesFound
	}
	return leagues, nil
}

// Teams returns the reference index for a league.
func (s *PipelineService) Teams(ctx context.Context, league string) (*domain.LeagueContext, error) {
	if league == "" {
		return nil, ErrLeagueRequired
	}
	teams, err := s.collaborator.Teams(ctx, league)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReferenceUnavailable, err)
	}
	return &domain.LeagueContext{League: league, Teams: teams}, nil
}

// Ingest runs the full pipeline for one upload: fetch the reference index,
// parse, classify, augment and stage. The returned error is either fatal
// (schema, reference, abandoned context: no batch is staged) or an
// *augment.PartialError (batch staged, failed rows surfaced).
func (s *PipelineService) Ingest(ctx context.Context, session *stage.Session, league string, upload Upload) (*IngestResult, error) {
	if league == "" {
		return nil, ErrLeagueRequired
	}

	start := time.Now()
	session.SetLeague(league)
	generation := session.Generation()

	teams, err := s.collaborator.Teams(ctx, league)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReferenceUnavailable, err)
	}
	index := classify.NewReferenceIndex(league, teams)

	parse, err := s.parse(upload)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RowsParsed.Add(ctx, int64(len(parse.Records)))
	}

	batch := classify.BuildBatch(parse, index, s.logger)
	if s.metrics != nil {
		s.metrics.RowsClassifiedNew.Add(ctx, int64(batch.Len()))
	}
	if batch.Len() == 0 {
		return &IngestResult{
			League:  league,
			Columns: display.DefaultColumns,
			Rows:    [][]string{},
		}, nil
	}

	augErr := s.orchestrator.Augment(ctx, batch)
	var partial *augment.PartialError
	if augErr != nil && !errors.As(augErr, &partial) {
		// Context abandoned or timed out; results are discarded wholesale.
		return nil, augErr
	}
	if s.metrics != nil {
		s.metrics.AugmentRequests.Add(ctx, int64(batch.Len()))
		if partial != nil {
			s.metrics.AugmentFailures.Add(ctx, int64(len(partial.FailedRows)))
		}
		s.metrics.AugmentDuration.Record(ctx, time.Since(start).Seconds())
	}

	if err := session.StageIfCurrent(batch, generation); err != nil {
		s.logger.InfoContext(ctx, "discarding batch for stale league context",
			slog.String("batch_id", batch.ID),
			slog.String("league", league))
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.BatchesStaged.Add(ctx, 1)
	}
	s.events.BatchStaged(batch.ID, league, batch.Len())

	result := &IngestResult{
		BatchID:  batch.ID,
		League:   league,
		Columns:  display.DefaultColumns,
		NewCount: batch.Len(),
		Rows:     make([][]string, 0, batch.Len()),
	}
	for _, row := range batch.Rows {
		result.Rows = append(result.Rows, display.FormatRow(row, display.DefaultColumns))
	}
	if partial != nil {
		result.FailedRows = partial.FailedRows
	}

	s.logger.InfoContext(ctx, "ingestion run complete",
		slog.String("league", league),
		slog.String("batch_id", batch.ID),
		slog.Int("parsed", len(parse.Records)),
		slog.Int("new", batch.Len()),
		slog.Int("augment_failed", len(result.FailedRows)),
		slog.Duration("elapsed", time.Since(start)))

	if partial != nil {
		return result, partial
	}
	return result, nil
}

// Commit gates the staged batch behind the supplied credential and submits
// it as one persistence request.
func (s *PipelineService) Commit(ctx context.Context, session *stage.Session, credential string) error {
	batch := session.Batch()

	if s.metrics != nil {
		s.metrics.CommitsTotal.Add(ctx, 1)
	}

	if err := session.Commit(ctx, credential); err != nil {
		if s.metrics != nil {
			var rejected *stage.CommitRejectedError
			if errors.As(err, &rejected) {
				s.metrics.CommitRejections.Add(ctx, 1)
			}
		}
		return err
	}

	s.events.BatchCommitted(batch.ID, batch.League, batch.Len())
	return nil
}

func (s *PipelineService) parse(upload Upload) (*ingest.ParseResult, error) {
	if upload.Workbook != nil {
		return ingest.ParseWorkbook(upload.Workbook)
	}
	if upload.Text == "" {
		return nil, ErrEmptyUpload
	}
	return ingest.Parse(upload.Text)
}
