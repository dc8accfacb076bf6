package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"matchstage/internal/augment"
	apierrors "matchstage/internal/errors"
	"matchstage/internal/ingest"
	"matchstage/internal/services"
	"matchstage/internal/stage"
	"matchstage/pkg/contracts/domain"
)

// SessionHeader carries the client's staging session identifier. The server
// echoes it back on every response so the client can persist it.
const SessionHeader = "X-Session-ID"

// PipelineServiceInterface defines the pipeline operations the handler needs.
type PipelineServiceInterface interface {
	Leagues(ctx context.Context) ([]string, error)
	Teams(ctx context.Context, league string) (*domain.LeagueContext, error)
	Ingest(ctx context.Context, session *stage.Session, league string, upload services.Upload) (*services.IngestResult, error)
	Commit(ctx context.Context, session *stage.Session, credential string) error
}

// PipelineHandler exposes the ingestion pipeline over HTTP.
type PipelineHandler struct {
	service        PipelineServiceInterface
	sessions       *stage.Manager
	logger         *slog.Logger
	validate       *validator.Validate
	maxUploadBytes int64
}

// NewPipelineHandler creates a pipeline handler.
func NewPipelineHandler(service PipelineServiceInterface, sessions *stage.Manager, maxUploadBytes int64, logger *slog.Logger) *PipelineHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 8 << 20
	}
	return &PipelineHandler{
		service:        service,
		sessions:       sessions,
		logger:         logger.With(slog.String("component", "pipeline_handler")),
		validate:       validator.New(),
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the pipeline routes.
func (h *PipelineHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/leagues", h.GetLeagues)
	r.Get("/teams", h.GetTeams)

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", h.CreateBatch)
		r.Route("/current", func(r chi.Router) {
			r.Get("/", h.GetCurrentBatch)
			r.Delete("/", h.DiscardCurrentBatch)
			r.Post("/commit", h.CommitCurrentBatch)
		})
	})

	return r
}

// ingestRequest is the JSON body of POST /api/batches.
type ingestRequest struct {
	League string `json:"league" validate:"required"`
	Data   string `json:"data" validate:"required"`
}

// commitRequest is the JSON body of POST /api/batches/current/commit.
type commitRequest struct {
	Credential string `json:"credential"`
}

// batchResponse wraps an ingestion result for the client.
type batchResponse struct {
	Success bool                    `json:"success"`
	Batch   *services.IngestResult  `json:"batch"`
	Partial *partialFailureResponse `json:"partial_failure,omitempty"`
}

// partialFailureResponse reports rows whose feature requests failed. The
// batch is staged regardless; only the named rows lack features.
type partialFailureResponse struct {
	FailedRows []int `json:"failed_rows"`
	Total      int   `json:"total"`
}

// GetLeagues handles GET /api/leagues.
func (h *PipelineHandler) GetLeagues(w http.ResponseWriter, r *http.Request) {
	leagues, err := h.service.Leagues(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"leagues": leagues,
	})
}

// GetTeams handles GET /api/teams?league=.
func (h *PipelineHandler) GetTeams(w http.ResponseWriter, r *http.Request) {
	league := r.URL.Query().Get("league")
	if league == "" {
		renderAPIError(w, r, apierrors.ErrValidation("league", "league query parameter is required"))
		return
	}

	index, err := h.service.Teams(r.Context(), league)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"league":  index.League,
		"teams":   index.Teams,
	})
}

// CreateBatch handles POST /api/batches. The body is either multipart
// form-data with "league" and "file" parts, or JSON with league and raw
// delimited text.
func (h *PipelineHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	reqID := middleware.GetReqID(r.Context())

	league, upload, apiErr := h.readUpload(r)
	if apiErr != nil {
		renderAPIError(w, r, apiErr)
		return
	}

	h.logger.InfoContext(r.Context(), "ingestion requested",
		slog.String("request_id", reqID),
		slog.String("session_id", session.ID()),
		slog.String("league", league))

	result, err := h.service.Ingest(r.Context(), session, league, upload)

	var partial *augment.PartialError
	if err != nil && !errors.As(err, &partial) {
		h.renderError(w, r, err)
		return
	}

	resp := &batchResponse{Success: true, Batch: result}
	if partial != nil {
		resp.Partial = &partialFailureResponse{
			FailedRows: partial.FailedRows,
			Total:      partial.Total,
		}
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// GetCurrentBatch handles GET /api/batches/current.
func (h *PipelineHandler) GetCurrentBatch(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)

	batch := session.Batch()
	if batch == nil {
		renderAPIError(w, r, apierrors.ErrBatchMissing)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"success":         true,
		"batch_id":        batch.ID,
		"league":          batch.League,
		"rows":            batch.Len(),
		"augmented":       batch.AugmentedCount(),
		"fully_augmented": batch.FullyAugmented(),
	})
}

// DiscardCurrentBatch handles DELETE /api/batches/current.
func (h *PipelineHandler) DiscardCurrentBatch(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	session.Clear()
	render.JSON(w, r, map[string]interface{}{"success": true})
}

// CommitCurrentBatch handles POST /api/batches/current/commit.
func (h *PipelineHandler) CommitCurrentBatch(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)

	var req commitRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderAPIError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	if err := h.service.Commit(r.Context(), session, req.Credential); err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"success": true})
}

// session resolves the staging session from the request header and echoes
// the identifier back to the client.
func (h *PipelineHandler) session(w http.ResponseWriter, r *http.Request) *stage.Session {
	s := h.sessions.Get(r.Header.Get(SessionHeader))
	w.Header().Set(SessionHeader, s.ID())
	return s
}

// readUpload extracts the league and raw input from either encoding.
func (h *PipelineHandler) readUpload(r *http.Request) (string, services.Upload, *apierrors.APIError) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return "", services.Upload{}, apierrors.InvalidRequestWithError(err)
		}
		league := r.FormValue("league")
		if league == "" {
			return "", services.Upload{}, apierrors.ErrValidation("league", "league form field is required")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", services.Upload{}, apierrors.ErrValidation("file", "file upload is required")
		}
		defer file.Close()

		if isWorkbook(header.Filename) {
			return league, services.Upload{Workbook: file}, nil
		}
		var sb strings.Builder
		if _, err := io.Copy(&sb, io.LimitReader(file, h.maxUploadBytes)); err != nil {
			return "", services.Upload{}, apierrors.InvalidRequestWithError(err)
		}
		return league, services.Upload{Text: sb.String()}, nil
	}

	var req ingestRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return "", services.Upload{}, apierrors.InvalidRequestWithError(err)
	}
	if err := h.validate.Struct(&req); err != nil {
		return "", services.Upload{}, apierrors.NewWithDetails(
			http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
	}
	return req.League, services.Upload{Text: req.Data}, nil
}

func isWorkbook(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

// renderAPIError writes the standard error envelope.
func renderAPIError(w http.ResponseWriter, r *http.Request, e *apierrors.APIError) {
	render.Render(w, r, apierrors.NewErrorResponse(e))
}

// renderError maps pipeline and staging errors onto the API error surface.
func (h *PipelineHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())

	var schemaErr *ingest.SchemaError
	var rejected *stage.CommitRejectedError

	switch {
	case errors.Is(err, stage.ErrCredentialRequired):
		renderAPIError(w, r, apierrors.ErrCredentialRequired)

	case errors.Is(err, stage.ErrNoBatch):
		renderAPIError(w, r, apierrors.ErrBatchMissing)

	case errors.Is(err, stage.ErrBatchIncomplete):
		renderAPIError(w, r, apierrors.CommitRejectedError(err.Error()))

	case errors.As(err, &rejected):
		renderAPIError(w, r, apierrors.CommitRejectedError(rejected.Reason))

	case errors.As(err, &schemaErr):
		renderAPIError(w, r, apierrors.SchemaInvalidError(schemaErr))

	case errors.Is(err, services.ErrLeagueRequired):
		renderAPIError(w, r, apierrors.ErrValidation("league", err.Error()))

	case errors.Is(err, services.ErrEmptyUpload):
		renderAPIError(w, r, apierrors.ErrValidation("data", err.Error()))

	case errors.Is(err, services.ErrReferenceUnavailable):
		renderAPIError(w, r, apierrors.ErrReferenceUnavailable)

	case errors.Is(err, services.ErrNoLeaguesFound):
		renderAPIError(w, r, apierrors.ErrNotFound)

	case errors.Is(err, stage.ErrStaleContext):
		renderAPIError(w, r, apierrors.New(http.StatusConflict, "STALE_CONTEXT", err.Error()))

	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		renderAPIError(w, r, apierrors.ErrInternalServer)
	}
}
