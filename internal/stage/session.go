package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"matchstage/pkg/contracts/domain"
)

// Staging and commit errors.
var (
	// ErrCredentialRequired is returned by Commit when no credential was
	// supplied. Local and recoverable; no network call is made and the
	// staged batch is preserved.
	ErrCredentialRequired = errors.New("credential required to commit staged batch")

	// ErrNoBatch is returned when no batch is staged.
	ErrNoBatch = errors.New("no batch staged")

	// ErrBatchIncomplete rejects a commit in which every row failed
	// augmentation. Partially augmented batches are allowed through.
	ErrBatchIncomplete = errors.New("staged batch has no augmented rows")

	// ErrStaleContext rejects results produced under a league context the
	// session has since switched away from.
	ErrStaleContext = errors.New("batch belongs to a stale league context")
)

// CommitRejectedError wraps a persistence rejection. The collaborator's
// reason is surfaced verbatim and the staged batch is preserved for retry.
type CommitRejectedError struct {
	Reason string
	Err    error
}

func (e *CommitRejectedError) Error() string {
	return fmt.Sprintf("commit rejected: %s", e.Reason)
}

func (e *CommitRejectedError) Unwrap() error { return e.Err }

// Committer submits a staged batch for all-or-nothing persistence.
// Satisfied by statsapi.Client.
type Committer interface {
	SaveNewMatches(ctx context.Context, league, credential string, batch *domain.Batch) error
}

// Session owns at most one staged batch for one client. Only the pipeline
// stages it, the commit gate clears it on success and a league switch
// invalidates it; nothing else writes to it.
type Session struct {
	mu         sync.Mutex
	id         string
	league     string
	generation uint64
	batch      *domain.Batch

	committer Committer
	logger    *slog.Logger
}

// NewSession creates an empty staging session.
func NewSession(committer Committer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:        uuid.NewString(),
		committer: committer,
		logger:    logger.With(slog.String("component", "stage_session")),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// League returns the league the session is currently bound to.
func (s *Session) League() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.league
}

// Generation identifies the current league context. Pipeline runs capture it
// before their fan-out; StageIfCurrent rejects results from older contexts.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// SetLeague binds the session to a league. Switching leagues discards any
// uncommitted batch and invalidates in-flight pipeline runs for the old
// context.
func (s *Session) SetLeague(league string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.league == league {
		return
	}
	if s.batch != nil {
		s.logger.Info("discarding staged batch on league switch",
			slog.String("session_id", s.id),
			slog.String("old_league", s.league),
			slog.String("new_league", league),
			slog.String("batch_id", s.batch.ID))
	}
	s.league = league
	s.generation++
	s.batch = nil
}

// StageIfCurrent replaces the staged batch, unless the session has moved to
// a different league context since the given generation was captured; stale
// results are discarded, never merged into a batch for another context.
func (s *Session) StageIfCurrent(batch *domain.Batch, generation uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return ErrStaleContext
	}
	s.batch = batch
	return nil
}

// Batch returns the staged batch, or nil.
func (s *Session) Batch() *domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch
}

// Clear drops the staged batch explicitly.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = nil
}

// Commit gates persistence of the staged batch behind the supplied
// credential. The response is treated as atomic: success clears the batch,
// any failure leaves it intact so the user can retry without re-deriving
// features.
func (s *Session) Commit(ctx context.Context, credential string) error {
	s.mu.Lock()
	batch := s.batch
	league := s.league
	s.mu.Unlock()

	if batch == nil || batch.Len() == 0 {
		return ErrNoBatch
	}
	if credential == "" {
		return ErrCredentialRequired
	}
	if batch.AugmentedCount() == 0 {
		return ErrBatchIncomplete
	}

	if err := s.committer.SaveNewMatches(ctx, league, credential, batch); err != nil {
		s.logger.WarnContext(ctx, "batch commit rejected",
			slog.String("session_id", s.id),
			slog.String("batch_id", batch.ID),
			slog.String("reason", err.Error()))
		return &CommitRejectedError{Reason: err.Error(), Err: err}
	}

	s.mu.Lock()
	// Clear only if the same batch is still staged; a concurrent restage
	// must not lose the newer batch.
	if s.batch == batch {
		s.batch = nil
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "batch committed",
		slog.String("session_id", s.id),
		slog.String("batch_id", batch.ID),
		slog.Int("rows", batch.Len()))
	return nil
}

// Manager tracks sessions by ID for the HTTP surface. Each client session
// owns exactly one staging Session.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	committer Committer
	logger    *slog.Logger
}

// NewManager creates a session manager.
func NewManager(committer Committer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		committer: committer,
		logger:    logger,
	}
}

// Get returns the session for id, creating one when id is unknown or empty.
// The returned session's ID should be echoed back to the client.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	if s, ok := m.sessions[id]; ok {
		m.mu.RUnlock()
		return s
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := NewSession(m.committer, m.logger)
	m.sessions[s.ID()] = s
	return s
}

// Drop removes a session and its staged state.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
