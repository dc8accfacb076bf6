package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchstage/pkg/contracts/domain"
)

type fakeCommitter struct {
	calls int
	err   error

	lastLeague     string
	lastCredential string
	lastBatch      *domain.Batch
}

func (f *fakeCommitter) SaveNewMatches(ctx context.Context, league, credential string, batch *domain.Batch) error {
	f.calls++
	f.lastLeague = league
	f.lastCredential = credential
	f.lastBatch = batch
	return f.err
}

func augmentedBatch(rows int) *domain.Batch {
	b := &domain.Batch{ID: "batch-1", League: "E0"}
	for i := 0; i < rows; i++ {
		b.Rows = append(b.Rows, &domain.MatchCandidate{
			Record:    domain.RawRecord{domain.ColHomeTeam: "A", domain.ColAwayTeam: "B"},
			IsNew:     true,
			Features:  map[string]float64{"AvgH": 2.0},
			Augmented: true,
		})
	}
	return b
}

func stagedSession(t *testing.T, committer Committer, batch *domain.Batch) *Session {
	t.Helper()
	s := NewSession(committer, nil)
	s.SetLeague(batch.League)
	require.NoError(t, s.StageIfCurrent(batch, s.Generation()))
	return s
}

func TestCommitRequiresCredential(t *testing.T) {
	committer := &fakeCommitter{}
	batch := augmentedBatch(2)
	s := stagedSession(t, committer, batch)

	err := s.Commit(context.Background(), "")

	assert.ErrorIs(t, err, ErrCredentialRequired)
	assert.Equal(t, 0, committer.calls, "no persistence request may be made without a credential")
	assert.Same(t, batch, s.Batch(), "staged batch must be preserved")
}

func TestCommitNoBatch(t *testing.T) {
	s := NewSession(&fakeCommitter{}, nil)
	assert.ErrorIs(t, s.Commit(context.Background(), "secret"), ErrNoBatch)
}

func TestCommitRejectsFullyUnaugmentedBatch(t *testing.T) {
	committer := &fakeCommitter{}
	batch := &domain.Batch{
		ID:     "batch-1",
		League: "E0",
		Rows: []*domain.MatchCandidate{
			{Record: domain.RawRecord{domain.ColHomeTeam: "A"}, IsNew: true},
		},
	}
	s := stagedSession(t, committer, batch)

	err := s.Commit(context.Background(), "secret")

	assert.ErrorIs(t, err, ErrBatchIncomplete)
	assert.Equal(t, 0, committer.calls)
	assert.Same(t, batch, s.Batch())
}

func TestCommitPartiallyAugmentedBatchGoesThrough(t *testing.T) {
	committer := &fakeCommitter{}
	batch := augmentedBatch(3)
	batch.Rows[1].Augmented = false
	batch.Rows[1].Features = nil
	s := stagedSession(t, committer, batch)

	require.NoError(t, s.Commit(context.Background(), "secret"))
	assert.Equal(t, 1, committer.calls)
	assert.Same(t, batch, committer.lastBatch)
}

func TestCommitSuccessClearsBatch(t *testing.T) {
	committer := &fakeCommitter{}
	batch := augmentedBatch(2)
	s := stagedSession(t, committer, batch)

	require.NoError(t, s.Commit(context.Background(), "secret"))

	assert.Equal(t, 1, committer.calls)
	assert.Equal(t, "E0", committer.lastLeague)
	assert.Equal(t, "secret", committer.lastCredential)
	assert.Nil(t, s.Batch())
}

func TestCommitRejectionPreservesBatch(t *testing.T) {
	committer := &fakeCommitter{err: errors.New("Password Salah!")}
	batch := augmentedBatch(2)
	s := stagedSession(t, committer, batch)

	err := s.Commit(context.Background(), "wrong")

	var rejected *CommitRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Password Salah!", rejected.Reason, "collaborator reason is surfaced verbatim")
	assert.Same(t, batch, s.Batch(), "batch survives for retry")

	// Retrying with the right credential succeeds without re-staging.
	committer.err = nil
	require.NoError(t, s.Commit(context.Background(), "right"))
	assert.Nil(t, s.Batch())
}

func TestSetLeagueSwitchDiscardsBatch(t *testing.T) {
	batch := augmentedBatch(1)
	s := stagedSession(t, &fakeCommitter{}, batch)
	gen := s.Generation()

	s.SetLeague("D1")

	assert.Nil(t, s.Batch())
	assert.Equal(t, "D1", s.League())
	assert.NotEqual(t, gen, s.Generation())
}

func TestSetLeagueSameLeagueKeepsBatch(t *testing.T) {
	batch := augmentedBatch(1)
	s := stagedSession(t, &fakeCommitter{}, batch)
	gen := s.Generation()

	s.SetLeague("E0")

	assert.Same(t, batch, s.Batch())
	assert.Equal(t, gen, s.Generation())
}

func TestStageIfCurrentRejectsStaleGeneration(t *testing.T) {
	s := NewSession(&fakeCommitter{}, nil)
	s.SetLeague("E0")
	stale := s.Generation()

	// The league changes while a pipeline run for E0 is still in flight.
	s.SetLeague("D1")

	err := s.StageIfCurrent(augmentedBatch(1), stale)
	assert.ErrorIs(t, err, ErrStaleContext)
	assert.Nil(t, s.Batch(), "stale results must never be staged")
}

func TestManagerGetCreatesAndReuses(t *testing.T) {
	m := NewManager(&fakeCommitter{}, nil)

	created := m.Get("")
	require.NotNil(t, created)
	assert.NotEmpty(t, created.ID())

	same := m.Get(created.ID())
	assert.Same(t, created, same)

	other := m.Get("unknown-id")
	assert.NotSame(t, created, other, "unknown ids get a fresh session")

	m.Drop(created.ID())
	assert.NotSame(t, created, m.Get(created.ID()))
}
