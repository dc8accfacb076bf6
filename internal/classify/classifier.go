package classify

import (
	"log/slog"

	"github.com/google/uuid"

	"matchstage/internal/ingest"
	"matchstage/pkg/contracts/domain"
)

// ReferenceIndex is the set of team names already represented in the target
// dataset for one league. It is read-only to the pipeline.
type ReferenceIndex struct {
	league string
	teams  map[string]struct{}
}

// NewReferenceIndex builds an index from the collaborator's team list.
func NewReferenceIndex(league string, teams []string) *ReferenceIndex {
	idx := &ReferenceIndex{
		league: league,
		teams:  make(map[string]struct{}, len(teams)),
	}
	for _, t := range teams {
		idx.teams[t] = struct{}{}
	}
	return idx
}

// League returns the league this index was fetched for.
func (idx *ReferenceIndex) League() string { return idx.league }

// Contains reports whether a team name is already known to the dataset.
func (idx *ReferenceIndex) Contains(team string) bool {
	_, ok := idx.teams[team]
	return ok
}

// Len returns the number of known teams.
func (idx *ReferenceIndex) Len() int { return len(idx.teams) }

// IsNew applies the disjunctive novelty rule: a row is new when the home
// team is unknown, the away team is unknown, the date field is empty or the
// full-time-home-goals field is empty. Any sign of novelty or incompleteness
// routes the row into augmentation instead of silently discarding it.
func IsNew(rec domain.RawRecord, idx *ReferenceIndex) bool {
	return !idx.Contains(rec.HomeTeam()) ||
		!idx.Contains(rec.AwayTeam()) ||
		rec.Get(domain.ColDate) == "" ||
		rec.Get(domain.ColFTHG) == ""
}

// BuildBatch classifies every parsed row against the reference index and
// assembles the ordered batch of new rows. Rows already represented in the
// reference dataset are excluded entirely. Input row order is preserved.
func BuildBatch(parse *ingest.ParseResult, idx *ReferenceIndex, logger *slog.Logger) *domain.Batch {
	if logger == nil {
		logger = slog.Default()
	}

	batch := &domain.Batch{
		ID:     uuid.NewString(),
		League: idx.League(),
		Header: parse.Header,
	}
	for _, rec := range parse.Records {
		if !IsNew(rec, idx) {
			continue
		}
		batch.Rows = append(batch.Rows, &domain.MatchCandidate{
			Record: rec.Clone(),
			IsNew:  true,
		})
	}

	logger.Debug("classified upload rows",
		slog.String("league", idx.League()),
		slog.String("batch_id", batch.ID),
		slog.Int("parsed", len(parse.Records)),
		slog.Int("new", batch.Len()))

	return batch
}
