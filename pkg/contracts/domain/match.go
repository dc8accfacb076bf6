package domain

// Well-known column names carried by every match upload. Only HomeTeam and
// AwayTeam are contractually required; everything else is passed through.
const (
	ColDate     = "Date"
	ColHomeTeam = "HomeTeam"
	ColAwayTeam = "AwayTeam"
	ColFTHG     = "FTHG"
	ColFTAG     = "FTAG"
)

// RawRecord maps column name to the raw string value of one uploaded row.
// The column set is driven by the header row of the input, not fixed in
// advance. A RawRecord is immutable once produced by the parser.
type RawRecord map[string]string

// Get returns the value for a column, or "" when the column is absent.
func (r RawRecord) Get(col string) string {
	return r[col]
}

// HomeTeam returns the home team name.
func (r RawRecord) HomeTeam() string { return r[ColHomeTeam] }

// AwayTeam returns the away team name.
func (r RawRecord) AwayTeam() string { return r[ColAwayTeam] }

// Clone returns an independent copy of the record.
func (r RawRecord) Clone() RawRecord {
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MatchCandidate is a row classified as new, optionally enriched with
// derived numeric features. It is created by the classifier, mutated once by
// the augmentation step and read-only afterwards.
type MatchCandidate struct {
	Record   RawRecord          `json:"record"`
	IsNew    bool               `json:"is_new"`
	Features map[string]float64 `json:"features,omitempty"`

	// Augmented reports whether the feature request for this row succeeded.
	// A candidate with Augmented=false keeps its raw fields only.
	Augmented bool `json:"augmented"`
}

// Feature returns the derived value for a column when one was merged in.
func (c *MatchCandidate) Feature(col string) (float64, bool) {
	f, ok := c.Features[col]
	return f, ok
}

// Raw returns the raw string value for a column.
func (c *MatchCandidate) Raw(col string) (string, bool) {
	s, ok := c.Record[col]
	return s, ok
}

// Batch is the ordered set of new match candidates produced by one ingestion
// run under one league context, staged in memory until an authorized commit.
type Batch struct {
	ID     string            `json:"id"`
	League string            `json:"league"`
	Header []string          `json:"header"`
	Rows   []*MatchCandidate `json:"rows"`
}

// Len returns the number of staged rows.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// FullyAugmented reports whether every row carries a complete feature set.
func (b *Batch) FullyAugmented() bool {
	for _, row := range b.Rows {
		if !row.Augmented {
			return false
		}
	}
	return true
}

// AugmentedCount returns how many rows carry derived features.
func (b *Batch) AugmentedCount() int {
	n := 0
	for _, row := range b.Rows {
		if row.Augmented {
			n++
		}
	}
	return n
}

// LeagueContext is the selected league plus its reference index of known
// team names. A batch is only valid under the context it was produced from.
type LeagueContext struct {
	League string   `json:"league"`
	Teams  []string `json:"teams"`
}
