package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchstage/internal/ingest"
	"matchstage/pkg/contracts/domain"
)

func testIndex() *ReferenceIndex {
	return NewReferenceIndex("E0", []string{"Arsenal", "Chelsea", "Liverpool"})
}

func record(home, away, date, fthg string) domain.RawRecord {
	return domain.RawRecord{
		domain.ColHomeTeam: home,
		domain.ColAwayTeam: away,
		domain.ColDate:     date,
		domain.ColFTHG:     fthg,
	}
}

func TestIsNew(t *testing.T) {
	idx := testIndex()

	tests := []struct {
		name string
		rec  domain.RawRecord
		want bool
	}{
		{
			name: "fully known and complete is not new",
			rec:  record("Arsenal", "Chelsea", "2024-01-01", "2"),
			want: false,
		},
		{
			name: "unknown home team",
			rec:  record("Ipswich", "Chelsea", "2024-01-01", "2"),
			want: true,
		},
		{
			name: "unknown away team",
			rec:  record("Arsenal", "Ipswich", "2024-01-01", "2"),
			want: true,
		},
		{
			name: "empty date",
			rec:  record("Arsenal", "Chelsea", "", "2"),
			want: true,
		},
		{
			name: "empty full time home goals",
			rec:  record("Arsenal", "Chelsea", "2024-01-01", ""),
			want: true,
		},
		{
			name: "both teams unknown",
			rec:  record("Ipswich", "Luton", "2024-01-01", "2"),
			want: true,
		},
		{
			name: "everything missing",
			rec:  record("", "", "", ""),
			want: true,
		},
		{
			name: "known teams but date and goals missing",
			rec:  record("Arsenal", "Liverpool", "", ""),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNew(tt.rec, idx))
		})
	}
}

// Any single novelty signal suffices; the rule is a disjunction, not a
// conjunction.
func TestIsNewDisjunction(t *testing.T) {
	idx := testIndex()

	for mask := 0; mask < 16; mask++ {
		home, away, date, fthg := "Arsenal", "Chelsea", "2024-01-01", "2"
		if mask&1 != 0 {
			home = "Unknown FC"
		}
		if mask&2 != 0 {
			away = "Unknown FC"
		}
		if mask&4 != 0 {
			date = ""
		}
		if mask&8 != 0 {
			fthg = ""
		}
		want := mask != 0
		assert.Equal(t, want, IsNew(record(home, away, date, fthg), idx),
			"mask %04b", mask)
	}
}

func TestReferenceIndex(t *testing.T) {
	idx := testIndex()

	assert.Equal(t, "E0", idx.League())
	assert.Equal(t, 3, idx.Len())
	assert.True(t, idx.Contains("Arsenal"))
	assert.False(t, idx.Contains("arsenal"), "matching is exact, not case folded")
	assert.False(t, idx.Contains(""))
}

func TestBuildBatch(t *testing.T) {
	idx := testIndex()
	parse := &ingest.ParseResult{
		Header: []string{"Date", "HomeTeam", "AwayTeam", "FTHG"},
		Records: []domain.RawRecord{
			record("Arsenal", "Chelsea", "2024-01-01", "2"), // known, dropped
			record("Ipswich", "Chelsea", "2024-01-02", "1"), // new
			record("Arsenal", "Liverpool", "2024-01-03", "0"), // known, dropped
			record("Luton", "Ipswich", "2024-01-04", "3"), // new
		},
	}

	batch := BuildBatch(parse, idx, nil)

	require.NotEmpty(t, batch.ID)
	assert.Equal(t, "E0", batch.League)
	assert.Equal(t, parse.Header, batch.Header)
	require.Equal(t, 2, batch.Len())

	// Input order is preserved among the surviving rows.
	assert.Equal(t, "Ipswich", batch.Rows[0].Record.HomeTeam())
	assert.Equal(t, "Luton", batch.Rows[1].Record.HomeTeam())
	for _, row := range batch.Rows {
		assert.True(t, row.IsNew)
		assert.False(t, row.Augmented)
	}
}

func TestBuildBatchAllKnown(t *testing.T) {
	idx := testIndex()
	parse := &ingest.ParseResult{
		Header: []string{"Date", "HomeTeam", "AwayTeam", "FTHG"},
		Records: []domain.RawRecord{
			record("Arsenal", "Chelsea", "2024-01-01", "2"),
		},
	}

	batch := BuildBatch(parse, idx, nil)
	assert.Equal(t, 0, batch.Len())
}
