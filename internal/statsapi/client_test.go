package statsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchstage/pkg/contracts/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL}, nil)
}

func TestLeagues(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/leagues", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"leagues": []string{"E0", "D1", "SP1"},
		})
	})

	leagues, err := client.Leagues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"E0", "D1", "SP1"}, leagues)
}

func TestTeams(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/teams", r.URL.Path)
		assert.Equal(t, "E0", r.URL.Query().Get("league"))
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"teams":  []string{"Arsenal", "Chelsea"},
		})
	})

	teams, err := client.Teams(context.Background(), "E0")
	require.NoError(t, err)
	assert.Equal(t, []string{"Arsenal", "Chelsea"}, teams)
}

func TestFeatures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/features", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"league": "E0",
			"home":   "Arsenal",
			"away":   "Chelsea",
		}, body)

		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"features": map[string]float64{"EloDifference": 42.5, "AvgH": 1.9},
		})
	})

	features, err := client.Features(context.Background(), "E0", "Arsenal", "Chelsea")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EloDifference": 42.5, "AvgH": 1.9}, features)
}

func TestSaveNewMatchesPayload(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/save_new_matches", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})

	batch := &domain.Batch{
		ID:     "batch-1",
		League: "E0",
		Rows: []*domain.MatchCandidate{
			{
				Record: domain.RawRecord{
					domain.ColHomeTeam: "Arsenal",
					domain.ColAwayTeam: "Chelsea",
					domain.ColFTHG:     "9",
				},
				Features:  map[string]float64{"FTHG": 2, "AvgH": 1.9},
				Augmented: true,
			},
		},
	}

	require.NoError(t, client.SaveNewMatches(context.Background(), "E0", "secret", batch))

	assert.Equal(t, "E0", got["league"])
	assert.Equal(t, "secret", got["credential"])

	matches, ok := got["matches"].([]any)
	require.True(t, ok)
	require.Len(t, matches, 1)

	row, ok := matches[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Arsenal", row["HomeTeam"])
	// Derived features override raw columns of the same name.
	assert.Equal(t, float64(2), row["FTHG"])
	assert.Equal(t, 1.9, row["AvgH"])
}

func TestStatusErrorCarriesVerbatimMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "error",
			"message": "Password Salah!",
		})
	})

	err := client.SaveNewMatches(context.Background(), "E0", "wrong", &domain.Batch{})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "Password Salah!", statusErr.Message)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Equal(t, "Password Salah!", err.Error())
}

func TestErrorStatusWithHTTP200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "error",
			"message": "league not found",
		})
	})

	_, err := client.Teams(context.Background(), "XX")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "league not found", statusErr.Message)
}
