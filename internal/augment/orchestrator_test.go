package augment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchstage/pkg/contracts/domain"
)

type featureFunc func(ctx context.Context, league, home, away string) (map[string]float64, error)

func (f featureFunc) Features(ctx context.Context, league, home, away string) (map[string]float64, error) {
	return f(ctx, league, home, away)
}

func testBatch(pairs ...[2]string) *domain.Batch {
	b := &domain.Batch{ID: "batch-1", League: "E0"}
	for _, p := range pairs {
		b.Rows = append(b.Rows, &domain.MatchCandidate{
			Record: domain.RawRecord{
				domain.ColHomeTeam: p[0],
				domain.ColAwayTeam: p[1],
			},
			IsNew: true,
		})
	}
	return b
}

func TestAugmentMergesInRowOrder(t *testing.T) {
	batch := testBatch(
		[2]string{"Arsenal", "Chelsea"},
		[2]string{"Leeds", "Fulham"},
		[2]string{"Luton", "Ipswich"},
	)

	// The first row responds last; merge order must still follow row order,
	// not completion order.
	var calls atomic.Int32
	source := featureFunc(func(ctx context.Context, league, home, away string) (map[string]float64, error) {
		n := calls.Add(1)
		if home == "Arsenal" {
			time.Sleep(50 * time.Millisecond)
		}
		return map[string]float64{"EloDifference": float64(n), "home_" + home: 1}, nil
	})

	o := NewOrchestrator(source, nil, Options{}, nil)
	err := o.Augment(context.Background(), batch)
	require.NoError(t, err)

	for i, row := range batch.Rows {
		assert.True(t, row.Augmented, "row %d", i)
		home := row.Record.HomeTeam()
		_, ok := row.Features["home_"+home]
		assert.True(t, ok, "row %d received another row's features", i)
	}
	assert.Equal(t, 3, batch.AugmentedCount())
}

func TestAugmentPartialFailure(t *testing.T) {
	batch := testBatch(
		[2]string{"Arsenal", "Chelsea"},
		[2]string{"Leeds", "Fulham"},
		[2]string{"Luton", "Ipswich"},
	)

	source := featureFunc(func(ctx context.Context, league, home, away string) (map[string]float64, error) {
		if home == "Leeds" {
			return nil, errors.New("stats service unavailable")
		}
		return map[string]float64{"AvgH": 2.1}, nil
	})

	o := NewOrchestrator(source, nil, Options{}, nil)
	err := o.Augment(context.Background(), batch)

	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "batch-1", partial.BatchID)
	assert.Equal(t, 3, partial.Total)
	assert.Equal(t, []int{1}, partial.FailedRows)

	// Failed rows stay in the batch with raw fields only.
	assert.True(t, batch.Rows[0].Augmented)
	assert.False(t, batch.Rows[1].Augmented)
	assert.Nil(t, batch.Rows[1].Features)
	assert.True(t, batch.Rows[2].Augmented)
	assert.Equal(t, 2, batch.AugmentedCount())
}

func TestAugmentTimeoutDiscardsResults(t *testing.T) {
	batch := testBatch(
		[2]string{"Arsenal", "Chelsea"},
		[2]string{"Leeds", "Fulham"},
	)

	source := featureFunc(func(ctx context.Context, league, home, away string) (map[string]float64, error) {
		if home == "Leeds" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return map[string]float64{"AvgH": 2.1}, nil
	})

	o := NewOrchestrator(source, nil, Options{BatchTimeout: 20 * time.Millisecond}, nil)
	err := o.Augment(context.Background(), batch)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var partial *PartialError
	assert.False(t, errors.As(err, &partial))

	// Nothing is merged when the fan-out is abandoned wholesale.
	for i, row := range batch.Rows {
		assert.False(t, row.Augmented, "row %d", i)
		assert.Nil(t, row.Features, "row %d", i)
	}
}

func TestAugmentEmptyBatch(t *testing.T) {
	source := featureFunc(func(ctx context.Context, league, home, away string) (map[string]float64, error) {
		t.Fatal("no requests expected for an empty batch")
		return nil, nil
	})

	o := NewOrchestrator(source, nil, Options{}, nil)
	assert.NoError(t, o.Augment(context.Background(), &domain.Batch{ID: "empty"}))
}

func TestAugmentConcurrencyLimit(t *testing.T) {
	var pairs [][2]string
	for i := 0; i < 10; i++ {
		pairs = append(pairs, [2]string{fmt.Sprintf("Home%d", i), fmt.Sprintf("Away%d", i)})
	}
	batch := testBatch(pairs...)

	var inFlight, peak atomic.Int32
	source := featureFunc(func(ctx context.Context, league, home, away string) (map[string]float64, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return map[string]float64{"AvgH": 2.0}, nil
	})

	o := NewOrchestrator(source, nil, Options{Concurrency: 3}, nil)
	require.NoError(t, o.Augment(context.Background(), batch))
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 10, batch.AugmentedCount())
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []struct{ done, total, failed int }
}

func (n *recordingNotifier) AugmentProgress(batchID string, done, total, failed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, struct{ done, total, failed int }{done, total, failed})
}

func TestAugmentProgressNotifications(t *testing.T) {
	batch := testBatch(
		[2]string{"Arsenal", "Chelsea"},
		[2]string{"Leeds", "Fulham"},
		[2]string{"Luton", "Ipswich"},
	)

	source := featureFunc(func(ctx context.Context, league, home, away string) (map[string]float64, error) {
		if home == "Luton" {
			return nil, errors.New("boom")
		}
		return map[string]float64{"AvgH": 1.8}, nil
	})

	notifier := &recordingNotifier{}
	o := NewOrchestrator(source, notifier, Options{}, nil)
	err := o.Augment(context.Background(), batch)
	require.Error(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.events, 3)
	last := notifier.events[2]
	assert.Equal(t, 3, last.done)
	assert.Equal(t, 3, last.total)
	assert.Equal(t, 1, last.failed)
}
