package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paramed/reconciler/internal/domain"
)

// assignFixture runs one partition where source i queries with (1, 0) against
// targets placed at the given cosines
type assignFixture struct {
	cfg     EngineConfig
	sources []domain.Record
	targets []domain.Record
	cosines []float64
}

func (f assignFixture) run(t *testing.T, store *ExclusivityStore) ([]domain.Match, []domain.Unmatched) {
	t.Helper()
	cfg := f.cfg.WithDefaults()
	require.NoError(t, cfg.Validate())

	vectors := make([][]float64, len(f.targets))
	for i, c := range f.cosines {
		vectors[i] = unitAt(c)
	}
	retriever := NewCandidateRetriever(&dotBuilder{}, 0)
	index, err := retriever.Build(context.Background(), vectors)
	require.NoError(t, err)

	sourceVectors := make([][]float64, len(f.sources))
	for i := range sourceVectors {
		sourceVectors[i] = []float64{1, 0}
	}

	engine := NewAssignmentEngine(cfg, NewScorer(cfg, nil), store)
	p := Partition{Key: "brand=vichy", Sources: f.sources, Targets: f.targets}
	matches, unmatched, err := engine.AssignPartition(context.Background(), p, index, sourceVectors)
	require.NoError(t, err)
	return matches, unmatched
}

func TestAssignmentEngine_AcceptsAboveThreshold(t *testing.T) {
	src := domain.Record{ID: "a-1", Source: "siteA", CanonicalName: "vichy mineral 89 200ml", SizeToken: "200ml", Price: domain.Float(100)}
	tgt := domain.Record{ID: "b-1", Source: "siteB", CanonicalName: "vichy mineral 89 200ml", SizeToken: "200ml", Price: domain.Float(105)}

	matches, _ := assignFixture{
		sources: []domain.Record{src},
		targets: []domain.Record{tgt},
		cosines: []float64{0.95},
	}.run(t, NewExclusivityStore())

	require.Len(t, matches, 1)
	assert.Equal(t, "a-1", matches[0].SourceID)
	assert.Equal(t, "b-1", matches[0].TargetID)
	assert.Equal(t, domain.PartitionKey("brand=vichy"), matches[0].PartitionKey)
	assert.InDelta(t, 0.9655, matches[0].CompositeScore, 1e-3)
	assert.InDelta(t, 0.95, matches[0].Signals.Semantic, 1e-9)
	assert.False(t, matches[0].CreatedAt.IsZero())
}

func TestAssignmentEngine_BelowThresholdIsSilent(t *testing.T) {
	// composite = 0.5*0.6 + 0.25*1 + 0.2*1 + 0.05*1 = 0.80
	src := domain.Record{ID: "a-1", Source: "siteA", CanonicalName: "creme", SizeToken: "50ml", Price: domain.Float(10)}
	tgt := domain.Record{ID: "b-1", Source: "siteB", CanonicalName: "creme", SizeToken: "50ml", Price: domain.Float(10)}
	fixture := assignFixture{
		sources: []domain.Record{src},
		targets: []domain.Record{tgt},
		cosines: []float64{0.6},
	}

	t.Run("silent by default", func(t *testing.T) {
		matches, unmatched := fixture.run(t, NewExclusivityStore())
		assert.Empty(t, matches)
		assert.Empty(t, unmatched)
	})

	t.Run("reported when enabled", func(t *testing.T) {
		f := fixture
		f.cfg.ReportUnmatched = true
		matches, unmatched := f.run(t, NewExclusivityStore())

		assert.Empty(t, matches)
		require.Len(t, unmatched, 1)
		assert.Equal(t, "a-1", unmatched[0].RecordID)
		assert.Equal(t, domain.ReasonBelowThreshold, unmatched[0].Reason)
		require.NotNil(t, unmatched[0].BestScore)
		assert.InDelta(t, 0.80, *unmatched[0].BestScore, 1e-9)
	})
}

func TestAssignmentEngine_PriceGate(t *testing.T) {
	identical := func(id, source string, price *float64) domain.Record {
		return domain.Record{ID: id, Source: source, CanonicalName: "vichy mineral 89", SizeToken: "50ml", Price: price}
	}

	t.Run("priceless target never matches", func(t *testing.T) {
		matches, unmatched := assignFixture{
			cfg:     EngineConfig{ReportUnmatched: true},
			sources: []domain.Record{identical("a-1", "siteA", domain.Float(10))},
			targets: []domain.Record{identical("b-1", "siteB", nil)},
			cosines: []float64{1},
		}.run(t, NewExclusivityStore())

		assert.Empty(t, matches)
		require.Len(t, unmatched, 1)
		assert.Equal(t, domain.ReasonMissingPrice, unmatched[0].Reason)
	})

	t.Run("priceless source never matches", func(t *testing.T) {
		matches, _ := assignFixture{
			sources: []domain.Record{identical("a-1", "siteA", nil)},
			targets: []domain.Record{identical("b-1", "siteB", domain.Float(10))},
			cosines: []float64{1},
		}.run(t, NewExclusivityStore())

		assert.Empty(t, matches)
	})

	t.Run("priceless candidate is skipped for the next one", func(t *testing.T) {
		matches, _ := assignFixture{
			sources: []domain.Record{identical("a-1", "siteA", domain.Float(10))},
			targets: []domain.Record{identical("b-1", "siteB", nil), identical("b-2", "siteB", domain.Float(10))},
			cosines: []float64{1, 0.99},
		}.run(t, NewExclusivityStore())

		require.Len(t, matches, 1)
		assert.Equal(t, "b-2", matches[0].TargetID)
	})
}

func TestAssignmentEngine_Strategies(t *testing.T) {
	src := domain.Record{ID: "a-1", Source: "siteA", CanonicalName: "vichy mineral 89", SizeToken: "50ml", Price: domain.Float(100)}
	// b-1 is semantically closer but far in price; b-2 scores higher overall
	targets := []domain.Record{
		{ID: "b-1", Source: "siteB", CanonicalName: "vichy mineral 89", SizeToken: "50ml", Price: domain.Float(70)},
		{ID: "b-2", Source: "siteB", CanonicalName: "vichy mineral 89", SizeToken: "50ml", Price: domain.Float(100)},
	}

	tests := []struct {
		strategy string
		want     string
	}{
		{StrategyFirstQualifying, "b-1"},
		{StrategyBestCandidate, "b-2"},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			matches, _ := assignFixture{
				cfg:     EngineConfig{Strategy: tt.strategy},
				sources: []domain.Record{src},
				targets: targets,
				cosines: []float64{0.99, 0.97},
			}.run(t, NewExclusivityStore())

			require.Len(t, matches, 1)
			assert.Equal(t, tt.want, matches[0].TargetID)
		})
	}
}

func TestAssignmentEngine_Uniqueness(t *testing.T) {
	var sources, targets []domain.Record
	var cosines []float64
	for i := 0; i < 5; i++ {
		sources = append(sources, domain.Record{ID: "a-" + string(rune('0'+i)), Source: "siteA", CanonicalName: "gel douche", SizeToken: "200ml", Price: domain.Float(50)})
	}
	for i := 0; i < 3; i++ {
		targets = append(targets, domain.Record{ID: "b-" + string(rune('0'+i)), Source: "siteB", CanonicalName: "gel douche", SizeToken: "200ml", Price: domain.Float(50)})
		cosines = append(cosines, 0.99-float64(i)*0.01)
	}

	for _, strategy := range []string{StrategyFirstQualifying, StrategyBestCandidate} {
		t.Run(strategy, func(t *testing.T) {
			matches, unmatched := assignFixture{
				cfg:     EngineConfig{Strategy: strategy, ReportUnmatched: true},
				sources: sources,
				targets: targets,
				cosines: cosines,
			}.run(t, NewExclusivityStore())

			require.Len(t, matches, 3)
			seenSource := map[string]bool{}
			seenTarget := map[string]bool{}
			for _, m := range matches {
				assert.False(t, seenSource[m.SourceID], "source %s matched twice", m.SourceID)
				assert.False(t, seenTarget[m.TargetID], "target %s matched twice", m.TargetID)
				seenSource[m.SourceID] = true
				seenTarget[m.TargetID] = true
			}

			// sources are visited in order, each taking the best free target
			assert.Equal(t, []string{"b-0", "b-1", "b-2"}, []string{matches[0].TargetID, matches[1].TargetID, matches[2].TargetID})

			require.Len(t, unmatched, 2)
			for _, u := range unmatched {
				assert.Equal(t, domain.ReasonTargetsConsumed, u.Reason)
			}
		})
	}
}

// Monotonicity is only checked for one source. With several sources competing
// for the same targets, a higher threshold can make an early source skip a
// target that a later source then takes, so the match count is not monotone
// in general under greedy assignment.
func TestAssignmentEngine_ThresholdMonotonicitySingleSource(t *testing.T) {
	source := domain.Record{ID: "a-0", Source: "siteA", CanonicalName: "serum 0", SizeToken: "30ml", Price: domain.Float(100)}
	var targets []domain.Record
	var cosines []float64
	for i := 0; i < 6; i++ {
		id := string(rune('0' + i))
		targets = append(targets, domain.Record{ID: "b-" + id, Source: "siteB", CanonicalName: "serum " + id, SizeToken: "30ml", Price: domain.Float(100 + float64(i)*5)})
		cosines = append(cosines, 0.99-float64(i)*0.05)
	}

	previous := -1
	for _, threshold := range []float64{0.5, 0.7, 0.8, 0.87, 0.9, 0.95, 0.99, 0.999} {
		matches, _ := assignFixture{
			cfg:     EngineConfig{AcceptanceThreshold: threshold},
			sources: []domain.Record{source},
			targets: targets,
			cosines: cosines,
		}.run(t, NewExclusivityStore())

		if previous >= 0 {
			assert.LessOrEqual(t, len(matches), previous, "threshold %v", threshold)
		}
		previous = len(matches)
	}
	assert.Equal(t, 0, previous, "nothing reaches 0.999")
}

func TestAssignmentEngine_SharedStoreAcrossPartitions(t *testing.T) {
	store := NewExclusivityStore()
	tgt := domain.Record{ID: "b-1", Source: "siteB", CanonicalName: "nuxe huile", SizeToken: "100ml", Price: domain.Float(200)}
	f := assignFixture{
		sources: []domain.Record{{ID: "a-1", Source: "siteA", CanonicalName: "nuxe huile", SizeToken: "100ml", Price: domain.Float(200)}},
		targets: []domain.Record{tgt},
		cosines: []float64{0.99},
	}

	first, _ := f.run(t, store)
	f.sources[0].ID = "a-2"
	second, _ := f.run(t, store)

	assert.Len(t, first, 1)
	assert.Empty(t, second, "target consumed by an earlier partition")
	assert.True(t, store.IsConsumed(tgt))
}

func TestAssignmentEngine_IndexFailure(t *testing.T) {
	cfg := DefaultEngineConfig()
	engine := NewAssignmentEngine(cfg, NewScorer(cfg, nil), NewExclusivityStore())
	index := &CandidateIndex{index: &fixedIndex{size: 1, err: errors.New("boom")}, timeout: defaultCallTimeout}

	p := Partition{Sources: []domain.Record{rec("a-1", "siteA", "x", domain.Float(1))}, Targets: []domain.Record{rec("b-1", "siteB", "x", domain.Float(1))}}
	_, _, err := engine.AssignPartition(context.Background(), p, index, [][]float64{{1}})

	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestExclusivityStore_Concurrent(t *testing.T) {
	store := NewExclusivityStore()
	target := domain.Record{ID: "b-1", Source: "siteB"}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.TryConsume(target) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, store.Len())
	assert.False(t, store.IsConsumed(domain.Record{ID: "b-1", Source: "siteC"}), "ids are scoped by source")
}
