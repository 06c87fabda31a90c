package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/paramed/reconciler/internal/domain"
)

// AssignmentEngine greedily pairs source records with target records.
// Sources are visited in input order; candidates in the index's semantic order.
type AssignmentEngine struct {
	scorer          *Scorer
	store           *ExclusivityStore
	strategy        string
	threshold       float64
	k               int
	reportUnmatched bool
	now             func() time.Time
}

// NewAssignmentEngine creates an engine committing into store
func NewAssignmentEngine(cfg EngineConfig, scorer *Scorer, store *ExclusivityStore) *AssignmentEngine {
	return &AssignmentEngine{
		scorer:          scorer,
		store:           store,
		strategy:        cfg.Strategy,
		threshold:       cfg.AcceptanceThreshold,
		k:               cfg.K,
		reportUnmatched: cfg.ReportUnmatched,
		now:             time.Now,
	}
}

// candidate is a scored source/target pair, alive only during assignment
type candidate struct {
	target    domain.Record
	signals   domain.SignalBreakdown
	composite float64
}

// scanOutcome records why a source produced no match
type scanOutcome struct {
	scored       bool
	best         float64
	missingPrice bool
	lostToOthers bool
}

// AssignPartition scans every source of p against index (built over p.Targets).
// sourceVectors[i] is the embedding of p.Sources[i].
func (e *AssignmentEngine) AssignPartition(
	ctx context.Context,
	p Partition,
	index *CandidateIndex,
	sourceVectors [][]float64,
) ([]domain.Match, []domain.Unmatched, error) {
	if len(sourceVectors) != len(p.Sources) {
		return nil, nil, fmt.Errorf("%w: %d vectors for %d sources", domain.ErrEmbeddingUnavailable, len(sourceVectors), len(p.Sources))
	}

	var matches []domain.Match
	var unmatched []domain.Unmatched

	for i, src := range p.Sources {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		neighbors, err := index.Query(ctx, sourceVectors[i], e.k)
		if err != nil {
			return nil, nil, err
		}

		match, outcome := e.assignSource(src, p, neighbors)
		if match != nil {
			matches = append(matches, *match)
			continue
		}
		if e.reportUnmatched {
			unmatched = append(unmatched, outcome.unmatched(src, p.Key))
		}
	}

	return matches, unmatched, nil
}

func (e *AssignmentEngine) assignSource(src domain.Record, p Partition, neighbors []domain.Neighbor) (*domain.Match, scanOutcome) {
	var outcome scanOutcome
	if !src.HasPrice() {
		outcome.missingPrice = true
		return nil, outcome
	}

	var qualifying []candidate
	for _, n := range neighbors {
		tgt := p.Targets[n.Position]
		if !tgt.HasPrice() {
			outcome.missingPrice = true
			continue
		}
		if e.store.IsConsumed(tgt) {
			outcome.lostToOthers = true
			continue
		}

		signals, composite, err := e.scorer.Score(src, tgt, n.Score)
		if err != nil {
			// missing signal data excludes the candidate
			outcome.missingPrice = true
			continue
		}
		if !outcome.scored || composite > outcome.best {
			outcome.best = composite
		}
		outcome.scored = true

		if composite < e.threshold {
			continue
		}

		c := candidate{target: tgt, signals: signals, composite: composite}
		if e.strategy == StrategyBestCandidate {
			qualifying = append(qualifying, c)
			continue
		}
		if e.store.TryConsume(tgt) {
			return e.commit(src, p.Key, c), outcome
		}
		outcome.lostToOthers = true
	}

	// Best candidate: highest composite first, semantic order breaks ties
	sort.SliceStable(qualifying, func(a, b int) bool {
		return qualifying[a].composite > qualifying[b].composite
	})
	for _, c := range qualifying {
		if e.store.TryConsume(c.target) {
			return e.commit(src, p.Key, c), outcome
		}
		outcome.lostToOthers = true
	}

	return nil, outcome
}

func (e *AssignmentEngine) commit(src domain.Record, key domain.PartitionKey, c candidate) *domain.Match {
	return &domain.Match{
		SourceID:       src.ID,
		TargetID:       c.target.ID,
		PartitionKey:   key,
		CompositeScore: c.composite,
		Signals:        c.signals,
		CreatedAt:      e.now().UTC(),
	}
}

func (o scanOutcome) unmatched(src domain.Record, key domain.PartitionKey) domain.Unmatched {
	u := domain.Unmatched{
		RecordID:     src.ID,
		Source:       src.Source,
		PartitionKey: key,
	}
	if o.scored {
		u.BestScore = domain.Float(o.best)
	}

	switch {
	case o.lostToOthers:
		u.Reason = domain.ReasonTargetsConsumed
	case o.scored:
		u.Reason = domain.ReasonBelowThreshold
	case o.missingPrice:
		u.Reason = domain.ReasonMissingPrice
	default:
		u.Reason = domain.ReasonBelowThreshold
	}
	return u
}

// orphanedUnmatched reports sources whose partition had no targets
func orphanedUnmatched(orphaned []Partition) []domain.Unmatched {
	var out []domain.Unmatched
	for _, p := range orphaned {
		for _, src := range p.Sources {
			out = append(out, domain.Unmatched{
				RecordID:     src.ID,
				Source:       src.Source,
				PartitionKey: p.Key,
				Reason:       domain.ReasonEmptyPartition,
			})
		}
	}
	return out
}
