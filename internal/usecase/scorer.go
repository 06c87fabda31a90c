package usecase

import (
	"fmt"
	"math"
	"strings"

	"github.com/paramed/reconciler/internal/domain"
)

// SimilarityFunc is a fuzzy string similarity returning a value in [0,1]
type SimilarityFunc func(a, b string) float64

// Scorer computes comparison signals for a record pair and fuses them
type Scorer struct {
	scoring       string
	weights       SignalWeights
	priceGapLimit float64
	fuzzy         SimilarityFunc
}

// NewScorer creates a scorer; a nil fuzzy func falls back to TokenSetSimilarity
func NewScorer(cfg EngineConfig, fuzzy SimilarityFunc) *Scorer {
	if fuzzy == nil {
		fuzzy = TokenSetSimilarity
	}
	return &Scorer{
		scoring:       cfg.Scoring,
		weights:       cfg.Weights,
		priceGapLimit: cfg.PriceGapLimit,
		fuzzy:         fuzzy,
	}
}

// Score returns the signal breakdown and composite score for (src, tgt).
// Pairs missing a price or a canonical name on either side are rejected with
// ErrMissingSignalData and must not be considered further.
func (s *Scorer) Score(src, tgt domain.Record, semantic float64) (domain.SignalBreakdown, float64, error) {
	if strings.TrimSpace(src.CanonicalName) == "" || strings.TrimSpace(tgt.CanonicalName) == "" {
		return domain.SignalBreakdown{}, 0, fmt.Errorf("%w: canonical name", domain.ErrMissingSignalData)
	}
	price, err := PriceProximity(src, tgt, s.priceGapLimit)
	if err != nil {
		return domain.SignalBreakdown{}, 0, err
	}

	signals := domain.SignalBreakdown{
		Semantic:       semantic,
		Fuzzy:          clampUnit(s.fuzzy(src.CanonicalName, tgt.CanonicalName)),
		PriceProximity: price,
		SizeMatch:      SizeMatch(src, tgt),
	}
	return signals, s.Composite(signals), nil
}

// Composite fuses signals with the configured weights, or returns the
// semantic signal alone in pure-semantic scoring
func (s *Scorer) Composite(signals domain.SignalBreakdown) float64 {
	if s.scoring == ScoringSemantic {
		return signals.Semantic
	}
	return s.weights.Semantic*signals.Semantic +
		s.weights.Fuzzy*signals.Fuzzy +
		s.weights.Price*signals.PriceProximity +
		s.weights.Size*signals.SizeMatch
}

// PriceProximity is 1 - relative gap when the gap is within limit, else 0.
// Returns ErrMissingSignalData when either price is absent.
func PriceProximity(a, b domain.Record, limit float64) (float64, error) {
	if !a.HasPrice() || !b.HasPrice() {
		return 0, fmt.Errorf("%w: price", domain.ErrMissingSignalData)
	}
	pa, pb := *a.Price, *b.Price
	highest := math.Max(pa, pb)
	if highest == 0 {
		return 1, nil
	}
	gap := math.Abs(pa-pb) / highest
	if gap > limit {
		return 0, nil
	}
	return 1 - gap, nil
}

// SizeMatch is 1 when both size tokens are present and equal, else 0
func SizeMatch(a, b domain.Record) float64 {
	sa := strings.ToLower(strings.TrimSpace(a.SizeToken))
	sb := strings.ToLower(strings.TrimSpace(b.SizeToken))
	if sa != "" && sa == sb {
		return 1
	}
	return 0
}

func clampUnit(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
