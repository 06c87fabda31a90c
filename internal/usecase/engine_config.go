package usecase

import (
	"fmt"
	"math"
	"time"

	"github.com/paramed/reconciler/internal/domain"
)

// Scoring modes
const (
	ScoringMultiSignal = "multi_signal"
	ScoringSemantic    = "semantic"
)

// Assignment strategies
const (
	// StrategyFirstQualifying commits the first candidate, in semantic order, whose composite meets the threshold
	StrategyFirstQualifying = "first_qualifying"
	// StrategyBestCandidate commits the highest composite among all qualifying candidates
	StrategyBestCandidate = "best_candidate"
)

// Embedding text policies
const (
	EmbedCanonical = "canonical"
	EmbedComposite = "composite"
)

// Defaults for the multi-signal and pure-semantic engines
const (
	defaultK                   = 7
	defaultSemanticK           = 1
	defaultAcceptanceThreshold = 0.87
	defaultSemanticThreshold   = 0.90
	defaultClusteringThreshold = 0.80
	defaultPriceGapLimit       = 0.4
	defaultWorkers             = 4
	defaultCallTimeout         = 60 * time.Second
	weightSumTolerance         = 1e-6
)

// SignalWeights are the composite score weights; they must sum to 1
type SignalWeights struct {
	Semantic float64 `mapstructure:"semantic" json:"semantic"`
	Fuzzy    float64 `mapstructure:"fuzzy" json:"fuzzy"`
	Price    float64 `mapstructure:"price" json:"price"`
	Size     float64 `mapstructure:"size" json:"size"`
}

// DefaultWeights returns the 0.5/0.25/0.2/0.05 multi-signal weighting
func DefaultWeights() SignalWeights {
	return SignalWeights{Semantic: 0.5, Fuzzy: 0.25, Price: 0.2, Size: 0.05}
}

func (w SignalWeights) sum() float64 {
	return w.Semantic + w.Fuzzy + w.Price + w.Size
}

// EngineConfig holds every run-time knob of the reconciliation engine
type EngineConfig struct {
	Mode                domain.Mode
	Scoring             string
	Strategy            string
	K                   int
	AcceptanceThreshold float64
	ClusteringThreshold float64
	Weights             SignalWeights
	PartitionKeys       []string
	PriceGapLimit       float64
	ReportUnmatched     bool
	Workers             int
	CallTimeout         time.Duration
	EmbeddingText       string
	SourceCatalog       string
	TargetCatalog       string
}

// DefaultEngineConfig returns the multi-signal bipartite configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Mode:                domain.ModeBipartite,
		Scoring:             ScoringMultiSignal,
		Strategy:            StrategyFirstQualifying,
		K:                   defaultK,
		AcceptanceThreshold: defaultAcceptanceThreshold,
		ClusteringThreshold: defaultClusteringThreshold,
		Weights:             DefaultWeights(),
		PartitionKeys:       []string{domain.AttributeBrand, domain.AttributeCategory, domain.AttributeSize},
		PriceGapLimit:       defaultPriceGapLimit,
		Workers:             defaultWorkers,
		CallTimeout:         defaultCallTimeout,
		EmbeddingText:       EmbedCanonical,
	}
}

// WithDefaults fills zero values. Pure-semantic scoring gets its own k and threshold.
func (c EngineConfig) WithDefaults() EngineConfig {
	if c.Mode == "" {
		c.Mode = domain.ModeBipartite
	}
	if c.Scoring == "" {
		c.Scoring = ScoringMultiSignal
	}
	if c.Strategy == "" {
		c.Strategy = StrategyFirstQualifying
	}
	if c.K == 0 {
		c.K = defaultK
		if c.Scoring == ScoringSemantic {
			c.K = defaultSemanticK
		}
	}
	if c.AcceptanceThreshold == 0 {
		c.AcceptanceThreshold = defaultAcceptanceThreshold
		if c.Scoring == ScoringSemantic {
			c.AcceptanceThreshold = defaultSemanticThreshold
		}
	}
	if c.ClusteringThreshold == 0 {
		c.ClusteringThreshold = defaultClusteringThreshold
	}
	if c.Weights == (SignalWeights{}) {
		c.Weights = DefaultWeights()
	}
	if len(c.PartitionKeys) == 0 {
		c.PartitionKeys = []string{domain.AttributeBrand, domain.AttributeCategory, domain.AttributeSize}
	}
	if c.PriceGapLimit == 0 {
		c.PriceGapLimit = defaultPriceGapLimit
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.EmbeddingText == "" {
		c.EmbeddingText = EmbedCanonical
	}
	return c
}

// Validate rejects configurations the engine cannot honor
func (c EngineConfig) Validate() error {
	switch c.Mode {
	case domain.ModeBipartite, domain.ModeGraph:
	default:
		return invalidConfig("unknown mode %q", c.Mode)
	}
	switch c.Scoring {
	case ScoringMultiSignal, ScoringSemantic:
	default:
		return invalidConfig("unknown scoring %q", c.Scoring)
	}
	switch c.Strategy {
	case StrategyFirstQualifying, StrategyBestCandidate:
	default:
		return invalidConfig("unknown strategy %q", c.Strategy)
	}
	switch c.EmbeddingText {
	case EmbedCanonical, EmbedComposite:
	default:
		return invalidConfig("unknown embedding text policy %q", c.EmbeddingText)
	}
	if c.K <= 0 {
		return invalidConfig("k must be positive, got %d", c.K)
	}
	if !inUnitInterval(c.AcceptanceThreshold) {
		return invalidConfig("acceptance threshold %v outside [0,1]", c.AcceptanceThreshold)
	}
	if !inUnitInterval(c.ClusteringThreshold) {
		return invalidConfig("clustering threshold %v outside [0,1]", c.ClusteringThreshold)
	}
	if !inUnitInterval(c.PriceGapLimit) {
		return invalidConfig("price gap limit %v outside [0,1]", c.PriceGapLimit)
	}
	w := c.Weights
	if w.Semantic < 0 || w.Fuzzy < 0 || w.Price < 0 || w.Size < 0 {
		return invalidConfig("signal weights must be non-negative")
	}
	if math.Abs(w.sum()-1) > weightSumTolerance {
		return invalidConfig("signal weights sum to %v, want 1", w.sum())
	}
	if len(c.PartitionKeys) == 0 {
		return invalidConfig("at least one partition key is required")
	}
	for _, key := range c.PartitionKeys {
		if _, ok := (domain.Record{}).Attribute(key); !ok {
			return invalidConfig("unknown partition attribute %q", key)
		}
	}
	if c.Mode == domain.ModeBipartite && c.SourceCatalog != "" && c.SourceCatalog == c.TargetCatalog {
		return invalidConfig("source and target catalog are both %q", c.SourceCatalog)
	}
	return nil
}

func inUnitInterval(v float64) bool {
	return v >= 0 && v <= 1
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
