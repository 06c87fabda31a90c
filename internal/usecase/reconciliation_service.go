package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paramed/reconciler/internal/domain"
	"github.com/paramed/reconciler/internal/logging"
)

// RunRequest is the input of one engine run
type RunRequest struct {
	// Mode overrides the configured mode when set
	Mode    domain.Mode
	Records []domain.Record
}

// ReconciliationService runs the partition -> embed -> index -> score -> assign
// pipeline and hands the result to the configured sinks
type ReconciliationService struct {
	config    EngineConfig
	gateway   *EmbeddingGateway
	retriever *CandidateRetriever
	sinks     []domain.ResultSink
	newID     func() string
	now       func() time.Time
}

// NewReconciliationService validates config and creates the service
func NewReconciliationService(
	config EngineConfig,
	gateway *EmbeddingGateway,
	retriever *CandidateRetriever,
	sinks ...domain.ResultSink,
) (*ReconciliationService, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &ReconciliationService{
		config:    config,
		gateway:   gateway,
		retriever: retriever,
		sinks:     sinks,
		newID:     uuid.NewString,
		now:       time.Now,
	}, nil
}

// Config returns the effective engine configuration
func (s *ReconciliationService) Config() EngineConfig {
	return s.config
}

// Run executes one reconciliation run. Any embedding or index failure fails
// the whole run and nothing is published.
//
// Sinks publish in the order they were given and stop at the first failure.
// Sinks that already published are not rolled back; the error names the sink
// position so the caller knows which outputs hold the new result.
func (s *ReconciliationService) Run(ctx context.Context, req RunRequest) (*domain.RunResult, error) {
	cfg := s.config
	if req.Mode != "" {
		cfg.Mode = req.Mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateRecords(req.Records); err != nil {
		return nil, err
	}

	result := &domain.RunResult{
		RunID:     s.newID(),
		Mode:      cfg.Mode,
		StartedAt: s.now().UTC(),
	}
	ctx = logging.WithFields(ctx, map[string]string{"run_id": result.RunID, "mode": string(cfg.Mode)})
	log := logging.FromContext(ctx)
	log.Info().Int("records", len(req.Records)).Msg("Reconciliation run started")

	var err error
	switch cfg.Mode {
	case domain.ModeGraph:
		err = s.runGraph(ctx, cfg, req.Records, result)
	default:
		err = s.runBipartite(ctx, cfg, req.Records, result)
	}
	if err != nil {
		log.Error().Err(err).Msg("Reconciliation run failed")
		return nil, err
	}

	result.FinishedAt = s.now().UTC()
	log.Info().
		Int("partitions", result.Partitions).
		Int("matches", len(result.Matches)).
		Int("clusters", len(result.Clusters)).
		Int("unmatched", len(result.Unmatched)).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Reconciliation run finished")

	for i, sink := range s.sinks {
		if err := sink.Publish(ctx, result); err != nil {
			log.Error().Err(err).Int("sink", i).Int("published", i).Msg("Publishing run result failed")
			return nil, fmt.Errorf("sink %d of %d: %w", i+1, len(s.sinks), err)
		}
	}

	return result, nil
}

func (s *ReconciliationService) runBipartite(ctx context.Context, cfg EngineConfig, records []domain.Record, result *domain.RunResult) error {
	sources, targets, err := splitCatalogs(cfg, records)
	if err != nil {
		return err
	}

	partitioner := NewPartitioner(cfg.PartitionKeys)
	partitions, orphaned := partitioner.Partition(sources, targets)
	result.Partitions = len(partitions)

	engine := NewAssignmentEngine(cfg, NewScorer(cfg, nil), NewExclusivityStore())

	type partitionResult struct {
		matches   []domain.Match
		unmatched []domain.Unmatched
	}
	results := make([]partitionResult, len(partitions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, p := range partitions {
		g.Go(func() error {
			matches, unmatched, err := s.assignPartition(gctx, cfg, engine, p)
			if err != nil {
				return fmt.Errorf("partition %s: %w", p.Key, err)
			}
			results[i] = partitionResult{matches: matches, unmatched: unmatched}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		result.Matches = append(result.Matches, r.matches...)
		result.Unmatched = append(result.Unmatched, r.unmatched...)
	}
	if cfg.ReportUnmatched {
		result.Unmatched = append(result.Unmatched, orphanedUnmatched(orphaned)...)
	}
	return nil
}

func (s *ReconciliationService) assignPartition(ctx context.Context, cfg EngineConfig, engine *AssignmentEngine, p Partition) ([]domain.Match, []domain.Unmatched, error) {
	targetVectors, err := s.gateway.Embed(ctx, embeddingTexts(p.Targets, cfg.EmbeddingText))
	if err != nil {
		return nil, nil, err
	}
	index, err := s.retriever.Build(ctx, targetVectors)
	if err != nil {
		return nil, nil, err
	}
	sourceVectors, err := s.gateway.Embed(ctx, embeddingTexts(p.Sources, cfg.EmbeddingText))
	if err != nil {
		return nil, nil, err
	}

	matches, unmatched, err := engine.AssignPartition(ctx, p, index, sourceVectors)
	if err != nil {
		return nil, nil, err
	}

	logging.FromContext(ctx).Debug().
		Str("partition", string(p.Key)).
		Int("sources", len(p.Sources)).
		Int("targets", len(p.Targets)).
		Int("matches", len(matches)).
		Msg("Partition assigned")

	return matches, unmatched, nil
}

func (s *ReconciliationService) runGraph(ctx context.Context, cfg EngineConfig, records []domain.Record, result *domain.RunResult) error {
	if len(records) == 0 {
		return nil
	}
	result.Partitions = 1

	vectors, err := s.gateway.Embed(ctx, embeddingTexts(records, cfg.EmbeddingText))
	if err != nil {
		return err
	}

	engine := NewClusterEngine(cfg, s.retriever)
	engine.newID = s.newID
	clusters, err := engine.Cluster(ctx, records, vectors)
	if err != nil {
		return err
	}
	result.Clusters = clusters
	return nil
}

// splitCatalogs assigns records to the source and target roles. A role left
// unset is inferred only when the records come from exactly two catalogs, in
// order of first appearance; a third catalog is rejected instead of dropped.
func splitCatalogs(cfg EngineConfig, records []domain.Record) ([]domain.Record, []domain.Record, error) {
	sourceCatalog, targetCatalog := cfg.SourceCatalog, cfg.TargetCatalog
	if sourceCatalog == "" || targetCatalog == "" {
		catalogs := distinctSources(records)
		switch {
		case len(catalogs) < 2:
			return nil, nil, fmt.Errorf("%w: bipartite mode needs records from two catalogs", domain.ErrInvalidRequest)
		case len(catalogs) > 2:
			return nil, nil, fmt.Errorf("%w: %d catalogs %v in one bipartite run; set engine.source_catalog and engine.target_catalog",
				domain.ErrInvalidRequest, len(catalogs), catalogs)
		}

		var err error
		switch {
		case sourceCatalog == "" && targetCatalog == "":
			sourceCatalog, targetCatalog = catalogs[0], catalogs[1]
		case sourceCatalog == "":
			sourceCatalog, err = otherCatalog(catalogs, targetCatalog)
		default:
			targetCatalog, err = otherCatalog(catalogs, sourceCatalog)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	if sourceCatalog == targetCatalog {
		return nil, nil, fmt.Errorf("%w: source and target catalog are both %q", domain.ErrInvalidConfiguration, sourceCatalog)
	}

	var sources, targets []domain.Record
	for _, r := range records {
		switch r.Source {
		case sourceCatalog:
			sources = append(sources, r)
		case targetCatalog:
			targets = append(targets, r)
		}
	}
	return sources, targets, nil
}

func distinctSources(records []domain.Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if !seen[r.Source] {
			seen[r.Source] = true
			out = append(out, r.Source)
		}
	}
	return out
}

// otherCatalog returns the catalog of the pair that is not known
func otherCatalog(catalogs []string, known string) (string, error) {
	switch known {
	case catalogs[0]:
		return catalogs[1], nil
	case catalogs[1]:
		return catalogs[0], nil
	}
	return "", fmt.Errorf("%w: catalog %q has no records", domain.ErrInvalidRequest, known)
}

// validateRecords requires a source and a non-empty id on every record.
// Ids are scoped to their source: siteA/"1" and siteB/"1" are different records.
func validateRecords(records []domain.Record) error {
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has no id", domain.ErrInvalidRequest, i)
		}
		if r.Source == "" {
			return fmt.Errorf("%w: record %q has no source", domain.ErrInvalidRequest, r.ID)
		}
		key := recordKey(r.Source, r.ID)
		if seen[key] {
			return fmt.Errorf("%w: duplicate record id %q in %q", domain.ErrInvalidRequest, r.ID, r.Source)
		}
		seen[key] = true
	}
	return nil
}
