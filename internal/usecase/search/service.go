// Package search orchestrates the vector similarity pipeline: candidate
// selection over the sharded embedding index, batched vector fetch from blob
// storage, scoring, and ranking. Each phase is timed individually so slow
// searches can be attributed to a phase rather than guessed at.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carousel-labs/pricedex/internal/domain"
	"github.com/carousel-labs/pricedex/internal/metrics"
	"github.com/carousel-labs/pricedex/internal/repository/embedding"
	"github.com/carousel-labs/pricedex/internal/similarity"
)

// Defaults for request fields left zero.
const (
	DefaultLimit    = 10
	DefaultDaysBack = 90
	// OverfetchFactor widens candidate selection beyond the requested limit
	// so post-scoring attrition (missing embeddings, min-score cutoff) still
	// leaves enough results to fill it.
	OverfetchFactor = 5
)

// Config holds service tuning.
type Config struct {
	DaysBack int
	Dim      int
	// MinSimilarity applies when a request does not set its own cutoff.
	MinSimilarity float64
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.DaysBack <= 0 {
		c.DaysBack = DefaultDaysBack
	}
	if c.Dim <= 0 {
		c.Dim = domain.EmbeddingDim
	}
}

// Request is one similarity search.
type Request struct {
	TenantID string
	Vector   []float32
	// Limit caps returned results; zero means DefaultLimit.
	Limit int
	// MinSimilarity drops results scoring below it; zero keeps everything.
	MinSimilarity float64
	// Category and Season optionally narrow candidates.
	Category string
	Season   string
	// From/To override the default lookback window when both are set.
	From string
	To   string
}

// Timings records how long each pipeline phase took.
type Timings struct {
	Query time.Duration
	Fetch time.Duration
	Score time.Duration
	Rank  time.Duration
}

// Response is the search outcome plus its execution record.
type Response struct {
	Results []domain.ScoredItem
	Timings Timings
	// Degraded is true when some index shards failed and candidates are
	// partial.
	Degraded bool
	// Candidates counts the shortlist entering phase two; Skipped counts
	// candidates dropped for a missing or unfetchable embedding.
	Candidates int
	Skipped    int
}

// Service runs the similarity pipeline.
type Service struct {
	cfg     Config
	finder  CandidateFinder
	fetcher VectorFetcher
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a search service.
func New(cfg Config, finder CandidateFinder, fetcher VectorFetcher, logger *zap.Logger) *Service {
	cfg.ApplyDefaults()
	return &Service{cfg: cfg, finder: finder, fetcher: fetcher, logger: logger, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Similar finds the sold items most similar to the query vector.
//
// Candidates whose embedding is missing or unfetchable are skipped, not
// fatal: blob storage losing one object should not take down search. A
// dimension mismatch between the query and a fetched vector is different:
// it means the index holds vectors from another model, and the search fails
// loudly rather than return scores that compare nothing.
func (s *Service) Similar(ctx context.Context, req Request) (Response, error) {
	if req.TenantID == "" {
		return Response{}, fmt.Errorf("tenant id required: %w", domain.ErrValidation)
	}
	if len(req.Vector) != s.cfg.Dim {
		return Response{}, fmt.Errorf("query vector has %d dimensions, want %d: %w",
			len(req.Vector), s.cfg.Dim, domain.ErrDimensionMismatch)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	minScore := req.MinSimilarity
	if minScore <= 0 {
		minScore = s.cfg.MinSimilarity
	}

	filter := domain.CandidateFilter{
		From:     req.From,
		To:       req.To,
		Category: req.Category,
		Season:   req.Season,
	}
	if filter.From == "" || filter.To == "" {
		end := s.now().UTC()
		filter.To = end.Format("2006-01-02")
		filter.From = end.AddDate(0, 0, -s.cfg.DaysBack).Format("2006-01-02")
	}

	var resp Response

	// Phase 1: candidate selection.
	phase := time.Now()
	set, err := s.finder.FindCandidates(ctx, req.TenantID, filter, limit*OverfetchFactor)
	resp.Timings.Query = time.Since(phase)
	metrics.SearchPhaseDuration.WithLabelValues("query").Observe(resp.Timings.Query.Seconds())
	if err != nil {
		return Response{}, fmt.Errorf("find candidates: %w", err)
	}
	resp.Degraded = set.Degraded
	resp.Candidates = len(set.Items)
	metrics.SearchCandidatesTotal.WithLabelValues("queried").Add(float64(len(set.Items)))

	if len(set.Items) == 0 {
		resp.Results = []domain.ScoredItem{}
		s.logger.Info("Similarity search found no candidates",
			zap.String("tenant_id", req.TenantID),
			zap.String("from", filter.From), zap.String("to", filter.To))
		return resp, nil
	}

	// Phase 2: vector fetch. Candidates without an embedding key never had
	// a vector stored and are skipped up front.
	refs := make([]embedding.Ref, 0, len(set.Items))
	for _, it := range set.Items {
		if it.EmbeddingKey == "" {
			resp.Skipped++
			continue
		}
		refs = append(refs, embedding.Ref{ID: it.ProductID, Key: it.EmbeddingKey})
	}

	phase = time.Now()
	vectors, fm, err := s.fetcher.FetchBatch(ctx, refs)
	resp.Timings.Fetch = time.Since(phase)
	metrics.SearchPhaseDuration.WithLabelValues("fetch").Observe(resp.Timings.Fetch.Seconds())
	if err != nil {
		return Response{}, fmt.Errorf("fetch embeddings: %w", err)
	}

	// Phase 3: scoring.
	phase = time.Now()
	scored := make([]similarity.Candidate, 0, len(set.Items))
	for _, it := range set.Items {
		vec, ok := vectors[it.ProductID]
		if !ok {
			resp.Skipped++
			continue
		}
		sim, err := similarity.Cosine(req.Vector, vec)
		if err != nil {
			return Response{}, fmt.Errorf("score %s: %w", it.ProductID, err)
		}
		scored = append(scored, similarity.Candidate{Item: it, Similarity: sim})
	}
	resp.Timings.Score = time.Since(phase)
	metrics.SearchPhaseDuration.WithLabelValues("score").Observe(resp.Timings.Score.Seconds())
	metrics.SearchCandidatesTotal.WithLabelValues("scored").Add(float64(len(scored)))
	metrics.SearchCandidatesTotal.WithLabelValues("missing_embedding").Add(float64(resp.Skipped))
	if resp.Skipped > 0 {
		s.logger.Warn("Candidates skipped for missing embeddings",
			zap.String("tenant_id", req.TenantID),
			zap.Int("skipped", resp.Skipped),
			zap.Int64("fetch_failed", fm.Failed))
	}

	// Phase 4: ranking.
	phase = time.Now()
	top := similarity.TopK(scored, minScore, limit)
	resp.Timings.Rank = time.Since(phase)
	metrics.SearchPhaseDuration.WithLabelValues("rank").Observe(resp.Timings.Rank.Seconds())
	metrics.SearchCandidatesTotal.WithLabelValues("returned").Add(float64(len(top)))

	resp.Results = make([]domain.ScoredItem, len(top))
	for i, c := range top {
		resp.Results[i] = domain.ScoredItem{Item: c.Item, Similarity: c.Similarity}
	}

	s.logger.Info("Similarity search completed",
		zap.String("tenant_id", req.TenantID),
		zap.Int("candidates", resp.Candidates),
		zap.Int("results", len(resp.Results)),
		zap.Int("skipped", resp.Skipped),
		zap.Bool("degraded", resp.Degraded),
		zap.Duration("query", resp.Timings.Query),
		zap.Duration("fetch", resp.Timings.Fetch),
		zap.Duration("score", resp.Timings.Score),
		zap.Duration("rank", resp.Timings.Rank))

	return resp, nil
}
