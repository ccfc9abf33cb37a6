// Package chi exposes the HTTP API: similarity search, item ingest, cache
// stats, health, and metrics.
package chi

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/carousel-labs/pricedex/internal/cache"
	"github.com/carousel-labs/pricedex/internal/domain"
	searchuc "github.com/carousel-labs/pricedex/internal/usecase/search"
)

const maxBatchItems = 100

// Searcher runs similarity searches.
type Searcher interface {
	Similar(ctx context.Context, req searchuc.Request) (searchuc.Response, error)
}

// ItemStore ingests and reads sold items.
type ItemStore interface {
	Put(ctx context.Context, it domain.SoldItem) error
	BatchPut(ctx context.Context, items []domain.SoldItem) (int, error)
	Get(ctx context.Context, tenantID, productID string) (domain.SoldItem, error)
}

// ResponseCache caches serialized search responses.
type ResponseCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Stats() cache.Stats
}

// Pinger reports store liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers.
type Server struct {
	search   Searcher
	items    ItemStore
	cache    ResponseCache
	pinger   Pinger
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewServer creates an HTTP API server. cache may be nil to disable search
// response caching.
func NewServer(search Searcher, items ItemStore, respCache ResponseCache, pinger Pinger, cacheTTL time.Duration, logger *zap.Logger) *Server {
	return &Server{
		search:   search,
		items:    items,
		cache:    respCache,
		pinger:   pinger,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Register mounts every route on r. Middleware is the caller's concern.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/search/similar", s.searchSimilar)
	r.Put("/v1/items", s.putItem)
	r.Post("/v1/items/batch", s.batchPutItems)
	r.Get("/v1/items/{tenantID}/{productID}", s.getItem)
	r.Get("/v1/cache/stats", s.cacheStats)
	r.Get("/healthz", s.healthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type searchRequest struct {
	TenantID      string    `json:"tenant_id"`
	Vector        []float32 `json:"vector"`
	Limit         int       `json:"limit,omitempty"`
	MinSimilarity float64   `json:"min_similarity,omitempty"`
	Category      string    `json:"category,omitempty"`
	Season        string    `json:"season,omitempty"`
	From          string    `json:"from,omitempty"`
	To            string    `json:"to,omitempty"`
}

type searchResultItem struct {
	ProductID  string  `json:"product_id"`
	SellerID   string  `json:"seller_id"`
	SoldDate   string  `json:"sold_date"`
	PriceCents int64   `json:"price_cents"`
	Category   string  `json:"category"`
	Brand      string  `json:"brand,omitempty"`
	Condition  string  `json:"condition,omitempty"`
	Season     string  `json:"season,omitempty"`
	Similarity float64 `json:"similarity"`
}

type searchTimings struct {
	QueryMs float64 `json:"query_ms"`
	FetchMs float64 `json:"fetch_ms"`
	ScoreMs float64 `json:"score_ms"`
	RankMs  float64 `json:"rank_ms"`
}

type searchResponse struct {
	Items      []searchResultItem `json:"items"`
	Candidates int                `json:"candidates"`
	Skipped    int                `json:"skipped,omitempty"`
	Degraded   bool               `json:"degraded,omitempty"`
	Cached     bool               `json:"cached,omitempty"`
	Timings    searchTimings      `json:"timings"`
}

// searchSimilar handles POST /v1/search/similar.
func (s *Server) searchSimilar(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	key := searchCacheKey(req)
	if s.cache != nil {
		var cached searchResponse
		if hit, err := s.cache.GetJSON(r.Context(), key, &cached); err == nil && hit {
			cached.Cached = true
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	result, err := s.search.Similar(r.Context(), searchuc.Request{
		TenantID:      req.TenantID,
		Vector:        req.Vector,
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
		Category:      req.Category,
		Season:        req.Season,
		From:          req.From,
		To:            req.To,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := searchResponse{
		Items:      make([]searchResultItem, len(result.Results)),
		Candidates: result.Candidates,
		Skipped:    result.Skipped,
		Degraded:   result.Degraded,
		Timings: searchTimings{
			QueryMs: durationMs(result.Timings.Query),
			FetchMs: durationMs(result.Timings.Fetch),
			ScoreMs: durationMs(result.Timings.Score),
			RankMs:  durationMs(result.Timings.Rank),
		},
	}
	for i, res := range result.Results {
		resp.Items[i] = searchResultItem{
			ProductID:  res.Item.ProductID,
			SellerID:   res.Item.SellerID,
			SoldDate:   res.Item.SoldDate,
			PriceCents: res.Item.PriceCents,
			Category:   res.Item.Category,
			Brand:      res.Item.Brand,
			Condition:  res.Item.Condition,
			Season:     res.Item.Season,
			Similarity: res.Similarity,
		}
	}

	// Degraded results are partial; caching them would pin the gap until TTL.
	if s.cache != nil && !resp.Degraded {
		_ = s.cache.SetJSON(r.Context(), key, resp, s.cacheTTL)
	}

	writeJSON(w, http.StatusOK, resp)
}

// searchCacheKey hashes the whole request so any parameter change misses.
func searchCacheKey(req searchRequest) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%d|%g|%s|%s|%s|%s|",
		req.TenantID, req.Limit, req.MinSimilarity, req.Category, req.Season, req.From, req.To)
	var buf [4]byte
	for _, v := range req.Vector {
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(v*1e6)))
		_, _ = h.Write(buf[:])
	}
	return fmt.Sprintf("search:%016x", h.Sum64())
}

type itemPayload struct {
	TenantID     string `json:"tenant_id"`
	ProductID    string `json:"product_id"`
	SellerID     string `json:"seller_id"`
	SoldDate     string `json:"sold_date"`
	PriceCents   int64  `json:"price_cents"`
	Category     string `json:"category"`
	Brand        string `json:"brand,omitempty"`
	Condition    string `json:"condition,omitempty"`
	Season       string `json:"season,omitempty"`
	Source       string `json:"source,omitempty"`
	EmbeddingKey string `json:"embedding_key,omitempty"`
}

func (p itemPayload) toDomain() domain.SoldItem {
	return domain.SoldItem{
		TenantID:     p.TenantID,
		ProductID:    p.ProductID,
		SellerID:     p.SellerID,
		SoldDate:     p.SoldDate,
		PriceCents:   p.PriceCents,
		Category:     p.Category,
		Brand:        p.Brand,
		Condition:    p.Condition,
		Season:       p.Season,
		Source:       p.Source,
		EmbeddingKey: p.EmbeddingKey,
	}
}

func itemFromDomain(it domain.SoldItem) itemPayload {
	return itemPayload{
		TenantID:     it.TenantID,
		ProductID:    it.ProductID,
		SellerID:     it.SellerID,
		SoldDate:     it.SoldDate,
		PriceCents:   it.PriceCents,
		Category:     it.Category,
		Brand:        it.Brand,
		Condition:    it.Condition,
		Season:       it.Season,
		Source:       it.Source,
		EmbeddingKey: it.EmbeddingKey,
	}
}

// putItem handles PUT /v1/items.
func (s *Server) putItem(w http.ResponseWriter, r *http.Request) {
	var req itemPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	if err := s.items.Put(r.Context(), req.toDomain()); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v1/items/%s/%s", req.TenantID, req.ProductID))
	writeJSON(w, http.StatusCreated, req)
}

type batchPutRequest struct {
	Items []itemPayload `json:"items"`
}

type batchPutResponse struct {
	Received int `json:"received"`
	Written  int `json:"written"`
	Skipped  int `json:"skipped"`
}

// batchPutItems handles POST /v1/items/batch.
func (s *Server) batchPutItems(w http.ResponseWriter, r *http.Request) {
	var req batchPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Items) == 0 || len(req.Items) > maxBatchItems {
		writeError(w, http.StatusBadRequest, "validation_failed",
			fmt.Sprintf("items count must be between 1 and %d", maxBatchItems))
		return
	}

	items := make([]domain.SoldItem, len(req.Items))
	for i, p := range req.Items {
		items[i] = p.toDomain()
	}

	written, err := s.items.BatchPut(r.Context(), items)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchPutResponse{
		Received: len(req.Items),
		Written:  written,
		Skipped:  len(req.Items) - written,
	})
}

// getItem handles GET /v1/items/{tenantID}/{productID}.
func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	productID := chi.URLParam(r, "productID")

	it, err := s.items.Get(r.Context(), tenantID, productID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, itemFromDomain(it))
}

type cacheStatsResponse struct {
	Entries       int   `json:"entries"`
	L1Hits        int64 `json:"l1_hits"`
	L2Hits        int64 `json:"l2_hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	L2WriteOK     int64 `json:"l2_write_ok"`
	L2WriteErrors int64 `json:"l2_write_errors"`
	L2WriteSkip   int64 `json:"l2_write_skipped"`
}

// cacheStats handles GET /v1/cache/stats.
func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSON(w, http.StatusOK, cacheStatsResponse{})
		return
	}
	st := s.cache.Stats()
	writeJSON(w, http.StatusOK, cacheStatsResponse{
		Entries:       st.Entries,
		L1Hits:        st.L1Hits,
		L2Hits:        st.L2Hits,
		Misses:        st.Misses,
		Evictions:     st.Evictions,
		L2WriteOK:     st.L2WriteOK,
		L2WriteErrors: st.L2WriteErrors,
		L2WriteSkip:   st.L2WriteSkipped,
	})
}

// healthz handles GET /healthz.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	if err := s.pinger.Ping(r.Context()); err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]string{"status": status})
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns the sentinel's message without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrDimensionMismatch,
		domain.ErrItemNotFound,
		domain.ErrNotFound,
		domain.ErrCircuitOpen,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	msg := safeDomainMessage(err)
	switch {
	case errors.Is(err, domain.ErrDimensionMismatch):
		writeError(w, http.StatusBadRequest, "dimension_mismatch", msg)
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", msg)
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", msg)
	case errors.Is(err, domain.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "unavailable", msg)
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
