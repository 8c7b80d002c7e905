// Package proxy exposes the price API over local HTTP so browser-based
// dashboards can query it without shipping the API key to the client. The
// key stays server-side; the browser sees only relayed payloads.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"resalescout/internal/cache"
	"resalescout/internal/keepa"
	"resalescout/internal/model"
)

// KeepaSource is the upstream the relay forwards to.
type KeepaSource interface {
	Raw(ctx context.Context, asin string) ([]byte, error)
}

// Handler serves the relay endpoints.
type Handler struct {
	source   KeepaSource
	logger   *log.Logger
	cache    *cache.Cache
	cacheTTL time.Duration
	domain   int
}

// NewHandler builds the relay handler.
func NewHandler(source KeepaSource, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{source: source, logger: logger, domain: keepa.DomainJP}
}

// WithCache enables payload caching. Repeat requests for the same ASIN
// inside the TTL skip the upstream entirely.
func (h *Handler) WithCache(c *cache.Cache, ttl time.Duration) *Handler {
	h.cache = c
	h.cacheTTL = ttl
	return h
}

// Router wires the routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/keepa-data/{asin}", h.KeepaData).Methods(http.MethodGet)
	r.HandleFunc("/api/keepa-data-mock/{asin}", h.KeepaDataMock).Methods(http.MethodGet)
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// KeepaData handles GET /api/keepa-data/{asin}: validate, forward, relay
// the upstream payload untouched.
func (h *Handler) KeepaData(w http.ResponseWriter, r *http.Request) {
	asin, err := model.NormalizeASIN(mux.Vars(r)["asin"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ASIN")
		return
	}

	key := cache.PayloadKey(h.domain, asin)
	if h.cache != nil {
		if body, ok := h.cache.Get(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
	}

	body, err := h.source.Raw(r.Context(), asin)
	if err != nil {
		status, msg := upstreamStatus(err)
		h.logger.Printf("relay %s: %v", asin, err)
		writeError(w, status, msg)
		return
	}
	if h.cache != nil {
		if err := h.cache.Put(key, body, h.cacheTTL); err != nil {
			h.logger.Printf("cache %s: %v", asin, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func upstreamStatus(err error) (int, string) {
	switch {
	case errors.Is(err, keepa.ErrMissingAPIKey):
		return http.StatusServiceUnavailable, "API key not configured"
	case errors.Is(err, keepa.ErrUnauthorized):
		return http.StatusBadGateway, "API key rejected upstream"
	case errors.Is(err, keepa.ErrNotFound):
		return http.StatusNotFound, "no product for ASIN"
	default:
		return http.StatusBadGateway, "upstream request failed"
	}
}

// KeepaDataMock handles GET /api/keepa-data-mock/{asin}: a deterministic
// payload in the upstream's shape, for dashboard work without burning
// tokens.
func (h *Handler) KeepaDataMock(w http.ResponseWriter, r *http.Request) {
	asin, err := model.NormalizeASIN(mux.Vars(r)["asin"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ASIN")
		return
	}
	writeJSON(w, http.StatusOK, mockPayload(asin))
}

func mockPayload(asin string) keepa.Payload {
	return keepa.Payload{
		Products: []keepa.ProductPayload{{
			ASIN:      asin,
			Title:     "サンプル商品 " + asin,
			ImagesCSV: "41sample" + asin[:4] + "._AC_SL1200_",
			CSV: [][]int{
				0:  {1, 20199},
				1:  {1, 19720},
				2:  {1, 15000},
				3:  {1, 1280},
				10: {},
				11: {1, 4},
				12: {1, 2},
				13: {1, 2},
				14: {1, 37},
			},
			Stats: &keepa.Stats{
				Current: []int{2019900, 1972000, 1500000},
				Avg30:   []int{-1, -1, 1480000},
				Avg90:   []int{-1, -1, 1520000},
				Avg180:  []int{-1, -1, 1490000},
			},
			CategoryTree: []keepa.Category{{Name: "ホーム&キッチン"}},
			Manufacturer: "サンプルメーカー",
		}},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
