package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jonwraymond/tiercache/auth"
	"github.com/jonwraymond/tiercache/cache"
	"github.com/jonwraymond/tiercache/fetch"
	"github.com/jonwraymond/tiercache/observe"
)

const maxRequestBytes = 1 << 20

type handlers struct {
	cache   *cache.Manager
	fetcher *fetch.Fetcher
	logger  observe.Logger
}

type statsResponse struct {
	Cache cache.ManagerStats `json:"cache"`
	Fetch *fetch.Stats       `json:"fetch,omitempty"`
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Cache: h.cache.Stats()}
	if h.fetcher != nil {
		s := h.fetcher.Stats()
		resp.Fetch = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// clear empties every tier and resets the counters.
func (h *handlers) clear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear(r.Context())
	h.logger.Info(r.Context(), "cache cleared", observe.F("subject", auth.SubjectFromContext(r.Context())))
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (h *handlers) cleanup(w http.ResponseWriter, r *http.Request) {
	res := h.cache.Cleanup(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"removed": res.Removed,
		"total":   res.Total(),
	})
}

type keyResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// getKey reads through the tiers allowed by ?priority (default critical).
// A hit is promoted like any other read.
func (h *handlers) getKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	prio := cache.PriorityCritical
	if p := r.URL.Query().Get("priority"); p != "" {
		var err error
		if prio, err = cache.ParsePriority(p); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if err := cache.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	v, ok := h.cache.Get(r.Context(), key, prio)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("key %q not cached", key))
		return
	}
	writeJSON(w, http.StatusOK, keyResponse{Key: key, Value: v})
}

func (h *handlers) deleteKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := cache.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": h.cache.Delete(r.Context(), key)})
}

type fetchRequest struct {
	URL          string            `json:"url"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         json.RawMessage   `json:"body,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	CacheTime    string            `json:"cacheTime,omitempty"`
	CacheKey     string            `json:"cacheKey,omitempty"`
	ForceRefresh bool              `json:"forceRefresh,omitempty"`
	Cache        *bool             `json:"cache,omitempty"`
	ResponseType string            `json:"responseType,omitempty"`
}

func (req fetchRequest) options() ([]fetch.Option, error) {
	opts := []fetch.Option{fetch.WithForceRefresh(req.ForceRefresh)}
	if req.Method != "" {
		opts = append(opts, fetch.WithMethod(req.Method))
	}
	for k, v := range req.Headers {
		opts = append(opts, fetch.WithHeader(k, v))
	}
	if len(req.Body) > 0 {
		opts = append(opts, fetch.WithBody(req.Body))
	}
	if req.Priority != "" {
		p, err := cache.ParsePriority(req.Priority)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fetch.WithPriority(p))
	}
	if req.CacheTime != "" {
		d, err := time.ParseDuration(req.CacheTime)
		if err != nil {
			return nil, fmt.Errorf("cacheTime: %w", err)
		}
		opts = append(opts, fetch.WithCacheTime(d))
	}
	if req.CacheKey != "" {
		opts = append(opts, fetch.WithCacheKey(req.CacheKey))
	}
	if req.Cache != nil {
		opts = append(opts, fetch.WithCache(*req.Cache))
	}
	rt, err := fetch.ParseResponseType(req.ResponseType)
	if err != nil {
		return nil, err
	}
	return append(opts, fetch.WithResponseType(rt)), nil
}

type fetchResponse struct {
	Key        string `json:"key"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Status     int    `json:"status,omitempty"`
	FromCache  bool   `json:"fromCache"`
	Stale      bool   `json:"stale"`
	Shared     bool   `json:"shared"`
	Attempts   int    `json:"attempts"`
	DurationMs int64  `json:"durationMs"`
}

// fetch proxies one request through the fetcher. An upstream failure is
// reported as 502 with the fetch metadata.
func (h *handlers) fetch(w http.ResponseWriter, r *http.Request) {
	if h.fetcher == nil {
		writeError(w, http.StatusNotImplemented, errors.New("fetcher not configured"))
		return
	}

	var req fetchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	opts, err := req.options()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := h.fetcher.Fetch(r.Context(), req.URL, opts...)
	if err != nil && resp == nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	out := fetchResponse{
		Key:        resp.Key,
		Data:       resp.Data,
		Status:     resp.Status,
		FromCache:  resp.FromCache,
		Stale:      resp.Stale,
		Shared:     resp.Shared,
		Attempts:   resp.Attempts,
		DurationMs: resp.Duration.Milliseconds(),
	}
	code := http.StatusOK
	switch {
	case errors.Is(resp.Err, fetch.ErrInvalidResource):
		code = http.StatusBadRequest
		out.Error = resp.Err.Error()
	case resp.Err != nil:
		code = http.StatusBadGateway
		out.Error = resp.Err.Error()
	}
	writeJSON(w, code, out)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
