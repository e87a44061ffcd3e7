package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bricklore/brickengine/internal/catalog"
	"github.com/bricklore/brickengine/internal/engine"
	"github.com/bricklore/brickengine/internal/observability"
	"github.com/bricklore/brickengine/internal/store"
)

// Handlers bundles the HTTP handlers around the engine.
type Handlers struct {
	logger *observability.Logger
	engine *engine.Engine
}

// NewHandlers creates the handler set.
func NewHandlers(logger *observability.Logger, eng *engine.Engine) *Handlers {
	return &Handlers{
		logger: logger.WithComponent("api"),
		engine: eng,
	}
}

// QueryRequestDTO represents the API request for a query.
type QueryRequestDTO struct {
	Query   string          `json:"query"`
	Filters *catalog.Filter `json:"filters,omitempty"`
}

// RunLoad triggers a load cycle. Overlapping requests get 409.
func (h *Handlers) RunLoad(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunLoadCycle(r.Context())
	if err != nil {
		if errors.Is(err, engine.ErrLoadInProgress) {
			h.writeError(w, http.StatusConflict, "load cycle already in progress", "")
			return
		}
		h.logger.Error().Err(err).Msg("Load cycle failed")
		h.writeError(w, http.StatusInternalServerError, "load cycle failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// ListLoads returns recent load cycles.
func (h *Handlers) ListLoads(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := h.engine.LoadHistory(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Load history failed")
		h.writeError(w, http.StatusInternalServerError, "load history failed", err.Error())
		return
	}
	if history == nil {
		history = []*store.LoadRecord{}
	}
	h.writeJSON(w, http.StatusOK, history)
}

// Query answers a natural-language query.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	answer, err := h.engine.AnswerQuery(r.Context(), req.Query, req.Filters)
	if err != nil {
		h.logger.Error().Err(err).Str("query", req.Query).Msg("Query failed")
		h.writeError(w, http.StatusInternalServerError, "query failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, answer)
}

// ListItems lists items from the active snapshot with optional filters.
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid filter", err.Error())
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.engine.ListItems(r.Context(), filter, limit, offset)
	if err != nil {
		if errors.Is(err, store.ErrNoSnapshot) {
			h.writeJSON(w, http.StatusOK, []*catalog.LegoItem{})
			return
		}
		h.logger.Error().Err(err).Msg("List items failed")
		h.writeError(w, http.StatusInternalServerError, "list items failed", err.Error())
		return
	}
	if items == nil {
		items = []*catalog.LegoItem{}
	}
	h.writeJSON(w, http.StatusOK, items)
}

// GetItem returns one item by identity key.
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "identityKey")

	item, err := h.engine.GetItem(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNoSnapshot) {
			h.writeError(w, http.StatusNotFound, "item not found", "")
			return
		}
		h.logger.Error().Err(err).Str("identity_key", key).Msg("Get item failed")
		h.writeError(w, http.StatusInternalServerError, "get item failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

// Stats summarizes the active snapshot and index.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Stats failed")
		h.writeError(w, http.StatusInternalServerError, "stats failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// filterFromQuery parses catalog filters from URL query parameters.
func filterFromQuery(r *http.Request) (*catalog.Filter, error) {
	q := r.URL.Query()
	filter := &catalog.Filter{
		Theme:     q.Get("theme"),
		SetNumber: q.Get("set_number"),
	}

	for param, dst := range map[string]**int{
		"year_min":   &filter.YearMin,
		"year_max":   &filter.YearMax,
		"pieces_min": &filter.PiecesMin,
		"pieces_max": &filter.PiecesMax,
	} {
		if raw := q.Get(param); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, err
			}
			*dst = &v
		}
	}
	for param, dst := range map[string]**float64{
		"price_min": &filter.PriceMin,
		"price_max": &filter.PriceMax,
	} {
		if raw := q.Get(param); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, err
			}
			*dst = &v
		}
	}
	if raw := q.Get("min_quality"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		filter.MinQuality = v
	}
	return filter, nil
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Response encode failed")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{"error": message}
	if detail != "" {
		resp["detail"] = detail
	}
	json.NewEncoder(w).Encode(resp)
}
