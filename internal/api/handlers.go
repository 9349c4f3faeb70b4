package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
	"github.com/rvdberg/tweedekans-monitor/internal/parser"
)

const (
	defaultIntervalMinutes = 60
	defaultHistoryLimit    = 50
	maxHistoryLimit        = 500
)

// EntryStore is the slice of the entry repository the API needs.
type EntryStore interface {
	CreateEntry(ctx context.Context, entry *models.MonitoredEntry) error
	GetEntry(ctx context.Context, userID string, id uuid.UUID) (*models.MonitoredEntry, error)
	ListEntries(ctx context.Context, userID string) ([]*models.MonitoredEntry, error)
	UpdateEntry(ctx context.Context, userID string, id uuid.UUID, update models.EntryUpdate) (*models.MonitoredEntry, error)
	DeleteEntry(ctx context.Context, userID string, id uuid.UUID) (bool, error)
	CountEntries(ctx context.Context) (total, active int64, err error)
}

// HistoryStore serves an entry's check log and price series.
type HistoryStore interface {
	ListCheckRecords(ctx context.Context, entryID uuid.UUID, limit int) ([]*models.CheckRecord, error)
	ListPriceSamples(ctx context.Context, entryID uuid.UUID, limit int) ([]*models.PriceSample, error)
}

// Refresher runs one on-demand check, bypassing the interval gate.
type Refresher interface {
	CheckEntry(ctx context.Context, entry *models.MonitoredEntry) error
}

// OutboxStats exposes outbox depth for the health endpoint.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	entries     EntryStore
	history     HistoryStore
	refresher   Refresher
	outbox      OutboxStats
	minInterval int
	logger      *slog.Logger
}

func NewHandlers(entries EntryStore, history HistoryStore, refresher Refresher, outbox OutboxStats, minIntervalMinutes int, logger *slog.Logger) *Handlers {
	return &Handlers{
		entries:     entries,
		history:     history,
		refresher:   refresher,
		outbox:      outbox,
		minInterval: minIntervalMinutes,
		logger:      logger.With("component", "api"),
	}
}

// CreateEntryRequest represents a new watch request
type CreateEntryRequest struct {
	ProductURL           string `json:"product_url"`
	UserEmail            string `json:"user_email"`
	CheckIntervalMinutes int    `json:"check_interval_minutes"`
}

// CreateEntry registers a product page for monitoring.
func (h *Handlers) CreateEntry(w http.ResponseWriter, r *http.Request) {
	userID := h.requireUser(w, r)
	if userID == "" {
		return
	}

	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ProductURL == "" || req.UserEmail == "" {
		h.respondError(w, http.StatusBadRequest, "product_url and user_email are required")
		return
	}

	if _, ok := parser.ExtractProductID(req.ProductURL); !ok {
		h.respondError(w, http.StatusBadRequest, "product_url is not a recognized product page")
		return
	}

	interval := req.CheckIntervalMinutes
	if interval == 0 {
		interval = defaultIntervalMinutes
	}
	if interval < h.minInterval {
		interval = h.minInterval
	}

	entry := &models.MonitoredEntry{
		UserID:               userID,
		ProductURL:           req.ProductURL,
		UserEmail:            req.UserEmail,
		CheckIntervalMinutes: interval,
		Active:               true,
	}

	if err := h.entries.CreateEntry(r.Context(), entry); err != nil {
		h.logger.Error("failed to create entry", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create entry")
		return
	}

	h.respondJSON(w, http.StatusCreated, entry)
}

// ListEntries returns all entries for the requesting user.
func (h *Handlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID := h.requireUser(w, r)
	if userID == "" {
		return
	}

	entries, err := h.entries.ListEntries(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list entries", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}

	if entries == nil {
		entries = []*models.MonitoredEntry{}
	}
	h.respondJSON(w, http.StatusOK, entries)
}

// GetEntry returns one entry owned by the requesting user.
func (h *Handlers) GetEntry(w http.ResponseWriter, r *http.Request) {
	userID, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	entry, err := h.entries.GetEntry(r.Context(), userID, entryID)
	if err != nil {
		h.logger.Error("failed to get entry", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get entry")
		return
	}
	if entry == nil {
		h.respondError(w, http.StatusNotFound, "entry not found")
		return
	}

	h.respondJSON(w, http.StatusOK, entry)
}

// UpdateEntryRequest carries the mutable entry fields; omitted fields are
// left unchanged.
type UpdateEntryRequest struct {
	ProductURL           *string `json:"product_url,omitempty"`
	UserEmail            *string `json:"user_email,omitempty"`
	CheckIntervalMinutes *int    `json:"check_interval_minutes,omitempty"`
	Active               *bool   `json:"active,omitempty"`
}

// UpdateEntry partially updates an entry.
func (h *Handlers) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	userID, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	var req UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ProductURL != nil {
		if _, ok := parser.ExtractProductID(*req.ProductURL); !ok {
			h.respondError(w, http.StatusBadRequest, "product_url is not a recognized product page")
			return
		}
	}
	if req.CheckIntervalMinutes != nil && *req.CheckIntervalMinutes < h.minInterval {
		clamped := h.minInterval
		req.CheckIntervalMinutes = &clamped
	}

	entry, err := h.entries.UpdateEntry(r.Context(), userID, entryID, models.EntryUpdate{
		ProductURL:           req.ProductURL,
		UserEmail:            req.UserEmail,
		CheckIntervalMinutes: req.CheckIntervalMinutes,
		Active:               req.Active,
	})
	if err != nil {
		h.logger.Error("failed to update entry", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to update entry")
		return
	}
	if entry == nil {
		h.respondError(w, http.StatusNotFound, "entry not found")
		return
	}

	h.respondJSON(w, http.StatusOK, entry)
}

// DeleteEntry removes an entry and its history.
func (h *Handlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	deleted, err := h.entries.DeleteEntry(r.Context(), userID, entryID)
	if err != nil {
		h.logger.Error("failed to delete entry", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to delete entry")
		return
	}
	if !deleted {
		h.respondError(w, http.StatusNotFound, "entry not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RefreshEntry runs a synchronous check, bypassing the interval gate, and
// returns the refreshed entry.
func (h *Handlers) RefreshEntry(w http.ResponseWriter, r *http.Request) {
	userID, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	entry, err := h.entries.GetEntry(r.Context(), userID, entryID)
	if err != nil {
		h.logger.Error("failed to get entry", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get entry")
		return
	}
	if entry == nil {
		h.respondError(w, http.StatusNotFound, "entry not found")
		return
	}

	if err := h.refresher.CheckEntry(r.Context(), entry); err != nil {
		h.logger.Warn("on-demand check failed", "entry_id", entry.ID, "error", err)
		h.respondError(w, http.StatusBadGateway, "check failed: "+err.Error())
		return
	}

	refreshed, err := h.entries.GetEntry(r.Context(), userID, entryID)
	if err != nil || refreshed == nil {
		h.respondJSON(w, http.StatusOK, entry)
		return
	}

	h.respondJSON(w, http.StatusOK, refreshed)
}

// ListChecks returns the most recent check records for an entry.
func (h *Handlers) ListChecks(w http.ResponseWriter, r *http.Request) {
	h.listHistory(w, r, func(ctx context.Context, entryID uuid.UUID, limit int) (any, error) {
		records, err := h.history.ListCheckRecords(ctx, entryID, limit)
		if records == nil {
			records = []*models.CheckRecord{}
		}
		return records, err
	})
}

// ListPrices returns the most recent price samples for an entry.
func (h *Handlers) ListPrices(w http.ResponseWriter, r *http.Request) {
	h.listHistory(w, r, func(ctx context.Context, entryID uuid.UUID, limit int) (any, error) {
		samples, err := h.history.ListPriceSamples(ctx, entryID, limit)
		if samples == nil {
			samples = []*models.PriceSample{}
		}
		return samples, err
	})
}

func (h *Handlers) listHistory(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, entryID uuid.UUID, limit int) (any, error)) {
	userID, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	// History is scoped through entry ownership.
	entry, err := h.entries.GetEntry(r.Context(), userID, entryID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get entry")
		return
	}
	if entry == nil {
		h.respondError(w, http.StatusNotFound, "entry not found")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	result, err := list(r.Context(), entryID, limit)
	if err != nil {
		h.logger.Error("failed to list history", "entry_id", entryID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// StatsResponse summarizes monitor state.
type StatsResponse struct {
	TotalEntries  int64 `json:"total_entries"`
	ActiveEntries int64 `json:"active_entries"`
}

// GetStats handles statistics retrieval
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	total, active, err := h.entries.CountEntries(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, StatsResponse{
		TotalEntries:  total,
		ActiveEntries: active,
	})
}

// Health reports service status including outbox depth.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if h.outbox != nil {
		pendingCount, _ := h.outbox.GetPendingCount(r.Context())
		deadLetterCount, _ := h.outbox.GetDeadLetterCount(r.Context())

		health["outbox"] = map[string]interface{}{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}

		if pendingCount > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > 100 {
			health["status"] = "warning"
			health["message"] = "High number of dead letter events"
		}
	}

	h.respondJSON(w, http.StatusOK, health)
}

// requireUser extracts the caller identity. Auth proper lives at the edge
// proxy; the API trusts the forwarded header.
func (h *Handlers) requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "X-User-ID header is required")
	}
	return userID
}

func (h *Handlers) entryScope(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	userID := h.requireUser(w, r)
	if userID == "" {
		return "", uuid.Nil, false
	}

	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid entry ID")
		return "", uuid.Nil, false
	}

	return userID, entryID, true
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
