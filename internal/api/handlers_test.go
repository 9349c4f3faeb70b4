package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
)

type fakeEntryStore struct {
	entries map[uuid.UUID]*models.MonitoredEntry
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{entries: make(map[uuid.UUID]*models.MonitoredEntry)}
}

func (f *fakeEntryStore) CreateEntry(_ context.Context, entry *models.MonitoredEntry) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeEntryStore) GetEntry(_ context.Context, userID string, id uuid.UUID) (*models.MonitoredEntry, error) {
	entry, ok := f.entries[id]
	if !ok || entry.UserID != userID {
		return nil, nil
	}
	return entry, nil
}

func (f *fakeEntryStore) ListEntries(_ context.Context, userID string) ([]*models.MonitoredEntry, error) {
	var out []*models.MonitoredEntry
	for _, entry := range f.entries {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeEntryStore) UpdateEntry(_ context.Context, userID string, id uuid.UUID, update models.EntryUpdate) (*models.MonitoredEntry, error) {
	entry, ok := f.entries[id]
	if !ok || entry.UserID != userID {
		return nil, nil
	}
	if update.ProductURL != nil {
		entry.ProductURL = *update.ProductURL
	}
	if update.UserEmail != nil {
		entry.UserEmail = *update.UserEmail
	}
	if update.CheckIntervalMinutes != nil {
		entry.CheckIntervalMinutes = *update.CheckIntervalMinutes
	}
	if update.Active != nil {
		entry.Active = *update.Active
	}
	return entry, nil
}

func (f *fakeEntryStore) DeleteEntry(_ context.Context, userID string, id uuid.UUID) (bool, error) {
	entry, ok := f.entries[id]
	if !ok || entry.UserID != userID {
		return false, nil
	}
	delete(f.entries, id)
	return true, nil
}

func (f *fakeEntryStore) CountEntries(context.Context) (int64, int64, error) {
	var total, active int64
	for _, entry := range f.entries {
		total++
		if entry.Active {
			active++
		}
	}
	return total, active, nil
}

type fakeHistoryStore struct {
	records []*models.CheckRecord
	samples []*models.PriceSample
}

func (f *fakeHistoryStore) ListCheckRecords(_ context.Context, entryID uuid.UUID, limit int) ([]*models.CheckRecord, error) {
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeHistoryStore) ListPriceSamples(_ context.Context, entryID uuid.UUID, limit int) ([]*models.PriceSample, error) {
	if limit < len(f.samples) {
		return f.samples[:limit], nil
	}
	return f.samples, nil
}

type fakeRefresher struct {
	err   error
	calls int
}

func (f *fakeRefresher) CheckEntry(_ context.Context, entry *models.MonitoredEntry) error {
	f.calls++
	return f.err
}

type fakeOutboxStats struct {
	pending    int64
	deadLetter int64
}

func (f *fakeOutboxStats) GetPendingCount(context.Context) (int64, error)    { return f.pending, nil }
func (f *fakeOutboxStats) GetDeadLetterCount(context.Context) (int64, error) { return f.deadLetter, nil }

type testEnv struct {
	store     *fakeEntryStore
	history   *fakeHistoryStore
	refresher *fakeRefresher
	outbox    *fakeOutboxStats
	router    http.Handler
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:     newFakeEntryStore(),
		history:   &fakeHistoryStore{},
		refresher: &fakeRefresher{},
		outbox:    &fakeOutboxStats{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := NewHandlers(env.store, env.history, env.refresher, env.outbox, 15, logger)
	env.router = NewRouter(handlers)
	return env
}

func (e *testEnv) request(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedEntry(userID string) *models.MonitoredEntry {
	entry := &models.MonitoredEntry{
		UserID:               userID,
		ProductURL:           "https://www.coolblue.nl/product/123456/samsung.html",
		UserEmail:            "user@example.com",
		CheckIntervalMinutes: 60,
		Active:               true,
	}
	_ = e.store.CreateEntry(context.Background(), entry)
	return entry
}

func TestCreateEntry(t *testing.T) {
	env := newTestEnv()

	rec := env.request(t, http.MethodPost, "/api/v1/entries", "user-1", CreateEntryRequest{
		ProductURL: "https://www.coolblue.nl/product/123456/samsung.html",
		UserEmail:  "user@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry models.MonitoredEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, defaultIntervalMinutes, entry.CheckIntervalMinutes)
	assert.True(t, entry.Active)
}

func TestCreateEntryClampsInterval(t *testing.T) {
	env := newTestEnv()

	rec := env.request(t, http.MethodPost, "/api/v1/entries", "user-1", CreateEntryRequest{
		ProductURL:           "https://www.coolblue.nl/product/123456/samsung.html",
		UserEmail:            "user@example.com",
		CheckIntervalMinutes: 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry models.MonitoredEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, 15, entry.CheckIntervalMinutes, "interval below floor is clamped")
}

func TestCreateEntryRejectsNonProductURL(t *testing.T) {
	env := newTestEnv()

	rec := env.request(t, http.MethodPost, "/api/v1/entries", "user-1", CreateEntryRequest{
		ProductURL: "https://www.coolblue.nl/zoeken?query=telefoon",
		UserEmail:  "user@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateEntryRequiresUser(t *testing.T) {
	env := newTestEnv()

	rec := env.request(t, http.MethodPost, "/api/v1/entries", "", CreateEntryRequest{
		ProductURL: "https://www.coolblue.nl/product/123456/samsung.html",
		UserEmail:  "user@example.com",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetEntryScopedToOwner(t *testing.T) {
	env := newTestEnv()
	entry := env.seedEntry("user-1")

	rec := env.request(t, http.MethodGet, "/api/v1/entries/"+entry.ID.String(), "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/entries/"+entry.ID.String(), "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users cannot see the entry")
}

func TestUpdateEntry(t *testing.T) {
	env := newTestEnv()
	entry := env.seedEntry("user-1")

	inactive := false
	interval := 5
	rec := env.request(t, http.MethodPatch, "/api/v1/entries/"+entry.ID.String(), "user-1", UpdateEntryRequest{
		Active:               &inactive,
		CheckIntervalMinutes: &interval,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.MonitoredEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.False(t, updated.Active)
	assert.Equal(t, 15, updated.CheckIntervalMinutes)
}

func TestDeleteEntry(t *testing.T) {
	env := newTestEnv()
	entry := env.seedEntry("user-1")

	rec := env.request(t, http.MethodDelete, "/api/v1/entries/"+entry.ID.String(), "user-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.request(t, http.MethodDelete, "/api/v1/entries/"+entry.ID.String(), "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshEntry(t *testing.T) {
	env := newTestEnv()
	entry := env.seedEntry("user-1")

	rec := env.request(t, http.MethodPost, "/api/v1/entries/"+entry.ID.String()+"/refresh", "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.refresher.calls)
}

func TestRefreshEntrySurfacesFailure(t *testing.T) {
	env := newTestEnv()
	entry := env.seedEntry("user-1")
	env.refresher.err = errors.New("all scrape strategies failed")

	rec := env.request(t, http.MethodPost, "/api/v1/entries/"+entry.ID.String()+"/refresh", "user-1", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListChecks(t *testing.T) {
	env := newTestEnv()
	entry := env.seedEntry("user-1")

	for i := 0; i < 3; i++ {
		env.history.records = append(env.history.records, &models.CheckRecord{
			ID:      uuid.New(),
			EntryID: entry.ID,
			Status:  models.CheckStatusSuccess,
		})
	}

	rec := env.request(t, http.MethodGet, "/api/v1/entries/"+entry.ID.String()+"/checks?limit=2", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []*models.CheckRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestListPricesEmpty(t *testing.T) {
	env := newTestEnv()
	entry := env.seedEntry("user-1")

	rec := env.request(t, http.MethodGet, "/api/v1/entries/"+entry.ID.String()+"/prices", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestStats(t *testing.T) {
	env := newTestEnv()
	env.seedEntry("user-1")
	inactive := env.seedEntry("user-2")
	inactive.Active = false

	rec := env.request(t, http.MethodGet, "/api/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, int64(1), stats.ActiveEntries)
}

func TestHealthReportsOutboxDepth(t *testing.T) {
	env := newTestEnv()
	env.outbox.pending = 2000

	rec := env.request(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "warning", health["status"])

	outbox := health["outbox"].(map[string]any)
	assert.Equal(t, float64(2000), outbox["pending"])
}
