package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
)

type fakeStore struct {
	entries      []*models.MonitoredEntry
	listErr      error
	scraped      map[uuid.UUID]models.ScrapedFields
	lastChecked  map[uuid.UUID]time.Time
	lastNotified map[uuid.UUID]time.Time
	updateErr    error
}

func newFakeStore(entries ...*models.MonitoredEntry) *fakeStore {
	return &fakeStore{
		entries:      entries,
		scraped:      make(map[uuid.UUID]models.ScrapedFields),
		lastChecked:  make(map[uuid.UUID]time.Time),
		lastNotified: make(map[uuid.UUID]time.Time),
	}
}

func (f *fakeStore) ListActiveEntries(context.Context) ([]*models.MonitoredEntry, error) {
	return f.entries, f.listErr
}

func (f *fakeStore) UpdateScrapedFields(_ context.Context, id uuid.UUID, fields models.ScrapedFields) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.scraped[id] = fields
	return nil
}

func (f *fakeStore) StampLastChecked(_ context.Context, id uuid.UUID, checkedAt time.Time) error {
	f.lastChecked[id] = checkedAt
	return nil
}

func (f *fakeStore) StampLastNotified(_ context.Context, id uuid.UUID, notifiedAt time.Time) error {
	f.lastNotified[id] = notifiedAt
	return nil
}

type fakeHistory struct {
	records []*models.CheckRecord
	samples []*models.PriceSample
}

func (f *fakeHistory) AppendCheckRecord(_ context.Context, record *models.CheckRecord) error {
	f.records = append(f.records, record)
	return nil
}

func (f *fakeHistory) AppendPriceSample(_ context.Context, sample *models.PriceSample) error {
	f.samples = append(f.samples, sample)
	return nil
}

type fakeScraper struct {
	results map[string]*models.ProductData
	errs    map[string]error
	calls   map[string]int
}

func newFakeScraper() *fakeScraper {
	return &fakeScraper{
		results: make(map[string]*models.ProductData),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (*models.ProductData, error) {
	f.calls[url]++
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	data := *f.results[url]
	return &data, nil
}

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) NotifyAvailability(context.Context, *models.MonitoredEntry, *models.ProductData) error {
	f.calls++
	return f.err
}

type fakePublisher struct {
	calls int
}

func (f *fakePublisher) PublishAvailability(context.Context, *models.MonitoredEntry, *models.ProductData, time.Time) error {
	f.calls++
	return nil
}

func testScheduler(store *fakeStore, history *fakeHistory, scraper *fakeScraper, notifier *fakeNotifier, publisher *fakePublisher) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(store, history, scraper, notifier, publisher, 5*time.Minute, logger)
}

func testEntry(url string, intervalMinutes int) *models.MonitoredEntry {
	return &models.MonitoredEntry{
		ID:                   uuid.New(),
		UserID:               "user-1",
		ProductURL:           url,
		UserEmail:            "user@example.com",
		CheckIntervalMinutes: intervalMinutes,
		Active:               true,
	}
}

func availableData() *models.ProductData {
	original := int64(65000)
	discount := int64(58600)
	return &models.ProductData{
		Name:              "Samsung Galaxy S24",
		OriginalPrice:     &original,
		DiscountPrice:     &discount,
		DiscountAvailable: true,
	}
}

func unavailableData() *models.ProductData {
	original := int64(65000)
	return &models.ProductData{
		Name:          "Samsung Galaxy S24",
		OriginalPrice: &original,
	}
}

func TestSweepHonorsPerEntryInterval(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := testEntry("https://www.coolblue.nl/product/1/a.html", 60)
	checkedAt := now.Add(-30 * time.Minute)
	fresh.LastCheckedAt = &checkedAt

	overdue := testEntry("https://www.coolblue.nl/product/2/b.html", 60)
	staleAt := now.Add(-61 * time.Minute)
	overdue.LastCheckedAt = &staleAt

	never := testEntry("https://www.coolblue.nl/product/3/c.html", 60)

	store := newFakeStore(fresh, overdue, never)
	scraper := newFakeScraper()
	scraper.results[overdue.ProductURL] = unavailableData()
	scraper.results[never.ProductURL] = unavailableData()

	s := testScheduler(store, &fakeHistory{}, scraper, &fakeNotifier{}, &fakePublisher{})
	s.now = func() time.Time { return now }

	s.Sweep(context.Background())

	assert.Equal(t, 0, scraper.calls[fresh.ProductURL], "entry inside its interval is skipped")
	assert.Equal(t, 1, scraper.calls[overdue.ProductURL])
	assert.Equal(t, 1, scraper.calls[never.ProductURL], "never-checked entry is due immediately")
}

func TestSweepSkipsInactiveEntries(t *testing.T) {
	entry := testEntry("https://www.coolblue.nl/product/1/a.html", 60)
	entry.Active = false

	store := newFakeStore(entry)
	scraper := newFakeScraper()

	s := testScheduler(store, &fakeHistory{}, scraper, &fakeNotifier{}, &fakePublisher{})
	s.Sweep(context.Background())

	assert.Equal(t, 0, scraper.calls[entry.ProductURL])
}

func TestCheckEntryNotifiesOncePerTransition(t *testing.T) {
	entry := testEntry("https://www.coolblue.nl/product/1/a.html", 60)

	store := newFakeStore(entry)
	scraper := newFakeScraper()
	scraper.results[entry.ProductURL] = availableData()
	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}

	s := testScheduler(store, &fakeHistory{}, scraper, notifier, publisher)

	// First check: flip from unavailable to available.
	require.NoError(t, s.CheckEntry(context.Background(), entry))
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, 1, publisher.calls)
	assert.Contains(t, store.lastNotified, entry.ID)

	// Sustained availability: no second notification.
	require.NoError(t, s.CheckEntry(context.Background(), entry))
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, 1, publisher.calls)

	// Discount disappears, then comes back: a fresh notification.
	scraper.results[entry.ProductURL] = unavailableData()
	require.NoError(t, s.CheckEntry(context.Background(), entry))
	assert.Equal(t, 1, notifier.calls)

	scraper.results[entry.ProductURL] = availableData()
	require.NoError(t, s.CheckEntry(context.Background(), entry))
	assert.Equal(t, 2, notifier.calls)
	assert.Equal(t, 2, publisher.calls)
}

func TestCheckEntryRetriesFailedDelivery(t *testing.T) {
	entry := testEntry("https://www.coolblue.nl/product/1/a.html", 60)

	store := newFakeStore(entry)
	scraper := newFakeScraper()
	scraper.results[entry.ProductURL] = availableData()
	notifier := &fakeNotifier{err: errors.New("smtp connection refused")}
	publisher := &fakePublisher{}

	s := testScheduler(store, &fakeHistory{}, scraper, notifier, publisher)

	require.NoError(t, s.CheckEntry(context.Background(), entry))
	assert.Equal(t, 1, notifier.calls)
	assert.NotContains(t, store.lastNotified, entry.ID, "failed delivery is not stamped")

	// Delivery works on the next check while the discount holds.
	notifier.err = nil
	require.NoError(t, s.CheckEntry(context.Background(), entry))
	assert.Equal(t, 2, notifier.calls)
	assert.Contains(t, store.lastNotified, entry.ID)

	// The transition event itself fired only once.
	assert.Equal(t, 1, publisher.calls)
}

func TestCheckEntryRecordsFailure(t *testing.T) {
	entry := testEntry("https://www.coolblue.nl/product/1/a.html", 60)
	name := "Samsung Galaxy S24"
	entry.Name = &name
	entry.DiscountAvailable = true

	store := newFakeStore(entry)
	history := &fakeHistory{}
	scraper := newFakeScraper()
	scraper.errs[entry.ProductURL] = errors.New("all scrape strategies failed")

	s := testScheduler(store, history, scraper, &fakeNotifier{}, &fakePublisher{})

	err := s.CheckEntry(context.Background(), entry)
	require.Error(t, err)

	require.Len(t, history.records, 1)
	assert.Equal(t, models.CheckStatusError, history.records[0].Status)
	require.NotNil(t, history.records[0].ErrorMessage)
	assert.Empty(t, history.samples, "no price sample for a failed check")

	assert.Empty(t, store.scraped, "failed check leaves product fields untouched")
	assert.Contains(t, store.lastChecked, entry.ID, "failed check still counts toward the interval")
}

func TestSweepIsolatesFailingEntries(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	broken := testEntry("https://www.coolblue.nl/product/1/a.html", 60)
	healthy := testEntry("https://www.coolblue.nl/product/2/b.html", 60)

	store := newFakeStore(broken, healthy)
	scraper := newFakeScraper()
	scraper.errs[broken.ProductURL] = errors.New("navigation failed")
	scraper.results[healthy.ProductURL] = unavailableData()

	s := testScheduler(store, &fakeHistory{}, scraper, &fakeNotifier{}, &fakePublisher{})
	s.now = func() time.Time { return now }

	s.Sweep(context.Background())

	assert.Equal(t, 1, scraper.calls[healthy.ProductURL], "healthy sibling still checked")
	assert.Contains(t, store.scraped, healthy.ID)
}

// stalledScraper parks every call until released, standing in for a scrape
// that outlasts the sweep cadence.
type stalledScraper struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *stalledScraper) Scrape(ctx context.Context, _ string) (*models.ProductData, error) {
	b.calls.Add(1)
	select {
	case b.started <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return unavailableData(), nil
}

func TestSweepSkipsEntryAlreadyBeingChecked(t *testing.T) {
	entry := testEntry("https://www.coolblue.nl/product/1/a.html", 60)
	store := newFakeStore(entry)
	scraper := &stalledScraper{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(store, &fakeHistory{}, scraper, nil, nil, 5*time.Minute, logger)

	done := make(chan struct{})
	go func() {
		s.Sweep(context.Background())
		close(done)
	}()

	<-scraper.started

	// Second sweep while the first check still holds the entry.
	s.Sweep(context.Background())
	assert.Equal(t, int32(1), scraper.calls.Load(), "in-flight entry rechecked")

	close(scraper.release)
	<-done
}

func TestCheckEntryKeepsKnownNameOnDegradedScrape(t *testing.T) {
	entry := testEntry("https://www.coolblue.nl/product/1/a.html", 60)
	name := "Samsung Galaxy S24"
	entry.Name = &name

	store := newFakeStore(entry)
	scraper := newFakeScraper()
	degraded := unavailableData()
	degraded.Name = models.UnknownProductName
	scraper.results[entry.ProductURL] = degraded

	s := testScheduler(store, &fakeHistory{}, scraper, &fakeNotifier{}, &fakePublisher{})

	require.NoError(t, s.CheckEntry(context.Background(), entry))
	assert.Equal(t, "Samsung Galaxy S24", store.scraped[entry.ID].Name)
}

func TestCheckEntryPersistsSuccess(t *testing.T) {
	entry := testEntry("https://www.coolblue.nl/product/1/a.html", 60)

	store := newFakeStore(entry)
	history := &fakeHistory{}
	scraper := newFakeScraper()
	scraper.results[entry.ProductURL] = availableData()

	s := testScheduler(store, history, scraper, &fakeNotifier{}, &fakePublisher{})

	require.NoError(t, s.CheckEntry(context.Background(), entry))

	fields := store.scraped[entry.ID]
	assert.Equal(t, "Samsung Galaxy S24", fields.Name)
	require.NotNil(t, fields.DiscountPrice)
	assert.Equal(t, int64(58600), *fields.DiscountPrice)
	assert.True(t, fields.DiscountAvailable)

	require.Len(t, history.records, 1)
	assert.Equal(t, models.CheckStatusSuccess, history.records[0].Status)
	require.Len(t, history.samples, 1)
	assert.Equal(t, int64(58600), *history.samples[0].DiscountPrice)
}
