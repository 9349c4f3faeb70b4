package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
	"github.com/rvdberg/tweedekans-monitor/internal/notify"
)

// EntryStore is the slice of the entry repository the scheduler needs.
type EntryStore interface {
	ListActiveEntries(ctx context.Context) ([]*models.MonitoredEntry, error)
	UpdateScrapedFields(ctx context.Context, id uuid.UUID, fields models.ScrapedFields) error
	StampLastChecked(ctx context.Context, id uuid.UUID, checkedAt time.Time) error
	StampLastNotified(ctx context.Context, id uuid.UUID, notifiedAt time.Time) error
}

// HistoryStore appends immutable check and price rows.
type HistoryStore interface {
	AppendCheckRecord(ctx context.Context, record *models.CheckRecord) error
	AppendPriceSample(ctx context.Context, sample *models.PriceSample) error
}

// Scraper produces one normalized product snapshot per URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*models.ProductData, error)
}

// TransitionPublisher records availability transitions for downstream
// consumers.
type TransitionPublisher interface {
	PublishAvailability(ctx context.Context, entry *models.MonitoredEntry, data *models.ProductData, detectedAt time.Time) error
}

// Scheduler sweeps monitored entries on a fixed cadence. Each sweep checks
// only entries past their own interval, so per-entry cadence is independent
// of the sweep cadence.
type Scheduler struct {
	store     EntryStore
	history   HistoryStore
	scraper   Scraper
	notifier  notify.Notifier
	publisher TransitionPublisher
	cron      *cron.Cron
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewScheduler(store EntryStore, history HistoryStore, scraper Scraper, notifier notify.Notifier, publisher TransitionPublisher, sweepInterval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		history:   history,
		scraper:   scraper,
		notifier:  notifier,
		publisher: publisher,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		interval:  sweepInterval,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
		inFlight:  make(map[uuid.UUID]struct{}),
	}
}

// Start schedules the recurring sweep and runs one immediately so a restart
// never delays overdue entries by a full sweep interval.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	go s.Sweep(ctx)

	s.cron.Start()
	s.logger.Info("scheduler started", "sweep_interval", s.interval)
	return nil
}

// Stop halts the sweep schedule; a sweep already in flight finishes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// Sweep checks every active entry that is past its configured interval. One
// entry's failure never affects its siblings.
func (s *Scheduler) Sweep(ctx context.Context) {
	entries, err := s.store.ListActiveEntries(ctx)
	if err != nil {
		s.logger.Error("failed to list active entries", "error", err)
		return
	}

	now := s.now()
	checked := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if !entry.DueAt(now) {
			continue
		}

		checked++
		if err := s.CheckEntry(ctx, entry); err != nil {
			s.logger.Warn("entry check failed",
				"entry_id", entry.ID,
				"url", entry.ProductURL,
				"error", err)
		}
	}

	if checked > 0 {
		s.logger.Info("sweep finished", "eligible", checked, "active", len(entries))
	}
}

// CheckEntry runs one scrape for an entry and persists the outcome. Called
// by the sweep for due entries and by the API for on-demand refreshes, which
// bypass the interval gate. An entry already being checked is skipped, so a
// slow scrape never races a second check of the same entry.
func (s *Scheduler) CheckEntry(ctx context.Context, entry *models.MonitoredEntry) error {
	if !s.acquire(entry.ID) {
		s.logger.Debug("check already in flight", "entry_id", entry.ID)
		return nil
	}
	defer s.release(entry.ID)

	data, err := s.scraper.Scrape(ctx, entry.ProductURL)
	checkedAt := s.now()

	if err != nil {
		s.recordFailure(ctx, entry, err, checkedAt)
		return err
	}

	name := data.Name
	if !data.HasName() && entry.Name != nil {
		// A degraded scrape never erases a previously known name.
		name = *entry.Name
	}
	if name == "" {
		name = models.UnknownProductName
	}

	fields := models.ScrapedFields{
		Name:              name,
		ImageURL:          data.ImageURL,
		OriginalPrice:     data.OriginalPrice,
		DiscountPrice:     data.DiscountPrice,
		DiscountAvailable: data.DiscountAvailable,
		CheckedAt:         checkedAt,
	}
	if err := s.store.UpdateScrapedFields(ctx, entry.ID, fields); err != nil {
		return fmt.Errorf("failed to persist check result: %w", err)
	}

	s.appendHistory(ctx, entry, data, checkedAt)

	flipped := !entry.DiscountAvailable && data.DiscountAvailable
	if data.DiscountAvailable && (flipped || entry.LastNotifiedAt == nil) {
		s.handleTransition(ctx, entry, data, checkedAt, flipped)
	}

	entry.DiscountAvailable = data.DiscountAvailable
	entry.LastCheckedAt = &checkedAt

	return nil
}

func (s *Scheduler) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

func (s *Scheduler) recordFailure(ctx context.Context, entry *models.MonitoredEntry, scrapeErr error, checkedAt time.Time) {
	msg := scrapeErr.Error()
	record := &models.CheckRecord{
		EntryID:      entry.ID,
		Status:       models.CheckStatusError,
		ErrorMessage: &msg,
		CheckedAt:    checkedAt,
	}
	if err := s.history.AppendCheckRecord(ctx, record); err != nil {
		s.logger.Error("failed to append check record", "entry_id", entry.ID, "error", err)
	}

	// The attempt still counts toward the interval; otherwise a broken page
	// would be retried on every sweep.
	if err := s.store.StampLastChecked(ctx, entry.ID, checkedAt); err != nil {
		s.logger.Error("failed to stamp last checked", "entry_id", entry.ID, "error", err)
	}

	entry.LastCheckedAt = &checkedAt
}

func (s *Scheduler) appendHistory(ctx context.Context, entry *models.MonitoredEntry, data *models.ProductData, checkedAt time.Time) {
	record := &models.CheckRecord{
		EntryID:           entry.ID,
		Status:            models.CheckStatusSuccess,
		OriginalPrice:     data.OriginalPrice,
		DiscountPrice:     data.DiscountPrice,
		DiscountAvailable: data.DiscountAvailable,
		CheckedAt:         checkedAt,
	}
	if err := s.history.AppendCheckRecord(ctx, record); err != nil {
		s.logger.Error("failed to append check record", "entry_id", entry.ID, "error", err)
	}

	sample := &models.PriceSample{
		EntryID:           entry.ID,
		OriginalPrice:     data.OriginalPrice,
		DiscountPrice:     data.DiscountPrice,
		DiscountAvailable: data.DiscountAvailable,
		SampledAt:         checkedAt,
	}
	if err := s.history.AppendPriceSample(ctx, sample); err != nil {
		s.logger.Error("failed to append price sample", "entry_id", entry.ID, "error", err)
	}
}

// handleTransition fires the one-shot notification for a false-to-true
// availability flip. The notified stamp is written only after the mail went
// out, so a failed delivery is retried while availability holds, and a
// successful one is never repeated until the discount disappears and comes
// back.
func (s *Scheduler) handleTransition(ctx context.Context, entry *models.MonitoredEntry, data *models.ProductData, detectedAt time.Time, flipped bool) {
	if flipped {
		s.logger.Info("discount became available",
			"entry_id", entry.ID,
			"url", entry.ProductURL,
			"discount_price", data.DiscountPrice)

		if s.publisher != nil {
			if err := s.publisher.PublishAvailability(ctx, entry, data, detectedAt); err != nil {
				s.logger.Error("failed to publish availability event", "entry_id", entry.ID, "error", err)
			}
		}
	}

	if s.notifier == nil {
		return
	}

	if err := s.notifier.NotifyAvailability(ctx, entry, data); err != nil {
		s.logger.Error("failed to deliver availability notification",
			"entry_id", entry.ID,
			"error", err)
		return
	}

	if err := s.store.StampLastNotified(ctx, entry.ID, detectedAt); err != nil {
		s.logger.Error("failed to stamp last notified", "entry_id", entry.ID, "error", err)
	}

	entry.LastNotifiedAt = &detectedAt
}
