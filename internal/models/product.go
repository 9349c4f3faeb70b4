package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductData is the normalized result of one scrape attempt. Prices are
// integer cents; optional fields are nil when a strategy could not determine
// them. It is the contract between the orchestrator and the scheduler and is
// never persisted directly.
type ProductData struct {
	Name              string  `json:"name"`
	ImageURL          *string `json:"image_url,omitempty"`
	OriginalPrice     *int64  `json:"original_price,omitempty"`
	DiscountPrice     *int64  `json:"discount_price,omitempty"`
	DiscountAvailable bool    `json:"discount_available"`
}

// PricesComplete reports whether both price fields were resolved.
func (p *ProductData) PricesComplete() bool {
	return p.OriginalPrice != nil && p.DiscountPrice != nil
}

// HasName reports whether a usable, non-placeholder name was extracted.
func (p *ProductData) HasName() bool {
	return p.Name != "" && p.Name != UnknownProductName
}

// MergeMissing fills only the fields still missing from p with values from
// other. Deterministically extracted values are never overwritten.
func (p *ProductData) MergeMissing(other *ProductData) {
	if other == nil {
		return
	}
	if !p.HasName() && other.HasName() {
		p.Name = other.Name
	}
	if p.ImageURL == nil && other.ImageURL != nil {
		p.ImageURL = other.ImageURL
	}
	if p.OriginalPrice == nil && other.OriginalPrice != nil {
		p.OriginalPrice = other.OriginalPrice
	}
	if p.DiscountPrice == nil && other.DiscountPrice != nil {
		p.DiscountPrice = other.DiscountPrice
	}
	if !p.DiscountAvailable && other.DiscountAvailable {
		p.DiscountAvailable = true
	}
}

// UnknownProductName is the placeholder used when no strategy could extract
// a product name.
const UnknownProductName = "Unknown Product"

// MonitoredEntry is a tracked product page owned by a user.
type MonitoredEntry struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               string     `json:"user_id"`
	ProductURL           string     `json:"product_url"`
	UserEmail            string     `json:"user_email"`
	Name                 *string    `json:"name,omitempty"`
	ImageURL             *string    `json:"image_url,omitempty"`
	OriginalPrice        *int64     `json:"original_price,omitempty"`
	DiscountPrice        *int64     `json:"discount_price,omitempty"`
	DiscountAvailable    bool       `json:"discount_available"`
	CheckIntervalMinutes int        `json:"check_interval_minutes"`
	LastCheckedAt        *time.Time `json:"last_checked_at,omitempty"`
	LastNotifiedAt       *time.Time `json:"last_notified_at,omitempty"`
	Active               bool       `json:"active"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// DueAt reports whether the entry is eligible for a check at the given
// instant: active and either never checked or past its configured interval.
func (e *MonitoredEntry) DueAt(now time.Time) bool {
	if !e.Active {
		return false
	}
	if e.LastCheckedAt == nil {
		return true
	}
	interval := time.Duration(e.CheckIntervalMinutes) * time.Minute
	return now.Sub(*e.LastCheckedAt) >= interval
}

// ScrapedFields is the atomic entry update applied after a successful check.
type ScrapedFields struct {
	Name              string
	ImageURL          *string
	OriginalPrice     *int64
	DiscountPrice     *int64
	DiscountAvailable bool
	CheckedAt         time.Time
}

// EntryUpdate carries the user-mutable fields of an entry; nil fields are
// left unchanged.
type EntryUpdate struct {
	ProductURL           *string
	UserEmail            *string
	CheckIntervalMinutes *int
	Active               *bool
}

// CheckStatus is the outcome of one scrape attempt.
type CheckStatus string

const (
	CheckStatusSuccess CheckStatus = "success"
	CheckStatusError   CheckStatus = "error"
)

// CheckRecord is an immutable append-only log entry per scrape attempt.
type CheckRecord struct {
	ID                uuid.UUID   `json:"id"`
	EntryID           uuid.UUID   `json:"entry_id"`
	Status            CheckStatus `json:"status"`
	OriginalPrice     *int64      `json:"original_price,omitempty"`
	DiscountPrice     *int64      `json:"discount_price,omitempty"`
	DiscountAvailable bool        `json:"discount_available"`
	ErrorMessage      *string     `json:"error_message,omitempty"`
	CheckedAt         time.Time   `json:"checked_at"`
}

// PriceSample is an immutable time-series point for charting.
type PriceSample struct {
	ID                uuid.UUID `json:"id"`
	EntryID           uuid.UUID `json:"entry_id"`
	OriginalPrice     *int64    `json:"original_price,omitempty"`
	DiscountPrice     *int64    `json:"discount_price,omitempty"`
	DiscountAvailable bool      `json:"discount_available"`
	SampledAt         time.Time `json:"sampled_at"`
}
