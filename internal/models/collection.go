package models

import (
	"time"
)

// Occasion is the reason a collection was opened
type Occasion string

const (
	OccasionBirthday   Occasion = "birthday"
	OccasionWedding    Occasion = "wedding"
	OccasionGraduation Occasion = "graduation"
	OccasionMedical    Occasion = "medical"
	OccasionCharity    Occasion = "charity"
	OccasionEvent      Occasion = "event"
	OccasionOther      Occasion = "other"
)

// Valid reports whether o is a known occasion
func (o Occasion) Valid() bool {
	switch o {
	case OccasionBirthday, OccasionWedding, OccasionGraduation, OccasionMedical,
		OccasionCharity, OccasionEvent, OccasionOther:
		return true
	}
	return false
}

// Collection is a fundraising target with a running total.
// CurrentAmount always equals the sum of its payments.
type Collection struct {
	ID            string    `json:"id"`
	AuthorID      int64     `json:"author_id"`
	Title         string    `json:"title"`
	Occasion      Occasion  `json:"occasion"`
	Description   string    `json:"description"`
	TargetAmount  *Money    `json:"target_amount"`
	CurrentAmount Money     `json:"current_amount"`
	CoverImage    string    `json:"cover_image,omitempty"`
	EndAt         time.Time `json:"end_datetime"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	// Revision increases with every change to CurrentAmount
	Revision      int64     `json:"revision"`
}

// IsActive reports whether payments are still accepted at now
func IsActive(endAt, now time.Time) bool {
	return now.Before(endAt)
}

// DaysLeft returns the whole days remaining until endAt, never negative
func DaysLeft(endAt, now time.Time) int {
	d := endAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// ProgressPercentage returns current/target*100, or 0 without a target
func ProgressPercentage(current Money, target *Money) float64 {
	if target == nil || *target <= 0 {
		return 0
	}
	return float64(current) / float64(*target) * 100
}

// Remaining returns how much may still be collected, or nil without a target
func (c *Collection) Remaining() *Money {
	if c.TargetAmount == nil {
		return nil
	}
	r := *c.TargetAmount - c.CurrentAmount
	return &r
}

// CollectionView is the list/detail read model with derived fields
type CollectionView struct {
	Collection
	IsActive           bool      `json:"is_active"`
	ProgressPercentage float64   `json:"progress_percentage"`
	DaysLeft           int       `json:"days_left"`
	PaymentsCount      int       `json:"payments_count"`
	RecentPayments     []Payment `json:"recent_payments,omitempty"`
}

// NewCollectionView computes derived attributes at now
func NewCollectionView(c Collection, paymentsCount int, now time.Time) CollectionView {
	return CollectionView{
		Collection:         c,
		IsActive:           IsActive(c.EndAt, now),
		ProgressPercentage: ProgressPercentage(c.CurrentAmount, c.TargetAmount),
		DaysLeft:           DaysLeft(c.EndAt, now),
		PaymentsCount:      paymentsCount,
	}
}

// CollectionStatus filters collections by liveness
type CollectionStatus string

const (
	CollectionAnyStatus CollectionStatus = ""
	CollectionActive    CollectionStatus = "active"
	CollectionCompleted CollectionStatus = "completed"
)

// CollectionFilters narrows collection listings
type CollectionFilters struct {
	Search   string
	Occasion Occasion
	AuthorID int64
	Status   CollectionStatus
	// OrderBy is one of created_at, end_datetime, current_amount, optionally prefixed by "-"
	OrderBy string
	Now     time.Time
	Page    Page
}

// CollectionRequest creates or updates a collection
type CollectionRequest struct {
	Title        string    `json:"title"`
	Occasion     Occasion  `json:"occasion"`
	Description  string    `json:"description"`
	TargetAmount *Money    `json:"target_amount"`
	EndAt        time.Time `json:"end_datetime"`
}

// PaymentMethod of a payment; only cards are accepted
type PaymentMethod string

const PaymentCard PaymentMethod = "card"

// Payment is a donation into a collection
type Payment struct {
	ID           string        `json:"id"`
	UserID       int64         `json:"user_id"`
	CollectionID string        `json:"collection_id"`
	Amount       Money         `json:"amount"`
	Method       PaymentMethod `json:"payment_method"`
	CreatedAt    time.Time     `json:"created_at"`
}

// PaymentFilters narrows payment listings
type PaymentFilters struct {
	UserID       int64
	CollectionID string
	// OrderBy is one of created_at, amount, optionally prefixed by "-"
	OrderBy string
	Page    Page
}

// PaymentRequest records a payment
type PaymentRequest struct {
	CollectionID string        `json:"collection_id"`
	Amount       Money         `json:"amount"`
	Method       PaymentMethod `json:"payment_method"`
}
