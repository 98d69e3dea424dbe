package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/storage"
)

// ErrForbidden is returned when a caller may not modify a resource
var ErrForbidden = errors.New("only the author or staff may modify this resource")

// RecentPaymentsLimit is the number of payments embedded in a detail view
const RecentPaymentsLimit = 10

// ImageStore persists cover images
type ImageStore interface {
	Save(ctx context.Context, dir, originalName string, r io.Reader) (string, error)
	Remove(ctx context.Context, paths []string)
}

// NormalizeCollection enforces the collection invariants at now, clamping
// the running total to the target when the target was lowered.
func NormalizeCollection(c *models.Collection, now time.Time) error {
	if c.TargetAmount != nil && *c.TargetAmount <= 0 {
		return models.Invalid("target_amount", "target amount must be positive")
	}
	if c.TargetAmount != nil && *c.TargetAmount > models.MaxCollectionAmount {
		return models.Invalid("target_amount", "target amount must not exceed %s", models.MaxCollectionAmount)
	}
	if !c.EndAt.After(now) {
		return models.Invalid("end_datetime", "end time must be in the future")
	}
	if c.CurrentAmount < 0 {
		return models.Invalid("current_amount", "collected amount cannot be negative")
	}
	if c.TargetAmount != nil && c.CurrentAmount > *c.TargetAmount {
		c.CurrentAmount = *c.TargetAmount
	}
	return nil
}

// Service implements collection and payment operations
type Service struct {
	store      storage.LedgerStore
	reconciler *Reconciler
	images     ImageStore
	now        func() time.Time
}

// NewService creates a ledger service. images may be nil when uploads are
// not configured.
func NewService(store storage.LedgerStore, publisher ProgressPublisher, images ImageStore, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      store,
		reconciler: NewReconciler(store, publisher, now),
		images:     images,
		now:        now,
	}
}

// Reconciler returns the payment reconciler used by the service
func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

func applyRequest(c *models.Collection, req models.CollectionRequest) error {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return models.Invalid("title", "title is required")
	}
	occasion := req.Occasion
	if occasion == "" {
		occasion = models.OccasionOther
	}
	if !occasion.Valid() {
		return models.Invalid("occasion", "unknown occasion %q", req.Occasion)
	}
	if req.EndAt.IsZero() {
		return models.Invalid("end_datetime", "end time is required")
	}

	c.Title = title
	c.Occasion = occasion
	c.Description = req.Description
	c.TargetAmount = req.TargetAmount
	c.EndAt = req.EndAt.UTC()
	return nil
}

func canModify(p *models.Principal, c *models.Collection) bool {
	return p.IsStaff() || (p.Authenticated() && p.UserID == c.AuthorID)
}

// CreateCollection opens a collection authored by the caller
func (s *Service) CreateCollection(ctx context.Context, author *models.Principal, req models.CollectionRequest) (*models.CollectionView, error) {
	now := s.now().UTC()
	c := &models.Collection{
		ID:        uuid.NewString(),
		AuthorID:  author.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyRequest(c, req); err != nil {
		return nil, err
	}
	if err := NormalizeCollection(c, now); err != nil {
		return nil, err
	}

	if err := s.store.CreateCollection(ctx, c); err != nil {
		return nil, err
	}

	slog.Info("collection created", "collection_id", c.ID, "author_id", c.AuthorID)
	view := models.NewCollectionView(*c, 0, now)
	return &view, nil
}

// GetCollection returns the detail view with the latest payments
func (s *Service) GetCollection(ctx context.Context, id string) (*models.CollectionView, error) {
	c, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := s.store.CountPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.RecentPayments(ctx, id, RecentPaymentsLimit)
	if err != nil {
		return nil, err
	}

	view := models.NewCollectionView(*c, count, s.now())
	view.RecentPayments = recent
	return &view, nil
}

// ListCollections returns a filtered page of collection views
func (s *Service) ListCollections(ctx context.Context, filters models.CollectionFilters) (models.PageResult[models.CollectionView], error) {
	now := s.now()
	filters.Now = now

	page, err := s.store.ListCollections(ctx, filters)
	if err != nil {
		return models.PageResult[models.CollectionView]{}, err
	}

	out := models.PageResult[models.CollectionView]{
		Count:   page.Count,
		Page:    page.Page,
		Size:    page.Size,
		Results: make([]models.CollectionView, 0, len(page.Results)),
	}
	for _, c := range page.Results {
		count, err := s.store.CountPayments(ctx, c.ID)
		if err != nil {
			return out, err
		}
		out.Results = append(out.Results, models.NewCollectionView(c, count, now))
	}
	return out, nil
}

// UpdateCollection replaces the editable fields; only the author or staff
// may do so.
func (s *Service) UpdateCollection(ctx context.Context, caller *models.Principal, id string, req models.CollectionRequest) (*models.CollectionView, error) {
	c, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModify(caller, c) {
		return nil, ErrForbidden
	}

	now := s.now().UTC()
	if err := applyRequest(c, req); err != nil {
		return nil, err
	}
	if err := NormalizeCollection(c, now); err != nil {
		return nil, err
	}
	c.UpdatedAt = now

	if err := s.store.UpdateCollection(ctx, c); err != nil {
		return nil, err
	}

	slog.Info("collection updated", "collection_id", c.ID, "current_amount", c.CurrentAmount.String())
	return s.GetCollection(ctx, id)
}

// SetCover stores a new cover image and removes the previous one
func (s *Service) SetCover(ctx context.Context, caller *models.Principal, id, filename string, r io.Reader) (*models.CollectionView, error) {
	if s.images == nil {
		return nil, errors.New("image storage is not configured")
	}

	c, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModify(caller, c) {
		return nil, ErrForbidden
	}

	p, err := s.images.Save(ctx, path.Join("collections", "covers"), filename, r)
	if err != nil {
		return nil, err
	}

	previous := c.CoverImage
	c.CoverImage = p
	c.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateCollection(ctx, c); err != nil {
		s.images.Remove(ctx, []string{p})
		return nil, err
	}
	if previous != "" {
		s.images.Remove(ctx, []string{previous})
	}
	return s.GetCollection(ctx, id)
}

// DeleteCollection removes a collection and its payments
func (s *Service) DeleteCollection(ctx context.Context, caller *models.Principal, id string) error {
	c, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(caller, c) {
		return ErrForbidden
	}

	if err := s.store.DeleteCollection(ctx, id); err != nil {
		return err
	}
	slog.Info("collection deleted", "collection_id", id)
	return nil
}

// --- Payments ---

// RecordPayment donates into a collection on behalf of the caller
func (s *Service) RecordPayment(ctx context.Context, caller *models.Principal, req models.PaymentRequest) (*models.Payment, error) {
	return s.reconciler.RecordPayment(ctx, caller.UserID, req)
}

// ListPayments lists the caller's own payments
func (s *Service) ListPayments(ctx context.Context, caller *models.Principal, filters models.PaymentFilters) (models.PageResult[models.Payment], error) {
	filters.UserID = caller.UserID
	return s.store.ListPayments(ctx, filters)
}

// GetPayment returns one of the caller's payments. Other users' payments
// are reported as missing unless the caller is staff.
func (s *Service) GetPayment(ctx context.Context, caller *models.Principal, id string) (*models.Payment, error) {
	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != caller.UserID && !caller.IsStaff() {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

// DeletePayment reverses a payment; the payer or staff may do so
func (s *Service) DeletePayment(ctx context.Context, caller *models.Principal, id string) error {
	if _, err := s.GetPayment(ctx, caller, id); err != nil {
		return err
	}
	_, err := s.reconciler.DeletePayment(ctx, id)
	return err
}
