// Package ledger keeps fundraising collections and their payments
// consistent. The running total of a collection is only ever changed by a
// relative update at the storage layer inside the payment's transaction.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/office-hub/internal/metrics"
	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/storage"
)

// ValidationError is the field-scoped error returned by ledger rules
type ValidationError = models.ValidationError

// msgInactive has no field: it concerns the collection, not the payload
const msgInactive = "collection has ended, donations are closed"

// ProgressPublisher is notified after a payment commits
type ProgressPublisher interface {
	PublishProgress(c models.Collection)
}

// Reconciler records and reverses payments
type Reconciler struct {
	store     storage.LedgerStore
	publisher ProgressPublisher
	now       func() time.Time
}

// NewReconciler creates a reconciler. publisher may be nil.
func NewReconciler(store storage.LedgerStore, publisher ProgressPublisher, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: store, publisher: publisher, now: now}
}

// checkAmount bounds a single payment
func checkAmount(amount models.Money) error {
	if amount <= 0 {
		return models.Invalid("amount", "amount must be positive")
	}
	if amount > models.MaxPaymentAmount {
		return models.Invalid("amount", "amount must not exceed %s", models.MaxPaymentAmount)
	}
	return nil
}

// checkPayment applies the donation bounds to c as read
func checkPayment(c *models.Collection, amount models.Money, now time.Time) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if !models.IsActive(c.EndAt, now) {
		return &ValidationError{Message: msgInactive}
	}
	if remaining := c.Remaining(); remaining != nil && amount > *remaining {
		if *remaining < 0 {
			*remaining = 0
		}
		return models.Invalid("amount", "amount exceeds remaining %s", remaining.String())
	}
	if c.CurrentAmount > models.MaxCollectionAmount-amount {
		return models.Invalid("amount", "collection total cannot exceed %s", models.MaxCollectionAmount)
	}
	return nil
}

// RecordPayment stores a payment from userID and adds its amount to the
// collection's running total in one transaction.
func (r *Reconciler) RecordPayment(ctx context.Context, userID int64, req models.PaymentRequest) (*models.Payment, error) {
	if req.Method == "" {
		req.Method = models.PaymentCard
	}
	if req.Method != models.PaymentCard {
		return nil, models.Invalid("payment_method", "unsupported payment method %q", req.Method)
	}
	if err := checkAmount(req.Amount); err != nil {
		metrics.PaymentsRejected.Inc()
		return nil, err
	}

	now := r.now()
	payment := &models.Payment{
		ID:           uuid.NewString(),
		UserID:       userID,
		CollectionID: req.CollectionID,
		Amount:       req.Amount,
		Method:       req.Method,
		CreatedAt:    now.UTC(),
	}

	var updated *models.Collection
	err := r.store.InLedgerTx(ctx, func(tx storage.LedgerTx) error {
		c, err := tx.GetCollection(ctx, req.CollectionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return models.Invalid("collection_id", "collection %q does not exist", req.CollectionID)
			}
			return err
		}
		if err := checkPayment(c, req.Amount, now); err != nil {
			return err
		}

		total, ok, err := tx.AddToCollected(ctx, c.ID, req.Amount, now)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent payment moved the total between the read and the
			// guarded update; report against the fresh state.
			c.CurrentAmount = total
			if err := checkPayment(c, req.Amount, now); err != nil {
				return err
			}
			return models.Invalid("amount", "amount exceeds remaining target")
		}

		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		// re-read for the revision assigned by the update
		updated, err = tx.GetCollection(ctx, c.ID)
		return err
	})
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			metrics.PaymentsRejected.Inc()
			slog.Warn("payment rejected", "collection_id", req.CollectionID, "user_id", userID, "reason", ve.Message)
		}
		return nil, err
	}

	metrics.PaymentsRecorded.Inc()
	metrics.CollectedMinorUnits.Add(float64(payment.Amount))
	slog.Info("payment recorded",
		"payment_id", payment.ID,
		"collection_id", payment.CollectionID,
		"amount", payment.Amount.String(),
		"current_amount", updated.CurrentAmount.String(),
	)
	r.publish(updated)
	return payment, nil
}

// DeletePayment removes a payment and subtracts its amount from the
// collection's running total in one transaction.
func (r *Reconciler) DeletePayment(ctx context.Context, id string) (*models.Payment, error) {
	var deleted *models.Payment
	var updated *models.Collection
	err := r.store.InLedgerTx(ctx, func(tx storage.LedgerTx) error {
		p, err := tx.DeletePayment(ctx, id)
		if err != nil {
			return err
		}

		total, _, err := tx.AddToCollected(ctx, p.CollectionID, -p.Amount, r.now())
		if err != nil {
			return err
		}

		c, err := tx.GetCollection(ctx, p.CollectionID)
		if err != nil {
			return err
		}
		c.CurrentAmount = total
		deleted, updated = p, c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PaymentsReversed.Inc()
	slog.Info("payment deleted",
		"payment_id", deleted.ID,
		"collection_id", deleted.CollectionID,
		"amount", deleted.Amount.String(),
		"current_amount", updated.CurrentAmount.String(),
	)
	r.publish(updated)
	return deleted, nil
}

func (r *Reconciler) publish(c *models.Collection) {
	if r.publisher != nil && c != nil {
		r.publisher.PublishProgress(*c)
	}
}
