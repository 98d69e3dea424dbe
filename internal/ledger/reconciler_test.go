package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []models.Collection
}

func (p *recordingPublisher) PublishProgress(c models.Collection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, c)
}

var (
	author = &models.Principal{UserID: 1, Role: models.RoleEmployee}
	donor  = &models.Principal{UserID: 2, Role: models.RoleEmployee}
	staff  = &models.Principal{UserID: 3, Role: models.RoleStaff}
)

func money(t *testing.T, s string) models.Money {
	t.Helper()
	m, err := models.ParseMoney(s)
	require.NoError(t, err)
	return m
}

func moneyPtr(t *testing.T, s string) *models.Money {
	m := money(t, s)
	return &m
}

func newTestService(t *testing.T) (*Service, *storage.MemoryRepository, *clock, *recordingPublisher) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	clk := newClock()
	pub := &recordingPublisher{}
	return NewService(repo, pub, nil, clk.Now), repo, clk, pub
}

func openCollection(t *testing.T, svc *Service, clk *clock, target *models.Money) string {
	t.Helper()
	view, err := svc.CreateCollection(context.Background(), author, models.CollectionRequest{
		Title:        "Birthday gift",
		Occasion:     models.OccasionBirthday,
		TargetAmount: target,
		EndAt:        clk.Now().Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return view.ID
}

func pay(svc *Service, collectionID string, amount models.Money) (*models.Payment, error) {
	return svc.RecordPayment(context.Background(), donor, models.PaymentRequest{CollectionID: collectionID, Amount: amount})
}

func collected(t *testing.T, repo *storage.MemoryRepository, id string) models.Money {
	t.Helper()
	c, err := repo.GetCollection(context.Background(), id)
	require.NoError(t, err)
	return c.CurrentAmount
}

func TestConcurrentPaymentsSumExactly(t *testing.T) {
	svc, repo, clk, _ := newTestService(t)
	id := openCollection(t, svc, clk, nil)

	const workers = 50
	var wg sync.WaitGroup
	var want models.Money
	for i := 1; i <= workers; i++ {
		amount := models.Money(i * 100)
		want += amount
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pay(svc, id, amount)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, want, collected(t, repo, id))
	n, err := repo.CountPayments(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, workers, n)
}

func TestConcurrentPaymentsNeverOvershootTarget(t *testing.T) {
	svc, repo, clk, _ := newTestService(t)
	id := openCollection(t, svc, clk, moneyPtr(t, "100.00"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var accepted models.Money
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := pay(svc, id, money(t, "7.00"))
			if err != nil {
				var ve *ValidationError
				assert.ErrorAs(t, err, &ve)
				return
			}
			mu.Lock()
			accepted += p.Amount
			mu.Unlock()
		}()
	}
	wg.Wait()

	total := collected(t, repo, id)
	assert.Equal(t, accepted, total)
	assert.LessOrEqual(t, int64(total), int64(money(t, "100.00")))
	assert.Equal(t, money(t, "98.00"), total)
}

func TestDeletePaymentDecrements(t *testing.T) {
	svc, repo, clk, pub := newTestService(t)
	id := openCollection(t, svc, clk, nil)

	p1, err := pay(svc, id, money(t, "300.00"))
	require.NoError(t, err)
	_, err = pay(svc, id, money(t, "200.00"))
	require.NoError(t, err)

	require.NoError(t, svc.DeletePayment(context.Background(), donor, p1.ID))
	assert.Equal(t, money(t, "200.00"), collected(t, repo, id))

	pub.mu.Lock()
	last := pub.updates[len(pub.updates)-1]
	pub.mu.Unlock()
	assert.Equal(t, money(t, "200.00"), last.CurrentAmount)
}

func TestDeletePaymentNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	svc, repo, clk, _ := newTestService(t)
	id := openCollection(t, svc, clk, nil)

	p, err := pay(svc, id, money(t, "50.00"))
	require.NoError(t, err)
	require.NoError(t, repo.SetCollected(ctx, id, money(t, "20.00")))

	require.NoError(t, svc.DeletePayment(ctx, donor, p.ID))
	assert.Equal(t, models.Money(0), collected(t, repo, id))
}

func TestDeletePaymentOnlyByPayerOrStaff(t *testing.T) {
	ctx := context.Background()
	svc, _, clk, _ := newTestService(t)
	id := openCollection(t, svc, clk, nil)

	p, err := pay(svc, id, money(t, "10.00"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeletePayment(ctx, author, p.ID), storage.ErrNotFound)
	require.NoError(t, svc.DeletePayment(ctx, staff, p.ID))
	assert.ErrorIs(t, svc.DeletePayment(ctx, staff, p.ID), storage.ErrNotFound)
}

func TestOvershootLeavesTotalUnchanged(t *testing.T) {
	svc, repo, clk, _ := newTestService(t)
	id := openCollection(t, svc, clk, moneyPtr(t, "5000"))

	_, err := pay(svc, id, money(t, "4000"))
	require.NoError(t, err)

	_, err = pay(svc, id, money(t, "1500"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
	assert.Contains(t, ve.Message, "exceeds remaining 1000")
	assert.Equal(t, money(t, "4000"), collected(t, repo, id))

	_, err = pay(svc, id, money(t, "1000"))
	require.NoError(t, err)
	assert.Equal(t, money(t, "5000"), collected(t, repo, id))

	n, err := repo.CountPayments(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPaymentPreconditions(t *testing.T) {
	ctx := context.Background()
	svc, repo, clk, _ := newTestService(t)
	id := openCollection(t, svc, clk, nil)

	tests := []struct {
		name  string
		req   models.PaymentRequest
		field string
	}{
		{"zero amount", models.PaymentRequest{CollectionID: id}, "amount"},
		{"negative amount", models.PaymentRequest{CollectionID: id, Amount: -100}, "amount"},
		{"unknown method", models.PaymentRequest{CollectionID: id, Amount: 100, Method: "cash"}, "payment_method"},
		{"unknown collection", models.PaymentRequest{CollectionID: "missing", Amount: 100}, "collection_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPayment(ctx, donor, tt.req)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	clk.Advance(8 * 24 * time.Hour)
	_, err := pay(svc, id, 100)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, msgInactive, ve.Message)
	assert.Equal(t, models.Money(0), collected(t, repo, id))
}

func TestPaymentAmountIsBounded(t *testing.T) {
	svc, repo, clk, _ := newTestService(t)
	id := openCollection(t, svc, clk, nil)

	_, err := pay(svc, id, money(t, "99999999.99"))
	require.NoError(t, err)

	_, err = pay(svc, id, money(t, "100000000.00"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
	assert.Equal(t, money(t, "99999999.99"), collected(t, repo, id))

	_, err = pay(svc, id, money(t, "60000000000000000.00"))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
	assert.Equal(t, money(t, "99999999.99"), collected(t, repo, id))
}

func TestCollectionTotalIsBounded(t *testing.T) {
	ctx := context.Background()
	svc, repo, clk, _ := newTestService(t)
	id := openCollection(t, svc, clk, nil)

	nearLimit := models.MaxCollectionAmount - money(t, "10")
	require.NoError(t, repo.SetCollected(ctx, id, nearLimit))

	_, err := pay(svc, id, money(t, "10.01"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
	assert.Contains(t, ve.Message, "cannot exceed 9999999999.99")
	assert.Equal(t, nearLimit, collected(t, repo, id))

	_, err = pay(svc, id, money(t, "10"))
	require.NoError(t, err)
	assert.Equal(t, models.MaxCollectionAmount, collected(t, repo, id))
}
