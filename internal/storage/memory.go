package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/terra-clan/office-hub/internal/models"
)

// MemoryRepository implements Repository in process memory.
// Transactions are serialised per aggregate and roll back through an undo
// log of the rows they wrote when the callback fails.
type MemoryRepository struct {
	mu       sync.Mutex
	deskTx   sync.Mutex
	ledgerTx sync.Mutex
	cleanup  CleanupFunc

	nextID    int64
	employees map[int64]models.Employee
	skills    map[int64]map[models.SkillCategory]int
	images    map[int64]models.EmployeeImage
	desks     map[int64]models.Desk

	collections map[string]models.Collection
	payments    map[string]models.Payment

	users map[int64]models.User
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		employees:   make(map[int64]models.Employee),
		skills:      make(map[int64]map[models.SkillCategory]int),
		images:      make(map[int64]models.EmployeeImage),
		desks:       make(map[int64]models.Desk),
		collections: make(map[string]models.Collection),
		payments:    make(map[string]models.Payment),
		users:       make(map[int64]models.User),
	}
}

// SetCleanup installs the callback run after deletes that orphan media files
func (r *MemoryRepository) SetCleanup(fn CleanupFunc) {
	r.cleanup = fn
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *MemoryRepository) runCleanup(ctx context.Context, paths []string) {
	if r.cleanup != nil && len(paths) > 0 {
		r.cleanup(ctx, paths)
	}
}

// --- Employees ---

func (r *MemoryRepository) CreateEmployee(ctx context.Context, e *models.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.id()
	r.employees[e.ID] = *e
	return nil
}

func (r *MemoryRepository) GetEmployee(ctx context.Context, id int64) (*models.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.employees[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (r *MemoryRepository) UpdateEmployee(ctx context.Context, e *models.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.employees[e.ID]; !ok {
		return ErrNotFound
	}
	r.employees[e.ID] = *e
	return nil
}

func (r *MemoryRepository) DeleteEmployee(ctx context.Context, id int64) error {
	r.deskTx.Lock()
	defer r.deskTx.Unlock()

	r.mu.Lock()
	if _, ok := r.employees[id]; !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.employees, id)
	delete(r.skills, id)

	var paths []string
	for imgID, img := range r.images {
		if img.EmployeeID == id {
			paths = append(paths, img.Path)
			delete(r.images, imgID)
		}
	}

	for deskID, d := range r.desks {
		if d.EmployeeID != nil && *d.EmployeeID == id {
			d.EmployeeID = nil
			r.desks[deskID] = d
		}
	}
	r.mu.Unlock()

	r.runCleanup(ctx, paths)
	return nil
}

func (r *MemoryRepository) ListEmployees(ctx context.Context, filters models.EmployeeFilters) (models.PageResult[models.Employee], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	search := strings.ToLower(filters.Search)
	var out []models.Employee
	for _, e := range r.employees {
		if search != "" &&
			!strings.Contains(strings.ToLower(e.FirstName), search) &&
			!strings.Contains(strings.ToLower(e.LastName), search) &&
			!strings.Contains(strings.ToLower(e.Description), search) {
			continue
		}
		if filters.Skill != "" {
			if _, ok := r.skills[e.ID][filters.Skill]; !ok {
				continue
			}
		}
		if filters.HiredOnOrBefore != nil && e.HireDate.After(*filters.HiredOnOrBefore) {
			continue
		}
		if filters.HiredOnOrAfter != nil && e.HireDate.Before(*filters.HiredOnOrAfter) {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].HireDate.Equal(out[j].HireDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].HireDate.After(out[j].HireDate)
	})

	return models.Paginate(out, filters.Page), nil
}

func (r *MemoryRepository) CountEmployees(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.employees), nil
}

// --- Skills ---

func (r *MemoryRepository) SetEmployeeSkill(ctx context.Context, s models.EmployeeSkill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.employees[s.EmployeeID]; !ok {
		return ErrNotFound
	}
	if r.skills[s.EmployeeID] == nil {
		r.skills[s.EmployeeID] = make(map[models.SkillCategory]int)
	}
	r.skills[s.EmployeeID][s.Skill] = s.Level
	return nil
}

func (r *MemoryRepository) RemoveEmployeeSkill(ctx context.Context, employeeID int64, skill models.SkillCategory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skills[employeeID][skill]; !ok {
		return ErrNotFound
	}
	delete(r.skills[employeeID], skill)
	return nil
}

func (r *MemoryRepository) EmployeeSkills(ctx context.Context, employeeID int64) ([]models.EmployeeSkill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.employeeSkillsLocked(employeeID), nil
}

func (r *MemoryRepository) employeeSkillsLocked(employeeID int64) []models.EmployeeSkill {
	out := make([]models.EmployeeSkill, 0, len(r.skills[employeeID]))
	for skill, level := range r.skills[employeeID] {
		out = append(out, models.EmployeeSkill{EmployeeID: employeeID, Skill: skill, Level: level})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Skill < out[j].Skill })
	return out
}

// --- Images ---

func (r *MemoryRepository) AddEmployeeImage(ctx context.Context, img *models.EmployeeImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.employees[img.EmployeeID]; !ok {
		return ErrNotFound
	}
	for _, existing := range r.images {
		if existing.EmployeeID == img.EmployeeID && existing.Order == img.Order {
			return fmt.Errorf("image order %d already used: %w", img.Order, ErrConflict)
		}
	}
	img.ID = r.id()
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	r.images[img.ID] = *img
	return nil
}

func (r *MemoryRepository) EmployeeImages(ctx context.Context, employeeID int64) ([]models.EmployeeImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EmployeeImage, 0)
	for _, img := range r.images {
		if img.EmployeeID == employeeID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *MemoryRepository) DeleteEmployeeImage(ctx context.Context, employeeID, imageID int64) error {
	r.mu.Lock()
	img, ok := r.images[imageID]
	if !ok || img.EmployeeID != employeeID {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.images, imageID)
	r.mu.Unlock()

	r.runCleanup(ctx, []string{img.Path})
	return nil
}

// --- Desks ---

func (r *MemoryRepository) GetDesk(ctx context.Context, id int64) (*models.Desk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.desks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) DeskByEmployee(ctx context.Context, employeeID int64) (*models.Desk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deskByEmployeeLocked(employeeID)
}

func (r *MemoryRepository) deskByEmployeeLocked(employeeID int64) (*models.Desk, error) {
	for _, d := range r.desks {
		if d.EmployeeID != nil && *d.EmployeeID == employeeID {
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListDesks(ctx context.Context, filters models.DeskFilters) (models.PageResult[models.Desk], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	search := strings.ToLower(filters.Search)
	var out []models.Desk
	for _, d := range r.desks {
		switch filters.Occupancy {
		case models.DeskFree:
			if d.Occupied() {
				continue
			}
		case models.DeskOccupied:
			if !d.Occupied() {
				continue
			}
		}
		if search != "" && !r.deskMatchesLocked(d, search) {
			continue
		}
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return models.Paginate(out, filters.Page), nil
}

func (r *MemoryRepository) deskMatchesLocked(d models.Desk, search string) bool {
	if strings.Contains(strings.ToLower(d.TableNumber), search) {
		return true
	}
	if d.EmployeeID == nil {
		return false
	}
	e, ok := r.employees[*d.EmployeeID]
	return ok && (strings.Contains(strings.ToLower(e.LastName), search) ||
		strings.Contains(strings.ToLower(e.FirstName), search))
}

func (r *MemoryRepository) DeleteDesk(ctx context.Context, id int64) error {
	r.deskTx.Lock()
	defer r.deskTx.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.desks[id]; !ok {
		return ErrNotFound
	}
	delete(r.desks, id)
	return nil
}

// InDeskTx runs fn with desk writes serialised; desk changes made by fn are
// discarded when it returns an error.
func (r *MemoryRepository) InDeskTx(ctx context.Context, fn func(tx DeskTx) error) error {
	r.deskTx.Lock()
	defer r.deskTx.Unlock()

	tx := &memoryDeskTx{r: r, undo: make(map[int64]*models.Desk)}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryDeskTx records the prior state of every desk it writes so a failed
// transaction restores only those rows. Allocated ids are never reused.
type memoryDeskTx struct {
	r    *MemoryRepository
	undo map[int64]*models.Desk
}

// remember must be called with r.mu held; nil marks a desk that did not exist
func (t *memoryDeskTx) remember(id int64) {
	if _, seen := t.undo[id]; seen {
		return
	}
	if d, ok := t.r.desks[id]; ok {
		t.undo[id] = &d
		return
	}
	t.undo[id] = nil
}

func (t *memoryDeskTx) rollback() {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	for id, prev := range t.undo {
		if prev == nil {
			delete(t.r.desks, id)
			continue
		}
		t.r.desks[id] = *prev
	}
}

// LockTables is a no-op: the whole transaction already holds the desk lock
func (t *memoryDeskTx) LockTables(ctx context.Context, tableNumbers ...int64) error {
	return nil
}

func (t *memoryDeskTx) DeskByNumber(ctx context.Context, tableNumber string) (*models.Desk, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	for _, d := range t.r.desks {
		if d.TableNumber == tableNumber {
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memoryDeskTx) DeskByID(ctx context.Context, id int64) (*models.Desk, error) {
	return t.r.GetDesk(ctx, id)
}

func (t *memoryDeskTx) LockDesk(ctx context.Context, id int64) (*models.Desk, error) {
	return t.r.GetDesk(ctx, id)
}

func (t *memoryDeskTx) DeskByEmployee(ctx context.Context, employeeID int64) (*models.Desk, error) {
	return t.r.DeskByEmployee(ctx, employeeID)
}

func (t *memoryDeskTx) EmployeeSkills(ctx context.Context, employeeID int64) ([]models.EmployeeSkill, error) {
	return t.r.EmployeeSkills(ctx, employeeID)
}

func (t *memoryDeskTx) GetEmployee(ctx context.Context, id int64) (*models.Employee, error) {
	return t.r.GetEmployee(ctx, id)
}

func (t *memoryDeskTx) SaveDesk(ctx context.Context, d *models.Desk) error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()

	for id, other := range t.r.desks {
		if id == d.ID {
			continue
		}
		if other.TableNumber == d.TableNumber {
			return fmt.Errorf("table number %s already exists: %w", d.TableNumber, ErrConflict)
		}
		if d.EmployeeID != nil && other.EmployeeID != nil && *other.EmployeeID == *d.EmployeeID {
			return fmt.Errorf("employee %d already has desk %s: %w", *d.EmployeeID, other.TableNumber, ErrConflict)
		}
	}
	if d.EmployeeID != nil {
		if _, ok := t.r.employees[*d.EmployeeID]; !ok {
			return fmt.Errorf("employee %d: %w", *d.EmployeeID, ErrNotFound)
		}
	}

	if d.ID == 0 {
		d.ID = t.r.id()
	} else if _, ok := t.r.desks[d.ID]; !ok {
		return ErrNotFound
	}
	t.remember(d.ID)
	t.r.desks[d.ID] = *d
	return nil
}

// --- Collections ---

func (r *MemoryRepository) CreateCollection(ctx context.Context, c *models.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collections[c.ID]; ok {
		return ErrConflict
	}
	r.collections[c.ID] = *c
	return nil
}

func (r *MemoryRepository) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) UpdateCollection(ctx context.Context, c *models.Collection) error {
	r.ledgerTx.Lock()
	defer r.ledgerTx.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.collections[c.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Title = c.Title
	stored.Occasion = c.Occasion
	stored.Description = c.Description
	stored.TargetAmount = c.TargetAmount
	stored.CoverImage = c.CoverImage
	stored.EndAt = c.EndAt
	stored.UpdatedAt = c.UpdatedAt
	if stored.TargetAmount != nil && stored.CurrentAmount > *stored.TargetAmount {
		stored.CurrentAmount = *stored.TargetAmount
	}
	stored.Revision++
	r.collections[c.ID] = stored
	*c = stored
	return nil
}

func (r *MemoryRepository) DeleteCollection(ctx context.Context, id string) error {
	r.ledgerTx.Lock()
	defer r.ledgerTx.Unlock()

	r.mu.Lock()
	c, ok := r.collections[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.collections, id)
	for pid, p := range r.payments {
		if p.CollectionID == id {
			delete(r.payments, pid)
		}
	}
	r.mu.Unlock()

	if c.CoverImage != "" {
		r.runCleanup(ctx, []string{c.CoverImage})
	}
	return nil
}

func (r *MemoryRepository) ListCollections(ctx context.Context, filters models.CollectionFilters) (models.PageResult[models.Collection], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := filters.Now
	if now.IsZero() {
		now = time.Now()
	}
	search := strings.ToLower(filters.Search)

	var out []models.Collection
	for _, c := range r.collections {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		if filters.Occasion != "" && c.Occasion != filters.Occasion {
			continue
		}
		if filters.AuthorID != 0 && c.AuthorID != filters.AuthorID {
			continue
		}
		switch filters.Status {
		case models.CollectionActive:
			if !c.EndAt.After(now) {
				continue
			}
		case models.CollectionCompleted:
			if c.EndAt.After(now) {
				continue
			}
		}
		out = append(out, c)
	}

	field, desc := orderField(filters.OrderBy, "-created_at")
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		var less bool
		switch field {
		case "end_datetime":
			less = a.EndAt.Before(b.EndAt)
		case "current_amount":
			less = a.CurrentAmount < b.CurrentAmount
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if desc {
			return !less && !equalCollectionKey(field, a, b)
		}
		return less
	})

	return models.Paginate(out, filters.Page), nil
}

func equalCollectionKey(field string, a, b models.Collection) bool {
	switch field {
	case "end_datetime":
		return a.EndAt.Equal(b.EndAt)
	case "current_amount":
		return a.CurrentAmount == b.CurrentAmount
	default:
		return a.CreatedAt.Equal(b.CreatedAt)
	}
}

func (r *MemoryRepository) CountPayments(ctx context.Context, collectionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.payments {
		if p.CollectionID == collectionID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) RecentPayments(ctx context.Context, collectionID string, limit int) ([]models.Payment, error) {
	res, err := r.ListPayments(ctx, models.PaymentFilters{
		CollectionID: collectionID,
		OrderBy:      "-created_at",
		Page:         models.Page{Number: 1, Size: limit},
	})
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// --- Payments ---

func (r *MemoryRepository) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListPayments(ctx context.Context, filters models.PaymentFilters) (models.PageResult[models.Payment], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Payment
	for _, p := range r.payments {
		if filters.UserID != 0 && p.UserID != filters.UserID {
			continue
		}
		if filters.CollectionID != "" && p.CollectionID != filters.CollectionID {
			continue
		}
		out = append(out, p)
	}

	field, desc := orderField(filters.OrderBy, "-created_at")
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if field == "amount" {
			if desc {
				return a.Amount > b.Amount
			}
			return a.Amount < b.Amount
		}
		if desc {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	return models.Paginate(out, filters.Page), nil
}

// InLedgerTx runs fn with ledger writes serialised; changes are discarded
// when fn returns an error.
func (r *MemoryRepository) InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	r.ledgerTx.Lock()
	defer r.ledgerTx.Unlock()

	tx := &memoryLedgerTx{
		r:           r,
		collections: make(map[string]*models.Collection),
		payments:    make(map[string]*models.Payment),
	}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryLedgerTx keeps an undo log of the collections and payments it
// writes; nil entries mark rows that did not exist before the transaction.
type memoryLedgerTx struct {
	r           *MemoryRepository
	collections map[string]*models.Collection
	payments    map[string]*models.Payment
}

// rememberCollection and rememberPayment must be called with r.mu held
func (t *memoryLedgerTx) rememberCollection(id string) {
	if _, seen := t.collections[id]; seen {
		return
	}
	if c, ok := t.r.collections[id]; ok {
		t.collections[id] = &c
		return
	}
	t.collections[id] = nil
}

func (t *memoryLedgerTx) rememberPayment(id string) {
	if _, seen := t.payments[id]; seen {
		return
	}
	if p, ok := t.r.payments[id]; ok {
		t.payments[id] = &p
		return
	}
	t.payments[id] = nil
}

func (t *memoryLedgerTx) rollback() {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	for id, prev := range t.collections {
		if prev == nil {
			delete(t.r.collections, id)
			continue
		}
		t.r.collections[id] = *prev
	}
	for id, prev := range t.payments {
		if prev == nil {
			delete(t.r.payments, id)
			continue
		}
		t.r.payments[id] = *prev
	}
}

func (t *memoryLedgerTx) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	return t.r.GetCollection(ctx, id)
}

func (t *memoryLedgerTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if _, ok := t.r.collections[p.CollectionID]; !ok {
		return fmt.Errorf("collection %s: %w", p.CollectionID, ErrNotFound)
	}
	if _, ok := t.r.payments[p.ID]; ok {
		return ErrConflict
	}
	t.rememberPayment(p.ID)
	t.r.payments[p.ID] = *p
	return nil
}

func (t *memoryLedgerTx) DeletePayment(ctx context.Context, id string) (*models.Payment, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	p, ok := t.r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	t.rememberPayment(id)
	delete(t.r.payments, id)
	return &p, nil
}

func (t *memoryLedgerTx) AddToCollected(ctx context.Context, collectionID string, delta models.Money, now time.Time) (models.Money, bool, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()

	c, ok := t.r.collections[collectionID]
	if !ok {
		return 0, false, ErrNotFound
	}

	if delta > 0 {
		if !now.Before(c.EndAt) {
			return c.CurrentAmount, false, nil
		}
		if c.CurrentAmount > models.MaxCollectionAmount-delta {
			return c.CurrentAmount, false, nil
		}
		if c.TargetAmount != nil && c.CurrentAmount > *c.TargetAmount-delta {
			return c.CurrentAmount, false, nil
		}
	}
	next := c.CurrentAmount + delta
	if next < 0 {
		next = 0
	}

	t.rememberCollection(collectionID)
	c.CurrentAmount = next
	c.Revision++
	t.r.collections[collectionID] = c
	return next, true, nil
}

func (r *MemoryRepository) RecomputeCollected(ctx context.Context) ([]Correction, error) {
	r.ledgerTx.Lock()
	defer r.ledgerTx.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	sums := make(map[string]models.Money)
	for _, p := range r.payments {
		sums[p.CollectionID] += p.Amount
	}

	var out []Correction
	for id, c := range r.collections {
		want := sums[id]
		if c.TargetAmount != nil && want > *c.TargetAmount {
			want = *c.TargetAmount
		}
		if want != c.CurrentAmount {
			out = append(out, Correction{CollectionID: id, Before: c.CurrentAmount, After: want})
			c.CurrentAmount = want
			c.Revision++
			r.collections[id] = c
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionID < out[j].CollectionID })
	return out, nil
}

// SetCollected overwrites a running total without touching payments.
// Used by administrative corrections and by tests simulating drift.
func (r *MemoryRepository) SetCollected(ctx context.Context, collectionID string, amount models.Money) error {
	r.ledgerTx.Lock()
	defer r.ledgerTx.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collections[collectionID]
	if !ok {
		return ErrNotFound
	}
	c.CurrentAmount = amount
	c.Revision++
	r.collections[collectionID] = c
	return nil
}

// --- Users ---

func (r *MemoryRepository) CreateUser(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return fmt.Errorf("username %s: %w", u.Username, ErrConflict)
		}
	}
	u.ID = r.id()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.GetUserByUsername(ctx, username)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// orderField splits "-created_at" into ("created_at", true)
func orderField(orderBy, def string) (string, bool) {
	if orderBy == "" {
		orderBy = def
	}
	if strings.HasPrefix(orderBy, "-") {
		return orderBy[1:], true
	}
	return orderBy, false
}
