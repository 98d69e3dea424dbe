// Package roster manages employees, their skills and desk assignments.
// Every desk save runs the adjacency Validator inside a transaction that
// holds the locks of the desk's neighbourhood.
package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/terra-clan/office-hub/internal/metrics"
	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/storage"
)

// Store is the persistence the roster needs
type Store interface {
	storage.RosterStore
	storage.UserStore
}

// ImageStore persists uploaded employee photos
type ImageStore interface {
	Save(ctx context.Context, dir, originalName string, r io.Reader) (string, error)
	Remove(ctx context.Context, paths []string)
}

// PasswordHasher hashes the initial password of generated accounts
type PasswordHasher func(password string) (string, error)

// Service implements roster operations
type Service struct {
	store           Store
	images          ImageStore
	hash            PasswordHasher
	defaultPassword string
	validator       Validator
	now             func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a roster service
func NewService(store Store, images ImageStore, hash PasswordHasher, defaultPassword string, opts ...Option) *Service {
	s := &Service{
		store:           store,
		images:          images,
		hash:            hash,
		defaultPassword: defaultPassword,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// neighbourhood returns the table numbers whose occupancy a save of n reads
func neighbourhood(n int64) []int64 {
	if n == 0 {
		return []int64{0, 1}
	}
	return []int64{n - 1, n, n + 1}
}

// --- Desks ---

// GetDesk returns a desk by ID
func (s *Service) GetDesk(ctx context.Context, id int64) (*models.Desk, error) {
	return s.store.GetDesk(ctx, id)
}

// ListDesks returns a filtered page of desks
func (s *Service) ListDesks(ctx context.Context, filters models.DeskFilters) (models.PageResult[models.Desk], error) {
	return s.store.ListDesks(ctx, filters)
}

// CreateDesk validates and inserts a desk
func (s *Service) CreateDesk(ctx context.Context, req models.DeskRequest) (*models.Desk, error) {
	table, n, err := CanonicalTableNumber(req.TableNumber)
	if err != nil {
		metrics.DeskInvalidNumber.Inc()
		return nil, err
	}

	desk := &models.Desk{TableNumber: table, Floor: req.Floor, EmployeeID: req.EmployeeID}
	err = s.store.InDeskTx(ctx, func(tx storage.DeskTx) error {
		if err := tx.LockTables(ctx, neighbourhood(n)...); err != nil {
			return err
		}
		return s.saveDesk(ctx, tx, desk)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("desk created", "desk_id", desk.ID, "table_number", desk.TableNumber)
	return desk, nil
}

// UpdateDesk replaces a desk's number, floor and occupant, re-running the
// adjacency check against the resulting state.
func (s *Service) UpdateDesk(ctx context.Context, id int64, req models.DeskRequest) (*models.Desk, error) {
	table, n, err := CanonicalTableNumber(req.TableNumber)
	if err != nil {
		metrics.DeskInvalidNumber.Inc()
		return nil, err
	}

	var desk *models.Desk
	err = s.inDeskTx(ctx, func(tx storage.DeskTx) error {
		current, err := tx.DeskByID(ctx, id)
		if err != nil {
			return err
		}

		locks := neighbourhood(n)
		if old, err := ParseTableNumber(current.TableNumber); err == nil && old != n {
			locks = append(locks, neighbourhood(old)...)
		}
		if err := tx.LockTables(ctx, locks...); err != nil {
			return err
		}

		locked, err := tx.LockDesk(ctx, id)
		if err != nil {
			return err
		}
		if locked.TableNumber != current.TableNumber {
			return errDeskMoved
		}

		desk = &models.Desk{ID: id, TableNumber: table, Floor: req.Floor, EmployeeID: req.EmployeeID}
		return s.saveDesk(ctx, tx, desk)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("desk updated", "desk_id", desk.ID, "table_number", desk.TableNumber)
	return desk, nil
}

// DeleteDesk removes a desk
func (s *Service) DeleteDesk(ctx context.Context, id int64) error {
	return s.store.DeleteDesk(ctx, id)
}

// Workplace returns the desk an employee occupies
func (s *Service) Workplace(ctx context.Context, employeeID int64) (*models.Desk, error) {
	if _, err := s.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	return s.store.DeskByEmployee(ctx, employeeID)
}

// AssignWorkplace seats an employee at the desk with the given table
// number, creating the desk if it does not exist and vacating the
// employee's previous desk.
func (s *Service) AssignWorkplace(ctx context.Context, employeeID int64, req models.AssignWorkplaceRequest) (*models.Desk, error) {
	table, n, err := CanonicalTableNumber(req.TableNumber)
	if err != nil {
		metrics.DeskInvalidNumber.Inc()
		return nil, err
	}

	var desk *models.Desk
	err = s.inDeskTx(ctx, func(tx storage.DeskTx) error {
		if _, err := tx.GetEmployee(ctx, employeeID); err != nil {
			return err
		}

		previous, err := tx.DeskByEmployee(ctx, employeeID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		locks := neighbourhood(n)
		if previous != nil {
			if old, err := ParseTableNumber(previous.TableNumber); err == nil && old != n {
				locks = append(locks, neighbourhood(old)...)
			}
		}
		if err := tx.LockTables(ctx, locks...); err != nil {
			return err
		}

		seated, err := tx.DeskByEmployee(ctx, employeeID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if !sameDesk(previous, seated) {
			return errDeskMoved
		}
		previous = seated

		desk, err = tx.DeskByNumber(ctx, table)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			desk = &models.Desk{TableNumber: table, Floor: req.Floor}
		case err != nil:
			return err
		case desk.Occupied() && *desk.EmployeeID != employeeID:
			return fmt.Errorf("desk %s is occupied by employee %d: %w", table, *desk.EmployeeID, storage.ErrConflict)
		}

		if previous != nil && previous.ID != desk.ID {
			previous.EmployeeID = nil
			if err := tx.SaveDesk(ctx, previous); err != nil {
				return fmt.Errorf("failed to vacate desk %s: %w", previous.TableNumber, err)
			}
		}

		if req.Floor != nil {
			desk.Floor = req.Floor
		}
		desk.EmployeeID = &employeeID
		return s.saveDesk(ctx, tx, desk)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("workplace assigned", "employee_id", employeeID, "table_number", desk.TableNumber)
	return desk, nil
}

// deskTxAttempts bounds how often a desk transaction is retried after the
// desk it read moved before its tables were locked.
const deskTxAttempts = 3

var errDeskMoved = errors.New("desk moved before lock")

// inDeskTx runs fn in a desk transaction. Every fn takes all of its
// advisory locks in one LockTables call before it locks or writes a row, and
// returns errDeskMoved when a row read before locking changed meanwhile.
func (s *Service) inDeskTx(ctx context.Context, fn func(tx storage.DeskTx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.store.InDeskTx(ctx, fn)
		if !errors.Is(err, errDeskMoved) {
			return err
		}
		if attempt == deskTxAttempts {
			return fmt.Errorf("desk changed concurrently: %w", storage.ErrConflict)
		}
		slog.Debug("desk moved before lock, retrying", "attempt", attempt)
	}
}

func sameDesk(a, b *models.Desk) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID && a.TableNumber == b.TableNumber
}

// saveDesk runs the adjacency check and persists desk inside tx
func (s *Service) saveDesk(ctx context.Context, tx storage.DeskTx, desk *models.Desk) error {
	if desk.EmployeeID != nil {
		if _, err := tx.GetEmployee(ctx, *desk.EmployeeID); err != nil {
			return fmt.Errorf("employee %d: %w", *desk.EmployeeID, err)
		}
	}

	if err := s.validator.Check(ctx, tx, desk); err != nil {
		var cv *ConstraintViolation
		if errors.As(err, &cv) {
			metrics.DeskConflicts.Inc()
			slog.Warn("desk adjacency conflict",
				"table_number", desk.TableNumber,
				"neighbor_table", cv.NeighborTable,
				"neighbor_employee_id", cv.NeighborEmployeeID,
			)
		}
		return err
	}

	if err := tx.SaveDesk(ctx, desk); err != nil {
		return err
	}
	metrics.DeskAssigned.Inc()
	return nil
}
