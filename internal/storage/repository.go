package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/office-hub/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// CleanupFunc is invoked after a delete commits with the media paths the
// deleted rows referenced.
type CleanupFunc func(ctx context.Context, paths []string)

// DeskTx is the view of the roster available inside a desk transaction
type DeskTx interface {
	// LockTables serialises writers touching any of the given table numbers
	// until the transaction ends.
	LockTables(ctx context.Context, tableNumbers ...int64) error
	DeskByNumber(ctx context.Context, tableNumber string) (*models.Desk, error)
	DeskByID(ctx context.Context, id int64) (*models.Desk, error)
	// LockDesk re-reads a desk and holds its row until the transaction ends.
	// Call it only after LockTables: row locks never precede advisory locks.
	LockDesk(ctx context.Context, id int64) (*models.Desk, error)
	DeskByEmployee(ctx context.Context, employeeID int64) (*models.Desk, error)
	EmployeeSkills(ctx context.Context, employeeID int64) ([]models.EmployeeSkill, error)
	GetEmployee(ctx context.Context, id int64) (*models.Employee, error)
	// SaveDesk inserts a desk when ID is zero, otherwise updates it
	SaveDesk(ctx context.Context, d *models.Desk) error
}

// RosterStore holds employees, skill assignments and desks
type RosterStore interface {
	// Employees
	CreateEmployee(ctx context.Context, e *models.Employee) error
	GetEmployee(ctx context.Context, id int64) (*models.Employee, error)
	UpdateEmployee(ctx context.Context, e *models.Employee) error
	DeleteEmployee(ctx context.Context, id int64) error
	ListEmployees(ctx context.Context, filters models.EmployeeFilters) (models.PageResult[models.Employee], error)
	CountEmployees(ctx context.Context) (int, error)

	// Skills
	SetEmployeeSkill(ctx context.Context, s models.EmployeeSkill) error
	RemoveEmployeeSkill(ctx context.Context, employeeID int64, skill models.SkillCategory) error
	EmployeeSkills(ctx context.Context, employeeID int64) ([]models.EmployeeSkill, error)

	// Images
	AddEmployeeImage(ctx context.Context, img *models.EmployeeImage) error
	EmployeeImages(ctx context.Context, employeeID int64) ([]models.EmployeeImage, error)
	DeleteEmployeeImage(ctx context.Context, employeeID, imageID int64) error

	// Desks
	GetDesk(ctx context.Context, id int64) (*models.Desk, error)
	DeskByEmployee(ctx context.Context, employeeID int64) (*models.Desk, error)
	ListDesks(ctx context.Context, filters models.DeskFilters) (models.PageResult[models.Desk], error)
	DeleteDesk(ctx context.Context, id int64) error
	InDeskTx(ctx context.Context, fn func(tx DeskTx) error) error
}

// LedgerTx is the view of the ledger available inside a payment transaction
type LedgerTx interface {
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
	InsertPayment(ctx context.Context, p *models.Payment) error
	// DeletePayment removes the payment and returns the deleted row
	DeletePayment(ctx context.Context, id string) (*models.Payment, error)
	// AddToCollected atomically adds delta to the running total in place.
	// A positive delta is applied only while the result stays within the
	// target (when one exists) and before endAt; ok is false otherwise.
	// A negative delta never takes the total below zero.
	AddToCollected(ctx context.Context, collectionID string, delta models.Money, now time.Time) (total models.Money, ok bool, err error)
}

// LedgerStore holds collections and payments
type LedgerStore interface {
	CreateCollection(ctx context.Context, c *models.Collection) error
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
	// UpdateCollection writes editable fields; the running total is clamped
	// to the new target in the same statement.
	UpdateCollection(ctx context.Context, c *models.Collection) error
	DeleteCollection(ctx context.Context, id string) error
	ListCollections(ctx context.Context, filters models.CollectionFilters) (models.PageResult[models.Collection], error)
	CountPayments(ctx context.Context, collectionID string) (int, error)
	RecentPayments(ctx context.Context, collectionID string, limit int) ([]models.Payment, error)

	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	ListPayments(ctx context.Context, filters models.PaymentFilters) (models.PageResult[models.Payment], error)
	InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// RecomputeCollected resets every running total to the sum of its
	// payments, clamped to the target, and returns the corrected collections.
	RecomputeCollected(ctx context.Context) ([]Correction, error)
}

// Correction records one running total fixed by RecomputeCollected
type Correction struct {
	CollectionID string
	Before       models.Money
	After        models.Money
}

// UserStore holds login accounts
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// Repository is the full persistence surface of the service
type Repository interface {
	RosterStore
	LedgerStore
	UserStore

	// Health
	Ping(ctx context.Context) error
	Close() error
}
