package models

import "fmt"

// Desk is a workplace identified by a numeric table number.
// A desk has at most one occupant and an employee occupies at most one desk.
type Desk struct {
	ID          int64  `json:"id"`
	TableNumber string `json:"table_number"`
	Floor       *int   `json:"floor,omitempty"`
	EmployeeID  *int64 `json:"employee_id,omitempty"`
}

// Occupied reports whether someone sits at the desk
func (d *Desk) Occupied() bool {
	return d.EmployeeID != nil
}

func (d *Desk) String() string {
	if d.EmployeeID == nil {
		return fmt.Sprintf("desk %s (free)", d.TableNumber)
	}
	return fmt.Sprintf("desk %s - employee %d", d.TableNumber, *d.EmployeeID)
}

// DeskOccupancy filters desks by whether they are taken
type DeskOccupancy string

const (
	DeskAny      DeskOccupancy = ""
	DeskFree     DeskOccupancy = "free"
	DeskOccupied DeskOccupancy = "occupied"
)

// DeskFilters narrows desk listings
type DeskFilters struct {
	Search    string
	Occupancy DeskOccupancy
	Page      Page
}

// DeskRequest creates or updates a desk
type DeskRequest struct {
	TableNumber string `json:"table_number"`
	Floor       *int   `json:"floor,omitempty"`
	EmployeeID  *int64 `json:"employee_id,omitempty"`
}
