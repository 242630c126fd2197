package model

import "time"

const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleTechnician = "technician"
)

type Employee struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name      string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Role      string    `json:"role" bson:"role" validate:"required,oneof=admin manager technician"`
	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// Schedulable reports whether the employee can be assigned appointments.
func (e *Employee) Schedulable() bool {
	return e.Active && (e.Role == RoleManager || e.Role == RoleTechnician)
}

// Actor identifies who is performing a mutation, for permission checks.
type Actor struct {
	EmployeeID string
	Role       string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
