package model

import "time"

// RecurringAvailability is one employee's weekly repeating open or closed
// window for a single day of week (0=Sunday .. 6=Saturday). At most one rule
// per (employee, day) is written, but slot generation scans every matching
// row rather than assuming uniqueness.
type RecurringAvailability struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	EmployeeID  string    `json:"employee_id" bson:"employee_id" validate:"required,mongodb"`
	DayOfWeek   int       `json:"day_of_week" bson:"day_of_week" validate:"min=0,max=6"`
	StartTime   string    `json:"start_time" bson:"start_time" validate:"required,hhmm,slot_step"`
	EndTime     string    `json:"end_time" bson:"end_time" validate:"required,hhmm,slot_step,gtfield=StartTime"`
	IsAvailable bool      `json:"is_available" bson:"is_available"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

// AvailabilityOverride is a date-specific exception: a marked-unavailable
// override suppresses recurring availability for its range (vacation, sick
// day); a marked-available override adds an extra window on an otherwise
// closed day. Overrides are additive; several may exist for one date.
type AvailabilityOverride struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	EmployeeID  string    `json:"employee_id" bson:"employee_id" validate:"required,mongodb"`
	Date        string    `json:"date" bson:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string    `json:"start_time" bson:"start_time" validate:"required,hhmm,slot_step"`
	EndTime     string    `json:"end_time" bson:"end_time" validate:"required,hhmm,slot_step,gtfield=StartTime"`
	IsAvailable bool      `json:"is_available" bson:"is_available"`
	Reason      string    `json:"reason,omitempty" bson:"reason,omitempty" validate:"omitempty,max=200"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}
