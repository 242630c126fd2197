package model

import "time"

const (
	StatusScheduled = "SCHEDULED"
	StatusConfirmed = "CONFIRMED"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"

	TypeAtGarage      = "AT_GARAGE"
	TypeMobileService = "MOBILE_SERVICE"
)

// Appointment is one scheduled service engagement. EndTime is always
// computed as ScheduledTime + DurationMin and never edited independently.
type Appointment struct {
	ID              string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	CustomerID      string    `json:"customer_id" bson:"customer_id" validate:"required,mongodb"`
	VehicleID       string    `json:"vehicle_id,omitempty" bson:"vehicle_id,omitempty" validate:"omitempty,mongodb"`
	EmployeeID      string    `json:"employee_id,omitempty" bson:"employee_id,omitempty" validate:"omitempty,mongodb"`
	ScheduledDate   string    `json:"scheduled_date" bson:"scheduled_date" validate:"required,datetime=2006-01-02"`
	ScheduledTime   string    `json:"scheduled_time" bson:"scheduled_time" validate:"required,hhmm,slot_step"`
	EndTime         string    `json:"end_time" bson:"end_time" validate:"required,hhmm"`
	DurationMin     int       `json:"duration_min" bson:"duration_min" validate:"required,min=15,max=480"`
	ServiceType     string    `json:"service_type" bson:"service_type" validate:"required,min=2,max=100"`
	AppointmentType string    `json:"appointment_type" bson:"appointment_type" validate:"required,oneof=AT_GARAGE MOBILE_SERVICE"`
	Status          string    `json:"status" bson:"status" validate:"required,oneof=SCHEDULED CONFIRMED COMPLETED CANCELLED"`
	Notes           string    `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=2000"`
	PaymentAmount   int64     `json:"payment_amount,omitempty" bson:"payment_amount,omitempty" validate:"omitempty,min=0"`
	PaymentMethod   string    `json:"payment_method,omitempty" bson:"payment_method,omitempty" validate:"omitempty,max=50"`
	PaymentDate     string    `json:"payment_date,omitempty" bson:"payment_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	BookedBy        string    `json:"booked_by,omitempty" bson:"booked_by,omitempty" validate:"omitempty,max=100"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

// Terminal reports whether no further status transitions are permitted.
func (a *Appointment) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled
}

// AppointmentAssignment is the join row linking one appointment to one
// assigned employee. Jobs that need more than one technician carry several
// rows; the row identity keeps the "excluding self" logic in availability
// checks attachable to something stable.
type AppointmentAssignment struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	AppointmentID string    `json:"appointment_id" bson:"appointment_id" validate:"required,mongodb"`
	EmployeeID    string    `json:"employee_id" bson:"employee_id" validate:"required,mongodb"`
	Primary       bool      `json:"primary" bson:"primary"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// AppointmentUpdate carries a partial appointment mutation. Nil/zero fields
// are left unchanged; EndTime is recomputed whenever time or duration move.
type AppointmentUpdate struct {
	VehicleID       string  `json:"vehicle_id,omitempty" validate:"omitempty,mongodb"`
	EmployeeID      string  `json:"employee_id,omitempty" validate:"omitempty,mongodb"`
	ScheduledDate   string  `json:"scheduled_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ScheduledTime   string  `json:"scheduled_time,omitempty" validate:"omitempty,hhmm,slot_step"`
	DurationMin     *int    `json:"duration_min,omitempty" validate:"omitempty,min=15,max=480"`
	ServiceType     string  `json:"service_type,omitempty" validate:"omitempty,min=2,max=100"`
	AppointmentType string  `json:"appointment_type,omitempty" validate:"omitempty,oneof=AT_GARAGE MOBILE_SERVICE"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// Reschedules reports whether the update moves the appointment in time or
// changes who serves it, which forces a fresh availability check.
func (u *AppointmentUpdate) Reschedules() bool {
	return u.ScheduledDate != "" || u.ScheduledTime != "" || u.DurationMin != nil || u.EmployeeID != ""
}

// PaymentRecord captures the payment details recorded on completion.
type PaymentRecord struct {
	AmountCents int64  `json:"amount_cents" validate:"min=0"`
	Method      string `json:"method" validate:"omitempty,max=50"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// AppointmentFilter narrows the FindAll read path.
type AppointmentFilter struct {
	EmployeeID string
	CustomerID string
	Status     string
	StartDate  string
	EndDate    string
}
