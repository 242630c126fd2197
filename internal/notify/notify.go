// Package notify publishes appointment lifecycle events for the downstream
// notification and billing consumers. Publishing is fire and forget: a
// failed publish is logged, never surfaced to the booking caller.
package notify

import (
	"context"

	"treadline/pkg/model"
)

const (
	EventAppointmentConfirmation = "appointment.confirmation"
	EventAppointmentCancellation = "appointment.cancellation"
	EventAppointmentReminder     = "appointment.reminder"
	EventInvoiceRequested        = "invoice.requested"
)

// Notifier delivers customer-facing appointment notices.
type Notifier interface {
	SendAppointmentConfirmation(ctx context.Context, appointment *model.Appointment) error
	SendAppointmentCancellation(ctx context.Context, appointment *model.Appointment) error
	SendReminder(ctx context.Context, appointment *model.Appointment, hoursAhead int) error
}

// BillingTrigger kicks off invoicing once an appointment completes with a
// recorded payment.
type BillingTrigger interface {
	CreateInvoiceFromAppointment(ctx context.Context, appointment *model.Appointment) error
}
