package notify

import (
	"context"

	"treadline/pkg/config"
	"treadline/pkg/kafka"
	"treadline/pkg/logger"
	"treadline/pkg/model"
)

const eventSource = "treadline-scheduling"

// appointmentEvent is the payload shared by every lifecycle event.
type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	CustomerID    string `json:"customer_id"`
	EmployeeID    string `json:"employee_id,omitempty"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
	EndTime       string `json:"end_time"`
	ServiceType   string `json:"service_type"`
	Status        string `json:"status"`
	PaymentAmount int64  `json:"payment_amount,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	PaymentDate   string `json:"payment_date,omitempty"`

	// Only set on reminder events.
	ReminderHoursAhead int `json:"reminder_hours_ahead,omitempty"`
}

func newAppointmentEvent(a *model.Appointment) appointmentEvent {
	return appointmentEvent{
		AppointmentID: a.ID,
		CustomerID:    a.CustomerID,
		EmployeeID:    a.EmployeeID,
		ScheduledDate: a.ScheduledDate,
		ScheduledTime: a.ScheduledTime,
		EndTime:       a.EndTime,
		ServiceType:   a.ServiceType,
		Status:        a.Status,
		PaymentAmount: a.PaymentAmount,
		PaymentMethod: a.PaymentMethod,
		PaymentDate:   a.PaymentDate,
	}
}

type kafkaNotifier struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewKafkaNotifier publishes notices to the notifications topic.
func NewKafkaNotifier(cfg *config.Config) (Notifier, error) {
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.NotificationsTopic)
	if err != nil {
		return nil, err
	}
	return &kafkaNotifier{producer: producer, log: cfg.Log}, nil
}

func (n *kafkaNotifier) SendAppointmentConfirmation(ctx context.Context, appointment *model.Appointment) error {
	return n.publish(ctx, EventAppointmentConfirmation, appointment)
}

func (n *kafkaNotifier) SendAppointmentCancellation(ctx context.Context, appointment *model.Appointment) error {
	return n.publish(ctx, EventAppointmentCancellation, appointment)
}

func (n *kafkaNotifier) SendReminder(ctx context.Context, appointment *model.Appointment, hoursAhead int) error {
	event := newAppointmentEvent(appointment)
	event.ReminderHoursAhead = hoursAhead
	msg, err := kafka.NewMessage().
		WithKey(appointment.ID).
		WithValue(event).
		WithEventType(EventAppointmentReminder).
		WithSource(eventSource).
		Build()
	if err != nil {
		return err
	}
	return n.producer.Publish(ctx, msg)
}

func (n *kafkaNotifier) publish(ctx context.Context, eventType string, appointment *model.Appointment) error {
	msg, err := kafka.NewMessage().
		WithKey(appointment.ID).
		WithValue(newAppointmentEvent(appointment)).
		WithEventType(eventType).
		WithSource(eventSource).
		Build()
	if err != nil {
		return err
	}
	return n.producer.Publish(ctx, msg)
}

type kafkaBillingTrigger struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewKafkaBillingTrigger publishes invoice requests to the billing topic.
func NewKafkaBillingTrigger(cfg *config.Config) (BillingTrigger, error) {
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.BillingTopic)
	if err != nil {
		return nil, err
	}
	return &kafkaBillingTrigger{producer: producer, log: cfg.Log}, nil
}

func (b *kafkaBillingTrigger) CreateInvoiceFromAppointment(ctx context.Context, appointment *model.Appointment) error {
	msg, err := kafka.NewMessage().
		WithKey(appointment.ID).
		WithValue(newAppointmentEvent(appointment)).
		WithEventType(EventInvoiceRequested).
		WithSource(eventSource).
		Build()
	if err != nil {
		return err
	}
	return b.producer.Publish(ctx, msg)
}
