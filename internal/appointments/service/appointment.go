package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appointmentserrors "treadline/internal/appointments/errors"
	"treadline/internal/appointments/repository"
	"treadline/internal/appointments/validator"
	employees "treadline/internal/employees/repository"
	"treadline/internal/notify"
	"treadline/pkg/config"
	apperrors "treadline/pkg/errors"
	"treadline/pkg/model"
	"treadline/pkg/timeslot"

	"go.mongodb.org/mongo-driver/mongo"
)

// AvailabilityChecker is the slice of the availability engine booking needs.
type AvailabilityChecker interface {
	IsEmployeeAvailable(ctx context.Context, employeeID, date, startTime string, durationMin int, excludeAppointmentID string) (*model.AvailabilityCheck, error)
}

type AppointmentService interface {
	Create(ctx context.Context, appointment *model.Appointment, bookedBy string) error
	GetByID(ctx context.Context, id string) (*model.Appointment, error)
	GetAssignments(ctx context.Context, id string) ([]*model.AppointmentAssignment, error)
	FindAll(ctx context.Context, filter *model.AppointmentFilter, limit int, offset int64) ([]*model.Appointment, int64, error)
	GetCalendar(ctx context.Context, startDate, endDate, employeeID string) ([]*model.Appointment, error)
	GetToday(ctx context.Context) ([]*model.Appointment, error)
	GetByPaymentDate(ctx context.Context, date string) ([]*model.Appointment, error)
	Update(ctx context.Context, id string, updates *model.AppointmentUpdate) (*model.Appointment, error)
	Confirm(ctx context.Context, id string) (*model.Appointment, error)
	Complete(ctx context.Context, id string, payment *model.PaymentRecord) (*model.Appointment, error)
	Cancel(ctx context.Context, id string) (*model.Appointment, error)
	Remind(ctx context.Context, id string, hoursAhead int) error
	Remove(ctx context.Context, id string, actor model.Actor) error
}

type appointmentService struct {
	repo         repository.AppointmentRepository
	lockRepo     repository.SlotLockRepository
	employees    employees.EmployeeRepository
	availability AvailabilityChecker
	validator    *validator.AppointmentValidator
	notifier     notify.Notifier
	billing      notify.BillingTrigger
	cfg          *config.Config
}

func NewAppointmentService(
	repo repository.AppointmentRepository,
	lockRepo repository.SlotLockRepository,
	employeeRepo employees.EmployeeRepository,
	availability AvailabilityChecker,
	appointmentValidator *validator.AppointmentValidator,
	notifier notify.Notifier,
	billing notify.BillingTrigger,
	cfg *config.Config,
) AppointmentService {
	return &appointmentService{
		repo:         repo,
		lockRepo:     lockRepo,
		employees:    employeeRepo,
		availability: availability,
		validator:    appointmentValidator,
		notifier:     notifier,
		billing:      billing,
		cfg:          cfg,
	}
}

func (s *appointmentService) Create(ctx context.Context, appointment *model.Appointment, bookedBy string) error {
	s.applyDefaults(appointment)
	appointment.BookedBy = bookedBy

	if timeslot.CrossesMidnight(appointment.ScheduledTime, appointment.DurationMin) {
		return apperrors.Validation("Appointment must not cross midnight", map[string]any{
			"scheduled_time": appointment.ScheduledTime,
			"duration_min":   appointment.DurationMin,
		})
	}

	endTime, err := timeslot.AddMinutes(appointment.ScheduledTime, appointment.DurationMin)
	if err != nil {
		return apperrors.InvalidInput("Scheduled time must be in HH:MM format")
	}
	appointment.EndTime = endTime

	if err := s.validate(appointment); err != nil {
		return err
	}

	if appointment.EmployeeID != "" {
		if err := s.requireAvailable(ctx, appointment.EmployeeID, appointment, ""); err != nil {
			return err
		}
	} else {
		employeeID, err := s.autoAssign(ctx, appointment)
		if err != nil {
			return err
		}
		appointment.EmployeeID = employeeID
	}

	lockID, err := s.acquireSlotLock(ctx, appointment.EmployeeID, appointment.ScheduledDate, appointment.ScheduledTime)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := s.releaseSlotLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release slot lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		// Re-check inside the transaction: the slot may have been taken
		// between the first check and the lock.
		if err := s.requireAvailable(sessCtx, appointment.EmployeeID, appointment, ""); err != nil {
			return err
		}
		if err := s.repo.Create(sessCtx, appointment); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return apperrors.Conflict("This slot was just booked by another request")
			}
			return apperrors.Internal("Failed to create appointment", err)
		}
		return s.insertAssignmentRows(sessCtx, appointment)
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create appointment",
			"employee_id", appointment.EmployeeID,
			"scheduled_date", appointment.ScheduledDate,
			"scheduled_time", appointment.ScheduledTime,
			"error", err,
		)
		return err
	}

	s.cfg.Log.Info("Appointment created successfully",
		"id", appointment.ID,
		"customer_id", appointment.CustomerID,
		"employee_id", appointment.EmployeeID,
		"scheduled_date", appointment.ScheduledDate,
		"scheduled_time", appointment.ScheduledTime,
		"service_type", appointment.ServiceType,
	)

	s.dispatch("confirmation", s.notifier.SendAppointmentConfirmation, appointment)
	return nil
}

func (s *appointmentService) GetByID(ctx context.Context, id string) (*model.Appointment, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Appointment ID cannot be empty")
	}

	appointment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateRepoError(err, id)
	}
	return appointment, nil
}

func (s *appointmentService) GetAssignments(ctx context.Context, id string) ([]*model.AppointmentAssignment, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Appointment ID cannot be empty")
	}

	rows, err := s.repo.FindAssignments(ctx, id)
	if err != nil {
		s.cfg.Log.Error("Failed to list appointment assignments", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve appointment assignments", err)
	}
	return rows, nil
}

func (s *appointmentService) FindAll(ctx context.Context, filter *model.AppointmentFilter, limit int, offset int64) ([]*model.Appointment, int64, error) {
	var count int64
	var appointments []*model.Appointment
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, filter)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count appointments", "error", errCount)
			errCount = apperrors.Internal("Failed to count appointments", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		appointments, errFind = s.repo.FindAll(ctx, filter, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list appointments", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve appointments", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return appointments, count, nil
}

func (s *appointmentService) GetCalendar(ctx context.Context, startDate, endDate, employeeID string) ([]*model.Appointment, error) {
	if !validDate(startDate) || !validDate(endDate) {
		return nil, apperrors.InvalidInput("start_date and end_date must be dates in YYYY-MM-DD format")
	}
	if endDate < startDate {
		return nil, apperrors.InvalidInput("end_date must not be before start_date")
	}

	appointments, err := s.repo.FindByDateRange(ctx, startDate, endDate, employeeID)
	if err != nil {
		s.cfg.Log.Error("Failed to load calendar", "start_date", startDate, "end_date", endDate, "error", err)
		return nil, apperrors.Internal("Failed to retrieve calendar", err)
	}
	return appointments, nil
}

// GetToday resolves "today" in the business timezone, never the server's.
func (s *appointmentService) GetToday(ctx context.Context) ([]*model.Appointment, error) {
	today := s.cfg.Today()
	return s.GetCalendar(ctx, today, today, "")
}

func (s *appointmentService) GetByPaymentDate(ctx context.Context, date string) ([]*model.Appointment, error) {
	if !validDate(date) {
		return nil, apperrors.InvalidInput("date must be in YYYY-MM-DD format")
	}

	appointments, err := s.repo.FindByPaymentDate(ctx, date)
	if err != nil {
		s.cfg.Log.Error("Failed to find appointments by payment date", "date", date, "error", err)
		return nil, apperrors.Internal("Failed to retrieve appointments", err)
	}
	return appointments, nil
}

func (s *appointmentService) Update(ctx context.Context, id string, updates *model.AppointmentUpdate) (*model.Appointment, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Appointment ID cannot be empty")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateRepoError(err, id)
	}
	if existing.Terminal() {
		return nil, apperrors.Conflict(fmt.Sprintf("Appointment in status %s cannot be modified", existing.Status))
	}

	if err := s.validator.ValidateUpdate(updates); err != nil {
		s.cfg.Log.Warn("Appointment update validation failed", "id", id, "error", err)
		return nil, apperrors.Validation("Invalid update input", map[string]any{"error": err.Error()})
	}

	merged := s.mergeAppointmentUpdates(existing, updates)
	if timeslot.CrossesMidnight(merged.ScheduledTime, merged.DurationMin) {
		return nil, apperrors.Validation("Appointment must not cross midnight", map[string]any{
			"scheduled_time": merged.ScheduledTime,
			"duration_min":   merged.DurationMin,
		})
	}
	endTime, err := timeslot.AddMinutes(merged.ScheduledTime, merged.DurationMin)
	if err != nil {
		return nil, apperrors.InvalidInput("Scheduled time must be in HH:MM format")
	}
	merged.EndTime = endTime

	if err := s.validate(merged); err != nil {
		return nil, err
	}

	if !updates.Reschedules() {
		err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			return s.persistUpdate(sessCtx, id, merged, existing)
		})
		if err != nil {
			s.cfg.Log.Error("Failed to update appointment", "id", id, "error", err)
			return nil, err
		}
		s.cfg.Log.Info("Appointment updated successfully", "id", id)
		return merged, nil
	}

	// Moving in time or to another employee: the slot must be re-proven,
	// ignoring the appointment's own booking.
	if err := s.requireAvailable(ctx, merged.EmployeeID, merged, id); err != nil {
		return nil, err
	}

	lockID, err := s.acquireSlotLock(ctx, merged.EmployeeID, merged.ScheduledDate, merged.ScheduledTime)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := s.releaseSlotLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release slot lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.requireAvailable(sessCtx, merged.EmployeeID, merged, id); err != nil {
			return err
		}
		return s.persistUpdate(sessCtx, id, merged, existing)
	})
	if err != nil {
		s.cfg.Log.Error("Failed to reschedule appointment", "id", id, "error", err)
		return nil, err
	}

	s.cfg.Log.Info("Appointment rescheduled successfully",
		"id", id,
		"employee_id", merged.EmployeeID,
		"scheduled_date", merged.ScheduledDate,
		"scheduled_time", merged.ScheduledTime,
	)
	return merged, nil
}

func (s *appointmentService) Confirm(ctx context.Context, id string) (*model.Appointment, error) {
	return s.transition(ctx, id, model.StatusConfirmed, nil)
}

func (s *appointmentService) Complete(ctx context.Context, id string, payment *model.PaymentRecord) (*model.Appointment, error) {
	if payment == nil {
		return nil, apperrors.InvalidInput("Payment details are required to complete an appointment")
	}
	if err := s.validator.ValidatePayment(payment); err != nil {
		s.cfg.Log.Warn("Payment validation failed", "id", id, "error", err)
		return nil, apperrors.Validation("Invalid payment input", map[string]any{"error": err.Error()})
	}
	if payment.Date == "" {
		payment.Date = s.cfg.Today()
	}

	appointment, err := s.transition(ctx, id, model.StatusCompleted, payment)
	if err != nil {
		return nil, err
	}

	// Invoice creation is downstream work; a publish failure never rolls
	// back the completed appointment.
	s.dispatch("invoice", s.billing.CreateInvoiceFromAppointment, appointment)
	return appointment, nil
}

func (s *appointmentService) Cancel(ctx context.Context, id string) (*model.Appointment, error) {
	appointment, err := s.transition(ctx, id, model.StatusCancelled, nil)
	if err != nil {
		return nil, err
	}

	s.dispatch("cancellation", s.notifier.SendAppointmentCancellation, appointment)
	return appointment, nil
}

// Remind publishes a reminder notice for an upcoming appointment. The polling
// job that decides when reminders are due lives outside this service.
func (s *appointmentService) Remind(ctx context.Context, id string, hoursAhead int) error {
	if hoursAhead <= 0 {
		return apperrors.InvalidInput("hours_ahead must be positive")
	}

	appointment, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if appointment.Status != model.StatusScheduled && appointment.Status != model.StatusConfirmed {
		return apperrors.Conflict(fmt.Sprintf("Cannot send a reminder for a %s appointment", appointment.Status))
	}

	s.dispatch("reminder", func(ctx context.Context, a *model.Appointment) error {
		return s.notifier.SendReminder(ctx, a, hoursAhead)
	}, appointment)
	return nil
}

func (s *appointmentService) Remove(ctx context.Context, id string, actor model.Actor) error {
	if id == "" {
		return apperrors.InvalidInput("Appointment ID cannot be empty")
	}
	if !actor.IsAdmin() {
		return apperrors.Forbidden("Only an admin may permanently remove an appointment")
	}

	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.repo.Delete(sessCtx, id); err != nil {
			return s.translateRepoError(err, id)
		}
		if err := s.repo.DeleteAssignments(sessCtx, id); err != nil {
			return apperrors.Internal("Failed to delete appointment assignments", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Appointment removed", "id", id, "actor", actor.EmployeeID)
	return nil
}

// --- State machine ---

var allowedTransitions = map[string][]string{
	model.StatusScheduled: {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusCompleted, model.StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *appointmentService) transition(ctx context.Context, id, target string, payment *model.PaymentRecord) (*model.Appointment, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Appointment ID cannot be empty")
	}

	var updated *model.Appointment
	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		appointment, err := s.repo.FindByID(sessCtx, id)
		if err != nil {
			return s.translateRepoError(err, id)
		}
		if !canTransition(appointment.Status, target) {
			return apperrors.Conflict(fmt.Sprintf(
				"Cannot transition appointment from %s to %s", appointment.Status, target,
			))
		}

		appointment.Status = target
		if payment != nil {
			appointment.PaymentAmount = payment.AmountCents
			appointment.PaymentMethod = payment.Method
			appointment.PaymentDate = payment.Date
		}

		if err := s.repo.Update(sessCtx, id, appointment); err != nil {
			return apperrors.Internal("Failed to update appointment status", err)
		}
		updated = appointment
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Appointment status transition failed", "id", id, "target", target, "error", err)
		return nil, err
	}

	s.cfg.Log.Info("Appointment status changed", "id", id, "status", target)
	return updated, nil
}

// --- Helpers ---

func (s *appointmentService) applyDefaults(a *model.Appointment) {
	a.ID = ""
	a.Status = model.StatusScheduled
	if a.DurationMin == 0 {
		a.DurationMin = s.cfg.DefaultDurationMin
	}
	if a.AppointmentType == "" {
		a.AppointmentType = model.TypeAtGarage
	}
}

func (s *appointmentService) validate(appointment *model.Appointment) error {
	if err := s.validator.Validate(appointment); err != nil {
		s.cfg.Log.Warn("Appointment validation failed", "error", err)
		return apperrors.Validation("Appointment validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

func (s *appointmentService) mergeAppointmentUpdates(existing *model.Appointment, updates *model.AppointmentUpdate) *model.Appointment {
	merged := *existing

	if updates.VehicleID != "" {
		merged.VehicleID = updates.VehicleID
	}
	if updates.EmployeeID != "" {
		merged.EmployeeID = updates.EmployeeID
	}
	if updates.ScheduledDate != "" {
		merged.ScheduledDate = updates.ScheduledDate
	}
	if updates.ScheduledTime != "" {
		merged.ScheduledTime = updates.ScheduledTime
	}
	if updates.DurationMin != nil {
		merged.DurationMin = *updates.DurationMin
	}
	if updates.ServiceType != "" {
		merged.ServiceType = updates.ServiceType
	}
	if updates.AppointmentType != "" {
		merged.AppointmentType = updates.AppointmentType
	}
	if updates.Notes != nil {
		merged.Notes = *updates.Notes
	}

	return &merged
}

// persistUpdate writes the merged appointment and, when the assigned
// employee moved, swaps the assignment rows with it.
func (s *appointmentService) persistUpdate(ctx context.Context, id string, merged, existing *model.Appointment) error {
	if err := s.repo.Update(ctx, id, merged); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Conflict("This slot was just booked by another request")
		}
		return apperrors.Internal("Failed to update appointment", err)
	}
	if merged.EmployeeID != existing.EmployeeID {
		rows := []*model.AppointmentAssignment{
			{AppointmentID: id, EmployeeID: merged.EmployeeID, Primary: true},
		}
		if err := s.repo.ReplaceAssignments(ctx, id, rows); err != nil {
			return apperrors.Internal("Failed to update appointment assignments", err)
		}
	}
	return nil
}

func (s *appointmentService) insertAssignmentRows(ctx context.Context, appointment *model.Appointment) error {
	rows := []*model.AppointmentAssignment{
		{AppointmentID: appointment.ID, EmployeeID: appointment.EmployeeID, Primary: true},
	}
	if err := s.repo.InsertAssignments(ctx, rows); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Conflict("This slot was just booked by another request")
		}
		return apperrors.Internal("Failed to create appointment assignments", err)
	}
	return nil
}

// requireAvailable turns a negative availability check into a conflict
// carrying the reason and, when one exists, a suggested alternative.
func (s *appointmentService) requireAvailable(ctx context.Context, employeeID string, appointment *model.Appointment, excludeID string) error {
	check, err := s.availability.IsEmployeeAvailable(ctx, employeeID, appointment.ScheduledDate, appointment.ScheduledTime, appointment.DurationMin, excludeID)
	if err != nil {
		return err
	}
	if check.Available {
		return nil
	}

	details := map[string]any{"reason": check.Reason}
	if check.Suggestion != nil {
		details["suggestion"] = check.Suggestion
	}
	return apperrors.Conflict(fmt.Sprintf("Employee is not available: %s", check.Reason)).WithDetails(details)
}

// autoAssign picks the first available schedulable employee. The repository
// returns them in creation order, which keeps assignment deterministic when
// several are free.
func (s *appointmentService) autoAssign(ctx context.Context, appointment *model.Appointment) (string, error) {
	candidates, err := s.employees.ListSchedulable(ctx)
	if err != nil {
		s.cfg.Log.Error("Failed to list schedulable employees", "error", err)
		return "", apperrors.Internal("Failed to list employees", err)
	}

	for _, candidate := range candidates {
		check, err := s.availability.IsEmployeeAvailable(ctx, candidate.ID, appointment.ScheduledDate, appointment.ScheduledTime, appointment.DurationMin, "")
		if err != nil {
			return "", err
		}
		if check.Available {
			return candidate.ID, nil
		}
	}

	return "", apperrors.Conflict("No employee is available for the requested slot")
}

// acquireSlotLock creates an advisory lock on the slot coordinates. Returns
// conflict if another request holds it.
func (s *appointmentService) acquireSlotLock(ctx context.Context, employeeID, date, startTime string) (string, error) {
	lockID := fmt.Sprintf("slot_lock_%s_%s_%s", employeeID, date, startTime)

	lock := &model.SlotLock{
		ID:        lockID,
		ExpiresAt: time.Now().Add(s.cfg.SlotLockTTL),
	}

	if _, err := s.lockRepo.Create(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", apperrors.Conflict("This time slot is currently being booked by another request. Please try again.")
		}
		return "", apperrors.Internal("Failed to acquire slot lock", err)
	}

	return lockID, nil
}

func (s *appointmentService) releaseSlotLock(ctx context.Context, lockID string) error {
	return s.lockRepo.Delete(ctx, lockID)
}

// dispatch publishes an event without blocking or failing the caller.
func (s *appointmentService) dispatch(event string, fn func(context.Context, *model.Appointment) error, appointment *model.Appointment) {
	snapshot := *appointment
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()
		if err := fn(ctx, &snapshot); err != nil {
			s.cfg.Log.Warn("Failed to publish appointment event",
				"event", event,
				"id", snapshot.ID,
				"error", err,
			)
		}
	}()
}

func (s *appointmentService) translateRepoError(err error, id string) error {
	if errors.Is(err, appointmentserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Appointment", id)
	}
	if errors.Is(err, appointmentserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid appointment ID format")
	}
	return apperrors.Internal("Failed to retrieve appointment", err)
}

func validDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil && len(date) == 10
}
