package service

import (
	"context"
	"errors"
	"sort"
	"time"

	availabilityerrors "treadline/internal/availability/errors"
	"treadline/internal/availability/repository"
	"treadline/internal/availability/validator"
	employees "treadline/internal/employees/repository"
	"treadline/pkg/config"
	apperrors "treadline/pkg/errors"
	"treadline/pkg/model"
	"treadline/pkg/timeslot"
)

const (
	ReasonOutsideWorkingHours = "outside working hours"
	ReasonAppointmentConflict = "conflicts with an existing appointment"
)

// AppointmentReader is the slice of the appointment store the availability
// engine needs: every non-cancelled appointment an employee is assigned to
// on one date.
type AppointmentReader interface {
	FindActiveForEmployeeOnDate(ctx context.Context, employeeID, date string) ([]*model.Appointment, error)
}

type AvailabilityService interface {
	SetRecurringAvailability(ctx context.Context, rule *model.RecurringAvailability) (*model.RecurringAvailability, error)
	GetEmployeeAvailability(ctx context.Context, employeeID string) ([]*model.RecurringAvailability, error)
	DeleteRecurringAvailability(ctx context.Context, id string, actor model.Actor) (*model.RecurringAvailability, error)
	AddOverride(ctx context.Context, override *model.AvailabilityOverride) (*model.AvailabilityOverride, error)
	GetOverrides(ctx context.Context, employeeID, startDate, endDate string) ([]*model.AvailabilityOverride, error)
	DeleteOverride(ctx context.Context, id string) (*model.AvailabilityOverride, error)
	CheckAvailableSlots(ctx context.Context, date string, durationMin int, employeeID string) ([]model.AvailableSlot, error)
	IsEmployeeAvailable(ctx context.Context, employeeID, date, startTime string, durationMin int, excludeAppointmentID string) (*model.AvailabilityCheck, error)
}

type availabilityService struct {
	repo         repository.AvailabilityRepository
	employees    employees.EmployeeRepository
	appointments AppointmentReader
	validator    *validator.AvailabilityValidator
	cfg          *config.Config
}

func NewAvailabilityService(
	repo repository.AvailabilityRepository,
	employeeRepo employees.EmployeeRepository,
	appointments AppointmentReader,
	availabilityValidator *validator.AvailabilityValidator,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		repo:         repo,
		employees:    employeeRepo,
		appointments: appointments,
		validator:    availabilityValidator,
		cfg:          cfg,
	}
}

func (s *availabilityService) SetRecurringAvailability(ctx context.Context, rule *model.RecurringAvailability) (*model.RecurringAvailability, error) {
	if err := s.validator.ValidateRule(rule); err != nil {
		s.cfg.Log.Warn("Recurring availability validation failed",
			"employee_id", rule.EmployeeID,
			"day_of_week", rule.DayOfWeek,
			"error", err,
		)
		return nil, apperrors.Validation("Recurring availability validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if _, err := s.employees.FindByID(ctx, rule.EmployeeID); err != nil {
		return nil, s.translateEmployeeError(err, rule.EmployeeID)
	}

	stored, err := s.repo.UpsertRecurring(ctx, rule)
	if err != nil {
		s.cfg.Log.Error("Failed to upsert recurring availability",
			"employee_id", rule.EmployeeID,
			"day_of_week", rule.DayOfWeek,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to store recurring availability", err)
	}

	s.cfg.Log.Info("Recurring availability stored",
		"id", stored.ID,
		"employee_id", stored.EmployeeID,
		"day_of_week", stored.DayOfWeek,
		"start_time", stored.StartTime,
		"end_time", stored.EndTime,
		"is_available", stored.IsAvailable,
	)
	return stored, nil
}

func (s *availabilityService) GetEmployeeAvailability(ctx context.Context, employeeID string) ([]*model.RecurringAvailability, error) {
	if employeeID == "" {
		return nil, apperrors.InvalidInput("Employee ID cannot be empty")
	}

	rules, err := s.repo.FindRecurringByEmployee(ctx, employeeID)
	if err != nil {
		s.cfg.Log.Error("Failed to get recurring availability", "employee_id", employeeID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve recurring availability", err)
	}
	return rules, nil
}

// DeleteRecurringAvailability removes a rule. Only an admin or the employee
// who owns the row may delete it.
func (s *availabilityService) DeleteRecurringAvailability(ctx context.Context, id string, actor model.Actor) (*model.RecurringAvailability, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Availability ID cannot be empty")
	}

	rule, err := s.repo.FindRecurringByID(ctx, id)
	if err != nil {
		return nil, s.translateAvailabilityError(err, "Recurring availability", id)
	}

	if !actor.IsAdmin() && actor.EmployeeID != rule.EmployeeID {
		s.cfg.Log.Warn("Recurring availability delete forbidden",
			"id", id,
			"owner", rule.EmployeeID,
			"actor", actor.EmployeeID,
		)
		return nil, apperrors.Forbidden("Only an admin or the owning employee may delete this availability")
	}

	removed, err := s.repo.DeleteRecurring(ctx, id)
	if err != nil {
		return nil, s.translateAvailabilityError(err, "Recurring availability", id)
	}

	s.cfg.Log.Info("Recurring availability deleted", "id", id, "employee_id", removed.EmployeeID)
	return removed, nil
}

// AddOverride inserts a date-specific exception. Overrides are additive:
// several may exist for one date as long as they describe different windows.
func (s *availabilityService) AddOverride(ctx context.Context, override *model.AvailabilityOverride) (*model.AvailabilityOverride, error) {
	if err := s.validator.ValidateOverride(override); err != nil {
		s.cfg.Log.Warn("Availability override validation failed",
			"employee_id", override.EmployeeID,
			"date", override.Date,
			"error", err,
		)
		return nil, apperrors.Validation("Availability override validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if _, err := s.employees.FindByID(ctx, override.EmployeeID); err != nil {
		return nil, s.translateEmployeeError(err, override.EmployeeID)
	}

	if err := s.repo.InsertOverride(ctx, override); err != nil {
		s.cfg.Log.Error("Failed to insert availability override",
			"employee_id", override.EmployeeID,
			"date", override.Date,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to store availability override", err)
	}

	s.cfg.Log.Info("Availability override added",
		"id", override.ID,
		"employee_id", override.EmployeeID,
		"date", override.Date,
		"is_available", override.IsAvailable,
		"reason", override.Reason,
	)
	return override, nil
}

func (s *availabilityService) GetOverrides(ctx context.Context, employeeID, startDate, endDate string) ([]*model.AvailabilityOverride, error) {
	if employeeID == "" {
		return nil, apperrors.InvalidInput("Employee ID cannot be empty")
	}
	if !validDate(startDate) || !validDate(endDate) {
		return nil, apperrors.InvalidInput("start_date and end_date must be dates in YYYY-MM-DD format")
	}
	if endDate < startDate {
		return nil, apperrors.InvalidInput("end_date must not be before start_date")
	}

	overrides, err := s.repo.FindOverrides(ctx, employeeID, startDate, endDate)
	if err != nil {
		s.cfg.Log.Error("Failed to get availability overrides", "employee_id", employeeID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve availability overrides", err)
	}
	return overrides, nil
}

func (s *availabilityService) DeleteOverride(ctx context.Context, id string) (*model.AvailabilityOverride, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Override ID cannot be empty")
	}

	removed, err := s.repo.DeleteOverride(ctx, id)
	if err != nil {
		return nil, s.translateAvailabilityError(err, "Availability override", id)
	}

	s.cfg.Log.Info("Availability override deleted", "id", id, "employee_id", removed.EmployeeID)
	return removed, nil
}

// CheckAvailableSlots proposes every open slot of the requested duration on
// one date, for one employee or for every schedulable employee.
func (s *availabilityService) CheckAvailableSlots(ctx context.Context, date string, durationMin int, employeeID string) ([]model.AvailableSlot, error) {
	if !validDate(date) {
		return nil, apperrors.InvalidInput("date must be in YYYY-MM-DD format")
	}
	if durationMin <= 0 {
		return nil, apperrors.InvalidInput("duration must be a positive number of minutes")
	}

	var candidates []*model.Employee
	if employeeID != "" {
		employee, err := s.employees.FindByID(ctx, employeeID)
		if err != nil {
			return nil, s.translateEmployeeError(err, employeeID)
		}
		candidates = []*model.Employee{employee}
	} else {
		var err error
		candidates, err = s.employees.ListSchedulable(ctx)
		if err != nil {
			s.cfg.Log.Error("Failed to list schedulable employees", "error", err)
			return nil, apperrors.Internal("Failed to list employees", err)
		}
	}

	var slots []model.AvailableSlot
	for _, employee := range candidates {
		employeeSlots, err := s.slotsForEmployee(ctx, employee, date, durationMin)
		if err != nil {
			return nil, err
		}
		slots = append(slots, employeeSlots...)
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].StartTime != slots[j].StartTime {
			return slots[i].StartTime < slots[j].StartTime
		}
		return slots[i].EmployeeName < slots[j].EmployeeName
	})

	s.cfg.Log.Debug("Slot search completed",
		"date", date,
		"duration_min", durationMin,
		"employee_id", employeeID,
		"candidates", len(candidates),
		"slots", len(slots),
	)
	return slots, nil
}

// IsEmployeeAvailable answers the single-slot question for one employee,
// optionally ignoring one appointment (its own, during a reschedule).
func (s *availabilityService) IsEmployeeAvailable(ctx context.Context, employeeID, date, startTime string, durationMin int, excludeAppointmentID string) (*model.AvailabilityCheck, error) {
	if employeeID == "" {
		return nil, apperrors.InvalidInput("Employee ID cannot be empty")
	}
	if !validDate(date) {
		return nil, apperrors.InvalidInput("date must be in YYYY-MM-DD format")
	}
	if !timeslot.IsValid(startTime) {
		return nil, apperrors.InvalidInput("start time must be in HH:MM format")
	}
	if durationMin <= 0 {
		return nil, apperrors.InvalidInput("duration must be a positive number of minutes")
	}

	if _, err := s.employees.FindByID(ctx, employeeID); err != nil {
		return nil, s.translateEmployeeError(err, employeeID)
	}

	windows, err := s.openWindows(ctx, employeeID, date)
	if err != nil {
		return nil, err
	}

	if timeslot.CrossesMidnight(startTime, durationMin) {
		return &model.AvailabilityCheck{
			Available:  false,
			Reason:     ReasonOutsideWorkingHours,
			Suggestion: nearestFit(windows, startTime, durationMin),
		}, nil
	}

	endTime, err := timeslot.AddMinutes(startTime, durationMin)
	if err != nil {
		return nil, apperrors.InvalidInput("start time must be in HH:MM format")
	}

	inWindow := false
	for _, w := range windows {
		if timeslot.Within(startTime, endTime, w.Start, w.End) {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return &model.AvailabilityCheck{
			Available:  false,
			Reason:     ReasonOutsideWorkingHours,
			Suggestion: nearestFit(windows, startTime, durationMin),
		}, nil
	}

	booked, err := s.appointments.FindActiveForEmployeeOnDate(ctx, employeeID, date)
	if err != nil {
		s.cfg.Log.Error("Failed to load appointments for availability check",
			"employee_id", employeeID,
			"date", date,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to check existing appointments", err)
	}

	for _, appt := range booked {
		if appt.ID == excludeAppointmentID {
			continue
		}
		if timeslot.Overlaps(startTime, endTime, appt.ScheduledTime, appt.EndTime) {
			return &model.AvailabilityCheck{
				Available:  false,
				Reason:     ReasonAppointmentConflict,
				Suggestion: s.nearestFreeSlot(windows, booked, startTime, durationMin, excludeAppointmentID),
			}, nil
		}
	}

	return &model.AvailabilityCheck{Available: true}, nil
}

// --- Window computation ---

// openWindows reconciles recurring rules with date overrides into the set of
// merged open windows for one employee on one date. Precedence: available
// recurring rules union, unavailable recurring rules subtract, then
// available overrides add (even on a closed day), and unavailable overrides
// subtract last so a vacation always wins.
func (s *availabilityService) openWindows(ctx context.Context, employeeID, date string) ([]timeslot.Window, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, apperrors.InvalidInput("date must be in YYYY-MM-DD format")
	}
	dayOfWeek := int(day.Weekday())

	rules, err := s.repo.FindRecurringForDay(ctx, employeeID, dayOfWeek)
	if err != nil {
		s.cfg.Log.Error("Failed to load recurring availability",
			"employee_id", employeeID,
			"day_of_week", dayOfWeek,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to load recurring availability", err)
	}

	overrides, err := s.repo.FindOverridesForDate(ctx, employeeID, date)
	if err != nil {
		s.cfg.Log.Error("Failed to load availability overrides",
			"employee_id", employeeID,
			"date", date,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to load availability overrides", err)
	}

	var open []timeslot.Window
	for _, rule := range rules {
		if rule.IsAvailable {
			open = append(open, timeslot.Window{Start: rule.StartTime, End: rule.EndTime})
		}
	}
	open = timeslot.Merge(open)

	for _, rule := range rules {
		if !rule.IsAvailable {
			open = timeslot.Subtract(open, timeslot.Window{Start: rule.StartTime, End: rule.EndTime})
		}
	}

	for _, override := range overrides {
		if override.IsAvailable {
			open = timeslot.Merge(append(open, timeslot.Window{Start: override.StartTime, End: override.EndTime}))
		}
	}
	for _, override := range overrides {
		if !override.IsAvailable {
			open = timeslot.Subtract(open, timeslot.Window{Start: override.StartTime, End: override.EndTime})
		}
	}

	return open, nil
}

func (s *availabilityService) slotsForEmployee(ctx context.Context, employee *model.Employee, date string, durationMin int) ([]model.AvailableSlot, error) {
	windows, err := s.openWindows(ctx, employee.ID, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	booked, err := s.appointments.FindActiveForEmployeeOnDate(ctx, employee.ID, date)
	if err != nil {
		s.cfg.Log.Error("Failed to load appointments for slot search",
			"employee_id", employee.ID,
			"date", date,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to check existing appointments", err)
	}

	var slots []model.AvailableSlot
	for _, start := range candidateStarts(windows, durationMin, s.cfg.SlotStepMin) {
		end, err := timeslot.AddMinutes(start, durationMin)
		if err != nil {
			continue
		}
		if overlapsBooked(start, end, booked, "") {
			continue
		}
		slots = append(slots, model.AvailableSlot{
			EmployeeID:   employee.ID,
			EmployeeName: employee.Name,
			StartTime:    start,
			EndTime:      end,
			Available:    true,
		})
	}
	return slots, nil
}

// candidateStarts yields every grid-aligned start inside the merged windows
// where a slot of the requested duration fits entirely. Windows are merged
// beforehand, so the same start is never proposed twice.
func candidateStarts(windows []timeslot.Window, durationMin, stepMin int) []string {
	var starts []string
	for _, w := range windows {
		startMin, err := timeslot.ToMinutes(w.Start)
		if err != nil {
			continue
		}
		endMin, err := timeslot.ToMinutes(w.End)
		if err != nil {
			continue
		}

		// Round the window start up to the next grid boundary.
		if rem := startMin % stepMin; rem != 0 {
			startMin += stepMin - rem
		}

		for m := startMin; m+durationMin <= endMin; m += stepMin {
			starts = append(starts, timeslot.FromMinutes(m))
		}
	}
	return starts
}

func overlapsBooked(start, end string, booked []*model.Appointment, excludeID string) bool {
	for _, appt := range booked {
		if excludeID != "" && appt.ID == excludeID {
			continue
		}
		if timeslot.Overlaps(start, end, appt.ScheduledTime, appt.EndTime) {
			return true
		}
	}
	return false
}

// nearestFit suggests the closest slot of the requested duration that fits a
// window, ignoring existing bookings. Used when the request falls outside
// working hours entirely.
func nearestFit(windows []timeslot.Window, requested string, durationMin int) *model.SlotSuggestion {
	requestedMin, err := timeslot.ToMinutes(requested)
	if err != nil {
		return nil
	}

	best := -1
	bestDistance := 0
	for _, w := range windows {
		startMin, errStart := timeslot.ToMinutes(w.Start)
		endMin, errEnd := timeslot.ToMinutes(w.End)
		if errStart != nil || errEnd != nil {
			continue
		}
		latest := endMin - durationMin
		if latest < startMin {
			continue // duration longer than this window
		}

		candidate := min(max(requestedMin, startMin), latest)
		distance := candidate - requestedMin
		if distance < 0 {
			distance = -distance
		}
		if best == -1 || distance < bestDistance {
			best = candidate
			bestDistance = distance
		}
	}
	if best == -1 {
		return nil
	}
	return &model.SlotSuggestion{
		StartTime: timeslot.FromMinutes(best),
		EndTime:   timeslot.FromMinutes(best + durationMin),
	}
}

// nearestFreeSlot suggests the closest conflict-free grid start, if any.
func (s *availabilityService) nearestFreeSlot(windows []timeslot.Window, booked []*model.Appointment, requested string, durationMin int, excludeID string) *model.SlotSuggestion {
	requestedMin, err := timeslot.ToMinutes(requested)
	if err != nil {
		return nil
	}

	best := -1
	bestDistance := 0
	for _, start := range candidateStarts(windows, durationMin, s.cfg.SlotStepMin) {
		end, err := timeslot.AddMinutes(start, durationMin)
		if err != nil {
			continue
		}
		if overlapsBooked(start, end, booked, excludeID) {
			continue
		}
		startMin, err := timeslot.ToMinutes(start)
		if err != nil {
			continue
		}
		distance := startMin - requestedMin
		if distance < 0 {
			distance = -distance
		}
		if best == -1 || distance < bestDistance {
			best = startMin
			bestDistance = distance
		}
	}
	if best == -1 {
		return nil
	}
	return &model.SlotSuggestion{
		StartTime: timeslot.FromMinutes(best),
		EndTime:   timeslot.FromMinutes(best + durationMin),
	}
}

// --- Error translation ---

func (s *availabilityService) translateEmployeeError(err error, id string) error {
	if errors.Is(err, employees.ErrNotFound) {
		return apperrors.NotFoundWithID("Employee", id)
	}
	if errors.Is(err, employees.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid employee ID format")
	}
	return apperrors.Internal("Failed to look up employee", err)
}

func (s *availabilityService) translateAvailabilityError(err error, resource, id string) error {
	if errors.Is(err, availabilityerrors.ErrRuleNotFound) || errors.Is(err, availabilityerrors.ErrOverrideNotFound) {
		return apperrors.NotFoundWithID(resource, id)
	}
	if errors.Is(err, availabilityerrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid availability ID format")
	}
	return apperrors.Internal("Availability store operation failed", err)
}

func validDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil && len(date) == 10
}
