package service

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"treadline/internal/availability/repository"
	"treadline/internal/availability/validator"
	employees "treadline/internal/employees/repository"
	"treadline/pkg/config"
	mongotx "treadline/pkg/db/mongo"
	apperrors "treadline/pkg/errors"
	"treadline/pkg/logger"
	"treadline/pkg/model"
)

// 2026-09-07 is a Monday.
const monday = "2026-09-07"

// ObjectID-shaped ids for fields carrying the mongodb validation tag.
const (
	techID  = "64f0000000000000000000aa"
	ghostID = "64f0000000000000000000ee"
)

type mockAvailabilityRepo struct {
	upsertRecurring         func(ctx context.Context, rule *model.RecurringAvailability) (*model.RecurringAvailability, error)
	findRecurringByEmployee func(ctx context.Context, employeeID string) ([]*model.RecurringAvailability, error)
	findRecurringForDay     func(ctx context.Context, employeeID string, dayOfWeek int) ([]*model.RecurringAvailability, error)
	findRecurringByID       func(ctx context.Context, id string) (*model.RecurringAvailability, error)
	deleteRecurring         func(ctx context.Context, id string) (*model.RecurringAvailability, error)
	insertOverride          func(ctx context.Context, override *model.AvailabilityOverride) error
	findOverrides           func(ctx context.Context, employeeID, startDate, endDate string) ([]*model.AvailabilityOverride, error)
	findOverridesForDate    func(ctx context.Context, employeeID, date string) ([]*model.AvailabilityOverride, error)
	deleteOverride          func(ctx context.Context, id string) (*model.AvailabilityOverride, error)
}

var _ repository.AvailabilityRepository = (*mockAvailabilityRepo)(nil)

func (m *mockAvailabilityRepo) UpsertRecurring(ctx context.Context, rule *model.RecurringAvailability) (*model.RecurringAvailability, error) {
	return m.upsertRecurring(ctx, rule)
}

func (m *mockAvailabilityRepo) FindRecurringByEmployee(ctx context.Context, employeeID string) ([]*model.RecurringAvailability, error) {
	return m.findRecurringByEmployee(ctx, employeeID)
}

func (m *mockAvailabilityRepo) FindRecurringForDay(ctx context.Context, employeeID string, dayOfWeek int) ([]*model.RecurringAvailability, error) {
	if m.findRecurringForDay == nil {
		return nil, nil
	}
	return m.findRecurringForDay(ctx, employeeID, dayOfWeek)
}

func (m *mockAvailabilityRepo) FindRecurringByID(ctx context.Context, id string) (*model.RecurringAvailability, error) {
	return m.findRecurringByID(ctx, id)
}

func (m *mockAvailabilityRepo) DeleteRecurring(ctx context.Context, id string) (*model.RecurringAvailability, error) {
	return m.deleteRecurring(ctx, id)
}

func (m *mockAvailabilityRepo) InsertOverride(ctx context.Context, override *model.AvailabilityOverride) error {
	return m.insertOverride(ctx, override)
}

func (m *mockAvailabilityRepo) FindOverrides(ctx context.Context, employeeID, startDate, endDate string) ([]*model.AvailabilityOverride, error) {
	return m.findOverrides(ctx, employeeID, startDate, endDate)
}

func (m *mockAvailabilityRepo) FindOverridesForDate(ctx context.Context, employeeID, date string) ([]*model.AvailabilityOverride, error) {
	if m.findOverridesForDate == nil {
		return nil, nil
	}
	return m.findOverridesForDate(ctx, employeeID, date)
}

func (m *mockAvailabilityRepo) DeleteOverride(ctx context.Context, id string) (*model.AvailabilityOverride, error) {
	return m.deleteOverride(ctx, id)
}

func (m *mockAvailabilityRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type mockEmployeeRepo struct {
	findByID        func(ctx context.Context, id string) (*model.Employee, error)
	listSchedulable func(ctx context.Context) ([]*model.Employee, error)
}

var _ employees.EmployeeRepository = (*mockEmployeeRepo)(nil)

func (m *mockEmployeeRepo) FindByID(ctx context.Context, id string) (*model.Employee, error) {
	if m.findByID == nil {
		return &model.Employee{ID: id, Name: "Tech " + id, Role: model.RoleTechnician, Active: true}, nil
	}
	return m.findByID(ctx, id)
}

func (m *mockEmployeeRepo) ListSchedulable(ctx context.Context) ([]*model.Employee, error) {
	return m.listSchedulable(ctx)
}

type mockAppointmentReader struct {
	findActive func(ctx context.Context, employeeID, date string) ([]*model.Appointment, error)
}

func (m *mockAppointmentReader) FindActiveForEmployeeOnDate(ctx context.Context, employeeID, date string) ([]*model.Appointment, error) {
	if m.findActive == nil {
		return nil, nil
	}
	return m.findActive(ctx, employeeID, date)
}

func testConfig() *config.Config {
	return &config.Config{
		SlotStepMin:        15,
		DefaultDurationMin: 60,
		Log:                logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard}),
	}
}

func newTestService(repo *mockAvailabilityRepo, emp *mockEmployeeRepo, appts *mockAppointmentReader) AvailabilityService {
	cfg := testConfig()
	v := validator.NewAvailabilityValidator(cfg.Log, cfg.SlotStepMin)
	return NewAvailabilityService(repo, emp, appts, v, cfg)
}

func mondayShift(employeeID string) []*model.RecurringAvailability {
	return []*model.RecurringAvailability{
		{ID: "rule-1", EmployeeID: employeeID, DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00", IsAvailable: true},
	}
}

func slotStarts(slots []model.AvailableSlot) []string {
	starts := make([]string, 0, len(slots))
	for _, s := range slots {
		starts = append(starts, s.StartTime)
	}
	return starts
}

func TestCheckAvailableSlots_FullOpenDay(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, dayOfWeek int) ([]*model.RecurringAvailability, error) {
			assert.Equal(t, 1, dayOfWeek)
			return mondayShift(employeeID), nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, &mockAppointmentReader{})

	slots, err := svc.CheckAvailableSlots(context.Background(), monday, 60, "emp-1")
	require.NoError(t, err)

	// 09:00 through 16:00 on a 15 minute grid.
	require.Len(t, slots, 29)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.Equal(t, "10:00", slots[0].EndTime)
	assert.Equal(t, "16:00", slots[len(slots)-1].StartTime)
	assert.Equal(t, "17:00", slots[len(slots)-1].EndTime)
}

func TestCheckAvailableSlots_UnavailableOverrideExcludesOverlaps(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, _ int) ([]*model.RecurringAvailability, error) {
			return mondayShift(employeeID), nil
		},
		findOverridesForDate: func(_ context.Context, employeeID, date string) ([]*model.AvailabilityOverride, error) {
			return []*model.AvailabilityOverride{
				{EmployeeID: employeeID, Date: date, StartTime: "12:00", EndTime: "13:00", IsAvailable: false, Reason: "lunch"},
			}, nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, &mockAppointmentReader{})

	slots, err := svc.CheckAvailableSlots(context.Background(), monday, 60, "emp-1")
	require.NoError(t, err)

	starts := slotStarts(slots)
	assert.Contains(t, starts, "11:00")
	assert.Contains(t, starts, "13:00")
	// Anything that would run into the 12:00-13:00 block is gone.
	for _, excluded := range []string{"11:15", "11:30", "11:45", "12:00", "12:15", "12:30", "12:45"} {
		assert.NotContains(t, starts, excluded)
	}
	assert.Len(t, slots, 22)
}

func TestCheckAvailableSlots_BookedAppointmentsExcluded(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, _ int) ([]*model.RecurringAvailability, error) {
			return mondayShift(employeeID), nil
		},
	}
	appts := &mockAppointmentReader{
		findActive: func(_ context.Context, _, _ string) ([]*model.Appointment, error) {
			return []*model.Appointment{
				{ID: "appt-1", ScheduledTime: "10:00", EndTime: "11:00", Status: model.StatusScheduled},
			}, nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, appts)

	slots, err := svc.CheckAvailableSlots(context.Background(), monday, 60, "emp-1")
	require.NoError(t, err)

	starts := slotStarts(slots)
	// Back to back with the booking is fine; anything overlapping it is not.
	assert.Contains(t, starts, "09:00")
	assert.Contains(t, starts, "11:00")
	for _, excluded := range []string{"09:15", "09:30", "09:45", "10:00", "10:15", "10:30", "10:45"} {
		assert.NotContains(t, starts, excluded)
	}
}

func TestCheckAvailableSlots_AvailableOverrideOpensClosedDay(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, _ string, _ int) ([]*model.RecurringAvailability, error) {
			return nil, nil // no recurring shift that day
		},
		findOverridesForDate: func(_ context.Context, employeeID, date string) ([]*model.AvailabilityOverride, error) {
			return []*model.AvailabilityOverride{
				{EmployeeID: employeeID, Date: date, StartTime: "10:00", EndTime: "14:00", IsAvailable: true, Reason: "extra shift"},
			}, nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, &mockAppointmentReader{})

	slots, err := svc.CheckAvailableSlots(context.Background(), monday, 60, "emp-1")
	require.NoError(t, err)

	require.NotEmpty(t, slots)
	assert.Equal(t, "10:00", slots[0].StartTime)
	assert.Equal(t, "13:00", slots[len(slots)-1].StartTime)
}

func TestCheckAvailableSlots_VacationOverrideWins(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, _ int) ([]*model.RecurringAvailability, error) {
			return mondayShift(employeeID), nil
		},
		findOverridesForDate: func(_ context.Context, employeeID, date string) ([]*model.AvailabilityOverride, error) {
			return []*model.AvailabilityOverride{
				{EmployeeID: employeeID, Date: date, StartTime: "00:00", EndTime: "23:59", IsAvailable: false, Reason: "vacation"},
			}, nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, &mockAppointmentReader{})

	slots, err := svc.CheckAvailableSlots(context.Background(), monday, 60, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestCheckAvailableSlots_AllEmployeesSortedByTimeThenName(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, _ int) ([]*model.RecurringAvailability, error) {
			return []*model.RecurringAvailability{
				{EmployeeID: employeeID, DayOfWeek: 1, StartTime: "09:00", EndTime: "10:30", IsAvailable: true},
			}, nil
		},
	}
	emp := &mockEmployeeRepo{
		listSchedulable: func(_ context.Context) ([]*model.Employee, error) {
			return []*model.Employee{
				{ID: "emp-2", Name: "Zoe", Role: model.RoleTechnician, Active: true},
				{ID: "emp-1", Name: "Ana", Role: model.RoleTechnician, Active: true},
			}, nil
		},
	}
	svc := newTestService(repo, emp, &mockAppointmentReader{})

	slots, err := svc.CheckAvailableSlots(context.Background(), monday, 60, "")
	require.NoError(t, err)

	// Two employees, starts 09:00 09:15 09:30 each.
	require.Len(t, slots, 6)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.Equal(t, "Ana", slots[0].EmployeeName)
	assert.Equal(t, "09:00", slots[1].StartTime)
	assert.Equal(t, "Zoe", slots[1].EmployeeName)
	assert.Equal(t, "09:15", slots[2].StartTime)
}

func TestCheckAvailableSlots_RejectsBadInput(t *testing.T) {
	svc := newTestService(&mockAvailabilityRepo{}, &mockEmployeeRepo{}, &mockAppointmentReader{})

	_, err := svc.CheckAvailableSlots(context.Background(), "07-09-2026", 60, "")
	requireAppErrorCode(t, err, apperrors.CodeInvalidInput)

	_, err = svc.CheckAvailableSlots(context.Background(), monday, 0, "")
	requireAppErrorCode(t, err, apperrors.CodeInvalidInput)
}

func TestIsEmployeeAvailable_OpenSlot(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, _ int) ([]*model.RecurringAvailability, error) {
			return mondayShift(employeeID), nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, &mockAppointmentReader{})

	check, err := svc.IsEmployeeAvailable(context.Background(), "emp-1", monday, "10:00", 60, "")
	require.NoError(t, err)
	assert.True(t, check.Available)
	assert.Empty(t, check.Reason)
}

func TestIsEmployeeAvailable_OutsideWorkingHours(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, _ int) ([]*model.RecurringAvailability, error) {
			return mondayShift(employeeID), nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, &mockAppointmentReader{})

	// 16:30 + 60min spills past the 17:00 close.
	check, err := svc.IsEmployeeAvailable(context.Background(), "emp-1", monday, "16:30", 60, "")
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.Equal(t, ReasonOutsideWorkingHours, check.Reason)
	require.NotNil(t, check.Suggestion)
	assert.Equal(t, "16:00", check.Suggestion.StartTime)
	assert.Equal(t, "17:00", check.Suggestion.EndTime)

	// A 90-minute job at 16:00 gets the latest start that still fits.
	check, err = svc.IsEmployeeAvailable(context.Background(), "emp-1", monday, "16:00", 90, "")
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.Equal(t, ReasonOutsideWorkingHours, check.Reason)
	require.NotNil(t, check.Suggestion)
	assert.Equal(t, "15:30", check.Suggestion.StartTime)
	assert.Equal(t, "17:00", check.Suggestion.EndTime)
}

func TestIsEmployeeAvailable_MidnightCrossingRejected(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, _ int) ([]*model.RecurringAvailability, error) {
			return mondayShift(employeeID), nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, &mockAppointmentReader{})

	check, err := svc.IsEmployeeAvailable(context.Background(), "emp-1", monday, "23:30", 60, "")
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.Equal(t, ReasonOutsideWorkingHours, check.Reason)

	// Ending exactly at midnight wraps the end time to "00:00"; the
	// lexicographic window comparison must not mistake that for contained.
	check, err = svc.IsEmployeeAvailable(context.Background(), "emp-1", monday, "23:45", 15, "")
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.Equal(t, ReasonOutsideWorkingHours, check.Reason)
}

func TestIsEmployeeAvailable_ConflictWithBooking(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, _ int) ([]*model.RecurringAvailability, error) {
			return mondayShift(employeeID), nil
		},
	}
	appts := &mockAppointmentReader{
		findActive: func(_ context.Context, _, _ string) ([]*model.Appointment, error) {
			return []*model.Appointment{
				{ID: "appt-1", ScheduledTime: "10:00", EndTime: "11:00", Status: model.StatusScheduled},
			}, nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, appts)

	check, err := svc.IsEmployeeAvailable(context.Background(), "emp-1", monday, "10:30", 60, "")
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.Equal(t, ReasonAppointmentConflict, check.Reason)
	require.NotNil(t, check.Suggestion)
	assert.Equal(t, "11:00", check.Suggestion.StartTime)
}

func TestIsEmployeeAvailable_ExcludesOwnAppointmentOnReschedule(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, _ int) ([]*model.RecurringAvailability, error) {
			return mondayShift(employeeID), nil
		},
	}
	appts := &mockAppointmentReader{
		findActive: func(_ context.Context, _, _ string) ([]*model.Appointment, error) {
			return []*model.Appointment{
				{ID: "appt-1", ScheduledTime: "10:00", EndTime: "11:00", Status: model.StatusScheduled},
			}, nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, appts)

	check, err := svc.IsEmployeeAvailable(context.Background(), "emp-1", monday, "10:30", 60, "appt-1")
	require.NoError(t, err)
	assert.True(t, check.Available)
}

func TestIsEmployeeAvailable_BackToBackIsNotAConflict(t *testing.T) {
	repo := &mockAvailabilityRepo{
		findRecurringForDay: func(_ context.Context, employeeID string, _ int) ([]*model.RecurringAvailability, error) {
			return mondayShift(employeeID), nil
		},
	}
	appts := &mockAppointmentReader{
		findActive: func(_ context.Context, _, _ string) ([]*model.Appointment, error) {
			return []*model.Appointment{
				{ID: "appt-1", ScheduledTime: "10:00", EndTime: "11:00", Status: model.StatusScheduled},
			}, nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, appts)

	check, err := svc.IsEmployeeAvailable(context.Background(), "emp-1", monday, "11:00", 60, "")
	require.NoError(t, err)
	assert.True(t, check.Available)
}

func TestSetRecurringAvailability_ValidationFailure(t *testing.T) {
	svc := newTestService(&mockAvailabilityRepo{}, &mockEmployeeRepo{}, &mockAppointmentReader{})

	_, err := svc.SetRecurringAvailability(context.Background(), &model.RecurringAvailability{
		EmployeeID:  techID,
		DayOfWeek:   1,
		StartTime:   "17:00",
		EndTime:     "09:00", // end before start
		IsAvailable: true,
	})
	requireAppErrorCode(t, err, apperrors.CodeValidation)
}

func TestSetRecurringAvailability_OffGridStartRejected(t *testing.T) {
	svc := newTestService(&mockAvailabilityRepo{}, &mockEmployeeRepo{}, &mockAppointmentReader{})

	_, err := svc.SetRecurringAvailability(context.Background(), &model.RecurringAvailability{
		EmployeeID:  techID,
		DayOfWeek:   1,
		StartTime:   "09:07",
		EndTime:     "17:00",
		IsAvailable: true,
	})
	requireAppErrorCode(t, err, apperrors.CodeValidation)
}

func TestSetRecurringAvailability_Upserts(t *testing.T) {
	var upserted *model.RecurringAvailability
	repo := &mockAvailabilityRepo{
		upsertRecurring: func(_ context.Context, rule *model.RecurringAvailability) (*model.RecurringAvailability, error) {
			upserted = rule
			stored := *rule
			stored.ID = "rule-1"
			return &stored, nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, &mockAppointmentReader{})

	stored, err := svc.SetRecurringAvailability(context.Background(), &model.RecurringAvailability{
		EmployeeID:  techID,
		DayOfWeek:   1,
		StartTime:   "09:00",
		EndTime:     "17:00",
		IsAvailable: true,
	})
	require.NoError(t, err)
	require.NotNil(t, upserted)
	assert.Equal(t, "rule-1", stored.ID)
}

func TestDeleteRecurringAvailability_Permissions(t *testing.T) {
	rule := &model.RecurringAvailability{ID: "rule-1", EmployeeID: "emp-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00", IsAvailable: true}
	repo := &mockAvailabilityRepo{
		findRecurringByID: func(_ context.Context, id string) (*model.RecurringAvailability, error) {
			return rule, nil
		},
		deleteRecurring: func(_ context.Context, id string) (*model.RecurringAvailability, error) {
			return rule, nil
		},
	}
	svc := newTestService(repo, &mockEmployeeRepo{}, &mockAppointmentReader{})

	tests := []struct {
		name     string
		actor    model.Actor
		wantCode string
	}{
		{"admin may delete", model.Actor{EmployeeID: "emp-9", Role: model.RoleAdmin}, ""},
		{"owner may delete", model.Actor{EmployeeID: "emp-1", Role: model.RoleTechnician}, ""},
		{"other technician may not", model.Actor{EmployeeID: "emp-2", Role: model.RoleTechnician}, apperrors.CodeForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			removed, err := svc.DeleteRecurringAvailability(context.Background(), "rule-1", tc.actor)
			if tc.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, "rule-1", removed.ID)
				return
			}
			requireAppErrorCode(t, err, tc.wantCode)
		})
	}
}

func TestAddOverride_RequiresKnownEmployee(t *testing.T) {
	emp := &mockEmployeeRepo{
		findByID: func(_ context.Context, id string) (*model.Employee, error) {
			return nil, employees.ErrNotFound
		},
	}
	svc := newTestService(&mockAvailabilityRepo{}, emp, &mockAppointmentReader{})

	_, err := svc.AddOverride(context.Background(), &model.AvailabilityOverride{
		EmployeeID:  ghostID,
		Date:        monday,
		StartTime:   "09:00",
		EndTime:     "12:00",
		IsAvailable: false,
		Reason:      "vacation",
	})
	requireAppErrorCode(t, err, apperrors.CodeNotFound)
}

func TestGetOverrides_ValidatesRange(t *testing.T) {
	svc := newTestService(&mockAvailabilityRepo{}, &mockEmployeeRepo{}, &mockAppointmentReader{})

	_, err := svc.GetOverrides(context.Background(), "emp-1", "2026-09-10", "2026-09-01")
	requireAppErrorCode(t, err, apperrors.CodeInvalidInput)
}

func requireAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, apperrors.IsAppError(err), "expected AppError, got %T", err)
	assert.Equal(t, code, apperrors.AsAppError(err).Code)
}
