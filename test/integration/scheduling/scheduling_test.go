//go:build integration

package integrationtests

import (
	"fmt"
	"net/http"
	"testing"

	"treadline/pkg/model"
	"treadline/test/integration/testutil"
)

// Runs against a live service plus Mongo, started via docker compose.
// Monday in the default business timezone.
const testMonday = "2026-09-07"

const testCustomerID = "64f000000000000000000001"

var (
	mongoHelper *testutil.MongoHelper
	httpClient  *testutil.Client

	anaID  string
	zoeID  string
	bossID string
)

func TestScheduling(t *testing.T) {
	env := testutil.NewTestEnv()
	mongoHelper, httpClient = env.Setup(t)
	defer mongoHelper.Close(t)

	anaID = mongoHelper.SeedEmployee(t, "Ana Flores", model.RoleTechnician, true)
	zoeID = mongoHelper.SeedEmployee(t, "Zoe Ionescu", model.RoleTechnician, true)
	bossID = mongoHelper.SeedEmployee(t, "Marek Holler", model.RoleAdmin, true)

	testRecurringAvailability(t)
	testSlotSearch(t)
	testBookingLifecycle(t)
	testDoubleBookingRejected(t)
	testAutoAssignment(t)
	testVacationOverride(t)
	testReschedule(t)
	testAdminOnlyDelete(t)
	testIdempotentCreate(t)
}

// --- Helpers ---

func setWeekdayHours(t *testing.T, employeeID string, day int, start, end string) {
	t.Helper()
	resp := httpClient.PUT(t, "/api/v1/availability/recurring", map[string]any{
		"employee_id":  employeeID,
		"day_of_week":  day,
		"start_time":   start,
		"end_time":     end,
		"is_available": true,
	})
	testutil.AssertStatusCode(t, resp, http.StatusOK)
}

func newAppointmentBody(employeeID, date, startTime string) map[string]any {
	body := map[string]any{
		"customer_id":      testCustomerID,
		"scheduled_date":   date,
		"scheduled_time":   startTime,
		"duration_min":     60,
		"service_type":     "tire rotation",
		"appointment_type": "AT_GARAGE",
	}
	if employeeID != "" {
		body["employee_id"] = employeeID
	}
	return body
}

func decodeAppointment(t *testing.T, resp *testutil.Response) *model.Appointment {
	t.Helper()
	var result struct {
		Data model.Appointment `json:"data"`
	}
	if err := resp.UnmarshalJSON(&result); err != nil {
		t.Fatalf("failed to decode appointment: %v", err)
	}
	return &result.Data
}

func decodeSlots(t *testing.T, resp *testutil.Response) []model.AvailableSlot {
	t.Helper()
	var result struct {
		Data []model.AvailableSlot `json:"data"`
	}
	if err := resp.UnmarshalJSON(&result); err != nil {
		t.Fatalf("failed to decode slots: %v", err)
	}
	return result.Data
}

func createAppointment(t *testing.T, employeeID, date, startTime string) *model.Appointment {
	t.Helper()
	resp := httpClient.POST(t, "/api/v1/appointments", newAppointmentBody(employeeID, date, startTime))
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	return decodeAppointment(t, resp)
}

// --- Tests ---

func testRecurringAvailability(t *testing.T) {
	for day := 1; day <= 5; day++ {
		setWeekdayHours(t, anaID, day, "09:00", "17:00")
		setWeekdayHours(t, zoeID, day, "09:00", "17:00")
	}

	resp := httpClient.GET(t, "/api/v1/availability/recurring/employee/"+anaID)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var result struct {
		Data []model.RecurringAvailability `json:"data"`
	}
	if err := resp.UnmarshalJSON(&result); err != nil {
		t.Fatalf("failed to decode availability: %v", err)
	}
	if len(result.Data) != 5 {
		t.Fatalf("expected 5 recurring rules, got %d", len(result.Data))
	}

	// Upsert keeps one rule per weekday.
	setWeekdayHours(t, anaID, 1, "08:00", "16:00")
	resp = httpClient.GET(t, "/api/v1/availability/recurring/employee/"+anaID)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	if err := resp.UnmarshalJSON(&result); err != nil {
		t.Fatalf("failed to decode availability: %v", err)
	}
	if len(result.Data) != 5 {
		t.Fatalf("upsert duplicated a weekday rule, got %d rules", len(result.Data))
	}
	setWeekdayHours(t, anaID, 1, "09:00", "17:00")
}

func testSlotSearch(t *testing.T) {
	resp := httpClient.GET(t, fmt.Sprintf("/api/v1/availability/slots?date=%s&duration_min=60&employee_id=%s", testMonday, anaID))
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	slots := decodeSlots(t, resp)
	if len(slots) != 29 {
		t.Fatalf("expected 29 slots for an open 09:00-17:00 day, got %d", len(slots))
	}
	if slots[0].StartTime != "09:00" || slots[len(slots)-1].StartTime != "16:00" {
		t.Fatalf("unexpected slot boundaries: first %s last %s", slots[0].StartTime, slots[len(slots)-1].StartTime)
	}

	resp = httpClient.GET(t, fmt.Sprintf("/api/v1/availability/check?employee_id=%s&date=%s&start_time=10:00&duration_min=60", anaID, testMonday))
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var check struct {
		Data model.AvailabilityCheck `json:"data"`
	}
	if err := resp.UnmarshalJSON(&check); err != nil {
		t.Fatalf("failed to decode check: %v", err)
	}
	if !check.Data.Available {
		t.Fatalf("expected slot to be available, got reason %q", check.Data.Reason)
	}
}

func testBookingLifecycle(t *testing.T) {
	appointment := createAppointment(t, anaID, testMonday, "10:00")
	if appointment.Status != model.StatusScheduled {
		t.Fatalf("expected SCHEDULED, got %s", appointment.Status)
	}
	if appointment.EndTime != "11:00" {
		t.Fatalf("expected computed end time 11:00, got %s", appointment.EndTime)
	}

	path := "/api/v1/appointments/id/" + appointment.ID
	resp := httpClient.POST(t, path+"/confirm", nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	if got := decodeAppointment(t, resp); got.Status != model.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", got.Status)
	}

	resp = httpClient.POST(t, path+"/remind?hours_ahead=24", nil)
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	resp = httpClient.POST(t, path+"/complete", map[string]any{
		"amount_cents": 24900,
		"method":       "card",
	})
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	completed := decodeAppointment(t, resp)
	if completed.Status != model.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", completed.Status)
	}
	if completed.PaymentAmount != 24900 {
		t.Fatalf("expected recorded payment, got %d", completed.PaymentAmount)
	}

	// Terminal states reject further transitions.
	resp = httpClient.POST(t, path+"/cancel", nil)
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
}

func testDoubleBookingRejected(t *testing.T) {
	blocker := createAppointment(t, anaID, testMonday, "13:00")

	resp := httpClient.POST(t, "/api/v1/appointments", newAppointmentBody(anaID, testMonday, "13:00"))
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
	testutil.AssertContains(t, resp, "suggestion")

	// Overlapping, not identical, start still conflicts.
	resp = httpClient.POST(t, "/api/v1/appointments", newAppointmentBody(anaID, testMonday, "13:30"))
	testutil.AssertStatusCode(t, resp, http.StatusConflict)

	// Back-to-back is allowed.
	resp = httpClient.POST(t, "/api/v1/appointments", newAppointmentBody(anaID, testMonday, "14:00"))
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	// Cancelling frees the slot for rebooking.
	resp = httpClient.POST(t, "/api/v1/appointments/id/"+blocker.ID+"/cancel", nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	resp = httpClient.POST(t, "/api/v1/appointments", newAppointmentBody(anaID, testMonday, "13:00"))
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
}

func testAutoAssignment(t *testing.T) {
	appointment := createAppointment(t, "", testMonday, "09:00")
	if appointment.EmployeeID == "" {
		t.Fatal("expected auto-assigned employee")
	}
	if appointment.EmployeeID == bossID {
		t.Fatal("admin must not be auto-assigned")
	}

	// The same slot again lands on the other technician.
	second := createAppointment(t, "", testMonday, "09:00")
	if second.EmployeeID == appointment.EmployeeID {
		t.Fatalf("expected a different technician, both got %s", second.EmployeeID)
	}
}

func testVacationOverride(t *testing.T) {
	tuesday := "2026-09-08"
	resp := httpClient.POST(t, "/api/v1/availability/overrides", map[string]any{
		"employee_id":  zoeID,
		"date":         tuesday,
		"start_time":   "00:00",
		"end_time":     "23:45",
		"is_available": false,
		"reason":       "vacation",
	})
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	resp = httpClient.GET(t, fmt.Sprintf("/api/v1/availability/slots?date=%s&duration_min=60&employee_id=%s", tuesday, zoeID))
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	if slots := decodeSlots(t, resp); len(slots) != 0 {
		t.Fatalf("expected no slots on a vacation day, got %d", len(slots))
	}

	resp = httpClient.POST(t, "/api/v1/appointments", newAppointmentBody(zoeID, tuesday, "10:00"))
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
}

func testReschedule(t *testing.T) {
	wednesday := "2026-09-09"
	appointment := createAppointment(t, anaID, wednesday, "10:00")

	path := "/api/v1/appointments/id/" + appointment.ID
	resp := httpClient.PATCH(t, path, map[string]any{"scheduled_time": "14:00"})
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	moved := decodeAppointment(t, resp)
	if moved.ScheduledTime != "14:00" || moved.EndTime != "15:00" {
		t.Fatalf("expected 14:00-15:00 after reschedule, got %s-%s", moved.ScheduledTime, moved.EndTime)
	}

	// Moving back onto its own original slot must not self-conflict.
	resp = httpClient.PATCH(t, path, map[string]any{"scheduled_time": "10:00"})
	testutil.AssertStatusCode(t, resp, http.StatusOK)
}

func testAdminOnlyDelete(t *testing.T) {
	thursday := "2026-09-10"
	appointment := createAppointment(t, anaID, thursday, "10:00")
	path := "/api/v1/appointments/id/" + appointment.ID

	resp := httpClient.DELETE(t, path)
	testutil.AssertStatusCode(t, resp, http.StatusForbidden)

	asAdmin := map[string]string{"X-Employee-Id": bossID, "X-Employee-Role": model.RoleAdmin}
	resp = httpClient.RequestWithHeaders(t, http.MethodDelete, path, nil, asAdmin)
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	resp = httpClient.GET(t, path)
	testutil.AssertStatusCode(t, resp, http.StatusNotFound)
}

func testIdempotentCreate(t *testing.T) {
	friday := "2026-09-11"
	body := newAppointmentBody(anaID, friday, "09:00")
	headers := map[string]string{"Idempotency-Key": "it-create-1"}

	first := httpClient.POSTWithHeaders(t, "/api/v1/appointments", body, headers)
	testutil.AssertStatusCode(t, first, http.StatusCreated)
	created := decodeAppointment(t, first)

	second := httpClient.POSTWithHeaders(t, "/api/v1/appointments", body, headers)
	testutil.AssertStatusCode(t, second, http.StatusCreated)
	replayed := decodeAppointment(t, second)

	if created.ID != replayed.ID {
		t.Fatalf("idempotent replay created a second appointment: %s vs %s", created.ID, replayed.ID)
	}
}
