package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"treadline/internal/availability/service"
	"treadline/pkg/config"
	apperrors "treadline/pkg/errors"
	httputil "treadline/pkg/http"
	"treadline/pkg/logger"
	"treadline/pkg/model"
)

type AvailabilityHandler struct {
	service service.AvailabilityService
	cfg     *config.Config
	log     *logger.Logger
}

func NewAvailabilityHandler(service service.AvailabilityService, cfg *config.Config) *AvailabilityHandler {
	return &AvailabilityHandler{
		service: service,
		cfg:     cfg,
		log:     cfg.Log,
	}
}

func (h *AvailabilityHandler) SetRecurring(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var rule model.RecurringAvailability
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "SetRecurring", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	stored, err := h.service.SetRecurringAvailability(r.Context(), &rule)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "SetRecurring", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, stored); err != nil {
		h.log.Error("failed to write success response", "handler", "SetRecurring", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) GetRecurring(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	employeeID := ps.ByName("employee_id")
	if employeeID == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "employee_id parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "GetRecurring", "operation", "WriteJSON", "error", err)
		}
		return
	}

	rules, err := h.service.GetEmployeeAvailability(r.Context(), employeeID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetRecurring", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, rules); err != nil {
		h.log.Error("failed to write success response", "handler", "GetRecurring", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) DeleteRecurring(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "DeleteRecurring", "operation", "WriteJSON", "error", err)
		}
		return
	}

	actor := httputil.ExtractActor(r)
	removed, err := h.service.DeleteRecurringAvailability(r.Context(), id, actor)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "DeleteRecurring", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, removed); err != nil {
		h.log.Error("failed to write success response", "handler", "DeleteRecurring", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) AddOverride(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var override model.AvailabilityOverride
	if err := json.NewDecoder(r.Body).Decode(&override); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "AddOverride", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	stored, err := h.service.AddOverride(r.Context(), &override)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "AddOverride", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, stored); err != nil {
		h.log.Error("failed to write created response", "handler", "AddOverride", "operation", "WriteCreated", "error", err)
	}
}

func (h *AvailabilityHandler) GetOverrides(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	employeeID := ps.ByName("employee_id")
	query := r.URL.Query()
	startDate := strings.TrimSpace(query.Get("start_date"))
	endDate := strings.TrimSpace(query.Get("end_date"))

	if startDate == "" || endDate == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "'start_date' and 'end_date' query parameters are required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "GetOverrides", "operation", "WriteJSON", "error", err)
		}
		return
	}

	overrides, err := h.service.GetOverrides(r.Context(), employeeID, startDate, endDate)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetOverrides", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, overrides); err != nil {
		h.log.Error("failed to write success response", "handler", "GetOverrides", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) DeleteOverride(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "DeleteOverride", "operation", "WriteJSON", "error", err)
		}
		return
	}

	removed, err := h.service.DeleteOverride(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "DeleteOverride", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, removed); err != nil {
		h.log.Error("failed to write success response", "handler", "DeleteOverride", "operation", "WriteSuccess", "error", err)
	}
}

// Slots lists every open slot for a date, either for one employee
// (employee_id) or across all schedulable employees.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	date := strings.TrimSpace(query.Get("date"))
	employeeID := strings.TrimSpace(query.Get("employee_id"))

	if date == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "'date' query parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "Slots", "operation", "WriteJSON", "error", err)
		}
		return
	}

	durationMin, err := h.durationParam(query.Get("duration_min"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Slots", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	slots, err := h.service.CheckAvailableSlots(r.Context(), date, durationMin, employeeID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Slots", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, slots); err != nil {
		h.log.Error("failed to write success response", "handler", "Slots", "operation", "WriteSuccess", "error", err)
	}
}

// Check answers whether one employee can take one specific slot.
func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	employeeID := strings.TrimSpace(query.Get("employee_id"))
	date := strings.TrimSpace(query.Get("date"))
	startTime := strings.TrimSpace(query.Get("start_time"))
	excludeID := strings.TrimSpace(query.Get("exclude_appointment_id"))

	if employeeID == "" || date == "" || startTime == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "'employee_id', 'date' and 'start_time' query parameters are required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "Check", "operation", "WriteJSON", "error", err)
		}
		return
	}

	durationMin, err := h.durationParam(query.Get("duration_min"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Check", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	check, err := h.service.IsEmployeeAvailable(r.Context(), employeeID, date, startTime, durationMin, excludeID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Check", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, check); err != nil {
		h.log.Error("failed to write success response", "handler", "Check", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) durationParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h.cfg.DefaultDurationMin, nil
	}
	durationMin, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput(fmt.Sprintf("invalid duration_min parameter: %s", raw))
	}
	return durationMin, nil
}

func (h *AvailabilityHandler) RegisterRoutes(router *httprouter.Router) {
	router.PUT("/api/v1/availability/recurring", h.SetRecurring)
	router.GET("/api/v1/availability/recurring/employee/:employee_id", h.GetRecurring)
	router.DELETE("/api/v1/availability/recurring/id/:id", h.DeleteRecurring)
	router.POST("/api/v1/availability/overrides", h.AddOverride)
	router.GET("/api/v1/availability/overrides/employee/:employee_id", h.GetOverrides)
	router.DELETE("/api/v1/availability/overrides/id/:id", h.DeleteOverride)
	router.GET("/api/v1/availability/slots", h.Slots)
	router.GET("/api/v1/availability/check", h.Check)
}
