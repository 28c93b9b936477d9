package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/glowdesk/salon-capacity/internal/booking"
	redisclient "github.com/glowdesk/salon-capacity/internal/redis"
	"github.com/glowdesk/salon-capacity/internal/settings"
)

const dateLayout = "2006-01-02"

func bookHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		start, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC3339 timestamp")
			return
		}

		end, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be an RFC3339 timestamp")
			return
		}

		appt, err := svc.TryAdmit(r.Context(), start, end, booking.Details{
			CustomerName: req.CustomerName,
			ServiceName:  req.ServiceName,
			Notes:        req.Notes,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *booking.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, ok := parseDateParam(w, r, "date", loc)
		if !ok {
			return
		}

		appts, err := svc.ListAppointmentsByDate(r.Context(), day)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}

		writeJSON(w, http.StatusOK, out)
	}
}

func transitionHandler(do func(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := do(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func availabilityHandler(svc *booking.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, ok := parseDateParam(w, r, "date", loc)
		if !ok {
			return
		}

		durationMinutes, err := strconv.Atoi(r.URL.Query().Get("duration_minutes"))
		if err != nil || durationMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration_minutes must be a positive integer")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), day, durationMinutes)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := AvailabilityResponse{
			Date:  day.Format(dateLayout),
			Slots: make([]SlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{
				StartTime:         s.StartTime,
				DurationMinutes:   s.DurationMinutes,
				AvailableStations: s.AvailableStations,
				MaxStations:       s.MaxStations,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func capacityCheckHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC3339 timestamp")
			return
		}

		end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be an RFC3339 timestamp")
			return
		}

		checkErr := svc.CheckCapacity(r.Context(), start, end)
		if checkErr == nil {
			writeJSON(w, http.StatusOK, CapacityCheckResponse{Admissible: true})
			return
		}

		// A missing required setting is an operator problem, not a verdict
		// about the window.
		if errors.Is(checkErr, settings.ErrSettingMissing) {
			handleBookingError(w, checkErr)
			return
		}

		code, _, retryable := classifyRejection(checkErr)
		if code == "" {
			handleBookingError(w, checkErr)
			return
		}

		writeJSON(w, http.StatusOK, CapacityCheckResponse{
			Admissible: false,
			Reason:     code,
			Retryable:  retryable,
		})
	}
}

func dashboardHandler(svc *booking.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, ok := parseDateParam(w, r, "date", loc)
		if !ok {
			return
		}

		dash, err := svc.CapacityDashboard(r.Context(), day)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := DashboardResponse{
			Date:              dash.Date.Format(dateLayout),
			MaxConcurrent:     dash.MaxConcurrent,
			MaxDaily:          dash.MaxDaily,
			CurrentDailyCount: dash.DailyCount,
			PerSlotOccupancy:  make([]SlotOccupancyResponse, 0, len(dash.Slots)),
		}
		for _, s := range dash.Slots {
			resp.PerSlotOccupancy = append(resp.PerSlotOccupancy, SlotOccupancyResponse{
				StartTime: s.StartTime,
				Occupied:  s.Occupied,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getSettingsHandler(svc *settings.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := svc.GetAll(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make(map[string]SettingResponse, len(all))
		for key, s := range all {
			resp[key] = SettingResponse{
				Value:   s.Value,
				Type:    string(s.Type),
				Coerced: s.Coerce(),
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateSettingsHandler(svc *settings.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req map[string]SettingPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if len(req) == 0 {
			writeError(w, http.StatusBadRequest, "empty_update", "at least one setting is required")
			return
		}

		for key, payload := range req {
			if err := svc.Set(r.Context(), key, payload.Value, settings.ValueType(payload.Type)); err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

// classifyRejection maps a business-rule rejection to its wire code. A
// non-rejection error returns an empty code.
func classifyRejection(err error) (code string, httpStatus int, retryable bool) {
	switch {
	case errors.Is(err, booking.ErrInvalidTimeRange):
		return "invalid_time_range", http.StatusUnprocessableEntity, false
	case errors.Is(err, booking.ErrDailyLimitExceeded):
		return "daily_limit_exceeded", http.StatusConflict, false
	case errors.Is(err, booking.ErrCapacityExceeded):
		return "capacity_exceeded", http.StatusConflict, false
	case errors.Is(err, booking.ErrConcurrencyConflict),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		return "concurrency_conflict", http.StatusConflict, true
	case errors.Is(err, settings.ErrSettingMissing):
		return "configuration_missing", http.StatusInternalServerError, false
	}
	return "", 0, false
}

func handleBookingError(w http.ResponseWriter, err error) {
	if code, status, _ := classifyRejection(err); code != "" {
		writeError(w, status, code, err.Error())
		return
	}

	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func parseDateParam(w http.ResponseWriter, r *http.Request, name string, loc *time.Location) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	day, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", name+" must be formatted YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		Start:        a.StartTime,
		End:          a.EndTime,
		Status:       string(a.Status),
		CustomerName: a.CustomerName,
		ServiceName:  a.ServiceName,
		Notes:        a.Notes,
		CreatedAt:    a.CreatedAt,
	}
}
