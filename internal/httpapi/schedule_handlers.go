package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"reserv.org/internal/audit"
	"reserv.org/internal/schedule"
)

func (a *API) handleBooker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, r, "date")
	if !ok {
		return
	}
	info, err := a.schedule.GetBooker(r.Context(), p, date)
	if err != nil {
		writeScheduleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) handleBookers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	from, ok := dateParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := dateParam(w, r, "to")
	if !ok {
		return
	}
	infos, err := a.schedule.GetBookers(r.Context(), p, from, to)
	if err != nil {
		writeScheduleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

type bookRequest struct {
	Date schedule.Date `json:"date"`
}

func (a *API) handleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Date.IsZero() {
		writeError(w, r, http.StatusBadRequest, "date is required")
		return
	}

	result, err := a.schedule.Book(r.Context(), p, req.Date)
	if err != nil {
		writeScheduleError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "schedule.book", map[string]any{
		"date":    req.Date.String(),
		"outcome": string(result.Outcome),
		"reason":  string(result.Reason),
	})
	writeResult(w, r, result)
}

type cancelRequest struct {
	Date schedule.Date `json:"date"`
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Date.IsZero() {
		writeError(w, r, http.StatusBadRequest, "date is required")
		return
	}

	result, err := a.schedule.Cancel(r.Context(), p, req.Date)
	if err != nil {
		writeScheduleError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "schedule.cancel", map[string]any{
		"date":    req.Date.String(),
		"outcome": string(result.Outcome),
		"reason":  string(result.Reason),
	})
	writeResult(w, r, result)
}

// writeResult renders a coordinator outcome. Business rejections share one
// status code so callers cannot distinguish policy from authorization.
func writeResult(w http.ResponseWriter, r *http.Request, result schedule.Result) {
	switch result.Outcome {
	case schedule.OutcomeBooked, schedule.OutcomeCancelled:
		resp := map[string]any{"outcome": string(result.Outcome)}
		if result.Booking != nil {
			resp["date"] = result.Booking.Date.String()
		}
		writeJSON(w, http.StatusOK, resp)
	case schedule.OutcomeRejected, schedule.OutcomeConflict:
		writeJSON(w, http.StatusForbidden, map[string]string{
			"outcome":    string(result.Outcome),
			"reason":     string(result.Reason),
			"request_id": RequestIDFromContext(r.Context()),
		})
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeScheduleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, schedule.ErrInvalidRange) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeServiceError(w, r, err)
}

func dateParam(w http.ResponseWriter, r *http.Request, name string) (schedule.Date, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, name+" is required")
		return schedule.Date{}, false
	}
	date, err := schedule.ParseDate(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid "+name)
		return schedule.Date{}, false
	}
	return date, true
}
