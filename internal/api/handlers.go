package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mindhaven/provider-calendar/internal/calendar"
	redisclient "github.com/mindhaven/provider-calendar/internal/redis"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleEngineError maps the engine's typed errors onto HTTP statuses;
// conflicts carry the conflicting entities in the body.
func handleEngineError(w http.ResponseWriter, err error) {
	var (
		validation *calendar.ValidationError
		pastDate   *calendar.PastDateError
		conflict   *calendar.ConflictError
		notFound   *calendar.NotFoundError
		batch      *calendar.BatchDateError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Msg)
	case errors.As(err, &pastDate):
		writeError(w, http.StatusUnprocessableEntity, "past_date", err.Error())
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "conflict",
			Details: err.Error(),
			Conflicts: map[string]any{
				"sessions":    conflict.Sessions,
				"unavailable": conflict.Unavailable,
			},
		})
	case errors.As(err, &batch):
		failures := make(map[string]string, len(batch.Failures))
		for date, ferr := range batch.Failures {
			failures[date] = ferr.Error()
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "recurrence_conflict",
			Details:   err.Error(),
			Conflicts: failures,
		})
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "calendar_busy", "another change to this calendar is in flight, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func monthViewHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")
		month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_month", "month must be formatted 2006-01")
			return
		}

		grid, err := engine.MonthView(r.Context(), providerID, month.Year(), month.Month())
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, grid)
	}
}

func dayViewHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")
		date, err := calendar.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted 2006-01-02")
			return
		}

		day, err := engine.DayView(r.Context(), providerID, date)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, day)
	}
}

func markUnavailableHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")

		var req MarkUnavailableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := calendar.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted 2006-01-02")
			return
		}

		mark := calendar.MarkRequest{
			Date:    date,
			FullDay: req.FullDay,
			Reason:  req.Reason,
			Repeat:  req.Repeat,
		}
		if !req.FullDay {
			start, err := calendar.ParseTimeOfDay(req.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_time", "start must be formatted HH:MM")
				return
			}
			end, err := calendar.ParseTimeOfDay(req.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_time", "end must be formatted HH:MM")
				return
			}
			mark.Window = &calendar.TimeRange{Start: start, End: end}
		}

		created, err := engine.MarkUnavailable(r.Context(), providerID, mark)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func markAvailableHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")
		date, err := calendar.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted 2006-01-02")
			return
		}

		if err := engine.MarkAvailable(r.Context(), providerID, date); err != nil {
			handleEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listRulesHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")
		rules, err := engine.Rules(r.Context(), providerID)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		out := make([]RuleResponse, 0, len(rules))
		for _, rule := range rules {
			out = append(out, toRuleResponse(rule))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func toRuleResponse(rule calendar.AvailabilityRule) RuleResponse {
	resp := RuleResponse{
		ID:     rule.RuleID(),
		Kind:   string(rule.Kind()),
		Reason: rule.Reason(),
	}
	rec := calendar.EncodeRule(rule)
	for _, d := range rec.Days {
		resp.Days = append(resp.Days, d.String())
	}
	switch rule.Kind() {
	case calendar.RuleDateRange:
		resp.Start = rec.StartDate.Format(calendar.DateLayout)
		resp.End = rec.EndDate.Format(calendar.DateLayout)
	case calendar.RuleDailyTime:
		resp.Start = rec.StartTime.String()
		resp.End = rec.EndTime.String()
	}
	return resp
}

func createRuleHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")

		var req CreateRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		rec := calendar.RuleRecord{
			Kind:   calendar.RuleKind(req.Kind),
			Reason: req.Reason,
		}
		for _, name := range req.Days {
			wd, err := calendar.ParseWeekday(name)
			if err != nil {
				handleEngineError(w, err)
				return
			}
			rec.Days = append(rec.Days, wd)
		}
		if req.StartDate != "" {
			d, err := calendar.ParseDate(req.StartDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "start_date must be formatted 2006-01-02")
				return
			}
			rec.StartDate = d
		}
		if req.EndDate != "" {
			d, err := calendar.ParseDate(req.EndDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "end_date must be formatted 2006-01-02")
				return
			}
			rec.EndDate = d
		}
		if req.StartTime != "" {
			t, err := calendar.ParseTimeOfDay(req.StartTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_time", "start_time must be formatted HH:MM")
				return
			}
			rec.StartTime = t
		}
		if req.EndTime != "" {
			t, err := calendar.ParseTimeOfDay(req.EndTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_time", "end_time must be formatted HH:MM")
				return
			}
			rec.EndTime = t
		}

		rule, err := engine.AddRule(r.Context(), providerID, rec)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRuleResponse(rule))
	}
}

func deleteRuleHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")
		ruleID := chi.URLParam(r, "ruleID")

		if err := engine.RemoveRule(r.Context(), providerID, ruleID); err != nil {
			handleEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listPendingHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")
		pending, err := engine.PendingSessions(r.Context(), providerID)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		out := make([]SessionResponse, 0, len(pending))
		for i := range pending {
			out = append(out, toSessionResponse(&pending[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func requestSessionHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")

		var req RequestSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := calendar.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted 2006-01-02")
			return
		}
		at, err := calendar.ParseTimeOfDay(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be formatted HH:MM")
			return
		}

		sess, err := engine.RequestSession(r.Context(), providerID, req.ClientName, date, at, req.Duration)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSessionResponse(sess))
	}
}

func acceptSessionHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")
		sessionID := chi.URLParam(r, "sessionID")

		sess, err := engine.AcceptSession(r.Context(), providerID, sessionID)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

func rejectSessionHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")
		sessionID := chi.URLParam(r, "sessionID")

		sess, err := engine.RejectSession(r.Context(), providerID, sessionID)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

func noShowSessionHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")
		sessionID := chi.URLParam(r, "sessionID")

		sess, err := engine.MarkNoShow(r.Context(), providerID, sessionID)
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

func batchSessionHandler(engine *calendar.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := chi.URLParam(r, "providerID")

		var req BatchSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var (
			results []calendar.BatchItemResult
			err     error
		)
		switch req.Action {
		case "accept":
			results, err = engine.BatchAccept(r.Context(), providerID, req.SessionIDs)
		case "reject":
			results, err = engine.BatchReject(r.Context(), providerID, req.SessionIDs)
		default:
			writeError(w, http.StatusBadRequest, "invalid_action", "action must be accept or reject")
			return
		}
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}
