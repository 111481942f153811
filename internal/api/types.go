package api

import (
	"github.com/mindhaven/provider-calendar/internal/calendar"
)

type MarkUnavailableRequest struct {
	Date    string `json:"date"` // 2006-01-02
	FullDay bool   `json:"full_day"`
	Start   string `json:"start,omitempty"` // HH:MM, partial only
	End     string `json:"end,omitempty"`   // HH:MM, partial only
	Reason  string `json:"reason,omitempty"`
	Repeat  int    `json:"repeat,omitempty"` // weekly occurrences, 0/1 = one-off
}

type CreateRuleRequest struct {
	Kind      string   `json:"kind"`
	Days      []string `json:"days,omitempty"`       // weekday names
	StartDate string   `json:"start_date,omitempty"` // 2006-01-02
	EndDate   string   `json:"end_date,omitempty"`
	StartTime string   `json:"start_time,omitempty"` // HH:MM
	EndTime   string   `json:"end_time,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

type RuleResponse struct {
	ID     string   `json:"id"`
	Kind   string   `json:"kind"`
	Days   []string `json:"days,omitempty"`
	Start  string   `json:"start,omitempty"`
	End    string   `json:"end,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

type RequestSessionRequest struct {
	ClientName string `json:"client_name"`
	Date       string `json:"date"` // 2006-01-02
	Time       string `json:"time"` // HH:MM
	Duration   int    `json:"duration"`
}

type BatchSessionRequest struct {
	Action     string   `json:"action"` // accept | reject
	SessionIDs []string `json:"session_ids"`
}

type SessionResponse struct {
	ID         string `json:"id"`
	ClientName string `json:"client_name"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Duration   int    `json:"duration"`
	Status     string `json:"status"`
}

func toSessionResponse(s *calendar.Session) SessionResponse {
	return SessionResponse{
		ID:         s.ID,
		ClientName: s.ClientName,
		Date:       s.Date.Format(calendar.DateLayout),
		Time:       s.Time.String(),
		Duration:   s.Duration,
		Status:     string(s.Status),
	}
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Conflicts any    `json:"conflicts,omitempty"`
}
