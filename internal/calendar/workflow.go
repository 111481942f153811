package calendar

import (
	"context"
	"time"
)

// BatchItemResult reports the outcome of one id within a batch
// operation. Batches are independent per item: one unknown or already
// resolved id never blocks the rest.
type BatchItemResult struct {
	SessionID string `json:"session_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// AcceptSession transitions a pending session to confirmed. A session
// that does not exist or is no longer pending yields NotFoundError; a
// second accept of the same id is an error, never a silent no-op.
func (e *Engine) AcceptSession(ctx context.Context, providerID, sessionID string) (*Session, error) {
	return e.resolveSession(ctx, providerID, sessionID, StatusConfirmed, EventSessionAccepted)
}

// RejectSession transitions a pending session to cancelled, freeing its
// slot. Same not-found semantics as AcceptSession.
func (e *Engine) RejectSession(ctx context.Context, providerID, sessionID string) (*Session, error) {
	return e.resolveSession(ctx, providerID, sessionID, StatusCancelled, EventSessionRejected)
}

func (e *Engine) resolveSession(ctx context.Context, providerID, sessionID string, to SessionStatus, eventType string) (*Session, error) {
	var resolved *Session
	err := e.mutate(ctx, providerID, func(snap *Snapshot, now time.Time) ([]Event, error) {
		ev, err := resolveInSnapshot(snap, providerID, sessionID, to, eventType, now, &resolved)
		if err != nil {
			return nil, err
		}
		return []Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func resolveInSnapshot(snap *Snapshot, providerID, sessionID string, to SessionStatus, eventType string, now time.Time, out **Session) (Event, error) {
	s := snap.SessionByID(sessionID)
	if s == nil || s.Status != StatusPending {
		return Event{}, &NotFoundError{Kind: "pending session", ID: sessionID}
	}
	s.Status = to
	s.UpdatedAt = now
	copied := *s
	*out = &copied
	return Event{
		Type:       eventType,
		ProviderID: providerID,
		SessionID:  sessionID,
		Date:       s.Date.Format(DateLayout),
		OccurredAt: now,
	}, nil
}

// MarkNoShow records that the client did not attend a confirmed session.
// Only a confirmed session whose start time has passed qualifies; the
// status is terminal.
func (e *Engine) MarkNoShow(ctx context.Context, providerID, sessionID string) (*Session, error) {
	var resolved *Session
	err := e.mutate(ctx, providerID, func(snap *Snapshot, now time.Time) ([]Event, error) {
		s := snap.SessionByID(sessionID)
		if s == nil || s.Status != StatusConfirmed {
			return nil, &NotFoundError{Kind: "confirmed session", ID: sessionID}
		}
		start := s.Date.Add(time.Duration(s.Time) * time.Minute)
		if start.After(now) {
			return nil, validationf("session %s has not started yet", sessionID)
		}
		s.Status = StatusNoShow
		s.UpdatedAt = now
		copied := *s
		resolved = &copied
		return []Event{{
			Type:       EventSessionNoShow,
			ProviderID: providerID,
			SessionID:  sessionID,
			Date:       s.Date.Format(DateLayout),
			OccurredAt: now,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// BatchAccept confirms each pending session independently and reports a
// per-id result list, never a single pass/fail for the whole batch.
func (e *Engine) BatchAccept(ctx context.Context, providerID string, sessionIDs []string) ([]BatchItemResult, error) {
	return e.resolveBatch(ctx, providerID, sessionIDs, StatusConfirmed, EventSessionAccepted)
}

// BatchReject is the cancelling counterpart of BatchAccept.
func (e *Engine) BatchReject(ctx context.Context, providerID string, sessionIDs []string) ([]BatchItemResult, error) {
	return e.resolveBatch(ctx, providerID, sessionIDs, StatusCancelled, EventSessionRejected)
}

func (e *Engine) resolveBatch(ctx context.Context, providerID string, sessionIDs []string, to SessionStatus, eventType string) ([]BatchItemResult, error) {
	results := make([]BatchItemResult, 0, len(sessionIDs))
	err := e.mutate(ctx, providerID, func(snap *Snapshot, now time.Time) ([]Event, error) {
		var events []Event
		for _, id := range sessionIDs {
			var resolved *Session
			ev, err := resolveInSnapshot(snap, providerID, id, to, eventType, now, &resolved)
			if err != nil {
				results = append(results, BatchItemResult{SessionID: id, Error: err.Error()})
				continue
			}
			results = append(results, BatchItemResult{SessionID: id, OK: true})
			events = append(events, ev)
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
