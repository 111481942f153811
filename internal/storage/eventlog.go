package storage

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mindhaven/provider-calendar/internal/calendar"
)

// AttachEventLog subscribes the Postgres event log to the bus. Log
// writes happen after the mutation has committed and never fail it; a
// write error is logged and dropped.
func (s *PgStore) AttachEventLog(bus *calendar.Bus, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus.Subscribe(func(ev calendar.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Error("marshal event for log", zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.InsertEvent(ctx, ev, payload); err != nil {
			logger.Error("event log write failed",
				zap.String("event_type", ev.Type),
				zap.String("provider_id", ev.ProviderID),
				zap.Error(err))
		}
	})
}
