package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Trail records staff mutations. A failed write is logged and swallowed so
// it never fails the request that caused it.
type Trail struct {
	repo Repository
	log  zerolog.Logger
}

func NewTrail(repo Repository, log zerolog.Logger) *Trail {
	return &Trail{repo: repo, log: log.With().Str("component", "audit").Logger()}
}

func (t *Trail) Record(ctx context.Context, actor, action, targetType, targetID string, payload json.RawMessage) {
	e := &Entry{
		Actor:      actor,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Payload:    payload,
	}
	if !json.Valid(payload) {
		e.Payload = nil
	}

	// detached so a client hanging up does not drop the entry
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := t.repo.Record(recordCtx, e); err != nil {
		t.log.Error().Err(err).
			Str("actor", actor).
			Str("action", action).
			Str("target_type", targetType).
			Str("target_id", targetID).
			Msg("audit record failed")
	}
}

func (t *Trail) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	return t.repo.List(ctx, f)
}
