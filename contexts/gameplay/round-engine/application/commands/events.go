package commands

import (
	"context"
	"encoding/json"
	"time"

	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

const sourceService = "phraseforge-round-engine"

// appendRoundEvent records a lifecycle event in the module outbox. Outbox is
// optional for pure read/test wiring, so nil is treated as no-op. The state
// the event describes has already committed when this runs, so append
// failures are logged and swallowed rather than failing the player action.
func (uc RoundUseCase) appendRoundEvent(
	ctx context.Context,
	eventType string,
	round entities.Round,
	occurredAt time.Time,
	metadata map[string]any,
) {
	if uc.Outbox == nil {
		return
	}
	data := map[string]any{
		"round_id":    round.RoundID,
		"player_id":   round.PlayerID,
		"round_type":  string(round.Type),
		"status":      string(round.Status),
		"cost":        round.Cost,
		"expires_at":  round.ExpiresAt.Format(time.RFC3339),
		"occurred_at": occurredAt.Format(time.RFC3339),
	}
	for key, value := range metadata {
		data[key] = value
	}
	if err := uc.appendEnvelope(ctx, eventType, "round", round.RoundID, occurredAt, data); err != nil {
		uc.logAppendFailure(eventType, "round", round.RoundID, err)
	}
}

func (uc RoundUseCase) appendPhrasesetEvent(
	ctx context.Context,
	eventType string,
	set entities.Phraseset,
	occurredAt time.Time,
) {
	if uc.Outbox == nil {
		return
	}
	data := map[string]any{
		"phraseset_id":    set.PhrasesetID,
		"prompt_round_id": set.PromptRoundID,
		"total_pool":      set.TotalPool,
		"status":          string(set.Status),
		"occurred_at":     occurredAt.Format(time.RFC3339),
	}
	if err := uc.appendEnvelope(ctx, eventType, "phraseset", set.PhrasesetID, occurredAt, data); err != nil {
		uc.logAppendFailure(eventType, "phraseset", set.PhrasesetID, err)
	}
}

func (uc RoundUseCase) logAppendFailure(eventType string, entityType string, entityID string, err error) {
	application.ResolveLogger(uc.Logger).Warn("outbox event append failed",
		"event", "round_event_append_failed",
		"module", "gameplay/round-engine",
		"layer", "application",
		"event_type", eventType,
		"entity_type", entityType,
		"entity_id", entityID,
		"error", err.Error(),
	)
}

func (uc RoundUseCase) appendEnvelope(
	ctx context.Context,
	eventType string,
	entityType string,
	entityID string,
	occurredAt time.Time,
	data map[string]any,
) error {
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope := ports.EventEnvelope{
		EventID:        eventID,
		EventType:      eventType,
		SourceService:  sourceService,
		OccurredAtUTC:  occurredAt,
		EntityType:     entityType,
		EntityID:       entityID,
		PayloadVersion: 1,
		Payload:        data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, ports.OutboxMessage{
		OutboxID:  eventID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: occurredAt,
	})
}
