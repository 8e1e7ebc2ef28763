package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db             *gorm.DB
	cooldownWindow time.Duration
	logger         *slog.Logger
}

func NewRepository(db *gorm.DB, cooldownWindow time.Duration, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:             db,
		cooldownWindow: cooldownWindow,
		logger:         logger,
	}
}

func (r *Repository) SaveRound(ctx context.Context, round entities.Round) error {
	row := roundModelFromEntity(round)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":             row.Status,
			"submitted_phrase":   row.SubmittedPhrase,
			"copy_phrase":        row.CopyPhrase,
			"copy1_player_id":    row.Copy1PlayerID,
			"copy2_player_id":    row.Copy2PlayerID,
			"phraseset_progress": row.PhrasesetProgress,
			"flagged":            row.Flagged,
			"updated_at":         row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("round_repo_save_round_failed", create.Error,
			"round_id", strings.TrimSpace(round.RoundID),
			"player_id", strings.TrimSpace(round.PlayerID),
		)
	}
	return nil
}

func (r *Repository) GetRound(ctx context.Context, roundID string) (entities.Round, error) {
	var row roundModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(roundID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Round{}, domainerrors.ErrRoundNotFound
		}
		return entities.Round{}, r.logError("round_repo_get_round_failed", err, "round_id", strings.TrimSpace(roundID))
	}
	return row.toEntity(), nil
}

func (r *Repository) ListSubmittedCopyRounds(ctx context.Context, promptRoundID string) ([]entities.Round, error) {
	var rows []roundModel
	if err := r.db.WithContext(ctx).
		Where("type = ?", string(entities.RoundTypeCopy)).
		Where("status = ?", string(entities.RoundStatusSubmitted)).
		Where("prompt_round_id = ?", strings.TrimSpace(promptRoundID)).
		Order("updated_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("round_repo_list_submitted_copies_failed", err,
			"prompt_round_id", strings.TrimSpace(promptRoundID),
		)
	}
	return toRoundEntities(rows), nil
}

func (r *Repository) HasCopyByPlayer(ctx context.Context, promptRoundID string, playerID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&roundModel{}).
		Where("type = ?", string(entities.RoundTypeCopy)).
		Where("prompt_round_id = ?", strings.TrimSpace(promptRoundID)).
		Where("player_id = ?", strings.TrimSpace(playerID)).
		Where("status NOT IN ?", []string{
			string(entities.RoundStatusAbandoned),
			string(entities.RoundStatusExpired),
		}).
		Count(&count).
		Error
	if err != nil {
		return false, r.logError("round_repo_has_copy_by_player_failed", err,
			"prompt_round_id", strings.TrimSpace(promptRoundID),
			"player_id", strings.TrimSpace(playerID),
		)
	}
	return count > 0, nil
}

// ClaimPromptForCopy revalidates a matched candidate under a row lock so a
// stale queue entry cannot hand the same slot to two players.
func (r *Repository) ClaimPromptForCopy(ctx context.Context, promptRoundID string, playerID string, secondSlot bool) (entities.Round, error) {
	var claimed entities.Round
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row roundModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", strings.TrimSpace(promptRoundID)).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrRoundNotFound
			}
			return err
		}
		round := row.toEntity()
		if round.Type != entities.RoundTypePrompt ||
			round.Status != entities.RoundStatusSubmitted ||
			round.Flagged ||
			round.PhrasesetProgress == entities.PhrasesetProgressComplete {
			return domainerrors.ErrPromptRoundUnavailable
		}

		var inFlight int64
		if err := tx.Model(&roundModel{}).
			Where("type = ?", string(entities.RoundTypeCopy)).
			Where("status = ?", string(entities.RoundStatusActive)).
			Where("prompt_round_id = ?", round.RoundID).
			Count(&inFlight).Error; err != nil {
			return err
		}

		if secondSlot {
			if round.Copy1PlayerID != playerID || round.Copy2PlayerID != "" || inFlight > 0 {
				return domainerrors.ErrPromptRoundUnavailable
			}
		} else if int64(round.OpenCopySlots())-inFlight <= 0 {
			return domainerrors.ErrPromptRoundUnavailable
		}
		claimed = round
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrRoundNotFound) || errors.Is(err, domainerrors.ErrPromptRoundUnavailable) {
			return entities.Round{}, err
		}
		return entities.Round{}, r.logError("round_repo_claim_prompt_failed", err,
			"prompt_round_id", strings.TrimSpace(promptRoundID),
			"player_id", strings.TrimSpace(playerID),
		)
	}
	return claimed, nil
}

func (r *Repository) AssignCopySlot(ctx context.Context, promptRoundID string, playerID string, now time.Time) (entities.Round, error) {
	var updated entities.Round
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row roundModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", strings.TrimSpace(promptRoundID)).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrRoundNotFound
			}
			return err
		}
		switch {
		case row.Copy1PlayerID == "":
			row.Copy1PlayerID = strings.TrimSpace(playerID)
			row.PhrasesetProgress = string(entities.PhrasesetProgressPartial)
		case row.Copy2PlayerID == "":
			row.Copy2PlayerID = strings.TrimSpace(playerID)
			row.PhrasesetProgress = string(entities.PhrasesetProgressComplete)
		default:
			return domainerrors.ErrPromptRoundUnavailable
		}
		row.UpdatedAt = now.UTC()
		if err := tx.Model(&roundModel{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"copy1_player_id":    row.Copy1PlayerID,
				"copy2_player_id":    row.Copy2PlayerID,
				"phraseset_progress": row.PhrasesetProgress,
				"updated_at":         row.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		updated = row.toEntity()
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrRoundNotFound) || errors.Is(err, domainerrors.ErrPromptRoundUnavailable) {
			return entities.Round{}, err
		}
		return entities.Round{}, r.logError("round_repo_assign_copy_slot_failed", err,
			"prompt_round_id", strings.TrimSpace(promptRoundID),
			"player_id", strings.TrimSpace(playerID),
		)
	}
	return updated, nil
}

func (r *Repository) ListMatchablePromptRoundIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&roundModel{}).
		Select("id").
		Where("type = ?", string(entities.RoundTypePrompt)).
		Where("status = ?", string(entities.RoundStatusSubmitted)).
		Where("flagged = ?", false).
		Where("phraseset_progress <> ?", string(entities.PhrasesetProgressComplete)).
		Order("created_at ASC").
		Scan(&ids).
		Error
	if err != nil {
		return nil, r.logError("round_repo_list_matchable_prompts_failed", err)
	}
	return ids, nil
}

func (r *Repository) ListDueRounds(ctx context.Context, cutoff time.Time, limit int) ([]entities.Round, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []roundModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.RoundStatusActive)).
		Where("expires_at < ?", cutoff.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("round_repo_list_due_rounds_failed", err, "limit", limit)
	}
	return toRoundEntities(rows), nil
}

func (r *Repository) SavePhraseset(ctx context.Context, set entities.Phraseset) error {
	row := phrasesetModelFromEntity(set)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":       row.Status,
			"vote_count":   row.VoteCount,
			"payout_total": row.PayoutTotal,
			"updated_at":   row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			// The prompt_round_id unique index caught a concurrent assembly.
			return domainerrors.ErrPhrasesetExists
		}
		return r.logError("round_repo_save_phraseset_failed", create.Error,
			"phraseset_id", strings.TrimSpace(set.PhrasesetID),
			"prompt_round_id", strings.TrimSpace(set.PromptRoundID),
		)
	}
	return nil
}

func (r *Repository) GetPhraseset(ctx context.Context, phrasesetID string) (entities.Phraseset, error) {
	var row phrasesetModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(phrasesetID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Phraseset{}, domainerrors.ErrPhrasesetNotFound
		}
		return entities.Phraseset{}, r.logError("round_repo_get_phraseset_failed", err,
			"phraseset_id", strings.TrimSpace(phrasesetID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) GetPhrasesetByPromptRound(ctx context.Context, promptRoundID string) (entities.Phraseset, bool, error) {
	var row phrasesetModel
	err := r.db.WithContext(ctx).
		Where("prompt_round_id = ?", strings.TrimSpace(promptRoundID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Phraseset{}, false, nil
		}
		return entities.Phraseset{}, false, r.logError("round_repo_get_phraseset_by_prompt_failed", err,
			"prompt_round_id", strings.TrimSpace(promptRoundID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListOpenPhrasesetIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&phrasesetModel{}).
		Select("id").
		Where("status = ?", string(entities.PhrasesetStatusOpen)).
		Order("created_at ASC").
		Scan(&ids).
		Error
	if err != nil {
		return nil, r.logError("round_repo_list_open_phrasesets_failed", err)
	}
	return ids, nil
}

func (r *Repository) HasVoted(ctx context.Context, phrasesetID string, playerID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&roundModel{}).
		Where("type = ?", string(entities.RoundTypeVote)).
		Where("phraseset_id = ?", strings.TrimSpace(phrasesetID)).
		Where("player_id = ?", strings.TrimSpace(playerID)).
		Where("status IN ?", []string{
			string(entities.RoundStatusActive),
			string(entities.RoundStatusSubmitted),
		}).
		Count(&count).
		Error
	if err != nil {
		return false, r.logError("round_repo_has_voted_failed", err,
			"phraseset_id", strings.TrimSpace(phrasesetID),
			"player_id", strings.TrimSpace(playerID),
		)
	}
	return count > 0, nil
}

func (r *Repository) GetPlayer(ctx context.Context, playerID string) (entities.Player, error) {
	var row playerModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(playerID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Player{}, domainerrors.ErrPlayerNotFound
		}
		return entities.Player{}, r.logError("round_repo_get_player_failed", err, "player_id", strings.TrimSpace(playerID))
	}
	return row.toEntity(), nil
}

func (r *Repository) SetActiveRound(ctx context.Context, playerID string, roundID string, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&playerModel{}).
		Where("id = ?", strings.TrimSpace(playerID)).
		Updates(map[string]any{
			"active_round_id": strings.TrimSpace(roundID),
			"updated_at":      now.UTC(),
		})
	if result.Error != nil {
		return r.logError("round_repo_set_active_round_failed", result.Error,
			"player_id", strings.TrimSpace(playerID),
			"round_id", strings.TrimSpace(roundID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrPlayerNotFound
	}
	return nil
}

func (r *Repository) ClearActiveRound(ctx context.Context, playerID string, roundID string, now time.Time) error {
	// Conditional on the current pointer so a duplicate sweep cannot clear a
	// round the player has since started.
	result := r.db.WithContext(ctx).
		Model(&playerModel{}).
		Where("id = ?", strings.TrimSpace(playerID)).
		Where("active_round_id = ?", strings.TrimSpace(roundID)).
		Updates(map[string]any{
			"active_round_id": "",
			"updated_at":      now.UTC(),
		})
	if result.Error != nil {
		return r.logError("round_repo_clear_active_round_failed", result.Error,
			"player_id", strings.TrimSpace(playerID),
			"round_id", strings.TrimSpace(roundID),
		)
	}
	return nil
}

func (r *Repository) RandomUnseenPrompt(ctx context.Context, playerID string) (entities.Prompt, bool, error) {
	playerID = strings.TrimSpace(playerID)
	var rows []promptModel
	err := r.db.WithContext(ctx).
		Model(&promptModel{}).
		Where("active = ?", true).
		Where(`NOT EXISTS (
			SELECT 1 FROM rounds a
			WHERE a.type = 'prompt' AND a.player_id = ? AND a.prompt_id = prompts.id
		)`, playerID).
		Where(`NOT EXISTS (
			SELECT 1 FROM rounds c
			JOIN rounds parent ON parent.id = c.prompt_round_id
			WHERE c.type = 'copy' AND c.player_id = ? AND parent.prompt_id = prompts.id
		)`, playerID).
		Where(`NOT EXISTS (
			SELECT 1 FROM rounds v
			JOIN phrasesets ps ON ps.id = v.phraseset_id
			JOIN rounds parent ON parent.id = ps.prompt_round_id
			WHERE v.type = 'vote' AND v.player_id = ? AND parent.prompt_id = prompts.id
		)`, playerID).
		Order("random()").
		Limit(1).
		Find(&rows).
		Error
	if err != nil {
		return entities.Prompt{}, false, r.logError("round_repo_random_unseen_prompt_failed", err,
			"player_id", playerID,
		)
	}
	if len(rows) == 0 {
		return entities.Prompt{}, false, nil
	}
	return rows[0].toEntity(), true, nil
}

func (r *Repository) AddCooldown(ctx context.Context, cooldown entities.AbandonmentCooldown) error {
	row := cooldownModel{
		PlayerID:      strings.TrimSpace(cooldown.PlayerID),
		PromptRoundID: strings.TrimSpace(cooldown.PromptRoundID),
		AbandonedAt:   cooldown.AbandonedAt.UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "prompt_round_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("round_repo_add_cooldown_failed", create.Error,
			"player_id", row.PlayerID,
			"prompt_round_id", row.PromptRoundID,
		)
	}
	return nil
}

func (r *Repository) InCooldown(ctx context.Context, playerID string, promptRoundID string, now time.Time) (bool, error) {
	var row cooldownModel
	err := r.db.WithContext(ctx).
		Where("player_id = ?", strings.TrimSpace(playerID)).
		Where("prompt_round_id = ?", strings.TrimSpace(promptRoundID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, r.logError("round_repo_in_cooldown_failed", err,
			"player_id", strings.TrimSpace(playerID),
			"prompt_round_id", strings.TrimSpace(promptRoundID),
		)
	}
	return now.UTC().Before(row.AbandonedAt.Add(r.cooldownWindow)), nil
}

// CreateTransaction debits or credits the wallet and appends a ledger row
// in one transaction. The player row lock serializes concurrent spends.
func (r *Repository) CreateTransaction(ctx context.Context, playerID string, amount int64, txType string, referenceID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var player playerModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", strings.TrimSpace(playerID)).
			First(&player).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrPlayerNotFound
			}
			return err
		}
		if player.Balance+amount < 0 {
			return domainerrors.ErrInsufficientBalance
		}
		balanceAfter := player.Balance + amount
		if err := tx.Model(&playerModel{}).
			Where("id = ?", player.ID).
			Updates(map[string]any{
				"balance":    balanceAfter,
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
			return err
		}

		metadata, err := json.Marshal(map[string]any{"balance_after": balanceAfter})
		if err != nil {
			return err
		}
		return tx.Create(&transactionModel{
			PlayerID:    player.ID,
			Amount:      amount,
			Type:        strings.TrimSpace(txType),
			ReferenceID: strings.TrimSpace(referenceID),
			Metadata:    datatypes.JSON(metadata),
			CreatedAt:   time.Now().UTC(),
		}).Error
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrPlayerNotFound) || errors.Is(err, domainerrors.ErrInsufficientBalance) {
			return err
		}
		return r.logError("round_repo_create_transaction_failed", err,
			"player_id", strings.TrimSpace(playerID),
			"tx_type", strings.TrimSpace(txType),
			"reference_id", strings.TrimSpace(referenceID),
		)
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, message ports.OutboxMessage) error {
	row := outboxModel{
		OutboxID:  strings.TrimSpace(message.OutboxID),
		EventType: strings.TrimSpace(message.EventType),
		Payload:   datatypes.JSON(append([]byte(nil), message.Payload...)),
		Status:    outboxStatusPending,
		CreatedAt: message.CreatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("round_repo_append_outbox_failed", create.Error, "outbox_id", row.OutboxID)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("round_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:  row.OutboxID,
			EventType: row.EventType,
			Payload:   append([]byte(nil), row.Payload...),
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("round_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "gameplay/round-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("round repository operation failed", fields...)
	return err
}

type roundModel struct {
	ID                 string    `gorm:"column:id;primaryKey"`
	PlayerID           string    `gorm:"column:player_id"`
	Type               string    `gorm:"column:type"`
	Status             string    `gorm:"column:status"`
	Cost               int64     `gorm:"column:cost"`
	SystemContribution int64     `gorm:"column:system_contribution"`
	PromptID           string    `gorm:"column:prompt_id"`
	PromptText         string    `gorm:"column:prompt_text"`
	SubmittedPhrase    string    `gorm:"column:submitted_phrase"`
	Copy1PlayerID      string    `gorm:"column:copy1_player_id"`
	Copy2PlayerID      string    `gorm:"column:copy2_player_id"`
	PhrasesetProgress  string    `gorm:"column:phraseset_progress"`
	Flagged            bool      `gorm:"column:flagged"`
	PromptRoundID      string    `gorm:"column:prompt_round_id"`
	OriginalPhrase     string    `gorm:"column:original_phrase"`
	CopyPhrase         string    `gorm:"column:copy_phrase"`
	PhrasesetID        string    `gorm:"column:phraseset_id"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	ExpiresAt          time.Time `gorm:"column:expires_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (roundModel) TableName() string {
	return "rounds"
}

func roundModelFromEntity(round entities.Round) roundModel {
	row := roundModel{
		ID:                 strings.TrimSpace(round.RoundID),
		PlayerID:           strings.TrimSpace(round.PlayerID),
		Type:               string(round.Type),
		Status:             string(round.Status),
		Cost:               round.Cost,
		SystemContribution: round.SystemContribution,
		PromptID:           strings.TrimSpace(round.PromptID),
		PromptText:         round.PromptText,
		SubmittedPhrase:    round.SubmittedPhrase,
		Copy1PlayerID:      strings.TrimSpace(round.Copy1PlayerID),
		Copy2PlayerID:      strings.TrimSpace(round.Copy2PlayerID),
		PhrasesetProgress:  string(round.PhrasesetProgress),
		Flagged:            round.Flagged,
		PromptRoundID:      strings.TrimSpace(round.PromptRoundID),
		OriginalPhrase:     round.OriginalPhrase,
		CopyPhrase:         round.CopyPhrase,
		PhrasesetID:        strings.TrimSpace(round.PhrasesetID),
		CreatedAt:          round.CreatedAt.UTC(),
		ExpiresAt:          round.ExpiresAt.UTC(),
		UpdatedAt:          round.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m roundModel) toEntity() entities.Round {
	return entities.Round{
		RoundID:            m.ID,
		PlayerID:           m.PlayerID,
		Type:               entities.RoundType(m.Type),
		Status:             entities.RoundStatus(m.Status),
		Cost:               m.Cost,
		SystemContribution: m.SystemContribution,
		PromptID:           m.PromptID,
		PromptText:         m.PromptText,
		SubmittedPhrase:    m.SubmittedPhrase,
		Copy1PlayerID:      m.Copy1PlayerID,
		Copy2PlayerID:      m.Copy2PlayerID,
		PhrasesetProgress:  entities.PhrasesetProgress(m.PhrasesetProgress),
		Flagged:            m.Flagged,
		PromptRoundID:      m.PromptRoundID,
		OriginalPhrase:     m.OriginalPhrase,
		CopyPhrase:         m.CopyPhrase,
		PhrasesetID:        m.PhrasesetID,
		CreatedAt:          m.CreatedAt.UTC(),
		ExpiresAt:          m.ExpiresAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
}

type phrasesetModel struct {
	ID                string    `gorm:"column:id;primaryKey"`
	PromptRoundID     string    `gorm:"column:prompt_round_id;uniqueIndex"`
	CopyRound1ID      string    `gorm:"column:copy_round1_id"`
	CopyRound2ID      string    `gorm:"column:copy_round2_id"`
	PromptText        string    `gorm:"column:prompt_text"`
	OriginalPhrase    string    `gorm:"column:original_phrase"`
	Copy1Phrase       string    `gorm:"column:copy1_phrase"`
	Copy2Phrase       string    `gorm:"column:copy2_phrase"`
	Status            string    `gorm:"column:status"`
	VoteCount         int       `gorm:"column:vote_count"`
	TotalPool         int64     `gorm:"column:total_pool"`
	ContributionTotal int64     `gorm:"column:contribution_total"`
	PayoutTotal       int64     `gorm:"column:payout_total"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (phrasesetModel) TableName() string {
	return "phrasesets"
}

func phrasesetModelFromEntity(set entities.Phraseset) phrasesetModel {
	row := phrasesetModel{
		ID:                strings.TrimSpace(set.PhrasesetID),
		PromptRoundID:     strings.TrimSpace(set.PromptRoundID),
		CopyRound1ID:      strings.TrimSpace(set.CopyRound1ID),
		CopyRound2ID:      strings.TrimSpace(set.CopyRound2ID),
		PromptText:        set.PromptText,
		OriginalPhrase:    set.OriginalPhrase,
		Copy1Phrase:       set.Copy1Phrase,
		Copy2Phrase:       set.Copy2Phrase,
		Status:            string(set.Status),
		VoteCount:         set.VoteCount,
		TotalPool:         set.TotalPool,
		ContributionTotal: set.ContributionTotal,
		PayoutTotal:       set.PayoutTotal,
		CreatedAt:         set.CreatedAt.UTC(),
		UpdatedAt:         set.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m phrasesetModel) toEntity() entities.Phraseset {
	return entities.Phraseset{
		PhrasesetID:       m.ID,
		PromptRoundID:     m.PromptRoundID,
		CopyRound1ID:      m.CopyRound1ID,
		CopyRound2ID:      m.CopyRound2ID,
		PromptText:        m.PromptText,
		OriginalPhrase:    m.OriginalPhrase,
		Copy1Phrase:       m.Copy1Phrase,
		Copy2Phrase:       m.Copy2Phrase,
		Status:            entities.PhrasesetStatus(m.Status),
		VoteCount:         m.VoteCount,
		TotalPool:         m.TotalPool,
		ContributionTotal: m.ContributionTotal,
		PayoutTotal:       m.PayoutTotal,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

type playerModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Balance       int64     `gorm:"column:balance"`
	ActiveRoundID string    `gorm:"column:active_round_id"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (playerModel) TableName() string {
	return "players"
}

func (m playerModel) toEntity() entities.Player {
	return entities.Player{
		PlayerID:      m.ID,
		Balance:       m.Balance,
		ActiveRoundID: m.ActiveRoundID,
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

type promptModel struct {
	ID     string `gorm:"column:id;primaryKey"`
	Text   string `gorm:"column:text"`
	Active bool   `gorm:"column:active"`
}

func (promptModel) TableName() string {
	return "prompts"
}

func (m promptModel) toEntity() entities.Prompt {
	return entities.Prompt{
		PromptID: m.ID,
		Text:     m.Text,
		Active:   m.Active,
	}
}

type cooldownModel struct {
	PlayerID      string    `gorm:"column:player_id;primaryKey"`
	PromptRoundID string    `gorm:"column:prompt_round_id;primaryKey"`
	AbandonedAt   time.Time `gorm:"column:abandoned_at"`
}

func (cooldownModel) TableName() string {
	return "abandonment_cooldowns"
}

type transactionModel struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement"`
	PlayerID    string         `gorm:"column:player_id"`
	Amount      int64          `gorm:"column:amount"`
	Type        string         `gorm:"column:type"`
	ReferenceID string         `gorm:"column:reference_id"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
}

func (transactionModel) TableName() string {
	return "wallet_transactions"
}

type outboxModel struct {
	OutboxID    string         `gorm:"column:outbox_id;primaryKey"`
	EventType   string         `gorm:"column:event_type"`
	Payload     datatypes.JSON `gorm:"column:payload"`
	Status      string         `gorm:"column:status"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	PublishedAt *time.Time     `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "round_outbox"
}

func toRoundEntities(rows []roundModel) []entities.Round {
	items := make([]entities.Round, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.RoundRepository = (*Repository)(nil)
var _ ports.PhrasesetRepository = (*Repository)(nil)
var _ ports.PlayerRepository = (*Repository)(nil)
var _ ports.PromptCatalog = (*Repository)(nil)
var _ ports.CooldownStore = (*Repository)(nil)
var _ ports.TransactionService = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
