package postgresadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Queue is the durable FIFO backing matchmaking. Pops run under
// FOR UPDATE SKIP LOCKED so concurrent workers never draw the same entry.
type Queue struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewQueue(db *gorm.DB, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{db: db, logger: logger}
}

func (q *Queue) Push(ctx context.Context, queue string, itemID string) error {
	row := queueEntryModel{
		Queue:     strings.TrimSpace(queue),
		ItemID:    strings.TrimSpace(itemID),
		CreatedAt: time.Now().UTC(),
	}
	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		return q.logError("round_queue_push_failed", err, "queue", row.Queue, "item_id", row.ItemID)
	}
	return nil
}

func (q *Queue) Pop(ctx context.Context, queue string) (string, bool, error) {
	batch, err := q.PopBatch(ctx, queue, 1)
	if err != nil {
		return "", false, err
	}
	if len(batch) == 0 {
		return "", false, nil
	}
	return batch[0], true, nil
}

func (q *Queue) PopBatch(ctx context.Context, queue string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var items []string
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []queueEntryModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("queue = ?", strings.TrimSpace(queue)).
			Order("position ASC").
			Limit(n).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		positions := make([]int64, 0, len(rows))
		for _, row := range rows {
			positions = append(positions, row.Position)
			items = append(items, row.ItemID)
		}
		return tx.Where("position IN ?", positions).Delete(&queueEntryModel{}).Error
	})
	if err != nil {
		return nil, q.logError("round_queue_pop_batch_failed", err, "queue", strings.TrimSpace(queue), "batch", n)
	}
	return items, nil
}

// Remove deletes the oldest matching entry; absent items are ignored.
func (q *Queue) Remove(ctx context.Context, queue string, itemID string) error {
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row queueEntryModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("queue = ?", strings.TrimSpace(queue)).
			Where("item_id = ?", strings.TrimSpace(itemID)).
			Order("position ASC").
			Limit(1).
			Find(&row).Error; err != nil {
			return err
		}
		if row.Position == 0 {
			return nil
		}
		return tx.Where("position = ?", row.Position).Delete(&queueEntryModel{}).Error
	})
	if err != nil {
		return q.logError("round_queue_remove_failed", err,
			"queue", strings.TrimSpace(queue),
			"item_id", strings.TrimSpace(itemID),
		)
	}
	return nil
}

func (q *Queue) Length(ctx context.Context, queue string) (int, error) {
	var count int64
	if err := q.db.WithContext(ctx).
		Model(&queueEntryModel{}).
		Where("queue = ?", strings.TrimSpace(queue)).
		Count(&count).Error; err != nil {
		return 0, q.logError("round_queue_length_failed", err, "queue", strings.TrimSpace(queue))
	}
	return int(count), nil
}

func (q *Queue) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "gameplay/round-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	q.logger.Error("round queue operation failed", fields...)
	return err
}

type queueEntryModel struct {
	Position  int64     `gorm:"column:position;primaryKey;autoIncrement"`
	Queue     string    `gorm:"column:queue;index:idx_queue_entries_queue"`
	ItemID    string    `gorm:"column:item_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (queueEntryModel) TableName() string {
	return "queue_entries"
}
