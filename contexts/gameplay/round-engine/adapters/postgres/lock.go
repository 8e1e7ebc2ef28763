package postgresadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

const (
	leaseTTL      = 30 * time.Second
	leasePollStep = 50 * time.Millisecond
)

// LockManager implements keyed advisory locks as short-lived lease rows, so
// the critical sections hold across processes. A crashed holder's lease
// expires after leaseTTL and the next acquirer takes it over.
type LockManager struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewLockManager(db *gorm.DB, logger *slog.Logger) *LockManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &LockManager{db: db, logger: logger}
}

func (m *LockManager) Acquire(ctx context.Context, key string, timeout time.Duration) (ports.LockGuard, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	key = strings.TrimSpace(key)
	owner := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		acquired, err := m.tryAcquire(ctx, key, owner)
		if err != nil {
			m.logger.Error("lock acquisition errored",
				"event", "round_lock_acquire_failed",
				"module", "gameplay/round-engine",
				"layer", "adapter",
				"lock_key", key,
				"error", err.Error(),
			)
			return nil, err
		}
		if acquired {
			return &leaseGuard{manager: m, key: key, owner: owner}, nil
		}
		if time.Now().After(deadline) {
			return nil, domainerrors.ErrLockTimeout
		}
		timer := time.NewTimer(leasePollStep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire inserts the lease, or takes over an existing row only when its
// previous lease already expired.
func (m *LockManager) tryAcquire(ctx context.Context, key string, owner string) (bool, error) {
	now := time.Now().UTC()
	row := leaseModel{
		Key:       key,
		Owner:     owner,
		ExpiresAt: now.Add(leaseTTL),
	}
	result := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"owner":      row.Owner,
			"expires_at": row.ExpiresAt,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("advisory_leases.expires_at < ?", now),
		}},
	}).Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

type leaseGuard struct {
	manager *LockManager
	key     string
	owner   string
}

// Release deletes the lease only while this guard still owns it, so a
// late release after a takeover cannot free somebody else's lock.
func (g *leaseGuard) Release() {
	err := g.manager.db.
		Where("key = ?", g.key).
		Where("owner = ?", g.owner).
		Delete(&leaseModel{}).Error
	if err != nil {
		g.manager.logger.Error("lock release failed",
			"event", "round_lock_release_failed",
			"module", "gameplay/round-engine",
			"layer", "adapter",
			"lock_key", g.key,
			"error", err.Error(),
		)
	}
}

type leaseModel struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Owner     string    `gorm:"column:owner"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (leaseModel) TableName() string {
	return "advisory_leases"
}
