package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"CareLink/internal/model"
	pkgerrors "CareLink/pkg/errors"
)

type EscalationRepository struct {
	db *gorm.DB
}

func NewEscalationRepository(db *gorm.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// WithTx 在事务中复用同一套查询
func (r *EscalationRepository) WithTx(tx *gorm.DB) *EscalationRepository {
	return &EscalationRepository{db: tx}
}

// ListDue resolved = false AND next_escalation_at < now，不分页，与 level 无关
func (r *EscalationRepository) ListDue(ctx context.Context, now time.Time) ([]model.Escalation, error) {
	var due []model.Escalation
	err := r.db.WithContext(ctx).
		Where("resolved = ? AND next_escalation_at < ?", false, now).
		Order("next_escalation_at ASC").
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due escalations: %w", err)
	}
	return due, nil
}

// Advance 乐观更新：只有记录仍未解决且 level 未被其他进程推进时才写入
func (r *EscalationRepository) Advance(ctx context.Context, adv model.Advance) error {
	res := r.db.WithContext(ctx).
		Model(&model.Escalation{}).
		Where("id = ? AND resolved = ? AND escalation_level = ?", adv.EscalationID, false, adv.FromLevel).
		Updates(map[string]interface{}{
			"escalation_level":   adv.ToLevel,
			"escalated_at":       adv.EscalatedAt,
			"next_escalation_at": adv.NextEscalationAt,
			"updated_at":         adv.EscalatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to advance escalation %s: %w", adv.EscalationID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("escalation %s: %w", adv.EscalationID, pkgerrors.EscalationStale)
	}
	return nil
}

// Open 为告警创建 level 0 的升级记录。插入与告警未确认的判断在同一条语句中完成，
// 与确认事务并发时不会在已确认的告警上留下未解决记录
// 告警已确认或已有未解决记录时返回 false
func (r *EscalationRepository) Open(ctx context.Context, esc *model.Escalation) (bool, error) {
	if esc.ID == uuid.Nil {
		esc.ID = uuid.New()
	}
	now := time.Now()

	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO escalations
			(id, alert_id, household_id, escalation_level, escalated_at, next_escalation_at, resolved, created_at, updated_at)
		SELECT ?, a.id, ?, ?, ?, ?, false, ?, ?
		FROM alerts a
		WHERE a.id = ? AND a.acknowledged = false
		ON CONFLICT DO NOTHING`,
		esc.ID, esc.HouseholdID, esc.EscalationLevel,
		esc.EscalatedAt, esc.NextEscalationAt, now, now,
		esc.AlertID,
	)
	if res.Error != nil {
		return false, fmt.Errorf("failed to open escalation for alert %s: %w", esc.AlertID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Resolve 守卫条件与 Advance 相同，0 行时返回 EscalationStale
func (r *EscalationRepository) Resolve(ctx context.Context, escalationID uuid.UUID, level int, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.Escalation{}).
		Where("id = ? AND resolved = ? AND escalation_level = ?", escalationID, false, level).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to resolve escalation %s: %w", escalationID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("escalation %s: %w", escalationID, pkgerrors.EscalationStale)
	}
	return nil
}

// ResolveByAlert 解决该告警下所有未解决的升级，返回影响行数
func (r *EscalationRepository) ResolveByAlert(ctx context.Context, alertID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Escalation{}).
		Where("alert_id = ? AND resolved = ?", alertID, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to resolve escalations for alert %s: %w", alertID, res.Error)
	}
	return res.RowsAffected, nil
}
