package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"CareLink/internal/model"
	pkgerrors "CareLink/pkg/errors"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) WithTx(tx *gorm.DB) *AlertRepository {
	return &AlertRepository{db: tx}
}

// Get 不存在时返回 errors.AlertNotFound
func (r *AlertRepository) Get(ctx context.Context, alertID uuid.UUID) (*model.Alert, error) {
	return r.get(r.db.WithContext(ctx), alertID)
}

// GetForUpdate 在事务中锁定告警行，串行化并发确认
func (r *AlertRepository) GetForUpdate(ctx context.Context, alertID uuid.UUID) (*model.Alert, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), alertID)
}

func (r *AlertRepository) get(db *gorm.DB, alertID uuid.UUID) (*model.Alert, error) {
	var alert model.Alert
	if err := db.Where("id = ?", alertID).First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("alert %s: %w", alertID, pkgerrors.AlertNotFound)
		}
		return nil, fmt.Errorf("failed to query alert %s: %w", alertID, err)
	}
	return &alert, nil
}

// Acknowledge 仅在尚未确认时写入，返回是否发生了更新
func (r *AlertRepository) Acknowledge(ctx context.Context, alertID, caregiverID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("id = ? AND acknowledged = ?", alertID, false).
		Updates(map[string]interface{}{
			"acknowledged":    true,
			"acknowledged_by": caregiverID,
			"acknowledged_at": at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to acknowledge alert %s: %w", alertID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
