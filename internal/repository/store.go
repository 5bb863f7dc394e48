package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"CareLink/internal/model"
)

// EngineStore 组合升级与告警两张表，供升级引擎使用
type EngineStore struct {
	*EscalationRepository
	alerts *AlertRepository
}

func NewEngineStore(db *gorm.DB) *EngineStore {
	return &EngineStore{
		EscalationRepository: NewEscalationRepository(db),
		alerts:               NewAlertRepository(db),
	}
}

func (s *EngineStore) GetAlert(ctx context.Context, alertID uuid.UUID) (*model.Alert, error) {
	return s.alerts.Get(ctx, alertID)
}
