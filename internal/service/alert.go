package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"CareLink/internal/model"
	"CareLink/internal/repository"
)

// AlertService 照护者确认告警：标记告警已确认，并解决其未结束的升级
type AlertService struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewAlertService(db *gorm.DB, log *zap.Logger) *AlertService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AlertService{db: db, log: log, now: time.Now}
}

// Acknowledge 幂等；重复确认返回首次确认的信息，并顺带解决遗留的未解决升级
func (s *AlertService) Acknowledge(ctx context.Context, alertID, caregiverID uuid.UUID) (*model.AcknowledgeAlertResponse, error) {
	resp := &model.AcknowledgeAlertResponse{AlertID: alertID.String()}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alerts := repository.NewAlertRepository(tx)
		escalations := repository.NewEscalationRepository(tx)

		alert, err := alerts.GetForUpdate(ctx, alertID)
		if err != nil {
			return err
		}

		now := s.now()
		if alert.Acknowledged {
			resp.AlreadyAcknowledged = true
			resp.AcknowledgedAt = now
			if alert.AcknowledgedAt != nil {
				resp.AcknowledgedAt = *alert.AcknowledgedAt
			}
			if alert.AcknowledgedBy != nil {
				resp.AcknowledgedBy = alert.AcknowledgedBy.String()
			}
		} else {
			if _, err := alerts.Acknowledge(ctx, alertID, caregiverID, now); err != nil {
				return err
			}
			resp.AcknowledgedAt = now
			resp.AcknowledgedBy = caregiverID.String()
		}

		resolved, err := escalations.ResolveByAlert(ctx, alertID, now)
		if err != nil {
			return err
		}
		resp.EscalationsResolved = int(resolved)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Alert acknowledged",
		zap.String("alert_id", resp.AlertID),
		zap.String("acknowledged_by", resp.AcknowledgedBy),
		zap.Bool("already_acknowledged", resp.AlreadyAcknowledged),
		zap.Int("escalations_resolved", resp.EscalationsResolved),
	)

	return resp, nil
}
