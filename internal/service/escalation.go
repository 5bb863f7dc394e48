package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"CareLink/internal/model"
	"CareLink/internal/repository"
	pkgerrors "CareLink/pkg/errors"
)

// EscalationService 为新触发的告警开启升级
type EscalationService struct {
	alerts          *repository.AlertRepository
	escalations     *repository.EscalationRepository
	recipients      *repository.RecipientRepository
	defaultInterval time.Duration
	log             *zap.Logger
}

func NewEscalationService(db *gorm.DB, defaultInterval time.Duration, log *zap.Logger) *EscalationService {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultInterval <= 0 {
		defaultInterval = model.DefaultEscalationMinutes * time.Minute
	}
	return &EscalationService{
		alerts:          repository.NewAlertRepository(db),
		escalations:     repository.NewEscalationRepository(db),
		recipients:      repository.NewRecipientRepository(db),
		defaultInterval: defaultInterval,
		log:             log,
	}
}

// Open 创建 level 0 记录，next_escalation_at = triggered_at + 家庭间隔
// 无效或已确认的告警返回 SkipMessageError；已有未解决记录，或读取后告警被确认时 created = false
func (s *EscalationService) Open(ctx context.Context, msg model.AlertTriggeredMessage) (created bool, err error) {
	alertID, err := uuid.Parse(msg.AlertID)
	if err != nil {
		return false, &pkgerrors.SkipMessageError{Reason: fmt.Sprintf("invalid alert_id %q", msg.AlertID)}
	}

	alert, err := s.alerts.Get(ctx, alertID)
	if err != nil {
		if pkgerrors.IsDefinition(err, pkgerrors.AlertNotFound) {
			return false, &pkgerrors.SkipMessageError{Reason: err.Error()}
		}
		return false, err
	}
	if err := alert.Validate(); err != nil {
		return false, &pkgerrors.SkipMessageError{Reason: err.Error()}
	}
	if alert.Acknowledged {
		return false, &pkgerrors.SkipMessageError{Reason: "alert already acknowledged"}
	}

	if msg.HouseholdID != "" && msg.HouseholdID != alert.HouseholdID.String() {
		s.log.Warn("Alert message household mismatch, using stored household",
			zap.String("alert_id", msg.AlertID),
			zap.String("message_household_id", msg.HouseholdID),
			zap.String("household_id", alert.HouseholdID.String()),
		)
	}

	interval, err := s.recipients.Interval(ctx, alert.HouseholdID)
	if err != nil {
		return false, err
	}
	if interval <= 0 {
		interval = s.defaultInterval
	}

	esc := &model.Escalation{
		AlertID:          alert.ID,
		HouseholdID:      alert.HouseholdID,
		EscalationLevel:  0,
		EscalatedAt:      alert.TriggeredAt,
		NextEscalationAt: alert.TriggeredAt.Add(interval),
	}

	created, err = s.escalations.Open(ctx, esc)
	if err != nil {
		return false, err
	}

	if created {
		s.log.Info("Escalation opened",
			zap.String("escalation_id", esc.ID.String()),
			zap.String("alert_id", alert.ID.String()),
			zap.Time("next_escalation_at", esc.NextEscalationAt),
		)
	} else {
		s.log.Info("Escalation not opened, alert already escalating or acknowledged", zap.String("alert_id", alert.ID.String()))
	}

	return created, nil
}
