package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Escalation 一条未解决告警的升级跟踪记录
// 每个 alert 同一时间最多一条 resolved = false 的记录（部分唯一索引保证）
type Escalation struct {
	BaseModel
	AlertID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_escalations_active_alert,where:resolved = false" json:"alert_id"`
	HouseholdID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"household_id"`
	EscalationLevel  int        `gorm:"type:smallint;not null;default:0" json:"escalation_level"`
	EscalatedAt      time.Time  `gorm:"type:timestamptz;not null;default:now()" json:"escalated_at"`
	NextEscalationAt time.Time  `gorm:"type:timestamptz;not null;index:idx_escalations_due" json:"next_escalation_at"`
	Resolved         bool       `gorm:"not null;default:false;index:idx_escalations_due" json:"resolved"`
	ResolvedAt       *time.Time `gorm:"type:timestamptz" json:"resolved_at,omitempty"`
}

// TableName 指定表名
func (Escalation) TableName() string {
	return "escalations"
}

// IsDue 与选择器的查询条件一致：未解决且 next_escalation_at 早于 now
func (e *Escalation) IsDue(now time.Time) bool {
	return !e.Resolved && e.NextEscalationAt.Before(now)
}

// Validate 边界校验
func (e *Escalation) Validate() error {
	if e == nil {
		return fmt.Errorf("escalation is nil")
	}
	if e.ID == uuid.Nil {
		return fmt.Errorf("escalation id is empty")
	}
	if e.AlertID == uuid.Nil {
		return fmt.Errorf("escalation %s has no alert", e.ID)
	}
	if e.HouseholdID == uuid.Nil {
		return fmt.Errorf("escalation %s has no household", e.ID)
	}
	if e.EscalationLevel < 0 {
		return fmt.Errorf("escalation %s has negative level %d", e.ID, e.EscalationLevel)
	}
	return nil
}

// Advance 描述一次推进：level + 1，escalated_at = now，next = now + interval
type Advance struct {
	EscalationID     uuid.UUID
	FromLevel        int
	ToLevel          int
	EscalatedAt      time.Time
	NextEscalationAt time.Time
}

// NextAdvance 计算推进后的状态，interval 非正数时由调用方兜底
func (e *Escalation) NextAdvance(now time.Time, interval time.Duration) Advance {
	return Advance{
		EscalationID:     e.ID,
		FromLevel:        e.EscalationLevel,
		ToLevel:          e.EscalationLevel + 1,
		EscalatedAt:      now,
		NextEscalationAt: now.Add(interval),
	}
}
