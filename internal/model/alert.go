package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertType 安全告警类型
type AlertType string

const (
	AlertTypeLeftSafeZone     AlertType = "left_safe_zone"
	AlertTypeInactive         AlertType = "inactive"
	AlertTypeNightMovement    AlertType = "night_movement"
	AlertTypeTakeMeHomeTapped AlertType = "take_me_home_tapped"
	AlertTypeSOSTriggered     AlertType = "sos_triggered"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeLeftSafeZone, AlertTypeInactive, AlertTypeNightMovement,
		AlertTypeTakeMeHomeTapped, AlertTypeSOSTriggered:
		return true
	}
	return false
}

// Alert 监测子系统写入的告警事实，只有确认动作会修改它
type Alert struct {
	BaseModel
	HouseholdID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_alerts_household" json:"household_id"`
	Type           AlertType  `gorm:"type:varchar(32);not null" json:"type"`
	TriggeredAt    time.Time  `gorm:"type:timestamptz;not null" json:"triggered_at"`
	Latitude       *float64   `gorm:"type:double precision" json:"latitude,omitempty"`
	Longitude      *float64   `gorm:"type:double precision" json:"longitude,omitempty"`
	LocationLabel  *string    `gorm:"type:varchar(255)" json:"location_label,omitempty"`
	Acknowledged   bool       `gorm:"not null;default:false" json:"acknowledged"`
	AcknowledgedBy *uuid.UUID `gorm:"type:uuid" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `gorm:"type:timestamptz" json:"acknowledged_at,omitempty"`
}

// TableName 指定表名
func (Alert) TableName() string {
	return "alerts"
}

// HasCoordinates 经纬度都存在才生成地图链接
func (a *Alert) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// Validate 在使用存储层返回的记录之前做边界校验
func (a *Alert) Validate() error {
	if a == nil {
		return fmt.Errorf("alert is nil")
	}
	if a.ID == uuid.Nil {
		return fmt.Errorf("alert id is empty")
	}
	if a.HouseholdID == uuid.Nil {
		return fmt.Errorf("alert %s has no household", a.ID)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("alert %s has unknown type %q", a.ID, a.Type)
	}
	if a.TriggeredAt.IsZero() {
		return fmt.Errorf("alert %s has no triggered_at", a.ID)
	}
	if a.Latitude != nil && (*a.Latitude < -90 || *a.Latitude > 90) {
		return fmt.Errorf("alert %s latitude out of range", a.ID)
	}
	if a.Longitude != nil && (*a.Longitude < -180 || *a.Longitude > 180) {
		return fmt.Errorf("alert %s longitude out of range", a.ID)
	}
	return nil
}
