package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultEscalationMinutes 家庭未配置时的升级间隔
const DefaultEscalationMinutes = 5

// Household 家庭，升级引擎只读
type Household struct {
	BaseModel
	Name              string `gorm:"type:varchar(128);not null;default:''" json:"name"`
	EscalationMinutes int    `gorm:"type:smallint;not null;default:5" json:"escalation_minutes"`
}

// TableName 指定表名
func (Household) TableName() string {
	return "households"
}

// EscalationInterval 非正数的配置按默认 5 分钟处理
func (h *Household) EscalationInterval() time.Duration {
	if h == nil || h.EscalationMinutes <= 0 {
		return DefaultEscalationMinutes * time.Minute
	}
	return time.Duration(h.EscalationMinutes) * time.Minute
}

// Patient 被照护者，一个家庭一位
type Patient struct {
	BaseModel
	HouseholdID       uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex" json:"household_id"`
	Name              string            `gorm:"type:varchar(128);not null" json:"name"`
	EmergencyContacts EmergencyContacts `gorm:"type:jsonb;not null;default:'[]'" json:"emergency_contacts"`
}

// TableName 指定表名
func (Patient) TableName() string {
	return "patients"
}

// Caregiver 家庭成员 / 照护者
type Caregiver struct {
	BaseModel
	HouseholdID             uuid.UUID               `gorm:"type:uuid;not null;index:idx_caregivers_household" json:"household_id"`
	Name                    string                  `gorm:"type:varchar(128);not null" json:"name"`
	Email                   *string                 `gorm:"type:varchar(255)" json:"email,omitempty"`
	DeviceTokens            StringList              `gorm:"type:jsonb;not null;default:'[]'" json:"device_tokens"`
	NotificationPreferences NotificationPreferences `gorm:"type:jsonb;not null;default:'{}'" json:"notification_preferences"`
}

// TableName 指定表名
func (Caregiver) TableName() string {
	return "caregivers"
}

// EmailAddress 去掉空白后的邮箱，没有则返回空串
func (c *Caregiver) EmailAddress() string {
	if c.Email == nil {
		return ""
	}
	return strings.TrimSpace(*c.Email)
}

// PushTokens 过滤掉空 token
func (c *Caregiver) PushTokens() []string {
	tokens := make([]string, 0, len(c.DeviceTokens))
	for _, t := range c.DeviceTokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// NotificationPreferences 偏好字段缺失视为开启
type NotificationPreferences struct {
	SafetyAlerts       *bool `json:"safety_alerts,omitempty"`
	EmailNotifications *bool `json:"email_notifications,omitempty"`
}

// AllowsPush 安全告警推送开关
func (p NotificationPreferences) AllowsPush() bool {
	return p.SafetyAlerts == nil || *p.SafetyAlerts
}

// AllowsEmail 需要同时开启安全告警和邮件通知
func (p NotificationPreferences) AllowsEmail() bool {
	return p.AllowsPush() && (p.EmailNotifications == nil || *p.EmailNotifications)
}

func (p NotificationPreferences) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *NotificationPreferences) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// EmergencyContacts 紧急联系人数组（存储在 patients.emergency_contacts JSONB 中）
type EmergencyContacts []EmergencyContact

// EmergencyContact 紧急联系人
type EmergencyContact struct {
	Name         string  `json:"name"`
	Phone        string  `json:"phone"`
	Relationship string  `json:"relationship"`
	Email        *string `json:"email,omitempty"`
}

// HasEmail 没有邮箱的联系人在 level 1 会被跳过
func (c EmergencyContact) HasEmail() bool {
	return c.EmailAddress() != ""
}

func (c EmergencyContact) EmailAddress() string {
	if c.Email == nil {
		return ""
	}
	return strings.TrimSpace(*c.Email)
}

func (c EmergencyContacts) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

func (c *EmergencyContacts) Scan(value interface{}) error {
	return scanJSON(value, c)
}

// StringList jsonb 字符串数组
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *StringList) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// pgx 对 jsonb 可能返回 []byte 也可能返回 string
func scanJSON(value interface{}, dest interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal JSONB value of type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
