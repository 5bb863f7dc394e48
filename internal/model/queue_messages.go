package model

// AlertTriggeredMessage 监测子系统发布的告警事件，worker 据此开启升级
type AlertTriggeredMessage struct {
	MessageID   string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	AlertID     string `json:"alert_id"`
	HouseholdID string `json:"household_id"`
	TriggeredAt string `json:"triggered_at"` // RFC3339
}

// EscalationAdvancedEvent 每次推进 level 后发布，供监控 / 下游消费
type EscalationAdvancedEvent struct {
	MessageID        string `json:"message_id"`
	EscalationID     string `json:"escalation_id"`
	AlertID          string `json:"alert_id"`
	HouseholdID      string `json:"household_id"`
	FromLevel        int    `json:"from_level"`
	ToLevel          int    `json:"to_level"`
	Delivered        int    `json:"delivered"`
	Skipped          int    `json:"skipped"`
	Failed           int    `json:"failed"`
	NextEscalationAt string `json:"next_escalation_at"`
	OccurredAt       string `json:"occurred_at"`
}
