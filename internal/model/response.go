package model

import "time"

// EscalationRunResponse 触发接口的响应；三种形态互斥，用 omitempty 控制输出字段
type EscalationRunResponse struct {
	Message              string `json:"message,omitempty"`
	Success              bool   `json:"success,omitempty"`
	EscalationsProcessed *int   `json:"escalations_processed,omitempty"`
	Error                string `json:"error,omitempty"`
}

// AcknowledgeAlertRequest 确认告警请求
type AcknowledgeAlertRequest struct {
	CaregiverID string `json:"caregiver_id"`
}

// AcknowledgeAlertResponse 确认告警响应
type AcknowledgeAlertResponse struct {
	AlertID             string    `json:"alert_id"`
	AcknowledgedBy      string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt      time.Time `json:"acknowledged_at"`
	EscalationsResolved int       `json:"escalations_resolved"`
	AlreadyAcknowledged bool      `json:"already_acknowledged"`
}
