package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"

	"CareLink/internal/model"
	"CareLink/pkg/errors"
	"CareLink/pkg/response"
)

// Acknowledger 由 service.AlertService 实现
type Acknowledger interface {
	Acknowledge(ctx context.Context, alertID, caregiverID uuid.UUID) (*model.AcknowledgeAlertResponse, error)
}

type AlertHandler struct {
	alerts Acknowledger
}

func NewAlertHandler(alerts Acknowledger) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// AcknowledgeAlert 照护者确认告警，同时结束未解决的升级
// POST /v1/alerts/:alert_id/acknowledge
func (h *AlertHandler) AcknowledgeAlert(ctx context.Context, c *app.RequestContext) {
	alertID, err := uuid.Parse(c.Param("alert_id"))
	if err != nil {
		response.Error(ctx, c, errors.InvalidAlertID)
		return
	}

	var req model.AcknowledgeAlertRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	caregiverID, err := uuid.Parse(req.CaregiverID)
	if err != nil {
		response.ErrorWithDetails(ctx, c, errors.InvalidRequest, map[string]interface{}{
			"caregiver_id": "must be a UUID",
		})
		return
	}

	resp, err := h.alerts.Acknowledge(ctx, alertID, caregiverID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, resp)
}
