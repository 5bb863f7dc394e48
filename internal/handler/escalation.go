package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"CareLink/internal/escalation"
	"CareLink/internal/model"
)

const msgNoEscalations = "No escalations to process"

// Runner 由 escalation.Engine 实现
type Runner interface {
	Run(ctx context.Context) (escalation.RunResult, error)
}

type EscalationHandler struct {
	runner  Runner
	timeout time.Duration
	log     *zap.Logger
}

func NewEscalationHandler(runner Runner, timeout time.Duration, log *zap.Logger) *EscalationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EscalationHandler{runner: runner, timeout: timeout, log: log}
}

// EscalateAlerts 执行一轮升级扫描，请求体忽略
// POST /functions/v1/escalate-alerts
func (h *EscalationHandler) EscalateAlerts(ctx context.Context, c *app.RequestContext) {
	runCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.runner.Run(runCtx)
	if err != nil {
		// 调度重叠不算失败，cron 下次再来
		if errors.Is(err, escalation.ErrRunInProgress) {
			c.JSON(http.StatusOK, model.EscalationRunResponse{Message: escalation.ErrRunInProgress.Message})
			return
		}

		h.log.Error("Escalation run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.EscalationRunResponse{Error: err.Error()})
		return
	}

	if result.Due == 0 {
		c.JSON(http.StatusOK, model.EscalationRunResponse{Message: msgNoEscalations})
		return
	}

	processed := result.Processed
	c.JSON(http.StatusOK, model.EscalationRunResponse{
		Success:              true,
		EscalationsProcessed: &processed,
	})
}
