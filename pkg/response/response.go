package response

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"CareLink/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

var statusByCode = map[string]int{
	errors.InvalidRequest.Code:      http.StatusBadRequest,
	errors.InvalidAlertID.Code:      http.StatusBadRequest,
	errors.TooManyRequests.Code:     http.StatusTooManyRequests,
	errors.AlertNotFound.Code:       http.StatusNotFound,
	errors.EscalationRunBusy.Code:   http.StatusConflict,
	errors.DispatchCircuitOpen.Code: http.StatusServiceUnavailable,
}

// StatusOf 未登记的业务错误与普通 error 一律 500
func StatusOf(err error) int {
	var def errors.Definition
	if !stderrors.As(err, &def) {
		return http.StatusInternalServerError
	}
	if status, ok := statusByCode[def.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func detailOf(err error) ErrorDetail {
	var def errors.Definition
	if stderrors.As(err, &def) {
		return ErrorDetail{Code: def.Code, Message: def.Message}
	}
	return ErrorDetail{Code: "INTERNAL_ERROR", Message: err.Error()}
}

func Error(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(StatusOf(err), ErrorResponse{Error: detailOf(err)})
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	detail := detailOf(err)
	detail.Details = details
	c.JSON(StatusOf(err), ErrorResponse{Error: detail})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}
