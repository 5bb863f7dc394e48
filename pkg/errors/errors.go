package errors

import stderrors "errors"

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 请求相关错误。
var (
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	InvalidAlertID  = Definition{Code: "INVALID_ALERT_ID", Message: "Invalid alert ID format"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests, please retry later"}
)

// 告警模块错误。
var (
	AlertNotFound = Definition{Code: "ALERT_NOT_FOUND", Message: "Alert not found"}
	AlertInvalid  = Definition{Code: "ALERT_INVALID", Message: "Alert record failed validation"}
)

// 升级模块错误。
var (
	EscalationInvalid    = Definition{Code: "ESCALATION_INVALID", Message: "Escalation record failed validation"}
	EscalationStale      = Definition{Code: "ESCALATION_STALE", Message: "Escalation was resolved or advanced concurrently"}
	EscalationRunBusy    = Definition{Code: "ESCALATION_RUN_IN_PROGRESS", Message: "Escalation run already in progress"}
	DispatcherNotReady   = Definition{Code: "DISPATCHER_NOT_READY", Message: "Notification dispatcher is not configured"}
	DispatchCircuitOpen  = Definition{Code: "DISPATCH_CIRCUIT_OPEN", Message: "Notification gateway circuit is open"}
	DispatchGatewayError = Definition{Code: "DISPATCH_GATEWAY_ERROR", Message: "Notification gateway returned an error"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:       InvalidRequest,
	InvalidAlertID.Code:       InvalidAlertID,
	TooManyRequests.Code:      TooManyRequests,
	AlertNotFound.Code:        AlertNotFound,
	AlertInvalid.Code:         AlertInvalid,
	EscalationInvalid.Code:    EscalationInvalid,
	EscalationStale.Code:      EscalationStale,
	EscalationRunBusy.Code:    EscalationRunBusy,
	DispatcherNotReady.Code:   DispatcherNotReady,
	DispatchCircuitOpen.Code:  DispatchCircuitOpen,
	DispatchGatewayError.Code: DispatchGatewayError,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// IsDefinition 判断 err 链上是否存在指定的业务错误
func IsDefinition(err error, def Definition) bool {
	var d Definition
	if stderrors.As(err, &d) {
		return d.Code == def.Code
	}
	return false
}

// SkipMessageError 表示消息应被确认但不做处理（重复投递、已处理等）
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

func IsSkipMessageError(err error) bool {
	var skip *SkipMessageError
	return stderrors.As(err, &skip)
}
