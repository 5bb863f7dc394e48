package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CareLink/internal/escalation"
	"CareLink/internal/model"
	pkgerrors "CareLink/pkg/errors"
)

type fakeRunner struct {
	result escalation.RunResult
	err    error
}

func (f *fakeRunner) Run(context.Context) (escalation.RunResult, error) {
	return f.result, f.err
}

type fakeAcknowledger struct {
	resp *model.AcknowledgeAlertResponse
	err  error

	gotAlert, gotCaregiver uuid.UUID
}

func (f *fakeAcknowledger) Acknowledge(_ context.Context, alertID, caregiverID uuid.UUID) (*model.AcknowledgeAlertResponse, error) {
	f.gotAlert, f.gotCaregiver = alertID, caregiverID
	return f.resp, f.err
}

func newEngine() *route.Engine {
	return route.NewEngine(config.NewOptions([]config.Option{}))
}

func decode(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func runTrigger(t *testing.T, runner Runner) (int, map[string]interface{}) {
	t.Helper()

	r := newEngine()
	r.POST("/functions/v1/escalate-alerts", NewEscalationHandler(runner, time.Second, nil).EscalateAlerts)

	w := ut.PerformRequest(r, http.MethodPost, "/functions/v1/escalate-alerts", nil)
	resp := w.Result()
	return resp.StatusCode(), decode(t, resp.Body())
}

func TestEscalateAlertsNothingDue(t *testing.T) {
	status, body := runTrigger(t, &fakeRunner{})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"message": "No escalations to process"}, body)
}

func TestEscalateAlertsReportsAttemptedCount(t *testing.T) {
	status, body := runTrigger(t, &fakeRunner{result: escalation.RunResult{Due: 3, Processed: 3, Advanced: 2, Errored: 1}})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"success": true, "escalations_processed": float64(3)}, body)
}

func TestEscalateAlertsFatalError(t *testing.T) {
	status, body := runTrigger(t, &fakeRunner{err: fmt.Errorf("email client: %w", escalation.ErrDispatcherNotReady)})

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Len(t, body, 1)
	assert.Contains(t, body["error"], "not configured")
}

func TestEscalateAlertsOverlappingRun(t *testing.T) {
	status, body := runTrigger(t, &fakeRunner{err: escalation.ErrRunInProgress})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Escalation run already in progress", body["message"])
}

func TestAcknowledgeAlert(t *testing.T) {
	alertID, caregiverID := uuid.New(), uuid.New()
	ack := &fakeAcknowledger{resp: &model.AcknowledgeAlertResponse{
		AlertID:             alertID.String(),
		AcknowledgedBy:      caregiverID.String(),
		EscalationsResolved: 1,
	}}

	r := newEngine()
	r.POST("/v1/alerts/:alert_id/acknowledge", NewAlertHandler(ack).AcknowledgeAlert)

	payload := []byte(`{"caregiver_id":"` + caregiverID.String() + `"}`)
	w := ut.PerformRequest(r, http.MethodPost, "/v1/alerts/"+alertID.String()+"/acknowledge",
		&ut.Body{Body: bytes.NewReader(payload), Len: len(payload)},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
	resp := w.Result()

	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, alertID, ack.gotAlert)
	assert.Equal(t, caregiverID, ack.gotCaregiver)

	data, ok := decode(t, resp.Body())["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["escalations_resolved"])
}

func TestAcknowledgeAlertErrors(t *testing.T) {
	validBody := []byte(`{"caregiver_id":"` + uuid.NewString() + `"}`)

	tests := []struct {
		name   string
		path   string
		body   []byte
		err    error
		status int
		code   string
	}{
		{"bad alert id", "/v1/alerts/not-a-uuid/acknowledge", validBody, nil, http.StatusBadRequest, pkgerrors.InvalidAlertID.Code},
		{"bad caregiver id", "/v1/alerts/" + uuid.NewString() + "/acknowledge", []byte(`{"caregiver_id":"x"}`), nil, http.StatusBadRequest, pkgerrors.InvalidRequest.Code},
		{"unknown alert", "/v1/alerts/" + uuid.NewString() + "/acknowledge", validBody, fmt.Errorf("get alert: %w", pkgerrors.AlertNotFound), http.StatusNotFound, pkgerrors.AlertNotFound.Code},
		{"store failure", "/v1/alerts/" + uuid.NewString() + "/acknowledge", validBody, errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine()
			r.POST("/v1/alerts/:alert_id/acknowledge", NewAlertHandler(&fakeAcknowledger{err: tt.err}).AcknowledgeAlert)

			w := ut.PerformRequest(r, http.MethodPost, tt.path,
				&ut.Body{Body: bytes.NewReader(tt.body), Len: len(tt.body)},
				ut.Header{Key: "Content-Type", Value: "application/json"},
			)
			resp := w.Result()

			assert.Equal(t, tt.status, resp.StatusCode())
			errBody, ok := decode(t, resp.Body())["error"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, tt.code, errBody["code"])
		})
	}
}

func TestHealth(t *testing.T) {
	r := newEngine()
	r.GET("/health", Health)

	resp := ut.PerformRequest(r, http.MethodGet, "/health", nil).Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, map[string]interface{}{"status": "ok"}, decode(t, resp.Body()))
}
