package escalation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CareLink/internal/model"
)

func TestLadderClampsToLastHandler(t *testing.T) {
	ladder := DefaultLadder()

	assert.Equal(t, "caregivers", ladder.HandlerFor(0).Name)
	assert.Equal(t, "emergency_contacts", ladder.HandlerFor(1).Name)
	assert.Equal(t, "exhausted", ladder.HandlerFor(2).Name)
	assert.Equal(t, "exhausted", ladder.HandlerFor(250).Name)
	assert.Equal(t, "caregivers", ladder.HandlerFor(-1).Name)
}

func TestEmptyLadderIsExhausted(t *testing.T) {
	var ladder Ladder
	assert.Equal(t, "exhausted", ladder.HandlerFor(0).Name)
}

func levelContext(level int, rec *model.Recipients) LevelContext {
	return LevelContext{
		Escalation: &model.Escalation{
			BaseModel:       model.BaseModel{ID: uuid.New()},
			EscalationLevel: level,
		},
		Alert: &model.Alert{
			BaseModel:   model.BaseModel{ID: uuid.New()},
			Type:        model.AlertTypeSOSTriggered,
			TriggeredAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		},
		Recipients: rec,
	}
}

func TestCaregiverPlanIgnoresBlankTokens(t *testing.T) {
	rec := &model.Recipients{
		Caregivers: []model.Caregiver{{
			BaseModel:    model.BaseModel{ID: uuid.New()},
			DeviceTokens: model.StringList{"", "  ", "ExponentPushToken[x]"},
		}},
	}

	plan := planCaregivers(levelContext(0, rec))
	require.Len(t, plan.Push, 1)
	assert.Equal(t, "ExponentPushToken[x]", plan.Push[0].To)
	assert.Equal(t, "alerts", plan.Push[0].ChannelID)
	assert.Equal(t, "default", plan.Push[0].Sound)
}

func TestCaregiverPlanUsesFallbackName(t *testing.T) {
	rec := &model.Recipients{
		Caregivers: []model.Caregiver{{
			BaseModel: model.BaseModel{ID: uuid.New()},
			Email:     strPtr("sam@example.com"),
		}},
	}

	plan := planCaregivers(levelContext(0, rec))
	require.Len(t, plan.Emails, 1)
	assert.Equal(t, "URGENT: SOS alert for your loved one", plan.Emails[0].Subject)
}

func TestEmergencyPlanWithoutContacts(t *testing.T) {
	plan := planEmergencyContacts(levelContext(1, &model.Recipients{}))

	assert.True(t, plan.Empty())
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, Skipped, plan.Skipped[0].Kind)
}

func TestExhaustedPlanIsEmpty(t *testing.T) {
	plan := planExhausted(levelContext(5, &model.Recipients{}))
	assert.True(t, plan.Empty())
	assert.Empty(t, plan.Skipped)
}
