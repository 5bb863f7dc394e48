package escalation

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"CareLink/internal/model"
)

func contentAlert(alertType model.AlertType) *model.Alert {
	return &model.Alert{
		BaseModel:   model.BaseModel{ID: uuid.MustParse("7f1c1c4e-2b7a-4d0b-9a55-0d6f3e1b2c3d")},
		HouseholdID: uuid.New(),
		Type:        alertType,
		TriggeredAt: time.Date(2024, 6, 1, 8, 50, 0, 0, time.UTC),
	}
}

func TestFormatPushUrgencyByLevel(t *testing.T) {
	alert := contentAlert(model.AlertTypeSOSTriggered)

	level0 := FormatPush(alert, "Margaret", 0)
	level1 := FormatPush(alert, "Margaret", 1)

	assert.True(t, strings.HasPrefix(level0.Title, "URGENT"))
	assert.True(t, strings.HasPrefix(level1.Title, "CRITICAL"))
	assert.Contains(t, level0.Title, "SOS")
	assert.Contains(t, level0.Body, "Margaret")
}

func TestFormatPushTypeSpecificCopy(t *testing.T) {
	tests := []struct {
		alertType model.AlertType
		want      string
	}{
		{model.AlertTypeSOSTriggered, "SOS"},
		{model.AlertTypeLeftSafeZone, "left the safe zone"},
		{model.AlertTypeInactive, "Alert escalation"},
		{model.AlertTypeNightMovement, "Alert escalation"},
		{model.AlertTypeTakeMeHomeTapped, "Alert escalation"},
	}

	for _, tt := range tests {
		t.Run(string(tt.alertType), func(t *testing.T) {
			got := FormatPush(contentAlert(tt.alertType), "Margaret", 0)
			assert.Contains(t, got.Title, tt.want)
		})
	}
}

func TestFormatPushSafeZoneMentionsLocation(t *testing.T) {
	alert := contentAlert(model.AlertTypeLeftSafeZone)
	alert.LocationLabel = strPtr("Elm Street Park")

	got := FormatPush(alert, "Margaret", 0)
	assert.Contains(t, got.Body, "near Elm Street Park")
}

func TestFormatEmailMapsLink(t *testing.T) {
	alert := contentAlert(model.AlertTypeLeftSafeZone)

	without := FormatEmail(alert, "Margaret", 0)
	assert.NotContains(t, without.HTML, "google.com/maps")

	alert.Latitude = floatPtr(51.5074)
	alert.Longitude = floatPtr(-0.1278)
	with := FormatEmail(alert, "Margaret", 0)
	assert.Contains(t, with.HTML, `href="https://www.google.com/maps?q=51.5074,-0.1278"`)
}

func TestMapsURLNeedsBothCoordinates(t *testing.T) {
	alert := contentAlert(model.AlertTypeSOSTriggered)
	alert.Latitude = floatPtr(10)

	assert.Empty(t, MapsURL(alert))
}

func TestFormatEmailFramingByLevel(t *testing.T) {
	alert := contentAlert(model.AlertTypeSOSTriggered)

	caregiver := FormatEmail(alert, "Margaret", 0)
	contact := FormatEmail(alert, "Margaret", 1)

	assert.Equal(t, "URGENT: SOS alert for Margaret", caregiver.Subject)
	assert.Equal(t, "CRITICAL: SOS alert for Margaret", contact.Subject)
	assert.NotContains(t, caregiver.HTML, "emergency contact")
	assert.Contains(t, contact.HTML, "you are listed as an emergency contact for Margaret")
}

func TestFormatEmailGenericCopy(t *testing.T) {
	got := FormatEmail(contentAlert(model.AlertTypeNightMovement), "Margaret", 0)

	assert.Equal(t, "URGENT: Alert escalation for Margaret", got.Subject)
	assert.Contains(t, got.HTML, "has not been acknowledged")
}

func TestFormatEmailEscapesUserText(t *testing.T) {
	alert := contentAlert(model.AlertTypeLeftSafeZone)
	alert.LocationLabel = strPtr(`<script>alert(1)</script>`)

	got := FormatEmail(alert, "<b>Margaret</b>", 0)
	assert.NotContains(t, got.HTML, "<script>")
	assert.NotContains(t, got.HTML, "<b>Margaret</b>")
	assert.Contains(t, got.HTML, "&lt;script&gt;")
}

func TestFormatIsDeterministic(t *testing.T) {
	alert := contentAlert(model.AlertTypeSOSTriggered)
	alert.Latitude = floatPtr(1.25)
	alert.Longitude = floatPtr(2.5)

	assert.Equal(t, FormatEmail(alert, "Margaret", 1), FormatEmail(alert, "Margaret", 1))
	assert.Equal(t, FormatPush(alert, "Margaret", 0), FormatPush(alert, "Margaret", 0))
}

func TestFormatEmailIncludesTriggerTime(t *testing.T) {
	got := FormatEmail(contentAlert(model.AlertTypeSOSTriggered), "Margaret", 0)
	assert.Contains(t, got.HTML, "Sat, 01 Jun 2024 08:50:00 UTC")
}

func TestFallbackNameCasing(t *testing.T) {
	sos := FormatPush(contentAlert(model.AlertTypeSOSTriggered), model.FallbackPatientName, 0)
	assert.Equal(t, "URGENT: SOS from your loved one", sos.Title)
	assert.True(t, strings.HasPrefix(sos.Body, "Your loved one pressed SOS"))

	zone := FormatPush(contentAlert(model.AlertTypeLeftSafeZone), model.FallbackPatientName, 1)
	assert.Equal(t, "CRITICAL: Your loved one left the safe zone", zone.Title)

	email := FormatEmail(contentAlert(model.AlertTypeInactive), model.FallbackPatientName, 1)
	assert.Equal(t, "CRITICAL: Alert escalation for your loved one", email.Subject)
	assert.Contains(t, email.HTML, "emergency contact for your loved one.")
}
