package escalation

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"CareLink/internal/model"
)

// PushContent 推送标题与正文
type PushContent struct {
	Title string
	Body  string
}

// EmailContent 邮件主题与 HTML 正文
type EmailContent struct {
	Subject string
	HTML    string
}

// level 0 为 URGENT，1 及以上为 CRITICAL
func urgency(level int) string {
	if level <= 0 {
		return "URGENT"
	}
	return "CRITICAL"
}

// MapsURL 没有坐标时返回空串
func MapsURL(alert *model.Alert) string {
	if !alert.HasCoordinates() {
		return ""
	}
	return "https://www.google.com/maps?q=" +
		strconv.FormatFloat(*alert.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(*alert.Longitude, 'f', -1, 64)
}

func locationLabel(alert *model.Alert) string {
	if alert.LocationLabel == nil {
		return ""
	}
	return *alert.LocationLabel
}

// sentenceStart 兜底称呼放在句首时首字母大写，真实姓名原样返回
func sentenceStart(patientName string) string {
	if patientName == model.FallbackPatientName {
		return "Your loved one"
	}
	return patientName
}

// FormatPush 纯函数，同样的输入总是得到同样的输出
func FormatPush(alert *model.Alert, patientName string, level int) PushContent {
	prefix := urgency(level)

	switch alert.Type {
	case model.AlertTypeSOSTriggered:
		return PushContent{
			Title: fmt.Sprintf("%s: SOS from %s", prefix, patientName),
			Body:  fmt.Sprintf("%s pressed SOS and no one has responded yet. Please check on them now.", sentenceStart(patientName)),
		}
	case model.AlertTypeLeftSafeZone:
		body := fmt.Sprintf("%s left the safe zone and the alert has not been acknowledged.", sentenceStart(patientName))
		if label := locationLabel(alert); label != "" {
			body = fmt.Sprintf("%s left the safe zone near %s and the alert has not been acknowledged.", sentenceStart(patientName), label)
		}
		return PushContent{
			Title: fmt.Sprintf("%s: %s left the safe zone", prefix, sentenceStart(patientName)),
			Body:  body,
		}
	default:
		return PushContent{
			Title: fmt.Sprintf("%s: Alert escalation for %s", prefix, patientName),
			Body:  fmt.Sprintf("An alert for %s has not been acknowledged. Please check in.", patientName),
		}
	}
}

var emailTemplate = template.Must(template.New("escalation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937; max-width: 560px; margin: 0 auto;">
  {{- if .Critical}}
  <h2 style="color: #dc2626;">{{.Heading}}</h2>
  {{- else}}
  <h2 style="color: #d97706;">{{.Heading}}</h2>
  {{- end}}
  <p>{{.Message}}</p>
  <p><strong>Time:</strong> {{.TriggeredAt}}</p>
  {{- if .Location}}
  <p><strong>Location:</strong> {{.Location}}</p>
  {{- end}}
  {{- if .MapsURL}}
  <p><a href="{{.MapsURL}}" style="color: #2563eb;">View location on Google Maps</a></p>
  {{- end}}
  <p>{{.Framing}}</p>
  <p style="font-size: 12px; color: #6b7280;">This alert has not been acknowledged by anyone in the care team yet.</p>
</body>
</html>`))

type emailView struct {
	Critical    bool
	Heading     string
	Message     string
	TriggeredAt string
	Location    string
	MapsURL     string
	Framing     string
}

// FormatEmail level 1 的正文会说明收件人是作为紧急联系人收到此邮件
func FormatEmail(alert *model.Alert, patientName string, level int) EmailContent {
	prefix := urgency(level)

	var subject, heading, message string
	switch alert.Type {
	case model.AlertTypeSOSTriggered:
		subject = fmt.Sprintf("%s: SOS alert for %s", prefix, patientName)
		heading = fmt.Sprintf("%s: %s pressed SOS", prefix, sentenceStart(patientName))
		message = fmt.Sprintf("%s triggered an SOS alert and nobody has responded yet. Please contact them or the care team immediately.", sentenceStart(patientName))
	case model.AlertTypeLeftSafeZone:
		subject = fmt.Sprintf("%s: %s left the safe zone", prefix, sentenceStart(patientName))
		heading = subject
		message = fmt.Sprintf("%s left their safe zone and the alert is still unacknowledged. Please check on them as soon as possible.", sentenceStart(patientName))
	default:
		subject = fmt.Sprintf("%s: Alert escalation for %s", prefix, patientName)
		heading = subject
		message = fmt.Sprintf("An alert for %s has not been acknowledged. Please check in with them or the care team.", patientName)
	}

	framing := fmt.Sprintf("You are receiving this because you are a caregiver for %s.", patientName)
	if level >= 1 {
		framing = fmt.Sprintf("You are receiving this because you are listed as an emergency contact for %s.", patientName)
	}

	var buf bytes.Buffer
	// 模板与字段都是固定的，执行不会失败
	_ = emailTemplate.Execute(&buf, emailView{
		Critical:    level >= 1,
		Heading:     heading,
		Message:     message,
		TriggeredAt: alert.TriggeredAt.UTC().Format(time.RFC1123),
		Location:    locationLabel(alert),
		MapsURL:     MapsURL(alert),
		Framing:     framing,
	})

	return EmailContent{Subject: subject, HTML: buf.String()}
}
