package escalation

import (
	"strconv"

	"CareLink/internal/dispatch"
	"CareLink/internal/model"
)

const (
	pushPriority  = "high"
	pushSound     = "default"
	pushChannelID = "alerts"

	reasonNoEmail       = "no email on file"
	reasonNoTokens      = "no device tokens"
	reasonPushDisabled  = "safety alerts disabled"
	reasonEmailDisabled = "email notifications disabled"
	reasonNoContacts    = "no emergency contacts"
)

// LevelContext 生成投递计划所需的全部输入
type LevelContext struct {
	Escalation *model.Escalation
	Alert      *model.Alert
	Recipients *model.Recipients
}

// Plan 某一级别要发送的内容，Skipped 为计划阶段就确定不发送的对象
type Plan struct {
	Push    []dispatch.PushMessage
	Emails  []dispatch.Email
	Skipped []Outcome
}

func (p Plan) Empty() bool {
	return len(p.Push) == 0 && len(p.Emails) == 0
}

// LevelHandler 纯函数：LevelContext -> Plan，不做任何 IO
type LevelHandler struct {
	Name string
	Plan func(LevelContext) Plan
}

// Ladder 按 escalation_level 索引，超出末尾时固定使用最后一个 handler
type Ladder []LevelHandler

// DefaultLadder 0: 照护者推送 + 邮件，1: 紧急联系人邮件，2+: 不再发送
func DefaultLadder() Ladder {
	return Ladder{
		{Name: "caregivers", Plan: planCaregivers},
		{Name: "emergency_contacts", Plan: planEmergencyContacts},
		{Name: "exhausted", Plan: planExhausted},
	}
}

func (l Ladder) HandlerFor(level int) LevelHandler {
	if len(l) == 0 {
		return LevelHandler{Name: "exhausted", Plan: planExhausted}
	}
	if level < 0 {
		level = 0
	}
	if level >= len(l) {
		level = len(l) - 1
	}
	return l[level]
}

func pushData(lc LevelContext) map[string]string {
	return map[string]string{
		"type":          "alert_escalation",
		"alert_id":      lc.Alert.ID.String(),
		"alert_type":    string(lc.Alert.Type),
		"escalation_id": lc.Escalation.ID.String(),
		"level":         strconv.Itoa(lc.Escalation.EscalationLevel),
	}
}

func planCaregivers(lc LevelContext) Plan {
	var plan Plan

	level := lc.Escalation.EscalationLevel
	name := lc.Recipients.DisplayName()
	push := FormatPush(lc.Alert, name, level)
	email := FormatEmail(lc.Alert, name, level)
	data := pushData(lc)

	for i := range lc.Recipients.Caregivers {
		cg := &lc.Recipients.Caregivers[i]
		prefs := cg.NotificationPreferences

		tokens := cg.PushTokens()
		switch {
		case !prefs.AllowsPush():
			plan.Skipped = append(plan.Skipped, SkippedFor(ChannelPush, cg.ID.String(), reasonPushDisabled))
		case len(tokens) == 0:
			plan.Skipped = append(plan.Skipped, SkippedFor(ChannelPush, cg.ID.String(), reasonNoTokens))
		default:
			for _, token := range tokens {
				plan.Push = append(plan.Push, dispatch.PushMessage{
					To:        token,
					Title:     push.Title,
					Body:      push.Body,
					Data:      data,
					Priority:  pushPriority,
					Sound:     pushSound,
					ChannelID: pushChannelID,
				})
			}
		}

		address := cg.EmailAddress()
		switch {
		case address == "":
			plan.Skipped = append(plan.Skipped, SkippedFor(ChannelEmail, cg.ID.String(), reasonNoEmail))
		case !prefs.AllowsEmail():
			plan.Skipped = append(plan.Skipped, SkippedFor(ChannelEmail, address, reasonEmailDisabled))
		default:
			plan.Emails = append(plan.Emails, dispatch.Email{
				To:      address,
				Subject: email.Subject,
				HTML:    email.HTML,
			})
		}
	}

	return plan
}

func planEmergencyContacts(lc LevelContext) Plan {
	var plan Plan

	contacts := lc.Recipients.EmergencyContacts
	if len(contacts) == 0 {
		plan.Skipped = append(plan.Skipped, SkippedFor(ChannelEmail, "", reasonNoContacts))
		return plan
	}

	email := FormatEmail(lc.Alert, lc.Recipients.DisplayName(), lc.Escalation.EscalationLevel)
	for _, contact := range contacts {
		if !contact.HasEmail() {
			plan.Skipped = append(plan.Skipped, SkippedFor(ChannelEmail, contact.Name, reasonNoEmail))
			continue
		}
		plan.Emails = append(plan.Emails, dispatch.Email{
			To:      contact.EmailAddress(),
			Subject: email.Subject,
			HTML:    email.HTML,
		})
	}

	return plan
}

func planExhausted(LevelContext) Plan {
	return Plan{}
}
