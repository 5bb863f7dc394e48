package model

import (
	"time"

	"github.com/google/uuid"
)

// Recipients 一个家庭的通知对象快照，由 RecipientResolver 组装
type Recipients struct {
	HouseholdID       uuid.UUID
	PatientName       string
	Caregivers        []Caregiver
	EmergencyContacts EmergencyContacts
	Interval          time.Duration
}

// FallbackPatientName 小写，句首由文案层负责大写
const FallbackPatientName = "your loved one"

// DisplayName 患者姓名缺失时的兜底称呼
func (r *Recipients) DisplayName() string {
	if r == nil || r.PatientName == "" {
		return FallbackPatientName
	}
	return r.PatientName
}
