package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"CareLink/internal/model"
)

// RecipientRepository 只读：照护者、患者与紧急联系人、家庭升级间隔
type RecipientRepository struct {
	db *gorm.DB
}

func NewRecipientRepository(db *gorm.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

// Resolve 缺失的行返回空列表，不返回错误；家庭不存在时 Interval 为 0，由调用方兜底
func (r *RecipientRepository) Resolve(ctx context.Context, householdID uuid.UUID) (*model.Recipients, error) {
	db := r.db.WithContext(ctx)
	rec := &model.Recipients{HouseholdID: householdID}

	var households []model.Household
	if err := db.Where("id = ?", householdID).Limit(1).Find(&households).Error; err != nil {
		return nil, fmt.Errorf("failed to query household %s: %w", householdID, err)
	}
	if len(households) > 0 {
		rec.Interval = households[0].EscalationInterval()
	}

	var patients []model.Patient
	if err := db.Where("household_id = ?", householdID).Limit(1).Find(&patients).Error; err != nil {
		return nil, fmt.Errorf("failed to query patient for household %s: %w", householdID, err)
	}
	if len(patients) > 0 {
		rec.PatientName = patients[0].Name
		rec.EmergencyContacts = patients[0].EmergencyContacts
	}

	if err := db.Where("household_id = ?", householdID).
		Order("created_at ASC").
		Find(&rec.Caregivers).Error; err != nil {
		return nil, fmt.Errorf("failed to query caregivers for household %s: %w", householdID, err)
	}

	return rec, nil
}

// Interval 家庭配置的升级间隔；家庭不存在时返回 0
func (r *RecipientRepository) Interval(ctx context.Context, householdID uuid.UUID) (time.Duration, error) {
	var households []model.Household
	if err := r.db.WithContext(ctx).Where("id = ?", householdID).Limit(1).Find(&households).Error; err != nil {
		return 0, fmt.Errorf("failed to query household %s: %w", householdID, err)
	}
	if len(households) == 0 {
		return 0, nil
	}
	return households[0].EscalationInterval(), nil
}
