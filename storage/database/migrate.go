package database

import (
	"CareLink/internal/model"
	"CareLink/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate 运行数据库迁移
// 线上表由 Supabase 管理，这里主要用于本地和测试环境
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	err := db.AutoMigrate(
		&model.Household{},
		&model.Patient{},
		&model.Caregiver{},
		&model.Alert{},
		&model.Escalation{},
	)

	if err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
