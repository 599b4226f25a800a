// Package testutil 提供测试用的内存数据库
package testutil

import (
	"fmt"
	"testing"
	"time"

	"loyaltysystem/internal/infrastructure/database"
	"loyaltysystem/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 创建独立的 sqlite 内存库并迁移全部表
//
// 连接数限制为 1，事务之间串行执行，避免 sqlite 的表锁错误
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// SeedAccount 创建测试账户
func SeedAccount(t *testing.T, db *gorm.DB, userID, balance int64, enrolled time.Time) *model.Account {
	t.Helper()
	account := &model.Account{UserID: userID, PointBalance: balance, EnrollmentDate: enrolled}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return account
}
