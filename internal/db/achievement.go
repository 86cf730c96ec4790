package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// 成就解锁条件的类型标签，入库前校验，避免在评估时解析自由文本
const (
	// ConditionLevel 表示等级达到阈值后解锁
	ConditionLevel = "level"
	// ConditionStreak 表示连续打卡天数达到阈值后解锁
	ConditionStreak = "streak"
	// ConditionTotalXP 表示累计经验达到阈值后解锁
	ConditionTotalXP = "total_xp"
)

// Achievement 定义了成就目录，属于读多写少的数据
// ConditionType + ConditionValue 构成可机器评估的解锁条件
type Achievement struct {
	gorm.Model
	Name           string `gorm:"not null"`
	Description    string
	Points         int
	ConditionType  string `gorm:"size:32;not null"`
	ConditionValue int    `gorm:"not null"`
}

// ValidateCondition 在写入目录前校验条件标签与阈值。
func (a Achievement) ValidateCondition() error {
	switch a.ConditionType {
	case ConditionLevel, ConditionStreak, ConditionTotalXP:
	default:
		return fmt.Errorf("unsupported condition type: %s", a.ConditionType)
	}

	if a.ConditionValue <= 0 {
		return fmt.Errorf("condition value must be positive")
	}

	return nil
}

// UserAchievement 记录用户解锁成就的关联行
// UserID + AchievementID 唯一索引保证同一成就只解锁一次，并发解锁依赖该约束而非应用层锁
// 解锁行只增不改，账号删除/重置由外部流程清理
type UserAchievement struct {
	gorm.Model
	UserID        uint        `gorm:"index;index:idx_user_achievement_unique,unique"`
	AchievementID uint        `gorm:"index:idx_user_achievement_unique,unique"`
	Achievement   Achievement `gorm:"constraint:OnDelete:CASCADE"`
	UnlockedAt    time.Time
}

// TableName 重写确保唯一索引作用到 user_id + achievement_id
func (UserAchievement) TableName() string {
	return "user_achievements"
}
