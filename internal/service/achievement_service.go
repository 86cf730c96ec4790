package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/habitlog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrAchievementNotFound 在指定成就不存在时返回
	ErrAchievementNotFound = errors.New("achievement not found")
	// ErrInvalidCondition 当解锁条件配置非法时返回
	ErrInvalidCondition = errors.New("invalid achievement condition")
)

// ProgressSnapshot 是成就评估所需的用户成长快照
type ProgressSnapshot struct {
	Level         int
	CurrentStreak int
	TotalXP       int
}

// conditionMet 依据条件标签判断快照是否达标。
// 条件在入库时已经过校验，这里未知标签一律视为不达标。
func conditionMet(achievement db.Achievement, snapshot ProgressSnapshot) bool {
	switch achievement.ConditionType {
	case db.ConditionLevel:
		return snapshot.Level >= achievement.ConditionValue
	case db.ConditionStreak:
		return snapshot.CurrentStreak >= achievement.ConditionValue
	case db.ConditionTotalXP:
		return snapshot.TotalXP >= achievement.ConditionValue
	default:
		return false
	}
}

// evaluateAndUnlock 在事务内扫描尚未解锁的成就，对达标者写入解锁行。
// user_id + achievement_id 的唯一索引兜底并发：冲突时 DoNothing，
// 依据 RowsAffected 判断本次是否真正新解锁，保证返回集合不含重复解锁。
func evaluateAndUnlock(tx *gorm.DB, userID uint, snapshot ProgressSnapshot) ([]db.Achievement, error) {
	var candidates []db.Achievement
	if err := tx.
		Where("id NOT IN (?)", tx.Model(&db.UserAchievement{}).
			Select("achievement_id").
			Where("user_id = ?", userID)).
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("load locked achievements: %w", err)
	}

	var unlocked []db.Achievement
	for _, achievement := range candidates {
		if !conditionMet(achievement, snapshot) {
			continue
		}

		record := db.UserAchievement{
			UserID:        userID,
			AchievementID: achievement.ID,
			UnlockedAt:    time.Now(),
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoNothing: true,
		}).Create(&record)
		if result.Error != nil {
			return nil, fmt.Errorf("unlock achievement: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// 并发评估已抢先解锁，不重复返回
			continue
		}

		unlocked = append(unlocked, achievement)
	}

	return unlocked, nil
}

// AchievementService 负责成就目录管理与用户解锁查询
type AchievementService struct {
	db *gorm.DB
}

// AchievementInput 定义创建成就时可配置字段
type AchievementInput struct {
	Name           string
	Description    string
	Points         int
	ConditionType  string
	ConditionValue int
}

// NewAchievementService 构造 AchievementService
func NewAchievementService(gdb *gorm.DB) *AchievementService {
	return &AchievementService{db: gdb}
}

// Create 新建成就，条件标签在入库前校验。
func (s *AchievementService) Create(input AchievementInput) (*db.Achievement, error) {
	achievement := db.Achievement{
		Name:           input.Name,
		Description:    input.Description,
		Points:         input.Points,
		ConditionType:  input.ConditionType,
		ConditionValue: input.ConditionValue,
	}

	if achievement.Name == "" {
		return nil, fmt.Errorf("achievement name is required")
	}
	if err := achievement.ValidateCondition(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}

	if err := s.db.Create(&achievement).Error; err != nil {
		return nil, fmt.Errorf("create achievement: %w", err)
	}
	return &achievement, nil
}

// List 返回完整的成就目录。
func (s *AchievementService) List() ([]db.Achievement, error) {
	var achievements []db.Achievement
	if err := s.db.Order("id ASC").Find(&achievements).Error; err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	return achievements, nil
}

// ListUnlocked 返回用户已解锁的成就及解锁时间。
func (s *AchievementService) ListUnlocked(userID uint) ([]db.UserAchievement, error) {
	var records []db.UserAchievement
	if err := s.db.Preload("Achievement").
		Where("user_id = ?", userID).
		Order("unlocked_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list unlocked achievements: %w", err)
	}
	return records, nil
}
