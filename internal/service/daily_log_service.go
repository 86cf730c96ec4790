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
	// ErrHabitNotFound 在指定习惯不存在时返回
	ErrHabitNotFound = errors.New("habit not found")
	// ErrMoodOutOfRange 当心情分数超出 1–5 时返回
	ErrMoodOutOfRange = errors.New("mood score must be between 1 and 5")
	// ErrLogNotFound 在指定日期没有日志时返回
	ErrLogNotFound = errors.New("daily log not found")
)

// DayInput 定义一次整日提交的输入对象
// CompletedHabitIDs 与 RelapsedHabitIDs 允许重叠（当天破戒后又补完成）
type DayInput struct {
	Note              string
	MoodScore         *int
	CompletedHabitIDs []uint
	RelapsedHabitIDs  []uint
}

// DayOutcome 汇总一次日志写入后的当日状态，供协调器做成长结算
type DayOutcome struct {
	Log              *db.DailyLog
	CompletedCount   int
	RelapsedCount    int
	MorningCompleted int
	TotalForDay      int
	DayMaintained    bool
}

// validateDayInput 在任何写入发生前完成本地校验。
func validateDayInput(input DayInput) error {
	if input.MoodScore != nil && (*input.MoodScore < 1 || *input.MoodScore > 5) {
		return ErrMoodOutOfRange
	}
	return nil
}

// loadHabits 校验所有引用的习惯都真实存在，返回 id 到习惯的映射。
func loadHabits(tx *gorm.DB, ids []uint) (map[uint]db.Habit, error) {
	habitByID := make(map[uint]db.Habit, len(ids))
	if len(ids) == 0 {
		return habitByID, nil
	}

	var habits []db.Habit
	if err := tx.Where("id IN ?", ids).Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("load habits: %w", err)
	}

	for _, habit := range habits {
		habitByID[habit.ID] = habit
	}

	for _, id := range ids {
		if _, ok := habitByID[id]; !ok {
			return nil, fmt.Errorf("%w: id=%d", ErrHabitNotFound, id)
		}
	}

	return habitByID, nil
}

// uniqueIDs 合并去重，保持首次出现的顺序。
func uniqueIDs(groups ...[]uint) []uint {
	seen := make(map[uint]struct{})
	var out []uint
	for _, group := range groups {
		for _, id := range group {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// recordDay 在事务内写入 (用户, 日期) 的日志：不存在则创建，存在则更新备注/心情，
// 条目采用先删后插语义，最新提交即当天的权威状态而非追加。
// 返回的 DayOutcome 基于最终条目集合统计，破戒标记只对 Relapsable 的习惯生效。
func recordDay(tx *gorm.DB, userID uint, date time.Time, input DayInput) (*DayOutcome, error) {
	if err := validateDayInput(input); err != nil {
		return nil, err
	}

	logDate := db.NormalizeDate(date)

	allIDs := uniqueIDs(input.CompletedHabitIDs, input.RelapsedHabitIDs)
	habitByID, err := loadHabits(tx, allIDs)
	if err != nil {
		return nil, err
	}

	record := db.DailyLog{
		UserID:    userID,
		LogDate:   logDate,
		Note:      input.Note,
		MoodScore: input.MoodScore,
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "log_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"note", "mood_score", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("upsert daily log: %w", err)
	}

	if err := tx.Where("user_id = ? AND log_date = ?", userID, logDate).First(&record).Error; err != nil {
		return nil, fmt.Errorf("reload daily log: %w", err)
	}

	// 重提交以最新集合为准：先清空旧条目再整体写入
	if err := tx.Where("daily_log_id = ?", record.ID).Delete(&db.HabitEntry{}).Error; err != nil {
		return nil, fmt.Errorf("clear habit entries: %w", err)
	}

	completedSet := make(map[uint]struct{}, len(input.CompletedHabitIDs))
	for _, id := range input.CompletedHabitIDs {
		completedSet[id] = struct{}{}
	}
	relapsedSet := make(map[uint]struct{}, len(input.RelapsedHabitIDs))
	for _, id := range input.RelapsedHabitIDs {
		relapsedSet[id] = struct{}{}
	}

	// 全勤奖励以当日可打卡的习惯总数为基准，即目录中处于 active 的习惯
	var activeCount int64
	if err := tx.Model(&db.Habit{}).Where("status = ?", "active").Count(&activeCount).Error; err != nil {
		return nil, fmt.Errorf("count active habits: %w", err)
	}
	totalForDay := int(activeCount)
	if totalForDay < len(allIDs) {
		totalForDay = len(allIDs)
	}

	outcome := &DayOutcome{Log: &record, TotalForDay: totalForDay}

	for _, id := range allIDs {
		habit := habitByID[id]
		_, completed := completedSet[id]
		_, relapsed := relapsedSet[id]
		if relapsed && !habit.Relapsable {
			relapsed = false
		}

		entry := db.HabitEntry{
			DailyLogID: record.ID,
			HabitID:    id,
			Completed:  completed,
			Relapsed:   relapsed,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, fmt.Errorf("create habit entry: %w", err)
		}

		if completed {
			outcome.CompletedCount++
			if habit.TimeBlock == db.TimeBlockMorning {
				outcome.MorningCompleted++
			}
		}
		if relapsed {
			outcome.RelapsedCount++
		}
	}

	outcome.DayMaintained = outcome.CompletedCount > 0 && outcome.RelapsedCount == 0

	return outcome, nil
}

// upsertDailyStat 将当日统计整条覆盖写入，一天一行。
func upsertDailyStat(tx *gorm.DB, userID uint, date time.Time, outcome *DayOutcome, delta DayDelta) (*db.DailyStat, error) {
	stat := db.DailyStat{
		UserID:           userID,
		StatDate:         db.NormalizeDate(date),
		CompletedCount:   outcome.CompletedCount,
		RelapsedCount:    outcome.RelapsedCount,
		MorningCompleted: outcome.MorningCompleted,
		TotalForDay:      outcome.TotalForDay,
		DayMaintained:    outcome.DayMaintained,
		XPGained:         delta.XP,
		ToughnessGained:  delta.Toughness,
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "stat_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"completed_count", "relapsed_count", "morning_completed",
			"total_for_day", "day_maintained", "xp_gained", "toughness_gained", "updated_at",
		}),
	}).Create(&stat).Error; err != nil {
		return nil, fmt.Errorf("upsert daily stat: %w", err)
	}

	if err := tx.Where("user_id = ? AND stat_date = ?", userID, stat.StatDate).First(&stat).Error; err != nil {
		return nil, fmt.Errorf("reload daily stat: %w", err)
	}

	return &stat, nil
}

// DailyLogService 提供历史/档案页所需的只读查询
type DailyLogService struct {
	db *gorm.DB
}

// DailyLogFilter 指定查询区间
type DailyLogFilter struct {
	UserID uint
	Start  time.Time
	End    time.Time
}

// NewDailyLogService 构造 DailyLogService
func NewDailyLogService(gdb *gorm.DB) *DailyLogService {
	return &DailyLogService{db: gdb}
}

// GetDay 返回指定日期的日志及其条目。
func (s *DailyLogService) GetDay(userID uint, date time.Time) (*db.DailyLog, error) {
	var record db.DailyLog
	err := s.db.Preload("Entries").Preload("Entries.Habit").
		Where("user_id = ? AND log_date = ?", userID, db.NormalizeDate(date)).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, fmt.Errorf("get daily log: %w", err)
	}
	return &record, nil
}

// ListRange 返回区间内的日志，按日期升序。
func (s *DailyLogService) ListRange(filter DailyLogFilter) ([]db.DailyLog, error) {
	if filter.UserID == 0 {
		return nil, fmt.Errorf("user id is required")
	}
	if filter.End.Before(filter.Start) {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	var logs []db.DailyLog
	if err := s.db.Preload("Entries").Preload("Entries.Habit").
		Where("user_id = ?", filter.UserID).
		Where("log_date BETWEEN ? AND ?", db.NormalizeDate(filter.Start), db.NormalizeDate(filter.End)).
		Order("log_date ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list daily logs: %w", err)
	}

	return logs, nil
}

// StatsRange 返回区间内的每日统计，按日期升序。
func (s *DailyLogService) StatsRange(filter DailyLogFilter) ([]db.DailyStat, error) {
	if filter.UserID == 0 {
		return nil, fmt.Errorf("user id is required")
	}

	var stats []db.DailyStat
	if err := s.db.Where("user_id = ?", filter.UserID).
		Where("stat_date BETWEEN ? AND ?", db.NormalizeDate(filter.Start), db.NormalizeDate(filter.End)).
		Order("stat_date ASC").
		Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}

	return stats, nil
}
