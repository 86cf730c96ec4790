package db

import (
	"time"

	"gorm.io/gorm"
)

// DailyLog 记录单个用户单个自然日的打卡汇总
// UserID + LogDate 采用唯一索引保证幂等：同一天的再次写入走更新而不是新建
// Note 为当日反思（Markdown），MoodScore 取值 1–5，未填写时为 nil
// 自然日结束后记录视为只读，本核心不提供修改历史日期的入口
type DailyLog struct {
	gorm.Model
	UserID    uint      `gorm:"index;index:idx_daily_log_unique,unique"`
	User      User      `gorm:"constraint:OnDelete:CASCADE"`
	LogDate   time.Time `gorm:"index:idx_daily_log_unique,unique"`
	Note      string
	MoodScore *int
	Entries   []HabitEntry `gorm:"constraint:OnDelete:CASCADE"`
}

// TableName 重写确保唯一索引作用到 user_id + log_date
func (DailyLog) TableName() string {
	return "daily_logs"
}

// HabitEntry 记录某条日志里单个习惯的完成/破戒状态
// DailyLogID + HabitID 唯一；Completed 与 Relapsed 并不互斥，
// 允许"当天破戒后又补完成"的组合（允许但不鼓励的状态）。
type HabitEntry struct {
	gorm.Model
	DailyLogID uint  `gorm:"index;index:idx_habit_entry_unique,unique"`
	HabitID    uint  `gorm:"index:idx_habit_entry_unique,unique"`
	Habit      Habit `gorm:"constraint:OnDelete:CASCADE"`
	Completed  bool
	Relapsed   bool
}

// TableName 重写确保唯一索引作用到 daily_log_id + habit_id
func (HabitEntry) TableName() string {
	return "habit_entries"
}
