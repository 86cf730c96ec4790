package db

import (
	"time"

	"gorm.io/gorm"
)

// DailyStat 为每个 (用户, 自然日) 的派生统计，一天一条
// 重新提交当天数据时整条重算覆盖，从不追加，保证幂等
// DayMaintained = 当日完成数 > 0 且破戒数 == 0
// XPGained/ToughnessGained 记录当日实际入账的增量，便于重提交时核对差额
type DailyStat struct {
	gorm.Model
	UserID           uint      `gorm:"index;index:idx_daily_stat_unique,unique"`
	StatDate         time.Time `gorm:"index:idx_daily_stat_unique,unique"`
	CompletedCount   int
	RelapsedCount    int
	MorningCompleted int
	TotalForDay      int
	DayMaintained    bool
	XPGained         int
	ToughnessGained  int
}

// TableName 重写确保唯一索引作用到 user_id + stat_date
func (DailyStat) TableName() string {
	return "daily_stats"
}
