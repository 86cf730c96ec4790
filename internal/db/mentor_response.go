package db

import (
	"time"

	"gorm.io/gorm"
)

// MentorResponse 保存导师对某日打卡的点评文本
// 在主事务提交之后异步生成，失败不影响已入账的成长数据
// RequestID 用于串联一次生成请求的日志
type MentorResponse struct {
	gorm.Model
	UserID      uint      `gorm:"index"`
	DailyLogID  uint      `gorm:"index"`
	LogDate     time.Time `gorm:"index"`
	RequestID   string    `gorm:"size:64"`
	Content     string    `gorm:"type:text"`
	Provider    string    `gorm:"size:32"`
	GeneratedAt time.Time
}

// TableName 自定义表名以保持命名一致。
func (MentorResponse) TableName() string {
	return "mentor_responses"
}
