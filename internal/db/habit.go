package db

import (
	"time"

	"gorm.io/gorm"
)

// Habit 定义了习惯模型
// TimeBlock 描述习惯所属时段（morning/afternoon/evening），晨间习惯参与韧性加成
// Relapsable 标记该习惯是否存在"破戒"语义（如戒烟），决定 relapsed 标记是否有效
// TypeTag 用于区分习惯类别，便于统计/筛选
// Status 预留 active/inactive 控制展示
// StartDate/EndDate 便于未来扩展有效期，暂未强制使用
type Habit struct {
	gorm.Model
	Name        string
	Description string
	TimeBlock   string `gorm:"default:morning"`
	Relapsable  bool
	TypeTag     string
	Status      string
	StartDate   *time.Time
	EndDate     *time.Time
}

// TimeBlock 的取值集合
const (
	TimeBlockMorning   = "morning"
	TimeBlockAfternoon = "afternoon"
	TimeBlockEvening   = "evening"
)
