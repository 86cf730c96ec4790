package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// Init 初始化数据库连接并执行自动迁移。
// databasePath 为空时将回退到默认值 habitlog.db。
// sqlite 连接串附加 busy_timeout，写冲突时由驱动先行等待，重试逻辑见 ProgressionService。
func Init(databasePath string) error {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "habitlog.db"
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return err
	}

	// 自动迁移模式，为核心模型创建表
	if err = DB.AutoMigrate(
		&User{},
		&Habit{},
		&DailyLog{},
		&HabitEntry{},
		&DailyStat{},
		&Achievement{},
		&UserAchievement{},
		&MentorResponse{},
		&SystemSetting{},
	); err != nil {
		return err
	}

	if err := DB.Model(&Habit{}).
		Where("time_block = '' OR time_block IS NULL").
		Update("time_block", TimeBlockMorning).Error; err != nil {
		return err
	}
	if err := DB.Model(&User{}).
		Where("level IS NULL OR level < 1").
		Update("level", 1).Error; err != nil {
		return err
	}

	return SeedAchievements(DB)
}

// defaultAchievements 为初始成就目录，仅在对应名称不存在时补种
var defaultAchievements = []Achievement{
	{Name: "初入江湖", Description: "达到 2 级", Points: 10, ConditionType: ConditionLevel, ConditionValue: 2},
	{Name: "渐入佳境", Description: "达到 5 级", Points: 30, ConditionType: ConditionLevel, ConditionValue: 5},
	{Name: "七日之约", Description: "连续坚持 7 天", Points: 20, ConditionType: ConditionStreak, ConditionValue: 7},
	{Name: "满月挑战", Description: "连续坚持 30 天", Points: 50, ConditionType: ConditionStreak, ConditionValue: 30},
	{Name: "千里之行", Description: "累计获得 1000 经验", Points: 15, ConditionType: ConditionTotalXP, ConditionValue: 1000},
	{Name: "万丈高楼", Description: "累计获得 10000 经验", Points: 60, ConditionType: ConditionTotalXP, ConditionValue: 10000},
}

// SeedAchievements 将默认成就写入目录，已存在同名成就时跳过。
func SeedAchievements(gdb *gorm.DB) error {
	for _, achievement := range defaultAchievements {
		if err := achievement.ValidateCondition(); err != nil {
			return err
		}

		var existing Achievement
		err := gdb.Where("name = ?", achievement.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := gdb.Create(&achievement).Error; err != nil {
			return err
		}
	}

	return nil
}

// NormalizeDate 将时间规整为其日历日的 UTC 零点，所有按日唯一的表都以此为准：
// 本地时间与解析出的 UTC 日期只要落在同一个日历日，就映射到同一个存储值。
func NormalizeDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
