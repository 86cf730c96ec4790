package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/habitlog/internal/config"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// 测试数据生成器：创建演示账号、示例习惯并回填最近一周的打卡
func main() {
	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte("demo123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("密码加密失败:", err)
	}

	user := db.User{Username: "demo", Password: string(hashed), Level: 1}
	if err := db.DB.Where("username = ?", user.Username).FirstOrCreate(&user).Error; err != nil {
		log.Fatal("创建演示用户失败:", err)
	}

	habitSvc := service.NewHabitService(db.DB)
	seeds := []service.HabitInput{
		{Name: "晨跑", Description: "每天 5 公里", TimeBlock: db.TimeBlockMorning, TypeTag: "健康"},
		{Name: "冥想", Description: "晚间 10 分钟", TimeBlock: db.TimeBlockEvening, TypeTag: "心智"},
		{Name: "戒烟", Description: "一根都不抽", TimeBlock: db.TimeBlockMorning, Relapsable: true, TypeTag: "健康"},
	}

	var habitIDs []uint
	for _, seed := range seeds {
		habit, err := habitSvc.Create(seed)
		if err != nil {
			log.Fatal("创建习惯失败:", err)
		}
		habitIDs = append(habitIDs, habit.ID)
	}

	progression := service.NewProgressionService(db.DB)
	today := time.Now()
	for offset := 6; offset >= 0; offset-- {
		date := today.AddDate(0, 0, -offset)
		completed := habitIDs
		if offset%3 == 0 {
			completed = habitIDs[:2]
		}
		if _, err := progression.BackfillDay(context.Background(), user.ID, date, service.DayInput{
			Note:              fmt.Sprintf("第 %d 天的打卡记录", 7-offset),
			CompletedHabitIDs: completed,
		}); err != nil {
			log.Fatal("回填打卡失败:", err)
		}
	}

	fmt.Println("演示数据生成完成")
	fmt.Println("用户名: demo")
	fmt.Println("密码: demo123")
}
