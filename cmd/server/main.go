package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/config"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/router"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// 按需补种超级用户
	if err := db.EnsureUser(cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
		log.Fatalf("failed to ensure super root user: %v", err)
	}

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(cfg.SessionSecret)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}
