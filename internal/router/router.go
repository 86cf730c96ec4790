package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	r.Use(sessions.Sessions("habitlog_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := handler.NewAPI(db.DB)

	r.POST("/api/login", handler.Login)
	r.POST("/api/logout", handler.Logout)

	// 需要认证的业务路由
	auth := r.Group("/api")
	auth.Use(handler.AuthRequired())
	{
		// 成长结算入口
		auth.POST("/days", api.SubmitDay)
		auth.POST("/habits/:id/toggle", api.ToggleHabit)

		// 历史/档案只读投影
		auth.GET("/days", api.ListDays)
		auth.GET("/days/:date", api.GetDay)
		auth.GET("/progress", api.GetProgress)

		// 成就
		auth.GET("/achievements", api.ListAchievements)
		auth.GET("/achievements/mine", api.ListMyAchievements)
		auth.POST("/achievements", api.CreateAchievement)

		// 习惯目录管理
		auth.GET("/habits", api.ListHabits)
		auth.GET("/habits/:id", api.GetHabit)
		auth.POST("/habits", api.CreateHabit)
		auth.PUT("/habits/:id", api.UpdateHabit)
		auth.DELETE("/habits/:id", api.DeleteHabit)

		// 系统设置
		auth.GET("/system/settings", api.GetSystemSettings)
		auth.PUT("/system/settings", api.UpdateSystemSettings)
		auth.POST("/system/settings/test-ai", api.TestAIConnection)
	}

	return r
}
