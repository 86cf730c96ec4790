package handler

import (
	"github.com/habitlog/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db           *gorm.DB
	habits       *service.HabitService
	dailyLogs    *service.DailyLogService
	achievements *service.AchievementService
	progression  *service.ProgressionService
	mentor       *service.MentorService
	system       *service.SystemSettingService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB) *API {
	systemService := service.NewSystemSettingService(db)
	mentorService := service.NewMentorService(db, systemService)

	progressionService := service.NewProgressionService(db)
	progressionService.SetMentorGenerator(mentorService)

	return &API{
		db:           db,
		habits:       service.NewHabitService(db),
		dailyLogs:    service.NewDailyLogService(db),
		achievements: service.NewAchievementService(db),
		progression:  progressionService,
		mentor:       mentorService,
		system:       systemService,
	}
}

// DB exposes the underlying gorm instance for legacy paths.
func (a *API) DB() *gorm.DB {
	return a.db
}

// Mentor exposes the mentor service for configuration at boot.
func (a *API) Mentor() *service.MentorService {
	return a.mentor
}
