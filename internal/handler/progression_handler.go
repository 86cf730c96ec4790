package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
)

const dateFormat = "2006-01-02"

type submitDayPayload struct {
	Date              string `json:"date"`
	Note              string `json:"note"`
	MoodScore         *int   `json:"mood_score"`
	CompletedHabitIDs []uint `json:"completed_habit_ids"`
	RelapsedHabitIDs  []uint `json:"relapsed_habit_ids"`
}

type togglePayload struct {
	Date string `json:"date"`
}

// parseDateOrToday 解析 YYYY-MM-DD，为空时取今天。
func parseDateOrToday(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	return time.Parse(dateFormat, raw)
}

// SubmitDay 处理整日提交入口
func (a *API) SubmitDay(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	var payload submitDayPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	date, err := parseDateOrToday(payload.Date)
	if err != nil {
		respondError(c, http.StatusBadRequest, "日期格式应为 YYYY-MM-DD")
		return
	}

	result, err := a.progression.SubmitDay(c.Request.Context(), userID, date, service.DayInput{
		Note:              payload.Note,
		MoodScore:         payload.MoodScore,
		CompletedHabitIDs: payload.CompletedHabitIDs,
		RelapsedHabitIDs:  payload.RelapsedHabitIDs,
	})
	if err != nil {
		respondProgressionError(c, err)
		return
	}

	c.JSON(http.StatusOK, progressionResultToPayload(result))
}

// ToggleHabit 处理快捷打卡入口
func (a *API) ToggleHabit(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	habitID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "习惯 ID 不正确")
		return
	}

	var payload togglePayload
	if c.Request.ContentLength > 0 && !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	date, err := parseDateOrToday(payload.Date)
	if err != nil {
		respondError(c, http.StatusBadRequest, "日期格式应为 YYYY-MM-DD")
		return
	}

	result, err := a.progression.ToggleHabit(c.Request.Context(), userID, habitID, date)
	if err != nil {
		respondProgressionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"habit_id":    result.HabitID,
		"completed":   result.Completed,
		"progression": progressionResultToPayload(result.Result),
	})
}

// GetProgress 返回用户当前的成长总览
func (a *API) GetProgress(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	var user db.User
	if err := a.db.First(&user, userID).Error; err != nil {
		respondError(c, http.StatusNotFound, "用户不存在")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"experience_points": user.ExperiencePoints,
		"level":             user.Level,
		"current_streak":    user.CurrentStreak,
		"total_streaks":     user.TotalStreaks,
		"mental_toughness":  user.MentalToughness,
	})
}

// respondProgressionError 将结算层错误映射到 HTTP 状态码。
func respondProgressionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		respondError(c, http.StatusUnauthorized, "请先登录")
	case errors.Is(err, service.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "用户不存在")
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "习惯不存在")
	case errors.Is(err, service.ErrMoodOutOfRange):
		respondError(c, http.StatusBadRequest, "心情分数应在 1 到 5 之间")
	case errors.Is(err, service.ErrDateNotToday):
		respondError(c, http.StatusBadRequest, "只能结算今天的打卡")
	case errors.Is(err, service.ErrSubmitConflict):
		respondError(c, http.StatusConflict, "提交冲突，请稍后重试")
	default:
		respondError(c, http.StatusInternalServerError, "提交失败")
	}
}

func progressionResultToPayload(result *service.ProgressionResult) gin.H {
	unlocked := make([]gin.H, 0, len(result.AchievementsUnlocked))
	for _, achievement := range result.AchievementsUnlocked {
		unlocked = append(unlocked, gin.H{
			"id":          achievement.ID,
			"name":        achievement.Name,
			"description": achievement.Description,
			"points":      achievement.Points,
		})
	}

	return gin.H{
		"date":                  result.Date.Format(dateFormat),
		"current_streak":        result.CurrentStreak,
		"total_streaks":         result.TotalStreaks,
		"level":                 result.Level,
		"xp_gained":             result.XPGained,
		"total_xp":              result.TotalXP,
		"mental_toughness":      result.Toughness,
		"day_maintained":        result.DayMaintained,
		"completed_count":       result.CompletedCount,
		"relapsed_count":        result.RelapsedCount,
		"achievements_unlocked": unlocked,
	}
}
