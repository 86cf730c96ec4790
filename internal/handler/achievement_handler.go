package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/service"
)

type achievementPayload struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Points         int    `json:"points"`
	ConditionType  string `json:"condition_type"`
	ConditionValue int    `json:"condition_value"`
}

// ListAchievements 返回完整的成就目录
func (a *API) ListAchievements(c *gin.Context) {
	achievements, err := a.achievements.List()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取成就目录失败")
		return
	}

	items := make([]gin.H, 0, len(achievements))
	for _, achievement := range achievements {
		items = append(items, gin.H{
			"id":              achievement.ID,
			"name":            achievement.Name,
			"description":     achievement.Description,
			"points":          achievement.Points,
			"condition_type":  achievement.ConditionType,
			"condition_value": achievement.ConditionValue,
		})
	}

	c.JSON(http.StatusOK, gin.H{"achievements": items})
}

// ListMyAchievements 返回当前用户已解锁的成就
func (a *API) ListMyAchievements(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	records, err := a.achievements.ListUnlocked(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取已解锁成就失败")
		return
	}

	items := make([]gin.H, 0, len(records))
	for _, record := range records {
		items = append(items, gin.H{
			"id":          record.Achievement.ID,
			"name":        record.Achievement.Name,
			"description": record.Achievement.Description,
			"points":      record.Achievement.Points,
			"unlocked_at": record.UnlockedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"achievements": items})
}

// CreateAchievement 新建成就目录条目
func (a *API) CreateAchievement(c *gin.Context) {
	var payload achievementPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	achievement, err := a.achievements.Create(service.AchievementInput{
		Name:           payload.Name,
		Description:    payload.Description,
		Points:         payload.Points,
		ConditionType:  payload.ConditionType,
		ConditionValue: payload.ConditionValue,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidCondition) {
			respondError(c, http.StatusBadRequest, "解锁条件配置不正确")
			return
		}
		respondError(c, http.StatusInternalServerError, "创建成就失败")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": achievement.ID})
}
