package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
)

type habitPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TimeBlock   string `json:"time_block"`
	Relapsable  bool   `json:"relapsable"`
	TypeTag     string `json:"type_tag"`
	Status      string `json:"status"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

// ListHabits 返回习惯列表 JSON
func (a *API) ListHabits(c *gin.Context) {
	filter := service.HabitFilter{
		Status:  c.Query("status"),
		TypeTag: c.Query("type_tag"),
		Search:  c.Query("search"),
	}

	habits, err := a.habits.List(filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取习惯列表失败")
		return
	}

	items := make([]gin.H, 0, len(habits))
	for _, habit := range habits {
		items = append(items, habitToPayload(habit))
	}

	c.JSON(http.StatusOK, gin.H{"habits": items})
}

// GetHabit 返回单个习惯
func (a *API) GetHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "习惯 ID 不正确")
		return
	}

	habit, err := a.habits.Get(id)
	if err != nil {
		if errors.Is(err, service.ErrHabitNotFound) {
			respondError(c, http.StatusNotFound, "习惯不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "获取习惯失败")
		return
	}

	c.JSON(http.StatusOK, habitToPayload(*habit))
}

// CreateHabit 新建习惯
func (a *API) CreateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	input, ok := habitInputFromPayload(c, payload)
	if !ok {
		return
	}

	habit, err := a.habits.Create(input)
	if err != nil {
		if errors.Is(err, service.ErrHabitInvalidTimeBlock) {
			respondError(c, http.StatusBadRequest, "时段配置不正确")
			return
		}
		respondError(c, http.StatusBadRequest, "创建习惯失败")
		return
	}

	c.JSON(http.StatusCreated, habitToPayload(*habit))
}

// UpdateHabit 更新习惯
func (a *API) UpdateHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "习惯 ID 不正确")
		return
	}

	var payload habitPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	input, ok := habitInputFromPayload(c, payload)
	if !ok {
		return
	}

	habit, err := a.habits.Update(id, input)
	if err != nil {
		if errors.Is(err, service.ErrHabitNotFound) {
			respondError(c, http.StatusNotFound, "习惯不存在")
			return
		}
		if errors.Is(err, service.ErrHabitInvalidTimeBlock) {
			respondError(c, http.StatusBadRequest, "时段配置不正确")
			return
		}
		respondError(c, http.StatusBadRequest, "更新习惯失败")
		return
	}

	c.JSON(http.StatusOK, habitToPayload(*habit))
}

// DeleteHabit 删除习惯
func (a *API) DeleteHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "习惯 ID 不正确")
		return
	}

	if err := a.habits.Delete(id); err != nil {
		respondError(c, http.StatusInternalServerError, "删除习惯失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func habitInputFromPayload(c *gin.Context, payload habitPayload) (service.HabitInput, bool) {
	input := service.HabitInput{
		Name:        payload.Name,
		Description: payload.Description,
		TimeBlock:   payload.TimeBlock,
		Relapsable:  payload.Relapsable,
		TypeTag:     payload.TypeTag,
		Status:      payload.Status,
	}

	if payload.StartDate != "" {
		parsed, err := time.Parse(dateFormat, payload.StartDate)
		if err != nil {
			respondError(c, http.StatusBadRequest, "start_date 日期格式应为 YYYY-MM-DD")
			return input, false
		}
		input.StartDate = &parsed
	}
	if payload.EndDate != "" {
		parsed, err := time.Parse(dateFormat, payload.EndDate)
		if err != nil {
			respondError(c, http.StatusBadRequest, "end_date 日期格式应为 YYYY-MM-DD")
			return input, false
		}
		input.EndDate = &parsed
	}

	return input, true
}

func habitToPayload(habit db.Habit) gin.H {
	payload := gin.H{
		"id":          habit.ID,
		"name":        habit.Name,
		"description": habit.Description,
		"time_block":  habit.TimeBlock,
		"relapsable":  habit.Relapsable,
		"type_tag":    habit.TypeTag,
		"status":      habit.Status,
	}
	if habit.StartDate != nil {
		payload["start_date"] = habit.StartDate.Format(dateFormat)
	}
	if habit.EndDate != nil {
		payload["end_date"] = habit.EndDate.Format(dateFormat)
	}
	return payload
}
