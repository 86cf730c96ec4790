package handler

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	noteSanitizer = bluemonday.UGCPolicy()
)

// renderNoteHTML 将反思 Markdown 渲染为净化后的 HTML。
func renderNoteHTML(note string) string {
	if note == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(note), &buf); err != nil {
		return ""
	}
	return noteSanitizer.Sanitize(buf.String())
}

// ListDays 返回区间内的日志与统计，默认最近 30 天
func (a *API) ListDays(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	end := time.Now()
	start := end.AddDate(0, 0, -29)

	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse(dateFormat, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "start 日期格式应为 YYYY-MM-DD")
			return
		}
		start = parsed
	}
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse(dateFormat, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "end 日期格式应为 YYYY-MM-DD")
			return
		}
		end = parsed
	}

	filter := service.DailyLogFilter{UserID: userID, Start: start, End: end}

	logs, err := a.dailyLogs.ListRange(filter)
	if err != nil {
		respondError(c, http.StatusBadRequest, "获取日志失败")
		return
	}

	stats, err := a.dailyLogs.StatsRange(filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取统计失败")
		return
	}

	statByDate := make(map[string]db.DailyStat, len(stats))
	for _, stat := range stats {
		statByDate[stat.StatDate.Format(dateFormat)] = stat
	}

	days := make([]gin.H, 0, len(logs))
	for _, record := range logs {
		day := dailyLogToPayload(record)
		if stat, ok := statByDate[record.LogDate.Format(dateFormat)]; ok {
			day["stats"] = dailyStatToPayload(stat)
		}
		days = append(days, day)
	}

	c.JSON(http.StatusOK, gin.H{
		"range": gin.H{"start": start.Format(dateFormat), "end": end.Format(dateFormat)},
		"days":  days,
	})
}

// GetDay 返回指定日期的日志、统计与导师点评
func (a *API) GetDay(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		respondError(c, http.StatusUnauthorized, "请先登录")
		return
	}

	date, err := time.Parse(dateFormat, c.Param("date"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "日期格式应为 YYYY-MM-DD")
		return
	}

	record, err := a.dailyLogs.GetDay(userID, date)
	if err != nil {
		if errors.Is(err, service.ErrLogNotFound) {
			respondError(c, http.StatusNotFound, "当天没有日志")
			return
		}
		respondError(c, http.StatusInternalServerError, "获取日志失败")
		return
	}

	payload := dailyLogToPayload(*record)

	if mentorResponse, err := a.mentor.LatestForDate(userID, date); err == nil {
		payload["mentor_response"] = gin.H{
			"content":      mentorResponse.Content,
			"provider":     mentorResponse.Provider,
			"generated_at": mentorResponse.GeneratedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, payload)
}

func dailyLogToPayload(record db.DailyLog) gin.H {
	entries := make([]gin.H, 0, len(record.Entries))
	for _, entry := range record.Entries {
		entries = append(entries, gin.H{
			"habit_id":   entry.HabitID,
			"habit_name": entry.Habit.Name,
			"time_block": entry.Habit.TimeBlock,
			"completed":  entry.Completed,
			"relapsed":   entry.Relapsed,
		})
	}

	payload := gin.H{
		"date":      record.LogDate.Format(dateFormat),
		"note":      record.Note,
		"note_html": renderNoteHTML(record.Note),
		"entries":   entries,
	}
	if record.MoodScore != nil {
		payload["mood_score"] = *record.MoodScore
	}
	return payload
}

func dailyStatToPayload(stat db.DailyStat) gin.H {
	return gin.H{
		"completed_count":   stat.CompletedCount,
		"relapsed_count":    stat.RelapsedCount,
		"morning_completed": stat.MorningCompleted,
		"day_maintained":    stat.DayMaintained,
		"xp_gained":         stat.XPGained,
		"toughness_gained":  stat.ToughnessGained,
	}
}
