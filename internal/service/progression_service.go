package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/habitlog/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound 在指定用户不存在时返回
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized 在调用方未提供用户身份时返回
	ErrUnauthorized = errors.New("user not authenticated")
	// ErrSubmitConflict 在事务重试耗尽后返回，调用方可安全重试
	ErrSubmitConflict = errors.New("submission conflicted with concurrent update, please retry")
	// ErrDateNotToday 在提交或打卡的日期不是今天时返回：过去的日子一经翻篇即只读
	ErrDateNotToday = errors.New("only the current day can be settled")
)

// maxSubmitAttempts 限定提交事务的重试次数，sqlite 写锁冲突时基于最新状态重算
const maxSubmitAttempts = 3

// ProgressionResult 汇总一次结算后所有变化的数值，供前端渲染
type ProgressionResult struct {
	Date                 time.Time
	CurrentStreak        int
	TotalStreaks         int
	Level                int
	XPGained             int
	TotalXP              int
	Toughness            int
	DayMaintained        bool
	CompletedCount       int
	RelapsedCount        int
	AchievementsUnlocked []db.Achievement
}

// ToggleResult 是快捷打卡路径的返回值
type ToggleResult struct {
	HabitID   uint
	Completed bool
	Result    *ProgressionResult
}

// ProgressionService 是成长结算的唯一入口：日志写入、统计重算、
// 经验/等级/韧性/连胜更新与成就解锁在同一个事务内要么全部提交要么全部回滚。
// 用户成长字段只能经由本服务修改。
type ProgressionService struct {
	db     *gorm.DB
	mentor MentorGenerator
}

// NewProgressionService 构造 ProgressionService。
func NewProgressionService(gdb *gorm.DB) *ProgressionService {
	return &ProgressionService{db: gdb}
}

// SetMentorGenerator 注入导师点评生成器，nil 表示关闭该能力。
func (s *ProgressionService) SetMentorGenerator(mentor MentorGenerator) {
	s.mentor = mentor
}

// SubmitDay 处理整日提交：写日志、重算统计、结算成长并评估成就。
// 只接受今天的日期，提交成功后在事务外异步触发导师点评，点评失败只记日志不回滚。
func (s *ProgressionService) SubmitDay(ctx context.Context, userID uint, date time.Time, input DayInput) (*ProgressionResult, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if err := ensureCurrentDay(date); err != nil {
		return nil, err
	}

	result, outcome, err := s.applyDayWithRetry(ctx, userID, date, func(*gorm.DB) (DayInput, error) {
		return input, nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatchMentorResponse(ctx, userID, outcome, result)

	return result, nil
}

// BackfillDay 为历史日期执行与整日提交相同的结算，供数据回填工具使用：
// 调用方必须按日期从旧到新依次提交，否则连胜计数会失真。不触发导师点评。
func (s *ProgressionService) BackfillDay(ctx context.Context, userID uint, date time.Time, input DayInput) (*ProgressionResult, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}

	result, _, err := s.applyDayWithRetry(ctx, userID, date, func(*gorm.DB) (DayInput, error) {
		return input, nil
	})
	return result, err
}

// ToggleHabit 处理快捷打卡：翻转单个习惯的完成位，其余条目与备注保持不变，
// 随后将当天整体走一遍与整日提交完全相同的结算管线，两条入口共用一套计分规则。
// 读取与翻转在结算事务内完成，冲突重试时基于最新条目重建输入，并发打卡互不覆盖。
func (s *ProgressionService) ToggleHabit(ctx context.Context, userID, habitID uint, date time.Time) (*ToggleResult, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if err := ensureCurrentDay(date); err != nil {
		return nil, err
	}

	var habit db.Habit
	if err := s.db.First(&habit, habitID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("load habit: %w", err)
	}

	var completed bool
	result, _, err := s.applyDayWithRetry(ctx, userID, date, func(tx *gorm.DB) (DayInput, error) {
		input, targetCompleted, buildErr := buildToggleInput(tx, userID, habitID, date)
		if buildErr != nil {
			return DayInput{}, buildErr
		}
		completed = targetCompleted
		return input, nil
	})
	if err != nil {
		return nil, err
	}

	return &ToggleResult{HabitID: habitID, Completed: completed, Result: result}, nil
}

// ensureCurrentDay 约束结算入口只接受今天的日期。
func ensureCurrentDay(date time.Time) error {
	if !db.NormalizeDate(date).Equal(db.NormalizeDate(time.Now())) {
		return ErrDateNotToday
	}
	return nil
}

// buildToggleInput 在事务内读取当天现有条目并翻转目标习惯，生成等价的整日输入。
func buildToggleInput(tx *gorm.DB, userID, habitID uint, date time.Time) (DayInput, bool, error) {
	var input DayInput
	targetCompleted := true

	var existing db.DailyLog
	err := tx.Preload("Entries").
		Where("user_id = ? AND log_date = ?", userID, db.NormalizeDate(date)).
		First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return input, false, fmt.Errorf("load daily log: %w", err)
	}

	if err == nil {
		input.Note = existing.Note
		input.MoodScore = existing.MoodScore
		for _, entry := range existing.Entries {
			completed := entry.Completed
			if entry.HabitID == habitID {
				completed = !completed
				targetCompleted = completed
			}
			if completed {
				input.CompletedHabitIDs = append(input.CompletedHabitIDs, entry.HabitID)
			}
			if entry.Relapsed {
				input.RelapsedHabitIDs = append(input.RelapsedHabitIDs, entry.HabitID)
			}
		}
	}

	if targetCompleted {
		input.CompletedHabitIDs = appendUnique(input.CompletedHabitIDs, habitID)
	}

	return input, targetCompleted, nil
}

// applyDayWithRetry 在有限次数内重试结算事务。输入由 build 在每次尝试的事务内
// 重新构建，冲突重试不会沿用上一轮的快照。
func (s *ProgressionService) applyDayWithRetry(ctx context.Context, userID uint, date time.Time, build func(tx *gorm.DB) (DayInput, error)) (*ProgressionResult, *DayOutcome, error) {
	var result *ProgressionResult
	var outcome *DayOutcome

	var lastErr error
	for attempt := 0; attempt < maxSubmitAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			input, buildErr := build(tx)
			if buildErr != nil {
				return buildErr
			}
			var txErr error
			result, outcome, txErr = applyDay(tx, userID, date, input)
			return txErr
		})
		if err == nil {
			return result, outcome, nil
		}
		if !isRetryableConflict(err) {
			return nil, nil, err
		}
		lastErr = err
	}

	return nil, nil, fmt.Errorf("%w: %v", ErrSubmitConflict, lastErr)
}

// applyDay 是结算事务的主体，全部写入共享同一个 tx：
// 任何一步失败整体回滚，不留下半套状态。
func applyDay(tx *gorm.DB, userID uint, date time.Time, input DayInput) (*ProgressionResult, *DayOutcome, error) {
	var user db.User
	if err := tx.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	logDate := db.NormalizeDate(date)

	// 同日旧统计：重提交时先回退其贡献再入账新值，保证单日幂等
	var prior db.DailyStat
	hasPrior := true
	if err := tx.Where("user_id = ? AND stat_date = ?", userID, logDate).First(&prior).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("load prior stat: %w", err)
		}
		hasPrior = false
	}

	// 前一天的守住状态决定是否算新的连胜段
	prevDayMaintained := false
	var prevStat db.DailyStat
	if err := tx.Where("user_id = ? AND stat_date = ?", userID, logDate.AddDate(0, 0, -1)).
		First(&prevStat).Error; err == nil {
		prevDayMaintained = prevStat.DayMaintained
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("load previous stat: %w", err)
	}

	outcome, err := recordDay(tx, userID, date, input)
	if err != nil {
		return nil, nil, err
	}

	delta := ComputeDayDelta(outcome.CompletedCount, outcome.RelapsedCount, outcome.MorningCompleted, outcome.TotalForDay)

	streak := StreakState{Current: user.CurrentStreak, Total: user.TotalStreaks}
	toughness := user.MentalToughness
	grantXP := delta.XP

	if hasPrior {
		// 回退同日旧贡献；经验只增不减，重提交最多补齐差额
		if prior.DayMaintained {
			if streak.Current > 0 {
				streak.Current--
			}
			if !prevDayMaintained && streak.Total > 0 {
				streak.Total--
			}
		}
		toughness -= prior.ToughnessGained
		grantXP = delta.XP - prior.XPGained
		if grantXP < 0 {
			grantXP = 0
		}
	}

	streak = ApplyStreak(streak, outcome.DayMaintained, prevDayMaintained)

	user.ExperiencePoints += grantXP
	user.Level = LevelFromXP(user.ExperiencePoints)
	user.MentalToughness = ClampToughness(toughness + delta.Toughness)
	user.CurrentStreak = streak.Current
	user.TotalStreaks = streak.Total

	// 统计里记录钳制后真正生效的韧性增量，重提交回退时才能恰好还原
	applied := delta
	applied.Toughness = user.MentalToughness - toughness
	if _, err := upsertDailyStat(tx, userID, date, outcome, applied); err != nil {
		return nil, nil, err
	}

	// 只更新成长字段，避免覆盖其他写入路径负责的列
	if err := tx.Model(&db.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"experience_points": user.ExperiencePoints,
		"level":             user.Level,
		"current_streak":    user.CurrentStreak,
		"total_streaks":     user.TotalStreaks,
		"mental_toughness":  user.MentalToughness,
	}).Error; err != nil {
		return nil, nil, fmt.Errorf("update user progression: %w", err)
	}

	unlocked, err := evaluateAndUnlock(tx, userID, ProgressSnapshot{
		Level:         user.Level,
		CurrentStreak: user.CurrentStreak,
		TotalXP:       user.ExperiencePoints,
	})
	if err != nil {
		return nil, nil, err
	}

	result := &ProgressionResult{
		Date:                 logDate,
		CurrentStreak:        user.CurrentStreak,
		TotalStreaks:         user.TotalStreaks,
		Level:                user.Level,
		XPGained:             grantXP,
		TotalXP:              user.ExperiencePoints,
		Toughness:            user.MentalToughness,
		DayMaintained:        outcome.DayMaintained,
		CompletedCount:       outcome.CompletedCount,
		RelapsedCount:        outcome.RelapsedCount,
		AchievementsUnlocked: unlocked,
	}

	return result, outcome, nil
}

// dispatchMentorResponse 在提交完成后异步生成导师点评。
// 生成失败只记录日志，已提交的成长数据不受影响。
func (s *ProgressionService) dispatchMentorResponse(ctx context.Context, userID uint, outcome *DayOutcome, result *ProgressionResult) {
	if s.mentor == nil || outcome == nil || outcome.Log == nil {
		return
	}

	payload := MentorInput{
		UserID:     userID,
		DailyLogID: outcome.Log.ID,
		Date:       result.Date,
		Streak:     result.CurrentStreak,
		Reflection: outcome.Log.Note,
		Completed:  result.CompletedCount,
		Relapsed:   result.RelapsedCount,
	}

	go func() {
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mentorGenerateTimeout)
		defer cancel()

		if _, err := s.mentor.GenerateResponse(genCtx, payload); err != nil {
			log.Printf("[mentor] generate response failed for user=%d date=%s: %v",
				userID, result.Date.Format("2006-01-02"), err)
		}
	}()
}

// isRetryableConflict 识别可重试的写冲突：sqlite 写锁，以及同日并发写入
// 撞在日志/条目/统计唯一索引上的情况，重试会基于已提交的最新状态重建。
func isRetryableConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy") {
		return true
	}
	if strings.Contains(msg, "unique constraint failed") {
		return strings.Contains(msg, "daily_logs") ||
			strings.Contains(msg, "habit_entries") ||
			strings.Contains(msg, "daily_stats")
	}
	return false
}

func hasID(ids []uint, id uint) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func appendUnique(ids []uint, id uint) []uint {
	if hasID(ids, id) {
		return ids
	}
	return append(ids, id)
}
