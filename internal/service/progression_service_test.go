package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/habitlog/internal/db"
)

type stubMentor struct {
	called chan MentorInput
	err    error
}

func (s *stubMentor) GenerateResponse(ctx context.Context, input MentorInput) (MentorResult, error) {
	if s.called != nil {
		s.called <- input
	}
	if s.err != nil {
		return MentorResult{}, s.err
	}
	return MentorResult{Content: "做得不错"}, nil
}

func reloadUser(t *testing.T, id uint) *db.User {
	t.Helper()
	var user db.User
	if err := db.DB.First(&user, id).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	return &user
}

func seedPrevDayStat(t *testing.T, userID uint, date time.Time, maintained bool) {
	t.Helper()
	stat := db.DailyStat{
		UserID:        userID,
		StatDate:      db.NormalizeDate(date),
		DayMaintained: maintained,
	}
	if err := db.DB.Create(&stat).Error; err != nil {
		t.Fatalf("failed to seed stat: %v", err)
	}
}

func TestSubmitDayExtendsStreak(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	db.DB.Model(user).Updates(map[string]interface{}{"current_streak": 3, "total_streaks": 1})

	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)
	read := createTestHabit(t, "夜读", db.TimeBlockEvening, false)
	createTestHabit(t, "冥想", db.TimeBlockEvening, false)

	date := time.Now()
	seedPrevDayStat(t, user.ID, date.AddDate(0, 0, -1), true)

	svc := NewProgressionService(db.DB)
	result, err := svc.SubmitDay(context.Background(), user.ID, date, DayInput{
		Note:              "差一项全勤",
		CompletedHabitIDs: []uint{run.ID, read.ID},
		RelapsedHabitIDs:  nil,
	})
	if err != nil {
		t.Fatalf("SubmitDay returned error: %v", err)
	}

	if result.CurrentStreak != 4 {
		t.Fatalf("expected streak 4, got %d", result.CurrentStreak)
	}
	if result.TotalStreaks != 1 {
		t.Fatalf("expected total streaks unchanged, got %d", result.TotalStreaks)
	}
	if result.XPGained != 20 {
		t.Fatalf("expected 20 xp, got %d", result.XPGained)
	}
	// 2 完成 ×10 + 1 晨间 ×5，无全勤奖励
	if result.Toughness != 25 {
		t.Fatalf("expected toughness 25, got %d", result.Toughness)
	}
	if result.Level != 1 {
		t.Fatalf("expected level 1, got %d", result.Level)
	}

	stored := reloadUser(t, user.ID)
	if stored.CurrentStreak != 4 || stored.ExperiencePoints != 20 {
		t.Fatalf("user row not updated: %+v", stored)
	}
}

func TestSubmitDayZeroCompletionsBreaksStreak(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	db.DB.Model(user).Updates(map[string]interface{}{"current_streak": 3, "total_streaks": 1})

	date := time.Now()
	seedPrevDayStat(t, user.ID, date.AddDate(0, 0, -1), true)

	svc := NewProgressionService(db.DB)
	result, err := svc.SubmitDay(context.Background(), user.ID, date, DayInput{Note: "今天没做任何事"})
	if err != nil {
		t.Fatalf("SubmitDay returned error: %v", err)
	}

	if result.CurrentStreak != 0 {
		t.Fatalf("expected streak reset, got %d", result.CurrentStreak)
	}
	if result.TotalStreaks != 1 {
		t.Fatalf("expected total streaks unchanged, got %d", result.TotalStreaks)
	}
	if result.DayMaintained {
		t.Fatal("expected day not maintained")
	}
}

func TestSubmitDayResubmissionIsIdempotent(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)
	read := createTestHabit(t, "夜读", db.TimeBlockEvening, false)

	date := time.Now()
	input := DayInput{CompletedHabitIDs: []uint{run.ID, read.ID}}

	svc := NewProgressionService(db.DB)
	first, err := svc.SubmitDay(context.Background(), user.ID, date, input)
	if err != nil {
		t.Fatalf("first SubmitDay returned error: %v", err)
	}

	second, err := svc.SubmitDay(context.Background(), user.ID, date, input)
	if err != nil {
		t.Fatalf("second SubmitDay returned error: %v", err)
	}

	if second.CurrentStreak != first.CurrentStreak {
		t.Fatalf("streak double-counted: first %d, second %d", first.CurrentStreak, second.CurrentStreak)
	}
	if second.TotalXP != first.TotalXP {
		t.Fatalf("xp double-counted: first %d, second %d", first.TotalXP, second.TotalXP)
	}
	if second.Toughness != first.Toughness {
		t.Fatalf("toughness double-counted: first %d, second %d", first.Toughness, second.Toughness)
	}
	if second.TotalStreaks != first.TotalStreaks {
		t.Fatalf("total streaks double-counted: first %d, second %d", first.TotalStreaks, second.TotalStreaks)
	}
}

func TestSubmitDayDowngradeKeepsXPMonotonic(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)
	read := createTestHabit(t, "夜读", db.TimeBlockEvening, false)

	date := time.Now()

	svc := NewProgressionService(db.DB)
	first, err := svc.SubmitDay(context.Background(), user.ID, date, DayInput{CompletedHabitIDs: []uint{run.ID, read.ID}})
	if err != nil {
		t.Fatalf("first SubmitDay returned error: %v", err)
	}

	// 重提交减少完成数：经验只增不减，当日统计仍按新集合重算
	second, err := svc.SubmitDay(context.Background(), user.ID, date, DayInput{CompletedHabitIDs: []uint{run.ID}})
	if err != nil {
		t.Fatalf("second SubmitDay returned error: %v", err)
	}

	if second.TotalXP < first.TotalXP {
		t.Fatalf("xp decreased from %d to %d", first.TotalXP, second.TotalXP)
	}
	if second.CompletedCount != 1 {
		t.Fatalf("expected recomputed stats, got %d completions", second.CompletedCount)
	}

	var stat db.DailyStat
	if err := db.DB.Where("user_id = ? AND stat_date = ?", user.ID, db.NormalizeDate(date)).First(&stat).Error; err != nil {
		t.Fatalf("failed to load stat: %v", err)
	}
	if stat.CompletedCount != 1 || stat.XPGained != 10 {
		t.Fatalf("expected stat to reflect final submission, got %+v", stat)
	}
}

func TestSubmitDayLevelUp(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	db.DB.Model(user).Update("experience_points", 980)

	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)
	read := createTestHabit(t, "夜读", db.TimeBlockEvening, false)
	meditate := createTestHabit(t, "冥想", db.TimeBlockEvening, false)

	svc := NewProgressionService(db.DB)
	result, err := svc.SubmitDay(context.Background(), user.ID, time.Now(), DayInput{
		CompletedHabitIDs: []uint{run.ID, read.ID, meditate.ID},
	})
	if err != nil {
		t.Fatalf("SubmitDay returned error: %v", err)
	}

	if result.TotalXP != 1010 {
		t.Fatalf("expected 1010 xp, got %d", result.TotalXP)
	}
	if result.Level != 2 {
		t.Fatalf("expected level 2 after crossing 1000 xp, got %d", result.Level)
	}
}

func TestSubmitDayUnlocksStreakAchievementOnce(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	db.DB.Model(user).Updates(map[string]interface{}{"current_streak": 6, "total_streaks": 1})

	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)
	target := createTestAchievement(t, "七日之约", db.ConditionStreak, 7)

	date := time.Now()
	seedPrevDayStat(t, user.ID, date.AddDate(0, 0, -1), true)

	svc := NewProgressionService(db.DB)
	input := DayInput{CompletedHabitIDs: []uint{run.ID}}

	first, err := svc.SubmitDay(context.Background(), user.ID, date, input)
	if err != nil {
		t.Fatalf("SubmitDay returned error: %v", err)
	}
	if len(first.AchievementsUnlocked) != 1 || first.AchievementsUnlocked[0].ID != target.ID {
		t.Fatalf("expected streak achievement to unlock, got %+v", first.AchievementsUnlocked)
	}

	second, err := svc.SubmitDay(context.Background(), user.ID, date, input)
	if err != nil {
		t.Fatalf("resubmit returned error: %v", err)
	}
	if len(second.AchievementsUnlocked) != 0 {
		t.Fatal("achievement unlocked twice")
	}

	var rowCount int64
	db.DB.Model(&db.UserAchievement{}).
		Where("user_id = ? AND achievement_id = ?", user.ID, target.ID).
		Count(&rowCount)
	if rowCount != 1 {
		t.Fatalf("expected a single unlock row, got %d", rowCount)
	}
}

func TestToggleHabitFlipsCompletion(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)

	date := time.Now()
	svc := NewProgressionService(db.DB)

	on, err := svc.ToggleHabit(context.Background(), user.ID, run.ID, date)
	if err != nil {
		t.Fatalf("first toggle returned error: %v", err)
	}
	if !on.Completed {
		t.Fatal("expected first toggle to complete the habit")
	}
	if on.Result.CurrentStreak != 1 {
		t.Fatalf("expected streak 1 after first completion, got %d", on.Result.CurrentStreak)
	}

	off, err := svc.ToggleHabit(context.Background(), user.ID, run.ID, date)
	if err != nil {
		t.Fatalf("second toggle returned error: %v", err)
	}
	if off.Completed {
		t.Fatal("expected second toggle to undo completion")
	}
	if off.Result.CurrentStreak != 0 {
		t.Fatalf("expected streak back to 0, got %d", off.Result.CurrentStreak)
	}

	// 经验只增不减：取消完成不回收已入账经验
	stored := reloadUser(t, user.ID)
	if stored.ExperiencePoints != 10 {
		t.Fatalf("expected xp to stay at 10, got %d", stored.ExperiencePoints)
	}

	if _, err := svc.ToggleHabit(context.Background(), user.ID, 9999, date); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}
}

func TestSubmitDayRequiresUser(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	svc := NewProgressionService(db.DB)

	if _, err := svc.SubmitDay(context.Background(), 0, time.Now(), DayInput{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.SubmitDay(context.Background(), 424242, time.Now(), DayInput{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSubmitDayFailureLeavesStateIntact(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)

	date := time.Now()
	svc := NewProgressionService(db.DB)

	first, err := svc.SubmitDay(context.Background(), user.ID, date, DayInput{CompletedHabitIDs: []uint{run.ID}})
	if err != nil {
		t.Fatalf("SubmitDay returned error: %v", err)
	}

	// 引用不存在的习惯：整个事务回滚，之前提交的状态保持不变
	_, err = svc.SubmitDay(context.Background(), user.ID, date, DayInput{CompletedHabitIDs: []uint{run.ID, 9999}})
	if !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}

	stored := reloadUser(t, user.ID)
	if stored.ExperiencePoints != first.TotalXP || stored.CurrentStreak != first.CurrentStreak {
		t.Fatalf("failed submission mutated user state: %+v", stored)
	}

	var entryCount int64
	db.DB.Model(&db.HabitEntry{}).Count(&entryCount)
	if entryCount != 1 {
		t.Fatalf("expected original entry to survive, got %d", entryCount)
	}
}

func TestSubmitDayMentorFailureDoesNotRollBack(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)

	mentor := &stubMentor{called: make(chan MentorInput, 1), err: errors.New("model unavailable")}

	svc := NewProgressionService(db.DB)
	svc.SetMentorGenerator(mentor)

	result, err := svc.SubmitDay(context.Background(), user.ID, time.Now(), DayInput{
		Note:              "坚持住了",
		CompletedHabitIDs: []uint{run.ID},
	})
	if err != nil {
		t.Fatalf("SubmitDay returned error despite mentor failure: %v", err)
	}
	if result.CurrentStreak != 1 {
		t.Fatalf("expected progression to commit, got streak %d", result.CurrentStreak)
	}

	select {
	case payload := <-mentor.called:
		if payload.Streak != 1 || payload.Reflection != "坚持住了" {
			t.Fatalf("unexpected mentor payload: %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("mentor generator was never invoked")
	}

	stored := reloadUser(t, user.ID)
	if stored.ExperiencePoints != result.TotalXP {
		t.Fatal("committed progression was rolled back")
	}
}

func TestToggleHabitConcurrentTogglesKeepBoth(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)
	read := createTestHabit(t, "夜读", db.TimeBlockEvening, false)

	svc := NewProgressionService(db.DB)
	date := time.Now()

	// 两个习惯在同一天同时打卡：后提交的一方必须基于已提交的状态重算，
	// 不允许覆盖另一方的翻转
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, habitID := range []uint{run.ID, read.ID} {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			var err error
			for attempt := 0; attempt < 10; attempt++ {
				_, err = svc.ToggleHabit(context.Background(), user.ID, id, date)
				if !errors.Is(err, ErrSubmitConflict) {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			errs <- err
		}(habitID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("toggle returned error: %v", err)
		}
	}

	record, err := NewDailyLogService(db.DB).GetDay(user.ID, date)
	if err != nil {
		t.Fatalf("failed to load day: %v", err)
	}
	if len(record.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(record.Entries))
	}
	for _, entry := range record.Entries {
		if !entry.Completed {
			t.Fatalf("habit %d lost its completion", entry.HabitID)
		}
	}

	var stat db.DailyStat
	if err := db.DB.Where("user_id = ? AND stat_date = ?", user.ID, db.NormalizeDate(date)).First(&stat).Error; err != nil {
		t.Fatalf("failed to load stat: %v", err)
	}
	if stat.CompletedCount != 2 {
		t.Fatalf("expected 2 completions in stat, got %d", stat.CompletedCount)
	}

	stored := reloadUser(t, user.ID)
	if stored.ExperiencePoints != 20 {
		t.Fatalf("expected 20 xp for two habits, got %d", stored.ExperiencePoints)
	}
	if stored.CurrentStreak != 1 {
		t.Fatalf("expected streak 1, got %d", stored.CurrentStreak)
	}
}

func TestBackfillDaySameCalendarDayAcrossZones(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)

	svc := NewProgressionService(db.DB)

	// 同一个日历日的两种表示：带时区的本地时刻与解析出的 UTC 日期
	morning := time.Date(2026, 3, 10, 9, 0, 0, 0, time.FixedZone("UTC+8", 8*3600))
	parsed, err := time.Parse("2006-01-02", "2026-03-10")
	if err != nil {
		t.Fatalf("failed to parse date: %v", err)
	}

	input := DayInput{CompletedHabitIDs: []uint{run.ID}}
	if _, err := svc.BackfillDay(context.Background(), user.ID, morning, input); err != nil {
		t.Fatalf("first settle returned error: %v", err)
	}
	if _, err := svc.BackfillDay(context.Background(), user.ID, parsed, input); err != nil {
		t.Fatalf("second settle returned error: %v", err)
	}

	var logCount, statCount int64
	db.DB.Model(&db.DailyLog{}).Where("user_id = ?", user.ID).Count(&logCount)
	db.DB.Model(&db.DailyStat{}).Where("user_id = ?", user.ID).Count(&statCount)
	if logCount != 1 || statCount != 1 {
		t.Fatalf("one calendar day split into logs=%d stats=%d", logCount, statCount)
	}

	stored := reloadUser(t, user.ID)
	if stored.ExperiencePoints != 10 {
		t.Fatalf("xp double-counted across zones: got %d", stored.ExperiencePoints)
	}
	if stored.CurrentStreak != 1 {
		t.Fatalf("streak double-counted across zones: got %d", stored.CurrentStreak)
	}
}

func TestSubmitDayRejectsNonCurrentDates(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)

	svc := NewProgressionService(db.DB)
	input := DayInput{CompletedHabitIDs: []uint{run.ID}}

	yesterday := time.Now().AddDate(0, 0, -1)
	if _, err := svc.SubmitDay(context.Background(), user.ID, yesterday, input); !errors.Is(err, ErrDateNotToday) {
		t.Fatalf("expected ErrDateNotToday for past date, got %v", err)
	}
	tomorrow := time.Now().AddDate(0, 0, 1)
	if _, err := svc.SubmitDay(context.Background(), user.ID, tomorrow, input); !errors.Is(err, ErrDateNotToday) {
		t.Fatalf("expected ErrDateNotToday for future date, got %v", err)
	}
	if _, err := svc.ToggleHabit(context.Background(), user.ID, run.ID, yesterday); !errors.Is(err, ErrDateNotToday) {
		t.Fatalf("expected ErrDateNotToday for past toggle, got %v", err)
	}

	// 回填入口不受今天限制，留给按时间顺序灌数据的工具
	if _, err := svc.BackfillDay(context.Background(), user.ID, yesterday, input); err != nil {
		t.Fatalf("BackfillDay returned error: %v", err)
	}
}

func TestSubmitDayToughnessClampIsReversible(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	db.DB.Model(user).Update("mental_toughness", 90)

	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)
	walk := createTestHabit(t, "快走", db.TimeBlockMorning, false)

	date := time.Now()
	svc := NewProgressionService(db.DB)

	// 2 完成 ×10 + 2 晨间 ×5 + 全勤 20 = 50，从 90 起算被钳制在 100
	first, err := svc.SubmitDay(context.Background(), user.ID, date, DayInput{CompletedHabitIDs: []uint{run.ID, walk.ID}})
	if err != nil {
		t.Fatalf("first SubmitDay returned error: %v", err)
	}
	if first.Toughness != 100 {
		t.Fatalf("expected toughness clamped to 100, got %d", first.Toughness)
	}

	var stat db.DailyStat
	if err := db.DB.Where("user_id = ? AND stat_date = ?", user.ID, db.NormalizeDate(date)).First(&stat).Error; err != nil {
		t.Fatalf("failed to load stat: %v", err)
	}
	// 统计存的是实际生效的 10 而不是钳制前的 50
	if stat.ToughnessGained != 10 {
		t.Fatalf("expected applied toughness 10 in stat, got %d", stat.ToughnessGained)
	}

	// 重提交只完成一项：回退 10 至 90，再入账 10+5=15，仍钳制在 100
	second, err := svc.SubmitDay(context.Background(), user.ID, date, DayInput{CompletedHabitIDs: []uint{run.ID}})
	if err != nil {
		t.Fatalf("second SubmitDay returned error: %v", err)
	}
	if second.Toughness != 100 {
		t.Fatalf("expected toughness to stay at 100 after resubmission, got %d", second.Toughness)
	}
}
