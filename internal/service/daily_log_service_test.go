package service

import (
	"errors"
	"testing"
	"time"

	"github.com/habitlog/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupProgressionTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=2000"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(
		&db.User{}, &db.Habit{}, &db.DailyLog{}, &db.HabitEntry{},
		&db.DailyStat{}, &db.Achievement{}, &db.UserAchievement{},
		&db.MentorResponse{}, &db.SystemSetting{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func createTestUser(t *testing.T) *db.User {
	t.Helper()
	user := db.User{Username: "tester", Password: "secret", Level: 1}
	if err := db.DB.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return &user
}

func createTestHabit(t *testing.T, name, block string, relapsable bool) *db.Habit {
	t.Helper()
	habit := db.Habit{Name: name, TimeBlock: block, Relapsable: relapsable, Status: "active"}
	if err := db.DB.Create(&habit).Error; err != nil {
		t.Fatalf("failed to create habit %s: %v", name, err)
	}
	return &habit
}

func TestRecordDayCreatesLogAndEntries(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)
	read := createTestHabit(t, "夜读", db.TimeBlockEvening, false)

	mood := 4
	date := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	var outcome *DayOutcome
	err := db.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		outcome, txErr = recordDay(tx, user.ID, date, DayInput{
			Note:              "今天状态不错",
			MoodScore:         &mood,
			CompletedHabitIDs: []uint{run.ID, read.ID},
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("recordDay returned error: %v", err)
	}

	if outcome.CompletedCount != 2 || outcome.RelapsedCount != 0 {
		t.Fatalf("unexpected counts: %+v", outcome)
	}
	if outcome.MorningCompleted != 1 {
		t.Fatalf("expected 1 morning completion, got %d", outcome.MorningCompleted)
	}
	if !outcome.DayMaintained {
		t.Fatal("expected day to be maintained")
	}

	// 日期应当被截断到零点
	if outcome.Log.LogDate.Hour() != 0 {
		t.Fatalf("expected normalized log date, got %v", outcome.Log.LogDate)
	}

	var entryCount int64
	db.DB.Model(&db.HabitEntry{}).Where("daily_log_id = ?", outcome.Log.ID).Count(&entryCount)
	if entryCount != 2 {
		t.Fatalf("expected 2 entries, got %d", entryCount)
	}
}

func TestRecordDayReplacesEntriesOnResubmit(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)
	smoke := createTestHabit(t, "戒烟", db.TimeBlockMorning, true)

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	submit := func(input DayInput) *DayOutcome {
		t.Helper()
		var outcome *DayOutcome
		err := db.DB.Transaction(func(tx *gorm.DB) error {
			var txErr error
			outcome, txErr = recordDay(tx, user.ID, date, input)
			return txErr
		})
		if err != nil {
			t.Fatalf("recordDay returned error: %v", err)
		}
		return outcome
	}

	first := submit(DayInput{CompletedHabitIDs: []uint{run.ID, smoke.ID}})
	second := submit(DayInput{
		Note:              "抽了一根，明天重来",
		CompletedHabitIDs: []uint{run.ID},
		RelapsedHabitIDs:  []uint{smoke.ID},
	})

	if first.Log.ID != second.Log.ID {
		t.Fatal("expected resubmission to reuse the same log row")
	}
	if second.CompletedCount != 1 || second.RelapsedCount != 1 {
		t.Fatalf("unexpected counts after resubmit: %+v", second)
	}
	if second.DayMaintained {
		t.Fatal("expected relapse to break the day")
	}

	var logCount int64
	db.DB.Model(&db.DailyLog{}).Where("user_id = ?", user.ID).Count(&logCount)
	if logCount != 1 {
		t.Fatalf("expected a single log per day, got %d", logCount)
	}

	var entryCount int64
	db.DB.Model(&db.HabitEntry{}).Where("daily_log_id = ?", second.Log.ID).Count(&entryCount)
	if entryCount != 2 {
		t.Fatalf("expected entries to be replaced not appended, got %d", entryCount)
	}
}

func TestRecordDayValidation(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)

	badMood := 6
	err := db.DB.Transaction(func(tx *gorm.DB) error {
		_, txErr := recordDay(tx, user.ID, time.Now(), DayInput{MoodScore: &badMood})
		return txErr
	})
	if !errors.Is(err, ErrMoodOutOfRange) {
		t.Fatalf("expected ErrMoodOutOfRange, got %v", err)
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		_, txErr := recordDay(tx, user.ID, time.Now(), DayInput{CompletedHabitIDs: []uint{9999}})
		return txErr
	})
	if !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}

	// 校验失败时不应留下任何写入
	var logCount int64
	db.DB.Model(&db.DailyLog{}).Where("user_id = ?", user.ID).Count(&logCount)
	if logCount != 0 {
		t.Fatalf("expected no logs after failed validation, got %d", logCount)
	}
}

func TestRecordDayIgnoresRelapseForNonRelapsable(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)

	var outcome *DayOutcome
	err := db.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		outcome, txErr = recordDay(tx, user.ID, time.Now(), DayInput{
			CompletedHabitIDs: []uint{run.ID},
			RelapsedHabitIDs:  []uint{run.ID},
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("recordDay returned error: %v", err)
	}

	if outcome.RelapsedCount != 0 {
		t.Fatalf("relapse on non-relapsable habit should be ignored, got %d", outcome.RelapsedCount)
	}
	if !outcome.DayMaintained {
		t.Fatal("expected day to be maintained")
	}
}

func TestDailyLogServiceListRange(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	run := createTestHabit(t, "晨跑", db.TimeBlockMorning, false)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 3; day++ {
		err := db.DB.Transaction(func(tx *gorm.DB) error {
			_, txErr := recordDay(tx, user.ID, base.AddDate(0, 0, day), DayInput{CompletedHabitIDs: []uint{run.ID}})
			return txErr
		})
		if err != nil {
			t.Fatalf("recordDay day %d: %v", day, err)
		}
	}

	svc := NewDailyLogService(db.DB)
	logs, err := svc.ListRange(DailyLogFilter{UserID: user.ID, Start: base, End: base.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("ListRange returned error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs in range, got %d", len(logs))
	}
	if len(logs[0].Entries) != 1 {
		t.Fatalf("expected entries to be preloaded, got %d", len(logs[0].Entries))
	}

	if _, err := svc.GetDay(user.ID, base.AddDate(0, 0, 10)); !errors.Is(err, ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}
