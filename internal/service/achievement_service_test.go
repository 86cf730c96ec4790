package service

import (
	"errors"
	"testing"

	"github.com/habitlog/internal/db"
	"gorm.io/gorm"
)

func createTestAchievement(t *testing.T, name, conditionType string, value int) *db.Achievement {
	t.Helper()
	achievement := db.Achievement{Name: name, ConditionType: conditionType, ConditionValue: value, Points: 10}
	if err := db.DB.Create(&achievement).Error; err != nil {
		t.Fatalf("failed to create achievement %s: %v", name, err)
	}
	return &achievement
}

func TestEvaluateAndUnlockByCondition(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	createTestAchievement(t, "二级", db.ConditionLevel, 2)
	createTestAchievement(t, "七日", db.ConditionStreak, 7)
	createTestAchievement(t, "千经验", db.ConditionTotalXP, 1000)

	var unlocked []db.Achievement
	err := db.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		unlocked, txErr = evaluateAndUnlock(tx, user.ID, ProgressSnapshot{Level: 2, CurrentStreak: 3, TotalXP: 1200})
		return txErr
	})
	if err != nil {
		t.Fatalf("evaluateAndUnlock returned error: %v", err)
	}

	if len(unlocked) != 2 {
		t.Fatalf("expected 2 unlocks (level + xp), got %d", len(unlocked))
	}
	for _, achievement := range unlocked {
		if achievement.ConditionType == db.ConditionStreak {
			t.Fatal("streak achievement should not unlock at 3 days")
		}
	}
}

func TestEvaluateAndUnlockIsIdempotent(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	target := createTestAchievement(t, "七日", db.ConditionStreak, 7)

	snapshot := ProgressSnapshot{Level: 1, CurrentStreak: 7, TotalXP: 0}

	unlock := func() []db.Achievement {
		t.Helper()
		var unlocked []db.Achievement
		err := db.DB.Transaction(func(tx *gorm.DB) error {
			var txErr error
			unlocked, txErr = evaluateAndUnlock(tx, user.ID, snapshot)
			return txErr
		})
		if err != nil {
			t.Fatalf("evaluateAndUnlock returned error: %v", err)
		}
		return unlocked
	}

	first := unlock()
	if len(first) != 1 || first[0].ID != target.ID {
		t.Fatalf("expected exactly the streak achievement, got %+v", first)
	}

	second := unlock()
	if len(second) != 0 {
		t.Fatalf("expected no new unlocks on re-evaluation, got %d", len(second))
	}

	var rowCount int64
	db.DB.Model(&db.UserAchievement{}).
		Where("user_id = ? AND achievement_id = ?", user.ID, target.ID).
		Count(&rowCount)
	if rowCount != 1 {
		t.Fatalf("expected a single unlock row, got %d", rowCount)
	}
}

func TestAchievementServiceCreateValidatesCondition(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	svc := NewAchievementService(db.DB)

	if _, err := svc.Create(AchievementInput{Name: "怪条件", ConditionType: "moon_phase", ConditionValue: 3}); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition, got %v", err)
	}

	if _, err := svc.Create(AchievementInput{Name: "零阈值", ConditionType: db.ConditionLevel, ConditionValue: 0}); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition for zero threshold, got %v", err)
	}

	created, err := svc.Create(AchievementInput{Name: "五级", ConditionType: db.ConditionLevel, ConditionValue: 5, Points: 30})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected achievement to have ID")
	}
}

func TestAchievementServiceListUnlocked(t *testing.T) {
	cleanup := setupProgressionTestDB(t)
	defer cleanup()

	user := createTestUser(t)
	target := createTestAchievement(t, "二级", db.ConditionLevel, 2)

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		_, txErr := evaluateAndUnlock(tx, user.ID, ProgressSnapshot{Level: 3})
		return txErr
	})
	if err != nil {
		t.Fatalf("evaluateAndUnlock returned error: %v", err)
	}

	svc := NewAchievementService(db.DB)
	records, err := svc.ListUnlocked(user.ID)
	if err != nil {
		t.Fatalf("ListUnlocked returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 unlocked record, got %d", len(records))
	}
	if records[0].Achievement.ID != target.ID {
		t.Fatal("expected achievement to be preloaded")
	}
}
