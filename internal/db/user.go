package db

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User 定义了用户模型
// ExperiencePoints/Level/CurrentStreak/TotalStreaks/MentalToughness 为成长字段，
// 只允许 ProgressionService 在事务内修改，其他写入路径（设置、资料）不得触碰。
// MentalToughness 始终保持在 [0,100] 区间内。
type User struct {
	gorm.Model
	Username         string `gorm:"unique;not null"`
	Password         string `gorm:"not null"`
	ExperiencePoints int    `gorm:"not null;default:0"`
	Level            int    `gorm:"not null;default:1"`
	CurrentStreak    int    `gorm:"not null;default:0"`
	TotalStreaks     int    `gorm:"not null;default:0"`
	MentalToughness  int    `gorm:"not null;default:0"`
}

// EnsureUser 存在性检查：若提供的用户名与密码均非空且不存在对应账号，则创建一个 bcrypt 哈希的用户。
func EnsureUser(username, password string) error {
	trimmedUser := strings.TrimSpace(username)
	trimmedPassword := strings.TrimSpace(password)
	if trimmedUser == "" || trimmedPassword == "" {
		return nil
	}

	if DB == nil {
		return errors.New("database not initialized")
	}

	var existing User
	if err := DB.Where("username = ?", trimmedUser).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(trimmedPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return DB.Create(&User{Username: trimmedUser, Password: string(hashed), Level: 1}).Error
	}

	return nil
}
