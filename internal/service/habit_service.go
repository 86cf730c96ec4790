package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitlog/internal/db"
	"gorm.io/gorm"
)

// ErrHabitInvalidTimeBlock 当时段配置异常时返回
var ErrHabitInvalidTimeBlock = errors.New("invalid habit time block")

// HabitService 负责习惯目录的增删改查
// 对成长结算而言习惯目录是只读协作方，这里保留管理入口
// TimeBlock 支持 morning/afternoon/evening，Status 仅使用 active/inactive

type HabitService struct {
	db *gorm.DB
}

// HabitFilter 描述列表过滤条件
type HabitFilter struct {
	Status  string
	TypeTag string
	Search  string
}

// HabitInput 定义创建/更新习惯时可配置字段
type HabitInput struct {
	Name        string
	Description string
	TimeBlock   string
	Relapsable  bool
	TypeTag     string
	Status      string
	StartDate   *time.Time
	EndDate     *time.Time
}

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB) *HabitService {
	return &HabitService{db: gdb}
}

// List 返回习惯集合，支持基本筛选
func (s *HabitService) List(filter HabitFilter) ([]db.Habit, error) {
	var habits []db.Habit

	query := s.db.Model(&db.Habit{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TypeTag != "" {
		query = query.Where("type_tag = ?", filter.TypeTag)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	if err := query.Order("created_at DESC").Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	return habits, nil
}

// Get 根据 ID 获取习惯
func (s *HabitService) Get(id uint) (*db.Habit, error) {
	var habit db.Habit
	if err := s.db.First(&habit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return &habit, nil
}

// Create 新建习惯
func (s *HabitService) Create(input HabitInput) (*db.Habit, error) {
	if err := validateHabitInput(input); err != nil {
		return nil, err
	}

	habit := db.Habit{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		TimeBlock:   normalizeTimeBlock(input.TimeBlock),
		Relapsable:  input.Relapsable,
		TypeTag:     strings.TrimSpace(input.TypeTag),
		Status:      normalizeStatus(input.Status),
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
	}

	if err := s.db.Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	return &habit, nil
}

// Update 更新习惯
func (s *HabitService) Update(id uint, input HabitInput) (*db.Habit, error) {
	if err := validateHabitInput(input); err != nil {
		return nil, err
	}

	var existing db.Habit
	if err := s.db.First(&existing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("find habit: %w", err)
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = strings.TrimSpace(input.Description)
	existing.TimeBlock = normalizeTimeBlock(input.TimeBlock)
	existing.Relapsable = input.Relapsable
	existing.TypeTag = strings.TrimSpace(input.TypeTag)
	existing.Status = normalizeStatus(input.Status)
	existing.StartDate = input.StartDate
	existing.EndDate = input.EndDate

	if err := s.db.Save(&existing).Error; err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}
	return &existing, nil
}

// Delete 删除习惯
func (s *HabitService) Delete(id uint) error {
	if err := s.db.Delete(&db.Habit{}, id).Error; err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return nil
}

func validateHabitInput(input HabitInput) error {
	block := strings.TrimSpace(strings.ToLower(input.TimeBlock))
	if block != "" && block != db.TimeBlockMorning && block != db.TimeBlockAfternoon && block != db.TimeBlockEvening {
		return fmt.Errorf("%w: unsupported block %s", ErrHabitInvalidTimeBlock, input.TimeBlock)
	}

	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("habit name is required")
	}

	return nil
}

func normalizeTimeBlock(block string) string {
	block = strings.TrimSpace(strings.ToLower(block))
	switch block {
	case db.TimeBlockAfternoon, db.TimeBlockEvening:
		return block
	default:
		return db.TimeBlockMorning
	}
}

func normalizeStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != "inactive" {
		return "active"
	}
	return "inactive"
}
