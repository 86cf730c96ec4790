package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habitlog/internal/db"
	"gorm.io/gorm"
)

// MentorInput 描述生成导师点评所需的当日上下文。
type MentorInput struct {
	UserID     uint
	DailyLogID uint
	Date       time.Time
	Streak     int
	Completed  int
	Relapsed   int
	Reflection string
}

// MentorResult 返回生成的点评及少量元数据。
type MentorResult struct {
	Content          string
	Provider         string
	RequestID        string
	PromptTokens     int
	CompletionTokens int
}

// MentorGenerator 定义导师点评生成能力，便于在结算层注入不同实现。
type MentorGenerator interface {
	GenerateResponse(ctx context.Context, input MentorInput) (MentorResult, error)
}

const (
	defaultOpenAIMentorModel   = "gpt-4o-mini"
	defaultDeepSeekMentorModel = "deepseek-chat"
	defaultMentorMaxTokens     = 320
	defaultMentorTemperature   = 0.6
	maxReflectionRuneCount     = 4000
	// mentorGenerateTimeout 限定点评生成总时长，与主事务完全解耦
	mentorGenerateTimeout = 200 * time.Second
)

const mentorSystemPrompt = "你是一位习惯养成教练。根据用户当天的打卡结果和反思，" +
	"用鼓励但务实的语气写一段简短的中文点评：肯定做到的部分，正视破戒，" +
	"并针对明天给出一条具体可行的建议。不要使用列表，直接输出一段话。"

// MentorService 基于大模型接口生成导师点评并落库。
type MentorService struct {
	db     *gorm.DB
	client *aiChatClient
}

// NewMentorService 构造默认的 MentorService。
func NewMentorService(gdb *gorm.DB, settings *SystemSettingService) *MentorService {
	return &MentorService{
		db:     gdb,
		client: newAIChatClient(settings, defaultOpenAIMentorModel, defaultDeepSeekMentorModel),
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *MentorService) SetHTTPClient(client httpDoer) {
	s.client.SetHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖默认的 OpenAI API 地址。
func (s *MentorService) SetOpenAIBaseURL(base string) {
	s.client.SetOpenAIBaseURL(base)
}

// SetDeepSeekBaseURL 覆盖默认的 DeepSeek API 地址。
func (s *MentorService) SetDeepSeekBaseURL(base string) {
	s.client.SetDeepSeekBaseURL(base)
}

// GenerateResponse 组织提示词并调用模型，成功后将点评写入 mentor_responses。
func (s *MentorService) GenerateResponse(ctx context.Context, input MentorInput) (MentorResult, error) {
	settings, err := s.client.settings.GetSettings()
	if err != nil {
		return MentorResult{}, err
	}

	requestID := uuid.NewString()
	prompt, images := compressMarkdownImageURLs(buildMentorPrompt(input))
	if images.Count() > 0 {
		logAIExchange("mentor", "compressed images "+requestID, fmt.Sprintf("%d image url(s) replaced", images.Count()))
	}
	logAIExchange("mentor", "prompt "+requestID, prompt)

	resp, err := s.client.callWithSettings(ctx, settings, aiChatRequest{
		SystemPrompt: mentorSystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    defaultMentorMaxTokens,
		Temperature:  defaultMentorTemperature,
	})
	if err != nil {
		return MentorResult{}, err
	}

	resp.Content = images.Restore(resp.Content)
	logAIExchange("mentor", "response "+requestID, resp.Content)

	record := db.MentorResponse{
		UserID:      input.UserID,
		DailyLogID:  input.DailyLogID,
		LogDate:     db.NormalizeDate(input.Date),
		RequestID:   requestID,
		Content:     resp.Content,
		Provider:    resp.Provider,
		GeneratedAt: time.Now(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return MentorResult{}, fmt.Errorf("save mentor response: %w", err)
	}

	return MentorResult{
		Content:          resp.Content,
		Provider:         resp.Provider,
		RequestID:        requestID,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}, nil
}

// LatestForDate 返回某天最近一次生成的点评。
func (s *MentorService) LatestForDate(userID uint, date time.Time) (*db.MentorResponse, error) {
	var record db.MentorResponse
	err := s.db.Where("user_id = ? AND log_date = ?", userID, db.NormalizeDate(date)).
		Order("generated_at DESC, id DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// buildMentorPrompt 把当日结果拼成模型输入，过长的反思会被截断以控制 Token 消耗。
func buildMentorPrompt(input MentorInput) string {
	reflection := strings.TrimSpace(input.Reflection)
	if runes := []rune(reflection); len(runes) > maxReflectionRuneCount {
		reflection = string(runes[:maxReflectionRuneCount]) + "…"
	}
	if reflection == "" {
		reflection = "（用户今天没有写反思）"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "日期：%s\n", input.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "当前连续坚持：%d 天\n", input.Streak)
	fmt.Fprintf(&b, "今天完成习惯：%d 个，破戒：%d 次\n", input.Completed, input.Relapsed)
	fmt.Fprintf(&b, "用户反思：%s\n", reflection)
	return b.String()
}
