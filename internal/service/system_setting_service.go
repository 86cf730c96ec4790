package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/habitlog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// AIProviderOpenAI 表示使用 OpenAI 能力。
	AIProviderOpenAI = "openai"
	// AIProviderDeepSeek 表示使用 DeepSeek 能力。
	AIProviderDeepSeek = "deepseek"
)

const defaultSiteName = "HabitLog"

var supportedAIProviders = []string{AIProviderOpenAI, AIProviderDeepSeek}

// ErrAIAPIKeyMissing 表示未提供必需的 AI 平台 API Key。
var ErrAIAPIKeyMissing = errors.New("api key is required")

// SystemSettings 描述可配置的系统信息。
type SystemSettings struct {
	SiteName       string
	AIProvider     string
	OpenAIAPIKey   string
	DeepSeekAPIKey string
}

// SystemSettingsInput 用于更新系统设置。
type SystemSettingsInput struct {
	SiteName       string
	AIProvider     string
	OpenAIAPIKey   string
	DeepSeekAPIKey string
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SystemSettingService 提供系统设置的读取与更新能力。
type SystemSettingService struct {
	db              *gorm.DB
	httpClient      httpDoer
	openAIBaseURL   string
	deepSeekBaseURL string
}

// NewSystemSettingService 构造 SystemSettingService。
func NewSystemSettingService(gdb *gorm.DB) *SystemSettingService {
	return &SystemSettingService{
		db:              gdb,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		openAIBaseURL:   "https://api.openai.com/v1",
		deepSeekBaseURL: "https://api.deepseek.com/v1",
	}
}

// toPairs 把设置展开为 KV 对，写入顺序与读取无关。
func (s SystemSettings) toPairs() map[string]string {
	return map[string]string{
		db.SettingKeySiteName:       s.SiteName,
		db.SettingKeyAIProvider:     s.AIProvider,
		db.SettingKeyOpenAIAPIKey:   s.OpenAIAPIKey,
		db.SettingKeyDeepSeekAPIKey: s.DeepSeekAPIKey,
	}
}

func settingsFromRecords(records []db.SystemSetting) SystemSettings {
	result := SystemSettings{SiteName: defaultSiteName, AIProvider: AIProviderOpenAI}

	for _, record := range records {
		value := record.Value
		switch record.Key {
		case db.SettingKeySiteName:
			if strings.TrimSpace(value) != "" {
				result.SiteName = value
			}
		case db.SettingKeyAIProvider:
			if provider := normalizeAIProvider(value); provider != "" {
				result.AIProvider = provider
			}
		case db.SettingKeyOpenAIAPIKey:
			result.OpenAIAPIKey = value
		case db.SettingKeyDeepSeekAPIKey:
			result.DeepSeekAPIKey = value
		}
	}

	return result
}

// GetSettings 读取系统设置，未配置的项返回默认值。
func (s *SystemSettingService) GetSettings() (SystemSettings, error) {
	var records []db.SystemSetting
	if err := s.db.Find(&records).Error; err != nil {
		return SystemSettings{SiteName: defaultSiteName, AIProvider: AIProviderOpenAI},
			fmt.Errorf("load system settings: %w", err)
	}
	return settingsFromRecords(records), nil
}

// UpdateSettings 规整并保存系统设置，站点名称为空时回退默认值。
func (s *SystemSettingService) UpdateSettings(input SystemSettingsInput) (SystemSettings, error) {
	sanitized := SystemSettings{
		SiteName:       strings.TrimSpace(input.SiteName),
		AIProvider:     normalizeAIProvider(input.AIProvider),
		OpenAIAPIKey:   strings.TrimSpace(input.OpenAIAPIKey),
		DeepSeekAPIKey: strings.TrimSpace(input.DeepSeekAPIKey),
	}
	if sanitized.SiteName == "" {
		sanitized.SiteName = defaultSiteName
	}
	if sanitized.AIProvider == "" {
		sanitized.AIProvider = AIProviderOpenAI
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range sanitized.toPairs() {
			setting := db.SystemSetting{Key: key, Value: value}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "key"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"value":      value,
					"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
				}),
			}).Create(&setting).Error; err != nil {
				return fmt.Errorf("upsert setting %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return SystemSettings{}, fmt.Errorf("update system settings: %w", err)
	}

	return sanitized, nil
}

// SetHTTPClient 替换用于连通性探测的 HTTP 客户端，传 nil 恢复默认。
func (s *SystemSettingService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.httpClient = &http.Client{Timeout: 10 * time.Second}
		return
	}
	s.httpClient = client
}

// SetOpenAIBaseURL 覆盖 OpenAI API 的基础地址。
func (s *SystemSettingService) SetOpenAIBaseURL(base string) {
	s.openAIBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// SetDeepSeekBaseURL 覆盖 DeepSeek API 的基础地址。
func (s *SystemSettingService) SetDeepSeekBaseURL(base string) {
	s.deepSeekBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// TestAIConnection 调用平台的模型列表接口验证 API Key 是否可用。
func (s *SystemSettingService) TestAIConnection(ctx context.Context, provider, apiKey string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return ErrAIAPIKeyMissing
	}

	base, label := s.openAIBaseURL, "OpenAI"
	if normalizeAIProvider(provider) == AIProviderDeepSeek {
		base, label = s.deepSeekBaseURL, "DeepSeek"
	}
	if strings.TrimSpace(base) == "" {
		return fmt.Errorf("%s 接口地址未配置", label)
	}

	endpoint := strings.TrimRight(base, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", strings.ToLower(label), err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "habitlog-admin/1.0")

	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 接口失败: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("%s 返回错误：%s (%s)", label, resp.Status, msg)
		}
		return fmt.Errorf("%s 返回错误：%s", label, resp.Status)
	}

	return nil
}

// normalizeAIProvider 把外部输入规整为受支持的平台标识，未识别时返回空串。
func normalizeAIProvider(provider string) string {
	trimmed := strings.ToLower(strings.TrimSpace(provider))
	for _, candidate := range supportedAIProviders {
		if trimmed == candidate {
			return candidate
		}
	}
	return ""
}
