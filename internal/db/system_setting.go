package db

import "gorm.io/gorm"

// 设置项的键名集合，服务层读写时统一引用，避免手写字符串漂移。
const (
	// SettingKeySiteName 站点名称。
	SettingKeySiteName = "site_name"
	// SettingKeyAIProvider 导师点评所使用的模型平台（openai/deepseek）。
	SettingKeyAIProvider = "ai_provider"
	// SettingKeyOpenAIAPIKey OpenAI API Key。
	SettingKeyOpenAIAPIKey = "openai_api_key"
	// SettingKeyDeepSeekAPIKey DeepSeek API Key。
	SettingKeyDeepSeekAPIKey = "deepseek_api_key"
)

// SystemSetting 以键值对形式保存可在后台调整的系统配置。
type SystemSetting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 固定表名，避免 gorm 复数化带来的歧义。
func (SystemSetting) TableName() string {
	return "system_settings"
}
