package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/service"
)

type systemSettingsPayload struct {
	SiteName       string `json:"site_name"`
	AIProvider     string `json:"ai_provider"`
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`
}

// GetSystemSettings 返回系统设置，密钥只回传是否已配置
func (a *API) GetSystemSettings(c *gin.Context) {
	settings, err := a.system.GetSettings()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取系统设置失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"site_name":        settings.SiteName,
		"ai_provider":      settings.AIProvider,
		"openai_key_set":   settings.OpenAIAPIKey != "",
		"deepseek_key_set": settings.DeepSeekAPIKey != "",
	})
}

// UpdateSystemSettings 保存系统设置
func (a *API) UpdateSystemSettings(c *gin.Context) {
	var payload systemSettingsPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	settings, err := a.system.UpdateSettings(service.SystemSettingsInput{
		SiteName:       payload.SiteName,
		AIProvider:     payload.AIProvider,
		OpenAIAPIKey:   payload.OpenAIAPIKey,
		DeepSeekAPIKey: payload.DeepSeekAPIKey,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "保存系统设置失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"site_name":   settings.SiteName,
		"ai_provider": settings.AIProvider,
	})
}

type testAIConnectionPayload struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// TestAIConnection 验证 AI 平台 API Key 是否可用
func (a *API) TestAIConnection(c *gin.Context) {
	var payload testAIConnectionPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	if err := a.system.TestAIConnection(c.Request.Context(), payload.Provider, payload.APIKey); err != nil {
		if errors.Is(err, service.ErrAIAPIKeyMissing) {
			respondError(c, http.StatusBadRequest, "请先填写 API Key")
			return
		}
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
