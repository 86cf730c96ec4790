package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const aiChatDefaultTimeout = 180 * time.Second

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// aiChatRequest 是对话式生成的统一入参。
type aiChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// aiChatResponse 携带生成内容、来源平台与 Token 用量。
type aiChatResponse struct {
	Content          string
	Provider         string
	PromptTokens     int
	CompletionTokens int
}

// providerProfile 是按系统设置解析出的平台访问参数。
type providerProfile struct {
	name   string
	label  string
	base   string
	model  string
	apiKey string
}

// aiChatClient 封装 OpenAI / DeepSeek 的 chat-completions 调用，
// 平台选择与 API Key 均来自系统设置。
type aiChatClient struct {
	settings             *SystemSettingService
	http                 httpDoer
	openAIBaseURL        string
	deepSeekBaseURL      string
	defaultOpenAIModel   string
	defaultDeepSeekModel string
}

func newAIChatClient(settings *SystemSettingService, defaultOpenAIModel, defaultDeepSeekModel string) *aiChatClient {
	return &aiChatClient{
		settings:             settings,
		http:                 &http.Client{Timeout: aiChatDefaultTimeout},
		openAIBaseURL:        "https://api.openai.com/v1",
		deepSeekBaseURL:      "https://api.deepseek.com/v1",
		defaultOpenAIModel:   strings.TrimSpace(defaultOpenAIModel),
		defaultDeepSeekModel: strings.TrimSpace(defaultDeepSeekModel),
	}
}

// SetHTTPClient 覆盖 HTTP 客户端，传 nil 时恢复默认超时配置。
func (c *aiChatClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: aiChatDefaultTimeout}
		return
	}
	c.http = client
}

// SetOpenAIBaseURL 覆盖 OpenAI 接口地址，便于测试或自建代理。
func (c *aiChatClient) SetOpenAIBaseURL(base string) {
	c.openAIBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// SetDeepSeekBaseURL 覆盖 DeepSeek 接口地址。
func (c *aiChatClient) SetDeepSeekBaseURL(base string) {
	c.deepSeekBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// resolveProvider 把系统设置翻译成具体的平台访问参数。
func (c *aiChatClient) resolveProvider(settings SystemSettings) providerProfile {
	provider := normalizeAIProvider(settings.AIProvider)
	if provider == "" {
		provider = AIProviderOpenAI
	}

	profile := providerProfile{name: provider}
	switch provider {
	case AIProviderDeepSeek:
		profile.label = "DeepSeek"
		profile.apiKey = strings.TrimSpace(settings.DeepSeekAPIKey)
		profile.base = c.deepSeekBaseURL
		if profile.base == "" {
			profile.base = "https://api.deepseek.com/v1"
		}
		profile.model = c.defaultDeepSeekModel
	default:
		profile.label = "OpenAI"
		profile.apiKey = strings.TrimSpace(settings.OpenAIAPIKey)
		profile.base = c.openAIBaseURL
		if profile.base == "" {
			profile.base = "https://api.openai.com/v1"
		}
		profile.model = c.defaultOpenAIModel
	}

	return profile
}

// callWithSettings 按给定设置发起一次对话生成并解析结果。
func (c *aiChatClient) callWithSettings(ctx context.Context, settings SystemSettings, req aiChatRequest) (aiChatResponse, error) {
	profile := c.resolveProvider(settings)
	if profile.apiKey == "" {
		return aiChatResponse{}, ErrAIAPIKeyMissing
	}

	maxTokens := req.MaxTokens
	if maxTokens < 0 {
		maxTokens = 0
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model: profile.model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(req.SystemPrompt)},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("构造请求失败: %w", err)
	}

	endpoint := strings.TrimRight(profile.base, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("创建 %s 请求失败: %w", profile.label, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+profile.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "habitlog-ai/1.0")

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("请求 %s 接口失败: %w", profile.label, err)
	}
	defer resp.Body.Close()

	return decodeChatResponse(resp, profile)
}

func decodeChatResponse(resp *http.Response, profile providerProfile) (aiChatResponse, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("读取 %s 响应失败: %w", profile.label, err)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return aiChatResponse{}, fmt.Errorf("解析 %s 响应失败: %w", profile.label, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(completion.Error.Message)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = resp.Status
		}
		return aiChatResponse{}, fmt.Errorf("%s 接口返回错误：%s", profile.label, msg)
	}

	if len(completion.Choices) == 0 {
		return aiChatResponse{}, fmt.Errorf("%s 接口未返回结果", profile.label)
	}

	return aiChatResponse{
		Content:          strings.TrimSpace(completion.Choices[0].Message.Content),
		Provider:         profile.name,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}
