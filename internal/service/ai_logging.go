package service

import (
	"log"
	"strings"
	"unicode/utf8"
)

// AI 交互日志的截断上限，过长的 Prompt 只保留开头片段
const aiLogSnippetLimit = 800

// logAIExchange 记录一次模型交互的关键内容，便于排查生成质量问题。
func logAIExchange(kind, phase, content string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		log.Printf("[AI %s] %s: <empty>", kind, phase)
		return
	}

	total := utf8.RuneCountInString(trimmed)
	if total > aiLogSnippetLimit {
		trimmed = string([]rune(trimmed)[:aiLogSnippetLimit]) + "…(truncated)"
	}
	log.Printf("[AI %s] %s (runes=%d): %s", kind, phase, total, trimmed)
}
