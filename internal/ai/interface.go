package ai

import (
	"context"
	"regexp"
	"strings"
)

// Роли сообщений chat-completion
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message представляет сообщение для AI
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response представляет ответ от AI
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
	Provider     string `json:"provider"`
}

// Usage представляет статистику использования токенов
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationOptions опции для генерации ответа
type GenerationOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// AIClient интерфейс для работы с AI провайдерами
type AIClient interface {
	// GenerateResponse генерирует ответ на основе сообщений
	GenerateResponse(ctx context.Context, messages []Message, options GenerationOptions) (*Response, error)

	// GetName возвращает название провайдера
	GetName() string
}

// AIConfig содержит конфигурацию для AI клиентов
type AIConfig struct {
	Provider   string
	Model      string
	OpenAI     OpenAIConfig
	DeepSeek   DeepSeekConfig
	OpenRouter OpenRouterConfig
}

// OpenAIConfig конфигурация OpenAI
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// DeepSeekConfig конфигурация DeepSeek
type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
}

// OpenRouterConfig конфигурация OpenRouter
type OpenRouterConfig struct {
	APIKey   string
	SiteURL  string
	SiteName string
}

// BuildMessages собирает диалог из системного промпта и одной реплики пользователя
func BuildMessages(systemPrompt, userText string) []Message {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return append(messages, Message{Role: RoleUser, Content: userText})
}

var (
	codeFenceRegex = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n?(.*?)```")
	linkRegex      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headingRegex   = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	bulletRegex    = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
	emphasisRegex  = regexp.MustCompile("[*_`~]+")
)

// SanitizeForSpeech убирает markdown разметку, которую TTS прочитал бы вслух
func SanitizeForSpeech(text string) string {
	text = codeFenceRegex.ReplaceAllString(text, "$1")
	text = linkRegex.ReplaceAllString(text, "$1")
	text = headingRegex.ReplaceAllString(text, "")
	text = bulletRegex.ReplaceAllString(text, "")
	text = emphasisRegex.ReplaceAllString(text, "")

	// Схлопываем пробелы и переносы строк
	return strings.Join(strings.Fields(text), " ")
}
