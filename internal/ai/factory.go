package ai

import (
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	deepSeekBaseURL   = "https://api.deepseek.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// NewAIClient создает новый AI клиент на основе конфигурации
func NewAIClient(cfg *AIConfig, logger *zap.Logger) (AIClient, error) {
	var (
		clientCfg openai.ClientConfig
		model     = cfg.Model
	)

	// Время ответа ограничивает контекст вызова, у клиента своего таймаута нет
	httpClient := &http.Client{}

	switch cfg.Provider {
	case "openai":
		clientCfg = openai.DefaultConfig(cfg.OpenAI.APIKey)
		if cfg.OpenAI.BaseURL != "" {
			clientCfg.BaseURL = cfg.OpenAI.BaseURL
		}
		if model == "" {
			model = openai.GPT4oMini
		}
	case "deepseek":
		clientCfg = openai.DefaultConfig(cfg.DeepSeek.APIKey)
		clientCfg.BaseURL = cfg.DeepSeek.BaseURL
		if clientCfg.BaseURL == "" {
			clientCfg.BaseURL = deepSeekBaseURL
		}
		if model == "" {
			model = "deepseek-chat"
		}
	case "openrouter":
		clientCfg = openai.DefaultConfig(cfg.OpenRouter.APIKey)
		clientCfg.BaseURL = openRouterBaseURL
		// OpenRouter использует HTTP-Referer и X-Title для атрибуции приложения
		httpClient.Transport = &headerTransport{
			base: http.DefaultTransport,
			headers: map[string]string{
				"HTTP-Referer": cfg.OpenRouter.SiteURL,
				"X-Title":      cfg.OpenRouter.SiteName,
			},
		}
		if model == "" {
			model = "openai/gpt-4o-mini"
		}
	default:
		return nil, fmt.Errorf("неподдерживаемый AI провайдер: %s. Поддерживаются: 'openai', 'deepseek', 'openrouter'", cfg.Provider)
	}

	clientCfg.HTTPClient = httpClient

	logger.Info("AI клиент создан",
		zap.String("provider", cfg.Provider),
		zap.String("model", model),
		zap.String("base_url", clientCfg.BaseURL))

	return NewOpenAIClient(openai.NewClientWithConfig(clientCfg), model, cfg.Provider, logger), nil
}

// headerTransport добавляет фиксированные заголовки к каждому запросу
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
