package llm

import (
	"fmt"
	"net/http"
	"strings"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"vnovel-server/internal/config"
)

// Базовые URL провайдеров по умолчанию.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OllamaBaseURL     = "http://localhost:11434"
)

// Client объединяет обычную генерацию и вызов инструментов.
// Клиенты без поддержки инструментов возвращают ToolCaller == nil из Tools().
type Client struct {
	AIClient
	tools ToolCaller
}

// Tools возвращает реализацию вызова инструментов или nil.
func (c *Client) Tools() ToolCaller {
	return c.tools
}

// NewAIClient создает клиент для взаимодействия с AI в зависимости от конфигурации.
// defaultModel используется, когда запрос не указывает модель явно.
func NewAIClient(cfg config.AIConfig, defaultModel string, logger *zap.Logger) (*Client, error) {
	log := logger.Named("AIClient")
	clientType := strings.ToLower(cfg.ClientType)

	switch clientType {
	case "openrouter", "groq", "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			switch clientType {
			case "openrouter":
				baseURL = OpenRouterBaseURL
			case "groq":
				baseURL = GroqBaseURL
			default:
				baseURL = OpenAIBaseURL
			}
		}
		oc := newOpenAIClient(baseURL, cfg.APIKey, defaultModel, &http.Client{Timeout: cfg.Timeout}, log)
		log.Info("AI client created",
			zap.String("type", clientType),
			zap.String("base_url", baseURL),
			zap.String("model", defaultModel),
			zap.Duration("timeout", cfg.Timeout),
		)
		return &Client{AIClient: oc, tools: oc}, nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = OllamaBaseURL
		}
		oc, err := newOllamaClient(baseURL, defaultModel, cfg.Timeout, log)
		if err != nil {
			return nil, err
		}
		log.Info("AI client created", zap.String("type", clientType), zap.String("base_url", baseURL), zap.String("model", defaultModel))
		return &Client{AIClient: oc}, nil
	default:
		return nil, fmt.Errorf("unknown AI client type: '%s'", cfg.ClientType)
	}
}

func newOpenAIClient(baseURL, apiKey, model string, httpClient *http.Client, logger *zap.Logger) *openAIClient {
	openaiConfig := openaigo.DefaultConfig(apiKey)
	openaiConfig.BaseURL = baseURL
	openaiConfig.HTTPClient = httpClient
	return &openAIClient{
		client:  openaigo.NewClientWithConfig(openaiConfig),
		model:   model,
		counter: TiktokenCounter,
		logger:  logger,
	}
}
