package llm

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrAIGenerationFailed - ошибка при генерации текста AI
var ErrAIGenerationFailed = errors.New("ai text generation failed")

// Роли сообщений
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message - сообщение диалога, независимое от провайдера.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// ToolCall - вызов инструмента, запрошенный моделью.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition описывает инструмент, доступный модели. Parameters - JSON Schema.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// GenerationParams - параметры генерации. Указатели позволяют отличить 0 от отсутствия значения.
type GenerationParams struct {
	Model       string // пусто = модель клиента по умолчанию
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// UsageInfo содержит информацию об использовании токенов.
type UsageInfo struct {
	PromptTokens     int  `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
	TotalTokens      int  `json:"totalTokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// ToolResponse - ответ модели в режиме вызова инструментов.
type ToolResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// AIClient интерфейс для взаимодействия с LLM провайдером.
type AIClient interface {
	// GenerateText возвращает полный ответ модели.
	GenerateText(ctx context.Context, userID string, messages []Message, params GenerationParams) (string, UsageInfo, error)
	// GenerateTextStream вызывает chunkHandler для каждого фрагмента ответа.
	// Ошибка chunkHandler прерывает стрим.
	GenerateTextStream(ctx context.Context, userID string, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error)
}

// ToolCaller реализуется клиентами, поддерживающими вызов инструментов.
type ToolCaller interface {
	GenerateWithTools(ctx context.Context, userID string, messages []Message, tools []ToolDefinition, params GenerationParams) (ToolResponse, UsageInfo, error)
}

// Float64 и Int - помощники для заполнения GenerationParams.
func Float64(v float64) *float64 { return &v }
func Int(v int) *int             { return &v }

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnovel_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vnovel_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vnovel_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vnovel_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"model"},
	)
)

func observeUsage(model string, usage UsageInfo) {
	if usage.TotalTokens <= 0 {
		return
	}
	aiPromptTokens.WithLabelValues(model).Observe(float64(usage.PromptTokens))
	aiCompletionTokens.WithLabelValues(model).Observe(float64(usage.CompletionTokens))
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func float32Val(f *float64) float32 {
	if f == nil {
		return 0
	}
	return float32(*f)
}
