package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// ollamaClient реализует AIClient через нативный API Ollama.
type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

var _ AIClient = (*ollamaClient)(nil)

// newOllamaClient создает клиент Ollama. api.NewClient ожидает URL без суффикса /v1.
func newOllamaClient(baseURL, model string, timeout time.Duration, logger *zap.Logger) (*ollamaClient, error) {
	ollamaBaseURL := strings.TrimSuffix(baseURL, "/v1")
	ollamaBaseURL = strings.TrimSuffix(ollamaBaseURL, "/")

	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url '%s': %w", ollamaBaseURL, err)
	}

	return &ollamaClient{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: timeout}),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (c *ollamaClient) buildRequest(messages []Message, params GenerationParams, stream bool) *api.ChatRequest {
	apiMessages := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleTool {
			continue
		}
		apiMessages = append(apiMessages, api.Message{Role: m.Role, Content: m.Content})
	}

	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}

	model := c.model
	if params.Model != "" {
		model = params.Model
	}
	return &api.ChatRequest{
		Model:    model,
		Messages: apiMessages,
		Stream:   &stream,
		Options:  options,
	}
}

// GenerateText генерирует текст с использованием Ollama.
func (c *ollamaClient) GenerateText(ctx context.Context, userID string, messages []Message, params GenerationParams) (string, UsageInfo, error) {
	if err := validateMessages(messages); err != nil {
		return "", UsageInfo{}, err
	}
	req := c.buildRequest(messages, params, false)
	log := c.logger.With(zap.String("model", req.Model), zap.String("user_id", userID))

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Ollama request timed out", zap.Duration("timeout", c.timeout), zap.Error(err))
		} else {
			log.Error("Ollama request failed", zap.Duration("duration", duration), zap.Error(err))
		}
		aiRequestsTotal.WithLabelValues(req.Model, "error").Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	text := resp.Message.Content
	if text == "" {
		aiRequestsTotal.WithLabelValues(req.Model, "error_empty_response").Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}

	usage := UsageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	aiRequestsTotal.WithLabelValues(req.Model, "success").Inc()
	aiRequestDuration.WithLabelValues(req.Model).Observe(duration.Seconds())
	observeUsage(req.Model, usage)
	log.Info("Ollama response received", zap.Duration("duration", duration), zap.Int("length", len(text)))
	return text, usage, nil
}

// GenerateTextStream генерирует текст с использованием Ollama в потоковом режиме.
func (c *ollamaClient) GenerateTextStream(ctx context.Context, userID string, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	if err := validateMessages(messages); err != nil {
		return UsageInfo{}, err
	}
	req := c.buildRequest(messages, params, true)
	log := c.logger.With(zap.String("model", req.Model), zap.String("user_id", userID))

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	var handlerErr error
	var promptTokens, completionTokens int

	err := c.client.Chat(requestCtx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" && chunkHandler != nil {
			if err := chunkHandler(resp.Message.Content); err != nil {
				handlerErr = err
				return err
			}
		}
		if resp.Done {
			promptTokens = resp.PromptEvalCount
			completionTokens = resp.EvalCount
			if resp.DoneReason != "" && resp.DoneReason != "stop" {
				log.Warn("Ollama stream finished with unexpected reason", zap.String("reason", resp.DoneReason))
			}
		}
		return nil
	})
	duration := time.Since(startTime)

	if handlerErr != nil {
		aiRequestsTotal.WithLabelValues(req.Model, "error_chunk_handler").Inc()
		return UsageInfo{}, fmt.Errorf("stream handler: %w", handlerErr)
	}
	if err != nil {
		log.Error("Ollama stream failed", zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(req.Model, "error_stream").Inc()
		return UsageInfo{}, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	usage := UsageInfo{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
	aiRequestsTotal.WithLabelValues(req.Model, "success_stream").Inc()
	aiRequestDuration.WithLabelValues(req.Model).Observe(duration.Seconds())
	observeUsage(req.Model, usage)
	log.Info("Ollama stream finished", zap.Duration("duration", duration))
	return usage, nil
}
