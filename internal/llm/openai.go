package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIClient реализует AIClient поверх любого OpenAI-совместимого API
// (OpenRouter, Groq, OpenAI).
type openAIClient struct {
	client  *openaigo.Client
	model   string
	counter TokenCounter
	logger  *zap.Logger
}

var _ AIClient = (*openAIClient)(nil)
var _ ToolCaller = (*openAIClient)(nil)

func (c *openAIClient) modelFor(params GenerationParams) string {
	if params.Model != "" {
		return params.Model
	}
	return c.model
}

func toOpenAIMessages(messages []Message) []openaigo.ChatCompletionMessage {
	out := make([]openaigo.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openaigo.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openaigo.ToolCall{
				ID:   tc.ID,
				Type: openaigo.ToolTypeFunction,
				Function: openaigo.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func validateMessages(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: no messages", ErrAIGenerationFailed)
	}
	for _, m := range messages {
		if strings.TrimSpace(m.Content) != "" || len(m.ToolCalls) > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: all messages are empty", ErrAIGenerationFailed)
}

// GenerateText генерирует полный ответ.
func (c *openAIClient) GenerateText(ctx context.Context, userID string, messages []Message, params GenerationParams) (string, UsageInfo, error) {
	model := c.modelFor(params)
	log := c.logger.With(zap.String("model", model), zap.String("user_id", userID))

	if err := validateMessages(messages); err != nil {
		aiRequestsTotal.WithLabelValues(model, "error").Inc()
		return "", UsageInfo{}, err
	}

	startTime := time.Now()
	log.Debug("Sending request to AI", zap.Int("messages", len(messages)))

	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP),
	})
	duration := time.Since(startTime)
	if err != nil {
		log.Error("AI API request failed", zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(model, "error").Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		log.Warn("AI API returned empty response", zap.Duration("duration", duration))
		aiRequestsTotal.WithLabelValues(model, "error_empty_response").Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}

	text := resp.Choices[0].Message.Content
	usage := UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = estimateUsage(c.counter, model, messages, text)
	}

	aiRequestsTotal.WithLabelValues(model, "success").Inc()
	aiRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	observeUsage(model, usage)
	log.Info("AI response received",
		zap.Duration("duration", duration),
		zap.Int("length", len(text)),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return text, usage, nil
}

// GenerateTextStream генерирует ответ в потоковом режиме.
// Если провайдер не прислал usage в конце стрима, токены оцениваются через tiktoken.
func (c *openAIClient) GenerateTextStream(ctx context.Context, userID string, messages []Message, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	model := c.modelFor(params)
	log := c.logger.With(zap.String("model", model), zap.String("user_id", userID))

	if err := validateMessages(messages); err != nil {
		return UsageInfo{}, err
	}

	request := openaigo.ChatCompletionRequest{
		Model:         model,
		Messages:      toOpenAIMessages(messages),
		Stream:        true,
		Temperature:   float32Val(params.Temperature),
		MaxTokens:     intVal(params.MaxTokens),
		TopP:          float32Val(params.TopP),
		StreamOptions: &openaigo.StreamOptions{IncludeUsage: true},
	}

	startTime := time.Now()
	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		log.Error("Failed to create AI stream", zap.Error(err))
		aiRequestsTotal.WithLabelValues(model, "error_stream_init").Inc()
		return UsageInfo{}, fmt.Errorf("%w: failed to create stream: %v", ErrAIGenerationFailed, err)
	}
	defer stream.Close()

	var finalUsage *openaigo.Usage
	var responseText strings.Builder

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error("Failed to read AI stream", zap.Error(err))
			aiRequestsTotal.WithLabelValues(model, "error_stream_read").Inc()
			return UsageInfo{}, fmt.Errorf("%w: stream read failed: %v", ErrAIGenerationFailed, err)
		}

		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			finalUsage = response.Usage
		}

		if len(response.Choices) == 0 {
			continue
		}
		chunk := response.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		responseText.WriteString(chunk)
		if chunkHandler != nil {
			if err := chunkHandler(chunk); err != nil {
				log.Warn("Stream chunk handler failed, aborting stream", zap.Error(err))
				aiRequestsTotal.WithLabelValues(model, "error_chunk_handler").Inc()
				return UsageInfo{}, fmt.Errorf("stream handler: %w", err)
			}
		}
	}

	duration := time.Since(startTime)
	var usage UsageInfo
	status := "success_stream"
	if finalUsage != nil {
		usage = UsageInfo{
			PromptTokens:     finalUsage.PromptTokens,
			CompletionTokens: finalUsage.CompletionTokens,
			TotalTokens:      finalUsage.TotalTokens,
		}
	} else {
		log.Debug("Final usage block not received in stream, estimating tokens")
		usage = estimateUsage(c.counter, model, messages, responseText.String())
		status = "success_stream_estimated"
	}

	aiRequestsTotal.WithLabelValues(model, status).Inc()
	aiRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	observeUsage(model, usage)
	log.Info("AI stream finished",
		zap.Duration("duration", duration),
		zap.Int("length", responseText.Len()),
		zap.Int("total_tokens", usage.TotalTokens),
		zap.Bool("estimated", usage.Estimated),
	)
	return usage, nil
}

// GenerateWithTools выполняет один шаг диалога с доступными инструментами.
func (c *openAIClient) GenerateWithTools(ctx context.Context, userID string, messages []Message, tools []ToolDefinition, params GenerationParams) (ToolResponse, UsageInfo, error) {
	model := c.modelFor(params)
	log := c.logger.With(zap.String("model", model), zap.String("user_id", userID))

	if err := validateMessages(messages); err != nil {
		return ToolResponse{}, UsageInfo{}, err
	}

	oaTools := make([]openaigo.Tool, 0, len(tools))
	for _, t := range tools {
		oaTools = append(oaTools, openaigo.Tool{
			Type: openaigo.ToolTypeFunction,
			Function: &openaigo.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Tools:       oaTools,
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
	})
	duration := time.Since(startTime)
	if err != nil {
		log.Error("AI tool request failed", zap.Error(err))
		aiRequestsTotal.WithLabelValues(model, "error").Inc()
		return ToolResponse{}, UsageInfo{}, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		aiRequestsTotal.WithLabelValues(model, "error_empty_response").Inc()
		return ToolResponse{}, UsageInfo{}, fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}

	msg := resp.Choices[0].Message
	out := ToolResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	usage := UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	aiRequestsTotal.WithLabelValues(model, "success_tools").Inc()
	aiRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	observeUsage(model, usage)
	log.Debug("AI tool step finished", zap.Int("tool_calls", len(out.ToolCalls)), zap.Duration("duration", duration))
	return out, usage, nil
}
