package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vnovel-server/internal/config"
	"vnovel-server/internal/llm"
	"vnovel-server/internal/models"
	"vnovel-server/internal/repository"
)

// Имена SSE событий
const (
	EventStart      = "start"
	EventTextDelta  = "text-delta"
	EventToolResult = "tool-result"
	EventReply      = "reply"
	EventFinish     = "finish"
	EventError      = "error"
)

// Event - событие потока ответа.
type Event struct {
	Name string
	Data any
}

// Emitter отправляет событие клиенту. Ошибка прерывает генерацию.
type Emitter func(Event) error

// InMessage - сообщение из запроса клиента.
type InMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request - запрос /api/chat.
type Request struct {
	ChatID   string      `json:"chatId,omitempty"`
	Messages []InMessage `json:"messages"`
	Model    string      `json:"model,omitempty"`
}

// Service ведет диалог ролевой игры.
type Service struct {
	client   llm.AIClient
	tools    llm.ToolCaller
	registry []Tool
	history  repository.ChatRepository
	cfg      config.ChatConfig
	allowed  []string
	logger   *zap.Logger
	now      func() time.Time
}

// NewService создает сервис чата. tools и history могут быть nil.
// Инструменты подключаются только при CHAT_TOOLS_ENABLED.
func NewService(client llm.AIClient, tools llm.ToolCaller, history repository.ChatRepository, cfg config.ChatConfig, logger *zap.Logger, registry ...Tool) *Service {
	s := &Service{
		client:  client,
		history: history,
		cfg:     cfg,
		allowed: cfg.AllowedModelList(),
		logger:  logger.Named("ChatService"),
		now:     time.Now,
	}
	if cfg.ToolsEnabled && tools != nil && len(registry) > 0 {
		s.tools = tools
		s.registry = registry
	}
	return s
}

// ResolveModel возвращает модель запроса, если она разрешена, иначе модель по умолчанию.
func (s *Service) ResolveModel(requested string) string {
	if requested != "" && slices.Contains(s.allowed, requested) {
		return requested
	}
	return s.cfg.Model
}

// Stream генерирует ответ и отправляет события через emit.
// Ошибка генерации отправляется событием error и возвращается вызывающему.
func (s *Service) Stream(ctx context.Context, userID string, req Request, emit Emitter) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("%w: messages are required", models.ErrBadRequest)
	}
	for i, m := range req.Messages {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant && m.Role != models.RoleSystem {
			return fmt.Errorf("%w: message %d has invalid role %q", models.ErrBadRequest, i, m.Role)
		}
	}

	model := s.ResolveModel(req.Model)
	messageID := uuid.NewString()
	log := s.logger.With(zap.String("user_id", userID), zap.String("model", model), zap.String("message_id", messageID))

	if err := emit(Event{Name: EventStart, Data: map[string]string{"messageId": messageID}}); err != nil {
		return err
	}

	params := llm.GenerationParams{Model: model}
	if s.cfg.MaxOutputTokens > 0 {
		params.MaxTokens = llm.Int(s.cfg.MaxOutputTokens)
	}

	messages := make([]llm.Message, 0, len(req.Messages)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt})
	for _, m := range req.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	var total llm.UsageInfo
	if len(s.registry) > 0 {
		var err error
		messages, err = s.runTools(ctx, userID, messages, params, &total, emit)
		if err != nil {
			return s.fail(log, emit, err)
		}
	}

	var answer strings.Builder
	usage, err := s.client.GenerateTextStream(ctx, userID, messages, params, func(chunk string) error {
		answer.WriteString(chunk)
		return emit(Event{Name: EventTextDelta, Data: map[string]string{"delta": chunk}})
	})
	addUsage(&total, usage)
	if err != nil {
		return s.fail(log, emit, err)
	}

	if reply, err := ParseReply(answer.String()); err == nil {
		if err := emit(Event{Name: EventReply, Data: reply}); err != nil {
			return err
		}
	} else {
		log.Debug("reply is not a roleplay envelope", zap.Error(err))
	}

	if req.ChatID != "" && s.history != nil {
		s.saveHistory(ctx, userID, req, answer.String())
	}

	log.Info("chat reply finished",
		zap.Int("promptTokens", total.PromptTokens),
		zap.Int("completionTokens", total.CompletionTokens))
	return emit(Event{Name: EventFinish, Data: map[string]any{
		"messageId":    messageID,
		"finishReason": "stop",
		"usage":        total,
	}})
}

// runTools выполняет раунды вызова инструментов, пока модель их запрашивает,
// но не больше MaxSteps. Возвращает переписку, дополненную результатами.
func (s *Service) runTools(ctx context.Context, userID string, messages []llm.Message, params llm.GenerationParams, total *llm.UsageInfo, emit Emitter) ([]llm.Message, error) {
	defs := make([]llm.ToolDefinition, 0, len(s.registry))
	byName := make(map[string]Tool, len(s.registry))
	for _, t := range s.registry {
		d := t.Definition()
		defs = append(defs, d)
		byName[d.Name] = t
	}

	for step := 0; step < s.cfg.MaxSteps; step++ {
		resp, usage, err := s.tools.GenerateWithTools(ctx, userID, messages, defs, params)
		addUsage(total, usage)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 {
			return messages, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			output := s.execTool(ctx, userID, byName, call)
			payload, err := json.Marshal(output)
			if err != nil {
				return nil, fmt.Errorf("marshal tool output: %w", err)
			}
			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: string(payload), ToolCallID: call.ID})

			if err := emit(Event{Name: EventToolResult, Data: map[string]any{
				"toolCallId": call.ID,
				"toolName":   call.Name,
				"output":     output,
			}}); err != nil {
				return nil, err
			}
		}
	}
	s.logger.Warn("tool step limit reached", zap.String("user_id", userID), zap.Int("max_steps", s.cfg.MaxSteps))
	return messages, nil
}

func (s *Service) execTool(ctx context.Context, userID string, byName map[string]Tool, call llm.ToolCall) any {
	tool, ok := byName[call.Name]
	if !ok {
		return map[string]string{"error": "unknown tool " + call.Name}
	}
	out, err := tool.Execute(ctx, userID, call.Arguments)
	if err != nil {
		s.logger.Warn("tool call failed", zap.String("tool", call.Name), zap.Error(err))
		return map[string]string{"error": err.Error()}
	}
	return out
}

func (s *Service) fail(log *zap.Logger, emit Emitter, err error) error {
	log.Error("chat generation failed", zap.Error(err))
	msg := "Failed to generate response"
	if errors.Is(err, context.Canceled) {
		msg = "Request cancelled"
	}
	if emitErr := emit(Event{Name: EventError, Data: map[string]string{"message": msg}}); emitErr != nil {
		log.Debug("failed to emit error event", zap.Error(emitErr))
	}
	return err
}

func (s *Service) saveHistory(ctx context.Context, userID string, req Request, answer string) {
	now := s.now().UTC()
	var batch []*models.ChatMessage
	for _, m := range req.Messages {
		if m.Role != models.RoleUser {
			continue
		}
		batch = append(batch, &models.ChatMessage{
			ID: uuid.NewString(), ChatID: req.ChatID, UserID: userID,
			Role: models.RoleUser, Content: m.Content, CreatedAt: now,
		})
	}
	// сохраняем только последнее сообщение пользователя, предыдущие уже в истории
	if len(batch) > 1 {
		batch = batch[len(batch)-1:]
	}
	batch = append(batch, &models.ChatMessage{
		ID: uuid.NewString(), ChatID: req.ChatID, UserID: userID,
		Role: models.RoleAssistant, Content: answer, CreatedAt: now.Add(time.Millisecond),
	})
	if err := s.history.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to save chat history", zap.String("chat_id", req.ChatID), zap.Error(err))
	}
}

// History возвращает историю чата пользователя.
func (s *Service) History(ctx context.Context, userID, chatID string) ([]*models.ChatMessage, error) {
	if s.history == nil {
		return []*models.ChatMessage{}, nil
	}
	return s.history.ListByChat(ctx, userID, chatID)
}

func addUsage(total *llm.UsageInfo, u llm.UsageInfo) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
	total.Estimated = total.Estimated || u.Estimated
}
