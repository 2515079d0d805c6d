package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// ErrNoJSON - в ответе модели не найден JSON объект.
var ErrNoJSON = errors.New("no json object in model response")

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON достает JSON объект из ответа модели: сначала из блока ```json,
// затем по крайним фигурным скобкам.
func ExtractJSON(text string) (string, error) {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if strings.HasPrefix(candidate, "{") {
			return candidate, nil
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

// Validator реализуется структурами ответа, которые проверяют себя после разбора.
type Validator interface {
	Validate() error
}

// RetryPolicy - параметры повторов GenerateJSON.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// GenerateJSON запрашивает у модели JSON и разбирает его в out.
// Задержка перед повтором равна attempt*BaseDelay и прерывается отменой контекста.
// Если out реализует Validator, ошибка валидации считается неудачной попыткой.
// Каждая попытка разбирается в новое значение, out меняется только при успехе.
func GenerateJSON(ctx context.Context, client AIClient, userID string, messages []Message, params GenerationParams, policy RetryPolicy, out any) (UsageInfo, error) {
	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return UsageInfo{}, fmt.Errorf("GenerateJSON: out must be a non-nil pointer, got %T", out)
	}

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	var total UsageInfo
	for attempt := 1; attempt <= attempts; attempt++ {
		text, usage, err := client.GenerateText(ctx, userID, messages, params)
		total.PromptTokens += usage.PromptTokens
		total.CompletionTokens += usage.CompletionTokens
		total.TotalTokens += usage.TotalTokens
		total.Estimated = total.Estimated || usage.Estimated

		if err == nil {
			fresh := reflect.New(target.Elem().Type())
			if err = decodeJSON(text, fresh.Interface()); err == nil {
				target.Elem().Set(fresh.Elem())
				return total, nil
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * policy.BaseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return total, ctx.Err()
		case <-timer.C:
		}
	}

	if errors.Is(lastErr, ErrAIGenerationFailed) {
		return total, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
	}
	return total, fmt.Errorf("%w: after %d attempts: %v", ErrAIGenerationFailed, attempts, lastErr)
}

func decodeJSON(text string, out any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("schema validation: %w", err)
		}
	}
	return nil
}
