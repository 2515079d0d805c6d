package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter оценивает количество токенов в тексте для модели.
type TokenCounter func(model, text string) int

var (
	encodingsMu sync.Mutex
	encodings   = map[string]*tiktoken.Tiktoken{}
)

// TiktokenCounter считает токены через tiktoken. Для моделей, которых tiktoken не знает
// (gemini, kimi и т.п. через OpenRouter), используется cl100k_base.
func TiktokenCounter(model, text string) int {
	if text == "" {
		return 0
	}
	tke := encodingFor(model)
	if tke == nil {
		// Грубая оценка: ~4 символа на токен
		return len(text)/4 + 1
	}
	return len(tke.Encode(text, nil, nil))
}

func encodingFor(model string) *tiktoken.Tiktoken {
	encodingsMu.Lock()
	defer encodingsMu.Unlock()

	if tke, ok := encodings[model]; ok {
		return tke
	}
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			encodings[model] = nil
			return nil
		}
	}
	encodings[model] = tke
	return tke
}

func estimateUsage(counter TokenCounter, model string, messages []Message, completion string) UsageInfo {
	prompt := 0
	for _, m := range messages {
		prompt += counter(model, m.Content)
	}
	completionTokens := counter(model, completion)
	return UsageInfo{
		PromptTokens:     prompt,
		CompletionTokens: completionTokens,
		TotalTokens:      prompt + completionTokens,
		Estimated:        true,
	}
}
