package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"vnovel-server/internal/llm"
)

// SystemPrompt - контракт ролевой игры визуальной новеллы.
const SystemPrompt = `
You are a visual novel game. You take the user through an adventure in an anime style isekai world.
Make sure to make the story engaging and immersive.
Make sure it has unique characters and a unique story.

IMPORTANT: You must respond with a valid JSON object wrapped in ` + "```json" + ` code blocks containing:
- aiResponse: Your main roleplay response
- imagePrompt: A detailed visual description of the current scene for image generation (focus on the character, setting, pose, outfit, facial expression, etc.)
- suggestions: Array of exactly 4 response suggestions
- stats: Object with level, dressStatus, and location
- MAKE SURE images are in ANIME style

Example format:
` + "```json" + `
{
  "aiResponse": "Your roleplay response here...",
  "imagePrompt": "Detailed visual description of the scene...",
  "suggestions": ["Suggestion 1", "Suggestion 2", "Suggestion 3", "Suggestion 4"],
  "stats": {
    "level": "1",
    "dressStatus": "travel cloak and leather armor",
    "location": "castle"
  }
}
` + "```" + `

Make sure the imagePrompt is highly detailed and visual, describing the character's appearance, pose, outfit, facial expression, and the scene setting.
`

// SuggestionCount - сколько подсказок получает клиент.
const SuggestionCount = 4

var fallbackSuggestions = []string{
	"Continue the story",
	"Look around",
	"Talk to someone nearby",
	"Check my status",
}

// Stats - состояние героя, которое модель возвращает с каждым ответом.
type Stats struct {
	Level       string `json:"level"`
	DressStatus string `json:"dressStatus"`
	Location    string `json:"location"`
}

// RoleplayReply - разобранный ответ модели.
type RoleplayReply struct {
	AIResponse  string   `json:"aiResponse"`
	ImagePrompt string   `json:"imagePrompt"`
	Suggestions []string `json:"suggestions"`
	Stats       Stats    `json:"stats"`
}

// level может прийти числом или строкой
type rawReply struct {
	AIResponse  string   `json:"aiResponse"`
	ImagePrompt string   `json:"imagePrompt"`
	Suggestions []string `json:"suggestions"`
	Stats       struct {
		Level       json.RawMessage `json:"level"`
		DressStatus string          `json:"dressStatus"`
		Location    string          `json:"location"`
	} `json:"stats"`
}

// ParseReply разбирает ответ модели. Подсказки обрезаются или дополняются до четырех.
func ParseReply(text string) (*RoleplayReply, error) {
	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var r rawReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("invalid reply json: %w", err)
	}
	if strings.TrimSpace(r.AIResponse) == "" {
		return nil, fmt.Errorf("reply has empty aiResponse")
	}

	reply := &RoleplayReply{
		AIResponse:  r.AIResponse,
		ImagePrompt: r.ImagePrompt,
		Suggestions: normalizeSuggestions(r.Suggestions),
		Stats: Stats{
			Level:       levelString(r.Stats.Level),
			DressStatus: r.Stats.DressStatus,
			Location:    r.Stats.Location,
		},
	}
	return reply, nil
}

func normalizeSuggestions(in []string) []string {
	out := make([]string, 0, SuggestionCount)
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == SuggestionCount {
			return out
		}
	}
	for _, s := range fallbackSuggestions {
		if len(out) == SuggestionCount {
			break
		}
		out = append(out, s)
	}
	return out
}

func levelString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
