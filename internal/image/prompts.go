package image

import (
	"fmt"
	"strings"
)

const (
	sceneSuffix   = "complete visual novel scene illustration with all characters and environment integrated together, anime art style, high quality, detailed, professional digital artwork, vibrant colors, clean lines, cinematic composition, characters positioned naturally in the scene"
	contextSuffix = "anime art style, high quality, detailed, professional digital artwork, vibrant colors, clean lines"
	storySuffix   = "visual novel illustration, anime style, high quality, detailed, professional digital artwork, vibrant colors, clean lines, beautiful lighting, masterpiece"
)

// Parameters - дополнительный контекст для промпта изображения.
type Parameters struct {
	Genre     string `json:"genre,omitempty"`
	Mood      string `json:"mood,omitempty"`
	Character string `json:"character,omitempty"`
	Scene     string `json:"scene,omitempty"`
}

// Merge возвращает p, в котором пустые поля заполнены из defaults.
func (p Parameters) Merge(defaults Parameters) Parameters {
	if p.Genre == "" {
		p.Genre = defaults.Genre
	}
	if p.Mood == "" {
		p.Mood = defaults.Mood
	}
	if p.Character == "" {
		p.Character = defaults.Character
	}
	if p.Scene == "" {
		p.Scene = defaults.Scene
	}
	return p
}

// EnhanceScenePrompt дополняет промпт для основного провайдера (Kie.ai).
func EnhanceScenePrompt(prompt string) string {
	return prompt + ", " + sceneSuffix
}

// EnhanceWithContext добавляет жанр, настроение, персонажа и сцену (путь Replicate).
// Без контекста промпт возвращается как есть.
func EnhanceWithContext(prompt string, params Parameters) string {
	var parts []string
	if params.Genre != "" {
		parts = append(parts, params.Genre+" genre")
	}
	if params.Mood != "" {
		parts = append(parts, params.Mood+" mood")
	}
	if params.Character != "" {
		parts = append(parts, "featuring "+params.Character)
	}
	if params.Scene != "" {
		parts = append(parts, "in "+params.Scene)
	}
	if len(parts) == 0 {
		return prompt
	}
	return fmt.Sprintf("%s, %s, %s", prompt, strings.Join(parts, ", "), contextSuffix)
}

// CharacterRef - минимальное описание персонажа для промпта.
type CharacterRef struct {
	Name        string
	Description string
	Personality string
}

// BuildImagePrompt собирает промпт сцены истории в заданном стиле.
func BuildImagePrompt(prompt, style string, character *CharacterRef, scene string) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	if character != nil {
		fmt.Fprintf(&sb, ", featuring %s: %s, %s", character.Name, character.Description, character.Personality)
	}
	if scene != "" {
		sb.WriteString(", scene: ")
		sb.WriteString(scene)
	}
	if style == "" {
		style = "anime"
	}
	fmt.Fprintf(&sb, ", %s art style, %s", style, storySuffix)
	return sb.String()
}
