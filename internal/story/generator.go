package story

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"vnovel-server/internal/config"
	"vnovel-server/internal/image"
	"vnovel-server/internal/llm"
	"vnovel-server/internal/models"
)

const (
	maxStoryText   = 1000
	maxChoiceText  = 100
	maxImagePrompt = 500
	choiceCount    = 4

	fallbackText = "The adventure continues, though the path ahead remains uncertain..."
)

// GeneratedStory - ответ модели для /api/story.
type GeneratedStory struct {
	Story       StoryPart       `json:"story"`
	Choices     []GeneratedText `json:"choices"`
	ImagePrompt string          `json:"imagePrompt"`
}

// StoryPart - текст сегмента и описание сцены.
type StoryPart struct {
	Text          string `json:"text"`
	CharacterName string `json:"characterName,omitempty"`
	Scene         string `json:"scene,omitempty"`
	Mood          string `json:"mood,omitempty"`
	IsBreakpoint  *bool  `json:"isBreakpoint,omitempty"`
}

// GeneratedText - текст выбора.
type GeneratedText struct {
	Text string `json:"text"`
}

// Validate проверяет ответ модели и проставляет значения по умолчанию.
func (g *GeneratedStory) Validate() error {
	if err := checkLength("story.text", g.Story.Text, maxStoryText); err != nil {
		return err
	}
	if len(g.Choices) != choiceCount {
		return fmt.Errorf("choices: expected %d, got %d", choiceCount, len(g.Choices))
	}
	for i, c := range g.Choices {
		if err := checkLength("choices["+strconv.Itoa(i)+"].text", c.Text, maxChoiceText); err != nil {
			return err
		}
	}
	if err := checkLength("imagePrompt", g.ImagePrompt, maxImagePrompt); err != nil {
		return err
	}
	if g.Story.IsBreakpoint == nil {
		t := true
		g.Story.IsBreakpoint = &t
	}
	return nil
}

func checkLength(field, value string, max int) error {
	n := utf8.RuneCountInString(value)
	if n == 0 {
		return fmt.Errorf("%s is required", field)
	}
	if n > max {
		return fmt.Errorf("%s is longer than %d characters", field, max)
	}
	return nil
}

// SegmentResult - сегмент с выборами, готовый к добавлению в сессию.
type SegmentResult struct {
	Segment     models.StorySegment `json:"story"`
	ImagePrompt string              `json:"imagePrompt,omitempty"`
	Fallback    bool                `json:"fallback,omitempty"`
}

// SceneResult - сегмент вместе с иллюстрацией сцены.
type SceneResult struct {
	SegmentResult
	SceneImage string `json:"sceneImage"`
}

// ImageGenerator - то, что нужно генератору истории от сервиса изображений.
type ImageGenerator interface {
	Generate(ctx context.Context, userID, prompt string) (*image.Result, error)
}

// Generator генерирует сегменты истории через LLM.
type Generator struct {
	client llm.AIClient
	images ImageGenerator
	params llm.GenerationParams
	policy llm.RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewGenerator создает генератор. images может быть nil, тогда сцены получают заглушку.
func NewGenerator(client llm.AIClient, images ImageGenerator, cfg config.StoryConfig, logger *zap.Logger) *Generator {
	params := llm.GenerationParams{
		Model:       cfg.Model,
		Temperature: llm.Float64(cfg.Temperature),
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = llm.Int(cfg.MaxTokens)
	}
	return &Generator{
		client: client,
		images: images,
		params: params,
		policy: llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second},
		logger: logger.Named("StoryGenerator"),
		now:    time.Now,
	}
}

// WithRetryPolicy заменяет политику повторов.
func (g *Generator) WithRetryPolicy(p llm.RetryPolicy) *Generator {
	g.policy = p
	return g
}

// Generate возвращает сырой ответ модели для /api/story.
func (g *Generator) Generate(ctx context.Context, userID string, req Request) (*GeneratedStory, error) {
	if req.Context == nil {
		return nil, fmt.Errorf("%w: Missing required field: context", models.ErrBadRequest)
	}

	prompt := BuildStoryPrompt(*req.Context, req.Parameters)
	messages := []llm.Message{{Role: llm.RoleUser, Content: prompt}}

	var out GeneratedStory
	usage, err := llm.GenerateJSON(ctx, g.client, userID, messages, g.params, g.policy, &out)
	if err != nil {
		g.logger.Error("story generation failed",
			zap.String("userID", userID),
			zap.String("model", g.params.Model),
			zap.Error(err))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}

	g.logger.Debug("story generated",
		zap.String("userID", userID),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
		zap.Bool("estimated", usage.Estimated))
	return &out, nil
}

// GenerateStoryWithChoices генерирует сегмент и превращает ответ модели в StorySegment.
// При любой ошибке возвращается запасной сегмент с Fallback=true.
func (g *Generator) GenerateStoryWithChoices(ctx context.Context, userID string, req Request) *SegmentResult {
	out, err := g.Generate(ctx, userID, req)
	if err != nil {
		g.logger.Warn("using fallback segment", zap.String("userID", userID), zap.Error(err))
		return &SegmentResult{Segment: FallbackSegment(g.now()), Fallback: true}
	}
	return &SegmentResult{
		Segment:     toSegment(out, g.now()),
		ImagePrompt: out.ImagePrompt,
	}
}

// GenerateStoryThenImage генерирует сначала сегмент, затем иллюстрацию сцены.
// Ошибка изображения не прерывает генерацию: сцена получает заглушку.
func (g *Generator) GenerateStoryThenImage(ctx context.Context, userID string, req Request) *SceneResult {
	res := g.GenerateStoryWithChoices(ctx, userID, req)
	scene := &SceneResult{SegmentResult: *res, SceneImage: image.PlaceholderImageURL}

	if g.images == nil {
		return scene
	}

	prompt := image.BuildImagePrompt(ScenePrompt(res, req.Parameters.Genre), "anime", nil, res.Segment.Metadata.Scene)
	img, err := g.images.Generate(ctx, userID, prompt)
	if err != nil || img == nil || img.ImageURL == "" {
		g.logger.Warn("scene image failed, using placeholder", zap.String("userID", userID), zap.Error(err))
		return scene
	}
	scene.SceneImage = img.ImageURL
	return scene
}

// ScenePrompt строит промпт иллюстрации сцены по результату генерации.
func ScenePrompt(res *SegmentResult, genre string) string {
	if res.ImagePrompt != "" {
		return res.ImagePrompt + ", showing all characters present in the scene, complete visual novel illustration with characters and environment together"
	}
	if genre == "" {
		genre = "fantasy"
	}
	scene := res.Segment.Metadata.Scene
	if scene == "" {
		scene = "mysterious location"
	}
	mood := res.Segment.Metadata.Mood
	if mood == "" {
		mood = "neutral"
	}
	featuring := ""
	if res.Segment.CharacterName != "" {
		featuring = ", featuring " + res.Segment.CharacterName
	}
	return fmt.Sprintf("%s scene: %s, %s mood%s, complete visual novel illustration showing all characters and environment in one cohesive image",
		genre, scene, mood, featuring)
}

func toSegment(out *GeneratedStory, now time.Time) models.StorySegment {
	ts := now.UnixMilli()
	seg := models.StorySegment{
		ID:            fmt.Sprintf("generated_%d", ts),
		Text:          out.Story.Text,
		CharacterName: out.Story.CharacterName,
		IsBreakpoint:  out.Story.IsBreakpoint == nil || *out.Story.IsBreakpoint,
		Metadata: models.SegmentMetadata{
			Scene: out.Story.Scene,
			Mood:  out.Story.Mood,
		},
	}
	seg.Choices = make([]models.Choice, 0, len(out.Choices))
	for i, c := range out.Choices {
		seg.Choices = append(seg.Choices, models.Choice{
			ID:            fmt.Sprintf("choice_%d_%d", ts, i),
			Text:          c.Text,
			NextSegmentID: fmt.Sprintf("next_%d_%d", ts, i),
		})
	}
	return seg
}

// FallbackSegment - сегмент, который показывается, когда модель не ответила.
func FallbackSegment(now time.Time) models.StorySegment {
	base := fmt.Sprintf("fallback_%d", now.UnixMilli())
	return models.StorySegment{
		ID:           base,
		Text:         fallbackText,
		IsBreakpoint: true,
		Choices:      FallbackChoices(now),
		Metadata: models.SegmentMetadata{
			Scene: "unknown",
			Mood:  "mysterious",
		},
	}
}

// FallbackChoices - четыре нейтральных выбора запасного сегмента.
func FallbackChoices(now time.Time) []models.Choice {
	base := fmt.Sprintf("fallback_%d", now.UnixMilli())
	return []models.Choice{
		{ID: base + "_1", Text: "Move forward carefully", NextSegmentID: base + "_forward"},
		{ID: base + "_2", Text: "Look around for clues", NextSegmentID: base + "_explore"},
		{ID: base + "_3", Text: "Call out for help", NextSegmentID: base + "_call"},
		{ID: base + "_4", Text: "Wait and observe", NextSegmentID: base + "_wait"},
	}
}
