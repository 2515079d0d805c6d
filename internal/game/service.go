package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vnovel-server/internal/catalog"
	"vnovel-server/internal/models"
	"vnovel-server/internal/repository"
	"vnovel-server/internal/story"
)

// Фиксированные id начала игры
const (
	IntroSegmentID    = "intro_segment"
	FirstSegmentID    = "first_segment"
	PlayerCharacterID = "player_character"

	previousSegmentsContext = 3
)

// StoryGenerator - генератор сегментов с иллюстрацией сцены.
type StoryGenerator interface {
	GenerateStoryThenImage(ctx context.Context, userID string, req story.Request) *story.SceneResult
}

// SessionView - сессия вместе с текущим сегментом и прогрессом.
type SessionView struct {
	Session        *models.GameSession  `json:"session"`
	CurrentSegment *models.StorySegment `json:"currentSegment"`
	Progress       models.GameProgress  `json:"progress"`
}

// Service определяет бизнес-логику игровых сессий.
type Service interface {
	StartGame(ctx context.Context, userID string, cfg models.GameConfig) (*SessionView, error)
	Choose(ctx context.Context, userID, sessionID, choiceID string) (*SessionView, error)
	CustomAction(ctx context.Context, userID, sessionID, text string) (*SessionView, error)
	Get(ctx context.Context, userID, sessionID string) (*SessionView, error)
	List(ctx context.Context, userID string) ([]*models.GameSession, error)
	Save(ctx context.Context, userID, sessionID string) (*models.GameSession, error)
	Delete(ctx context.Context, userID, sessionID string) error
	Progress(ctx context.Context, userID, sessionID string) (models.GameProgress, error)
	GetSettings(ctx context.Context, userID string) (models.VisualNovelSettings, error)
	UpdateSettings(ctx context.Context, userID string, settings models.VisualNovelSettings) (models.VisualNovelSettings, error)
}

type gameService struct {
	sessions repository.SessionRepository
	settings repository.SettingsRepository
	catalog  *catalog.Catalog
	stories  StoryGenerator
	images   story.ImageGenerator
	logger   *zap.Logger
	now      func() time.Time

	// ходы одной сессии выполняются последовательно
	locks sessionLocks
}

// NewService создает игровой сервис. images может быть nil, тогда портрет героя не генерируется.
func NewService(
	sessions repository.SessionRepository,
	settings repository.SettingsRepository,
	cat *catalog.Catalog,
	stories StoryGenerator,
	images story.ImageGenerator,
	logger *zap.Logger,
) Service {
	return &gameService{
		sessions: sessions,
		settings: settings,
		catalog:  cat,
		stories:  stories,
		images:   images,
		logger:   logger.Named("GameService"),
		now:      time.Now,
	}
}

// StartGame создает сессию, генерирует первый сегмент и параллельно портрет героя.
func (s *gameService) StartGame(ctx context.Context, userID string, cfg models.GameConfig) (*SessionView, error) {
	log := s.logger.With(zap.String("user_id", userID), zap.String("genre", cfg.Genre))

	if err := s.catalog.ValidateConfig(cfg); err != nil {
		log.Warn("invalid game config", zap.Error(err))
		return nil, err
	}

	now := s.now().UTC()
	title := strings.TrimSpace(cfg.Title)
	if title == "" {
		title = s.catalog.DefaultTitle(cfg.Genre)
	}

	intro := introSegment(cfg)
	player := playerCharacter(cfg)
	session := &models.GameSession{
		ID:         fmt.Sprintf("game_%d", now.UnixMilli()),
		UserID:     userID,
		Title:      title,
		Genre:      cfg.Genre,
		Theme:      cfg.Theme,
		Characters: []models.Character{player},
		Story:      []models.StorySegment{intro},
		GameState: models.GameState{
			CurrentSegmentID:       intro.ID,
			VisitedSegments:        models.NewVisitedSet(intro.ID),
			PlayerChoices:          map[string]string{},
			CharacterRelationships: map[string]int{},
			GameVariables: map[string]any{
				"tone":         cfg.Tone,
				"setting":      cfg.Setting,
				"customPrompt": cfg.CustomPrompt,
			},
			SaveDate: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	scene := cfg.Setting
	if scene == "" {
		scene = "starting location"
	}
	req := story.Request{
		Context: &story.Context{
			CurrentSegment: &models.StorySegment{Metadata: models.SegmentMetadata{Scene: scene}},
			GameState:      &session.GameState,
		},
		Parameters: story.Parameters{Genre: cfg.Genre, Mood: cfg.Tone},
	}

	// 1. Первый сегмент и портрет героя генерируются одновременно
	var (
		first    *story.SceneResult
		portrait string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		first = s.stories.GenerateStoryThenImage(gctx, userID, req)
		return nil
	})
	if s.images != nil {
		g.Go(func() error {
			res, err := s.images.Generate(gctx, userID, player.ImagePrompt)
			if err != nil {
				log.Warn("player portrait generation failed", zap.Error(err))
				return nil
			}
			if res != nil {
				portrait = res.ImageURL
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. Связываем вступление с первым сегментом
	seg := first.Segment
	seg.ID = FirstSegmentID
	seg.BackgroundImage = first.SceneImage
	session.Story[0].NextSegmentID = seg.ID
	if err := AppendSegment(session, seg); err != nil {
		return nil, fmt.Errorf("append first segment: %w", err)
	}
	session.GameState.VisitedSegments.Add(seg.ID)
	session.GameState.CurrentSegmentID = seg.ID
	session.Characters[0].CurrentImage = portrait

	// 3. Сохраняем
	if err := s.sessions.Save(ctx, session); err != nil {
		log.Error("failed to save new session", zap.Error(err))
		return nil, err
	}
	log.Info("game started", zap.String("session_id", session.ID), zap.Bool("fallback", first.Fallback))
	return view(session), nil
}

// Choose применяет выбор и генерирует следующий сегмент, id которого равен NextSegmentID выбора.
func (s *gameService) Choose(ctx context.Context, userID, sessionID, choiceID string) (*SessionView, error) {
	unlock := s.locks.lock(userID, sessionID)
	defer unlock()

	session, current, err := s.loadForTurn(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	choice, ok := current.FindChoice(choiceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidChoice, choiceID)
	}

	scene := s.stories.GenerateStoryThenImage(ctx, userID, story.Request{
		Context: &story.Context{
			CurrentSegment:   current,
			GameState:        &session.GameState,
			PreviousSegments: PreviousSegments(session, previousSegmentsContext),
			PlayerChoice:     choice.Text,
		},
		Parameters: story.Parameters{Genre: session.Genre, Mood: current.Metadata.Mood},
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next, _ := MakeChoice(session, choiceID, "", s.now().UTC())
	return s.commitTurn(ctx, session, scene, next)
}

// CustomAction продолжает историю по свободному вводу игрока.
func (s *gameService) CustomAction(ctx context.Context, userID, sessionID, text string) (*SessionView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: custom action text is required", models.ErrBadRequest)
	}

	unlock := s.locks.lock(userID, sessionID)
	defer unlock()

	session, current, err := s.loadForTurn(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	scene := s.stories.GenerateStoryThenImage(ctx, userID, story.Request{
		Context: &story.Context{
			CurrentSegment:   current,
			GameState:        &session.GameState,
			PreviousSegments: PreviousSegments(session, previousSegmentsContext),
			PlayerInput:      text,
		},
		Parameters: story.Parameters{Genre: session.Genre, Mood: current.Metadata.Mood},
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next, _ := MakeChoice(session, models.CustomChoiceID, text, s.now().UTC())
	return s.commitTurn(ctx, session, scene, next)
}

func (s *gameService) loadForTurn(ctx context.Context, userID, sessionID string) (*models.GameSession, *models.StorySegment, error) {
	session, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	current := CurrentSegment(session)
	if current == nil {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrNoCurrentSegment, session.GameState.CurrentSegmentID)
	}
	// копия: MakeChoice и AppendSegment меняют session.Story
	cur := *current
	return session, &cur, nil
}

func (s *gameService) commitTurn(ctx context.Context, session *models.GameSession, scene *story.SceneResult, nextID string) (*SessionView, error) {
	seg := scene.Segment
	seg.ID = nextID
	seg.BackgroundImage = scene.SceneImage
	if err := AppendSegment(session, seg); err != nil {
		return nil, fmt.Errorf("append segment: %w", err)
	}
	if err := session.ValidateChoices(); err != nil {
		s.logger.Error("session choices are inconsistent, turn discarded",
			zap.String("session_id", session.ID), zap.Error(err))
		return nil, fmt.Errorf("session %s: %w", session.ID, err)
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		s.logger.Error("failed to save session", zap.String("session_id", session.ID), zap.Error(err))
		return nil, err
	}
	s.logger.Debug("turn applied",
		zap.String("session_id", session.ID),
		zap.String("segment_id", seg.ID),
		zap.Bool("fallback", scene.Fallback))
	return view(session), nil
}

func (s *gameService) Get(ctx context.Context, userID, sessionID string) (*SessionView, error) {
	session, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return view(session), nil
}

func (s *gameService) List(ctx context.Context, userID string) ([]*models.GameSession, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// Save фиксирует дату сохранения и записывает сессию.
func (s *gameService) Save(ctx context.Context, userID, sessionID string) (*models.GameSession, error) {
	unlock := s.locks.lock(userID, sessionID)
	defer unlock()

	session, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	session.GameState.SaveDate = now
	session.UpdatedAt = now
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *gameService) Delete(ctx context.Context, userID, sessionID string) error {
	unlock := s.locks.lock(userID, sessionID)
	defer unlock()
	return s.sessions.Delete(ctx, userID, sessionID)
}

func (s *gameService) Progress(ctx context.Context, userID, sessionID string) (models.GameProgress, error) {
	session, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		return models.GameProgress{}, err
	}
	return Progress(session), nil
}

// GetSettings возвращает настройки пользователя или значения по умолчанию.
func (s *gameService) GetSettings(ctx context.Context, userID string) (models.VisualNovelSettings, error) {
	settings, err := s.settings.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.VisualNovelSettings{}, err
	}
	return *settings, nil
}

func (s *gameService) UpdateSettings(ctx context.Context, userID string, settings models.VisualNovelSettings) (models.VisualNovelSettings, error) {
	if err := settings.Validate(); err != nil {
		return models.VisualNovelSettings{}, err
	}
	if err := s.settings.Upsert(ctx, userID, settings); err != nil {
		return models.VisualNovelSettings{}, err
	}
	return settings, nil
}

func view(session *models.GameSession) *SessionView {
	return &SessionView{
		Session:        session,
		CurrentSegment: CurrentSegment(session),
		Progress:       Progress(session),
	}
}

func introSegment(cfg models.GameConfig) models.StorySegment {
	location := cfg.Setting
	if location == "" {
		location = "unknown"
	}
	return models.StorySegment{
		ID:           IntroSegmentID,
		Text:         fmt.Sprintf("Welcome to your %s adventure! Your story is being generated...", cfg.Genre),
		IsBreakpoint: false,
		Metadata: models.SegmentMetadata{
			Scene:    "introduction",
			Mood:     cfg.Tone,
			Location: location,
		},
	}
}

func playerCharacter(cfg models.GameConfig) models.Character {
	name, description := cfg.PlayerCharacter, cfg.PlayerCharacter
	if name == "" {
		name = "The Protagonist"
		description = "A brave adventurer ready for anything"
	}
	return models.Character{
		ID:          PlayerCharacterID,
		Name:        name,
		Description: description,
		Personality: "determined and curious",
		ImagePrompt: fmt.Sprintf("%s protagonist, %s mood, detailed character portrait", cfg.Genre, cfg.Tone),
	}
}
