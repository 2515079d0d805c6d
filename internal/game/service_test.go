package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"vnovel-server/internal/catalog"
	"vnovel-server/internal/image"
	"vnovel-server/internal/models"
	"vnovel-server/internal/repository"
	repomocks "vnovel-server/internal/repository/mocks"
	"vnovel-server/internal/story"
)

type fakeStories struct {
	calls atomic.Int32
	last  story.Request
}

func (f *fakeStories) GenerateStoryThenImage(_ context.Context, _ string, req story.Request) *story.SceneResult {
	n := f.calls.Add(1)
	f.last = req
	return &story.SceneResult{
		SegmentResult: story.SegmentResult{Segment: models.StorySegment{
			ID:           fmt.Sprintf("generated_%d", n),
			Text:         fmt.Sprintf("segment %d", n),
			IsBreakpoint: true,
			Metadata:     models.SegmentMetadata{Scene: "hall", Mood: "tense"},
			Choices: []models.Choice{
				{ID: fmt.Sprintf("choice_%d_0", n), Text: "go", NextSegmentID: fmt.Sprintf("next_%d_0", n)},
				{ID: fmt.Sprintf("choice_%d_1", n), Text: "stay", NextSegmentID: fmt.Sprintf("next_%d_1", n)},
			},
		}},
		SceneImage: fmt.Sprintf("https://img/%d.jpg", n),
	}
}

type fakePortraits struct {
	err error
}

func (f fakePortraits) Generate(_ context.Context, _ string, _ string) (*image.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &image.Result{ImageURL: "https://img/portrait.jpg"}, nil
}

type GameServiceSuite struct {
	suite.Suite
	stories *fakeStories
	repo    repository.SessionRepository
	svc     *gameService
	clock   time.Time
}

func (s *GameServiceSuite) SetupTest() {
	cat, err := catalog.Load()
	s.Require().NoError(err)

	s.stories = &fakeStories{}
	s.repo = repository.NewMemorySessionRepository()
	s.clock = time.UnixMilli(1700000000000)
	svc := NewService(s.repo, repository.NewMemorySettingsRepository(), cat, s.stories, fakePortraits{}, zap.NewNop()).(*gameService)
	svc.now = func() time.Time {
		s.clock = s.clock.Add(time.Millisecond)
		return s.clock
	}
	s.svc = svc
}

func (s *GameServiceSuite) start() *SessionView {
	v, err := s.svc.StartGame(context.Background(), "user-1", models.GameConfig{Genre: "fantasy", Tone: "dark", Setting: "ruined castle"})
	s.Require().NoError(err)
	return v
}

func (s *GameServiceSuite) TestStartGame() {
	v := s.start()
	session := v.Session

	s.Equal("game_1700000000001", session.ID)
	s.Equal("Fantasy Adventure", session.Title)
	s.Equal([]string{IntroSegmentID, FirstSegmentID}, session.GameState.VisitedSegments.IDs())
	s.Equal(FirstSegmentID, session.GameState.CurrentSegmentID)
	s.Require().Len(session.Story, 2)
	s.Equal(FirstSegmentID, session.Story[0].NextSegmentID)
	s.Equal("Welcome to your fantasy adventure! Your story is being generated...", session.Story[0].Text)
	s.Equal("ruined castle", session.Story[0].Metadata.Location)
	s.Equal("https://img/1.jpg", session.Story[1].BackgroundImage)

	s.Require().Len(session.Characters, 1)
	s.Equal("The Protagonist", session.Characters[0].Name)
	s.Equal("fantasy protagonist, dark mood, detailed character portrait", session.Characters[0].ImagePrompt)
	s.Equal("https://img/portrait.jpg", session.Characters[0].CurrentImage)

	s.Equal("ruined castle", s.stories.last.Context.CurrentSegment.Metadata.Scene)
	s.Equal("dark", s.stories.last.Parameters.Mood)

	s.Equal(FirstSegmentID, v.CurrentSegment.ID)
	s.Equal(models.GameProgress{Completed: 2, Total: 2, Percentage: 100}, v.Progress)

	stored, err := s.repo.GetByID(context.Background(), "user-1", session.ID)
	s.Require().NoError(err)
	s.Equal(session.ID, stored.ID)
}

func (s *GameServiceSuite) TestStartGame_InvalidGenre() {
	_, err := s.svc.StartGame(context.Background(), "user-1", models.GameConfig{Genre: "cooking"})
	s.ErrorIs(err, models.ErrInvalidInput)
	s.Equal(int32(0), s.stories.calls.Load())
}

func (s *GameServiceSuite) TestStartGame_PortraitFailureIsNotFatal() {
	s.svc.images = fakePortraits{err: errors.New("kie down")}
	v := s.start()
	s.Empty(v.Session.Characters[0].CurrentImage)
}

func (s *GameServiceSuite) TestChoose() {
	v := s.start()
	first := v.CurrentSegment

	next, err := s.svc.Choose(context.Background(), "user-1", v.Session.ID, first.Choices[1].ID)
	s.Require().NoError(err)

	s.Equal(first.Choices[1].NextSegmentID, next.CurrentSegment.ID)
	s.Equal("stay", s.stories.last.Context.PlayerChoice)
	s.Equal("tense", s.stories.last.Parameters.Mood)
	s.Len(s.stories.last.Context.PreviousSegments, 2)
	s.Equal(first.Choices[1].ID, next.Session.GameState.PlayerChoices[FirstSegmentID])
	s.NoError(next.Session.ValidateChoices())
}

func (s *GameServiceSuite) TestChoose_InvalidChoice() {
	v := s.start()
	_, err := s.svc.Choose(context.Background(), "user-1", v.Session.ID, "nope")
	s.ErrorIs(err, models.ErrInvalidChoice)
}

func (s *GameServiceSuite) TestChoose_ForeignSession() {
	v := s.start()
	_, err := s.svc.Choose(context.Background(), "user-2", v.Session.ID, v.CurrentSegment.Choices[0].ID)
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *GameServiceSuite) TestCustomAction() {
	v := s.start()

	next, err := s.svc.CustomAction(context.Background(), "user-1", v.Session.ID, "  dance wildly ")
	s.Require().NoError(err)

	s.Contains(next.CurrentSegment.ID, "custom_")
	s.Equal("dance wildly", s.stories.last.Context.PlayerInput)
	s.Equal(models.CustomChoiceID, next.Session.GameState.PlayerChoices[FirstSegmentID])
	s.NoError(next.Session.ValidateChoices())

	_, err = s.svc.CustomAction(context.Background(), "user-1", v.Session.ID, "   ")
	s.ErrorIs(err, models.ErrBadRequest)
}

func (s *GameServiceSuite) TestSaveAndDelete() {
	v := s.start()

	saved, err := s.svc.Save(context.Background(), "user-1", v.Session.ID)
	s.Require().NoError(err)
	s.True(saved.GameState.SaveDate.After(v.Session.GameState.SaveDate))

	list, err := s.svc.List(context.Background(), "user-1")
	s.Require().NoError(err)
	s.Len(list, 1)

	s.Require().NoError(s.svc.Delete(context.Background(), "user-1", v.Session.ID))
	_, err = s.svc.Get(context.Background(), "user-1", v.Session.ID)
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *GameServiceSuite) TestSettings() {
	got, err := s.svc.GetSettings(context.Background(), "user-1")
	s.Require().NoError(err)
	s.Equal(models.DefaultSettings(), got)

	custom := models.DefaultSettings()
	custom.TextSpeed = 90
	_, err = s.svc.UpdateSettings(context.Background(), "user-1", custom)
	s.Require().NoError(err)

	got, err = s.svc.GetSettings(context.Background(), "user-1")
	s.Require().NoError(err)
	s.Equal(90, got.TextSpeed)

	custom.MusicVolume = 2
	_, err = s.svc.UpdateSettings(context.Background(), "user-1", custom)
	s.ErrorIs(err, models.ErrInvalidInput)
}

func TestGameServiceSuite(t *testing.T) {
	suite.Run(t, new(GameServiceSuite))
}

func TestStartGame_SaveError(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)

	sessions := repomocks.NewSessionRepository(t)
	sessions.On("Save", mock.Anything, mock.AnythingOfType("*models.GameSession")).Return(errors.New("db down")).Once()

	svc := NewService(sessions, repository.NewMemorySettingsRepository(), cat, &fakeStories{}, nil, zap.NewNop())
	_, err = svc.StartGame(context.Background(), "user-1", models.GameConfig{Genre: "mystery"})
	assert.EqualError(t, err, "db down")
}

type slowStories struct {
	inner     *fakeStories
	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *slowStories) GenerateStoryThenImage(ctx context.Context, userID string, req story.Request) *story.SceneResult {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return f.inner.GenerateStoryThenImage(ctx, userID, req)
}

func newTestService(t *testing.T, sessions repository.SessionRepository, stories StoryGenerator) *gameService {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	svc := NewService(sessions, repository.NewMemorySettingsRepository(), cat, stories, nil, zap.NewNop()).(*gameService)
	var clock int64 = 1700000000000
	svc.now = func() time.Time {
		return time.UnixMilli(atomic.AddInt64(&clock, 1))
	}
	return svc
}

func TestTurns_SameSessionAreSerialized(t *testing.T) {
	inner := &fakeStories{}
	svc := newTestService(t, repository.NewMemorySessionRepository(), inner)
	v, err := svc.StartGame(context.Background(), "user-1", models.GameConfig{Genre: "fantasy"})
	require.NoError(t, err)

	slow := &slowStories{inner: inner}
	svc.stories = slow

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.CustomAction(context.Background(), "user-1", v.Session.ID, fmt.Sprintf("action %d", i))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, slow.maxActive.Load())
	assert.Zero(t, svc.locks.size())

	got, err := svc.Get(context.Background(), "user-1", v.Session.ID)
	require.NoError(t, err)
	assert.Len(t, got.Session.Story, 5)

	require.NoError(t, svc.Delete(context.Background(), "user-1", v.Session.ID))
	assert.Zero(t, svc.locks.size())
}

func TestSessionLocks_KeyedByUser(t *testing.T) {
	var locks sessionLocks
	unlockA := locks.lock("alice", "game_1")

	done := make(chan struct{})
	go func() {
		unlockB := locks.lock("bob", "game_1")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock of another user's session must not block")
	}
	assert.Equal(t, 1, locks.size())
	unlockA()
	assert.Zero(t, locks.size())
}

func TestChoose_DanglingStoredChoiceIsDropped(t *testing.T) {
	repo := repository.NewMemorySessionRepository()
	svc := newTestService(t, repo, &fakeStories{})
	v, err := svc.StartGame(context.Background(), "user-1", models.GameConfig{Genre: "fantasy"})
	require.NoError(t, err)

	corrupted := v.Session
	corrupted.GameState.PlayerChoices[IntroSegmentID] = "removed_choice"
	require.NoError(t, repo.Save(context.Background(), corrupted))

	next, err := svc.Choose(context.Background(), "user-1", v.Session.ID, v.CurrentSegment.Choices[0].ID)
	require.NoError(t, err)
	assert.NotContains(t, next.Session.GameState.PlayerChoices, IntroSegmentID)
	assert.NoError(t, next.Session.ValidateChoices())
}

func TestChoose_InconsistentSessionIsNotSaved(t *testing.T) {
	seed := newTestService(t, repository.NewMemorySessionRepository(), &fakeStories{})
	v, err := seed.StartGame(context.Background(), "user-1", models.GameConfig{Genre: "fantasy"})
	require.NoError(t, err)
	loaded := v.Session
	loaded.GameState.PlayerChoices["missing_segment"] = "choice_x"

	sessions := repomocks.NewSessionRepository(t)
	sessions.On("GetByID", mock.Anything, "user-1", loaded.ID).Return(loaded, nil).Once()

	svc := newTestService(t, sessions, &fakeStories{})
	_, err = svc.Choose(context.Background(), "user-1", loaded.ID, v.CurrentSegment.Choices[0].ID)
	require.ErrorIs(t, err, models.ErrInvalidChoice)
	sessions.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
