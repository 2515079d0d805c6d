//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"vnovel-server/internal/database"
	"vnovel-server/internal/models"
	"vnovel-server/internal/repository"

	"github.com/docker/docker/client"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// PgRepositorySuite проверяет postgres репозитории на реальной БД.
type PgRepositorySuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	pgPool      *pgxpool.Pool
	logger      *zap.Logger

	sessions  repository.SessionRepository
	images    repository.ImageRepository
	settings  repository.SettingsRepository
	documents repository.DocumentRepository
	chats     repository.ChatRepository
}

func (s *PgRepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = zap.NewNop()

	var err error
	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	dsn, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	s.pgPool, err = pgxpool.New(s.ctx, dsn)
	require.NoError(s.T(), err)

	require.NoError(s.T(), database.NewMigrator(s.pgPool, s.logger).Up(s.ctx), "Failed to run migrations")

	s.sessions = repository.NewPgSessionRepository(s.pgPool, s.logger)
	s.images = repository.NewPgImageRepository(s.pgPool, s.logger)
	s.settings = repository.NewPgSettingsRepository(s.pgPool, s.logger)
	s.documents = repository.NewPgDocumentRepository(s.pgPool, s.logger)
	s.chats = repository.NewPgChatRepository(s.pgPool, s.logger)
}

func (s *PgRepositorySuite) TearDownSuite() {
	if s.pgPool != nil {
		s.pgPool.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
}

func (s *PgRepositorySuite) SetupTest() {
	_, err := s.pgPool.Exec(s.ctx, "TRUNCATE TABLE game_sessions, image_records, user_settings, documents, chat_messages")
	require.NoError(s.T(), err)
}

func TestPgRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Fatalf("Docker client init error: %v. Ensure Docker is running and accessible.", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Fatalf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(PgRepositorySuite))
}

func (s *PgRepositorySuite) TestSessionRoundTrip() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	session := &models.GameSession{
		ID:     "game_1",
		UserID: "alice",
		Title:  "Fantasy Adventure",
		Genre:  "fantasy",
		Story: []models.StorySegment{
			{ID: "intro_segment", Text: "Welcome", NextSegmentID: "first_segment"},
			{ID: "first_segment", Text: "Go", Choices: []models.Choice{{ID: "c1", Text: "Left", NextSegmentID: "n1"}}},
		},
		GameState: models.GameState{
			CurrentSegmentID: "first_segment",
			VisitedSegments:  models.NewVisitedSet("intro_segment", "first_segment"),
			PlayerChoices:    map[string]string{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.Require().NoError(s.sessions.Save(s.ctx, session))

	got, err := s.sessions.GetByID(s.ctx, "alice", "game_1")
	s.Require().NoError(err)
	s.Equal([]string{"intro_segment", "first_segment"}, got.GameState.VisitedSegments.IDs())
	s.Len(got.Story, 2)

	_, err = s.sessions.GetByID(s.ctx, "bob", "game_1")
	s.ErrorIs(err, models.ErrNotFound)

	hijack := *session
	hijack.UserID = "bob"
	s.ErrorIs(s.sessions.Save(s.ctx, &hijack), models.ErrForbidden)

	list, err := s.sessions.ListByUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.Len(list, 1)

	s.Require().NoError(s.sessions.Delete(s.ctx, "alice", "game_1"))
	s.ErrorIs(s.sessions.Delete(s.ctx, "alice", "game_1"), models.ErrNotFound)
}

func (s *PgRepositorySuite) TestImageRecordsFilterByService() {
	base := time.Now().UTC()
	for i, svc := range []string{"kie.ai", "pollinations.ai", "replicate"} {
		s.Require().NoError(s.images.Create(s.ctx, &models.ImageRecord{
			ID: svc, UserID: "alice", URL: "http://x/" + svc, Prompt: "p", Service: svc,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := s.images.ListByUser(s.ctx, "alice", nil, 0)
	s.Require().NoError(err)
	s.Len(all, 3)
	s.Equal("replicate", all[0].Service)

	filtered, err := s.images.ListByUser(s.ctx, "alice", []string{"kie.ai", "replicate"}, 1)
	s.Require().NoError(err)
	s.Require().Len(filtered, 1)
	s.Equal("replicate", filtered[0].Service)
}

func (s *PgRepositorySuite) TestSettingsUpsert() {
	_, err := s.settings.Get(s.ctx, "alice")
	s.ErrorIs(err, models.ErrNotFound)

	st := models.DefaultSettings()
	st.TextSpeed = 80
	s.Require().NoError(s.settings.Upsert(s.ctx, "alice", st))
	st.Fullscreen = true
	s.Require().NoError(s.settings.Upsert(s.ctx, "alice", st))

	got, err := s.settings.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(st, *got)
}

func (s *PgRepositorySuite) TestDocumentsAndChat() {
	doc := &models.Document{
		ID: "doc-1", UserID: "alice", Filename: "page.html", Title: "page.html", Content: "<p>hi</p>",
		Width: 600, Height: 400, Position: models.DocumentPosition{X: 150, Y: 220}, CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.documents.Create(s.ctx, doc))

	got, err := s.documents.GetByID(s.ctx, "alice", "doc-1")
	s.Require().NoError(err)
	s.Equal(doc.Position, got.Position)

	_, err = s.documents.GetByID(s.ctx, "bob", "doc-1")
	s.ErrorIs(err, models.ErrNotFound)

	now := time.Now().UTC()
	s.Require().NoError(s.chats.Append(s.ctx,
		&models.ChatMessage{ID: "m1", ChatID: "chat", UserID: "alice", Role: models.RoleUser, Content: "hi", CreatedAt: now},
		&models.ChatMessage{ID: "m2", ChatID: "chat", UserID: "alice", Role: models.RoleAssistant, Content: "hello", CreatedAt: now.Add(time.Second)},
	))
	msgs, err := s.chats.ListByChat(s.ctx, "alice", "chat")
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal("m1", msgs[0].ID)
}
