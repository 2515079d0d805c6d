package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vnovel-server/internal/catalog"
	"vnovel-server/internal/chat"
	"vnovel-server/internal/game"
	"vnovel-server/internal/image"
	"vnovel-server/internal/messaging"
	"vnovel-server/internal/models"
	"vnovel-server/internal/repository"
	"vnovel-server/internal/story"
	"vnovel-server/pkg/taskmanager"
)

type mockImages struct {
	mock.Mock
}

func (m *mockImages) Generate(ctx context.Context, userID, prompt string) (*image.Result, error) {
	args := m.Called(ctx, userID, prompt)
	res, _ := args.Get(0).(*image.Result)
	return res, args.Error(1)
}

func (m *mockImages) GenerateReplicate(ctx context.Context, userID, prompt string, opts image.ReplicateOptions) (*image.Result, error) {
	args := m.Called(ctx, userID, prompt, opts)
	res, _ := args.Get(0).(*image.Result)
	return res, args.Error(1)
}

func (m *mockImages) RunJob(ctx context.Context, userID string, job image.Job) (*image.Result, error) {
	args := m.Called(ctx, userID, job)
	res, _ := args.Get(0).(*image.Result)
	return res, args.Error(1)
}

func (m *mockImages) List(ctx context.Context, userID string, services []string, limit int) ([]*models.ImageRecord, error) {
	args := m.Called(ctx, userID, services, limit)
	res, _ := args.Get(0).([]*models.ImageRecord)
	return res, args.Error(1)
}

type mockStories struct {
	mock.Mock
}

func (m *mockStories) Generate(ctx context.Context, userID string, req story.Request) (*story.GeneratedStory, error) {
	args := m.Called(ctx, userID, req)
	res, _ := args.Get(0).(*story.GeneratedStory)
	return res, args.Error(1)
}

type fakeChat struct {
	events []chat.Event
	err    error
}

func (f *fakeChat) Stream(_ context.Context, _ string, req chat.Request, emit chat.Emitter) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("%w: messages are required", models.ErrBadRequest)
	}
	for _, ev := range f.events {
		if err := emit(ev); err != nil {
			return err
		}
	}
	if f.err != nil {
		_ = emit(chat.Event{Name: chat.EventError, Data: map[string]string{"message": "Failed to generate response"}})
		return f.err
	}
	return nil
}

func (f *fakeChat) History(_ context.Context, _ string, chatID string) ([]*models.ChatMessage, error) {
	return []*models.ChatMessage{{ID: "m1", ChatID: chatID, Role: models.RoleUser, Content: "hi"}}, nil
}

type fakeStoryScenes struct{}

func (fakeStoryScenes) GenerateStoryThenImage(_ context.Context, _ string, _ story.Request) *story.SceneResult {
	return &story.SceneResult{
		SegmentResult: story.SegmentResult{Segment: models.StorySegment{
			ID:   "generated_1",
			Text: "The gate creaks open.",
			Choices: []models.Choice{
				{ID: "choice_1_0", Text: "Enter", NextSegmentID: "next_1_0"},
				{ID: "choice_1_1", Text: "Leave", NextSegmentID: "next_1_1"},
			},
		}},
		SceneImage: "https://img/scene.jpg",
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []any
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, payload any, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

type fakeWS struct{}

func (fakeWS) ServeWS(w http.ResponseWriter, _ *http.Request, userID string) {
	w.WriteHeader(http.StatusTeapot)
	_, _ = w.Write([]byte(userID))
}

type testEnv struct {
	router    *gin.Engine
	images    *mockImages
	stories   *mockStories
	chat      *fakeChat
	tasks     *taskmanager.TaskManager
	documents repository.DocumentRepository
}

func newTestEnv(t *testing.T, secret string, publisher messaging.Publisher) *testEnv {
	t.Helper()
	return newTestEnvWithMetrics(t, secret, publisher, false)
}

// newTestEnvWithMetrics с metrics=true можно вызывать в пакете только один раз.
func newTestEnvWithMetrics(t *testing.T, secret string, publisher messaging.Publisher, metrics bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat, err := catalog.Load()
	require.NoError(t, err)

	env := &testEnv{
		images:    &mockImages{},
		stories:   &mockStories{},
		chat:      &fakeChat{},
		tasks:     taskmanager.New(taskmanager.Config{MaxTasks: 2}),
		documents: repository.NewMemoryDocumentRepository(),
	}
	t.Cleanup(func() { _ = env.tasks.Shutdown(context.Background()) })

	games := game.NewService(
		repository.NewMemorySessionRepository(),
		repository.NewMemorySettingsRepository(),
		cat, fakeStoryScenes{}, nil, zap.NewNop(),
	)
	h := NewHandler(Deps{
		Chat:      env.chat,
		Stories:   env.stories,
		Images:    env.images,
		Games:     games,
		Documents: env.documents,
		Catalog:   cat,
		Tasks:     env.tasks,
		Publisher: publisher,
		WS:        fakeWS{},
		TaskLog:   zerolog.Nop(),
	}, zap.NewNop())
	env.router = NewRouter(RouterConfig{Env: "test", JWTSecret: secret, Metrics: metrics}, h, zap.NewNop())
	return env
}

func (e *testEnv) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStory(t *testing.T) {
	t.Run("missing context", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		rec := env.do(http.MethodPost, "/api/story", map[string]any{"parameters": map[string]string{"genre": "horror"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Missing required field: context", decodeError(t, rec))
		env.stories.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("generation failure", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		env.stories.On("Generate", mock.Anything, "guest", mock.Anything).
			Return(nil, fmt.Errorf("%w: schema", models.ErrGenerationFailed)).Once()

		rec := env.do(http.MethodPost, "/api/story", map[string]any{"context": map[string]any{"playerInput": "run"}})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to generate story", decodeError(t, rec))
	})

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		out := &story.GeneratedStory{
			Story:       story.StoryPart{Text: "Rain falls."},
			Choices:     []story.GeneratedText{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}},
			ImagePrompt: "rainy street",
		}
		env.stories.On("Generate", mock.Anything, "guest", mock.MatchedBy(func(r story.Request) bool {
			return r.Context != nil && r.Context.PlayerChoice == "Open the door" && r.Parameters.Genre == "noir"
		})).Return(out, nil).Once()

		rec := env.do(http.MethodPost, "/api/story", map[string]any{
			"context":    map[string]any{"playerChoice": "Open the door"},
			"parameters": map[string]string{"genre": "noir"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"imagePrompt":"rainy street"`)
		env.stories.AssertExpectations(t)
	})
}

func TestImageEndpoints(t *testing.T) {
	t.Run("missing prompt", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		for _, path := range []string{"/api/image", "/api/image-replicate", "/api/image/jobs"} {
			rec := env.do(http.MethodPost, path, map[string]string{"prompt": "  "})
			assert.Equal(t, http.StatusBadRequest, rec.Code, path)
			assert.Equal(t, "Missing required field: prompt", decodeError(t, rec), path)
		}
	})

	t.Run("primary", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		env.images.On("Generate", mock.Anything, "guest", "a castle").
			Return(&image.Result{ImageURL: "https://img/1.jpg", Service: "kie.ai"}, nil).Once()

		rec := env.do(http.MethodPost, "/api/image", map[string]string{"prompt": "a castle"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"imageUrl":"https://img/1.jpg"`)
	})

	t.Run("replicate defaults are merged", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		env.images.On("GenerateReplicate", mock.Anything, "guest", "a knight", mock.MatchedBy(func(o image.ReplicateOptions) bool {
			return o.AspectRatio == "16:9" && o.OutputFormat == "png" && o.OutputQuality == 80 &&
				o.Parameters.Genre == "visual novel" && o.Parameters.Mood == "dark"
		})).Return(&image.Result{ImageURL: "/images/x.png", Service: "replicate"}, nil).Once()

		rec := env.do(http.MethodPost, "/api/image-replicate", map[string]any{
			"prompt":       "a knight",
			"outputFormat": "png",
			"parameters":   map[string]string{"mood": "dark"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		env.images.AssertExpectations(t)
	})

	t.Run("list with filters", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		env.images.On("List", mock.Anything, "guest", []string{"kie.ai", "replicate"}, 5).
			Return([]*models.ImageRecord{{ID: "r1"}}, nil).Once()

		rec := env.do(http.MethodGet, "/api/images?service=kie.ai,replicate&limit=5", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"r1"`)

		rec = env.do(http.MethodGet, "/api/images?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestImageJobsInProcess(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.images.On("RunJob", mock.Anything, "guest", mock.MatchedBy(func(j image.Job) bool {
		return j.Provider == image.ProviderKie && j.Prompt == "a dragon"
	})).Return(&image.Result{ImageURL: "https://img/dragon.jpg"}, nil).Once()

	rec := env.do(http.MethodPost, "/api/image/jobs", map[string]string{"prompt": "a dragon", "provider": "kie"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted imageJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.TaskID)

	require.Eventually(t, func() bool {
		rec := env.do(http.MethodGet, "/api/image/jobs/"+accepted.TaskID, nil)
		return rec.Code == http.StatusOK && strings.Contains(rec.Body.String(), `"status":"completed"`)
	}, 2*time.Second, 10*time.Millisecond)

	// чужая задача не видна
	rec = env.do(http.MethodGet, "/api/image/jobs/"+accepted.TaskID, nil, "X-User-ID", "someone-else")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// завершенную задачу отменить нельзя
	rec = env.do(http.MethodDelete, "/api/image/jobs/"+accepted.TaskID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodGet, "/api/image/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImageJobsCancel(t *testing.T) {
	env := newTestEnv(t, "", nil)
	started := make(chan struct{})
	env.images.On("RunJob", mock.Anything, "guest", mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled).Once()

	rec := env.do(http.MethodPost, "/api/image/jobs", map[string]string{"prompt": "slow"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted imageJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	<-started

	rec = env.do(http.MethodDelete, "/api/image/jobs/"+accepted.TaskID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)
}

func TestImageJobsUnknownProvider(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.do(http.MethodPost, "/api/image/jobs", map[string]string{"prompt": "x", "provider": "dalle"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown image provider 'dalle'", decodeError(t, rec))
}

func TestImageJobsPublished(t *testing.T) {
	pub := &recordingPublisher{}
	env := newTestEnv(t, "", pub)

	rec := env.do(http.MethodPost, "/api/image/jobs", map[string]any{"prompt": "a ship", "provider": "replicate"}, "X-User-ID", "bob")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"queued"`)

	require.Len(t, pub.payloads, 1)
	payload, ok := pub.payloads[0].(messaging.ImageTaskPayload)
	require.True(t, ok)
	assert.Equal(t, "bob", payload.UserID)
	assert.Equal(t, "a ship", payload.Prompt)
	assert.Equal(t, image.ProviderReplicate, payload.Provider)
	assert.Equal(t, "16:9", payload.Parameters.AspectRatio)
	env.images.AssertNotCalled(t, "RunJob", mock.Anything, mock.Anything, mock.Anything)

	pub.err = errors.New("channel closed")
	rec = env.do(http.MethodPost, "/api/image/jobs", map[string]any{"prompt": "a ship"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to queue image job", decodeError(t, rec))
}

func TestChatStream(t *testing.T) {
	t.Run("empty messages", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		rec := env.do(http.MethodPost, "/api/chat", map[string]any{"messages": []any{}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	})

	t.Run("events", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		env.chat.events = []chat.Event{
			{Name: chat.EventStart, Data: map[string]string{"messageId": "m-1"}},
			{Name: chat.EventTextDelta, Data: map[string]string{"delta": "Hello"}},
			{Name: chat.EventFinish, Data: map[string]string{"finishReason": "stop"}},
		}
		rec := env.do(http.MethodPost, "/api/chat", map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		start := strings.Index(body, "event:start")
		delta := strings.Index(body, "event:text-delta")
		finish := strings.Index(body, "event:finish")
		require.True(t, start >= 0 && delta > start && finish > delta, body)
		assert.Contains(t, body, `"delta":"Hello"`)
	})

	t.Run("error after start", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		env.chat.events = []chat.Event{{Name: chat.EventStart, Data: map[string]string{"messageId": "m-1"}}}
		env.chat.err = errors.New("upstream 502")
		rec := env.do(http.MethodPost, "/api/chat", map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "event:error")
		assert.Contains(t, rec.Body.String(), "Failed to generate response")
	})

	t.Run("history", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		rec := env.do(http.MethodGet, "/api/chat/c-1/messages", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"chatId":"c-1"`)
	})
}

func TestGames(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rec := env.do(http.MethodPost, "/api/games", map[string]string{"genre": "no-such-genre"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/games", map[string]string{"genre": "fantasy", "tone": "dark"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view game.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	sessionID := view.Session.ID
	require.NotEmpty(t, sessionID)

	rec = env.do(http.MethodGet, "/api/games/"+sessionID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/games/"+sessionID, nil, "X-User-ID", "intruder")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/games/"+sessionID+"/choices", map[string]string{"choiceId": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/games/"+sessionID+"/choices", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required field: choiceId", decodeError(t, rec))

	rec = env.do(http.MethodPost, "/api/games/"+sessionID+"/choices", map[string]string{"choiceId": "choice_1_0"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/games/"+sessionID+"/custom", map[string]string{"text": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/games/"+sessionID+"/save", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/games", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), sessionID)

	rec = env.do(http.MethodDelete, "/api/games/"+sessionID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/api/games/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rec := env.do(http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"textSpeed":50`)

	bad := models.DefaultSettings()
	bad.TextSpeed = 0
	rec = env.do(http.MethodPut, "/api/settings", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "textSpeed must be between 1 and 100", decodeError(t, rec))

	good := models.DefaultSettings()
	good.TextSpeed = 80
	rec = env.do(http.MethodPut, "/api/settings", good)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/settings", nil)
	assert.Contains(t, rec.Body.String(), `"textSpeed":80`)
}

func TestDocuments(t *testing.T) {
	env := newTestEnv(t, "", nil)
	require.NoError(t, env.documents.Create(context.Background(), &models.Document{ID: "d1", UserID: "guest", Filename: "notes.md"}))

	rec := env.do(http.MethodGet, "/api/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"notes.md"`)

	rec = env.do(http.MethodGet, "/api/documents/d1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t, "", nil)
	rec := env.do(http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"genres"`)
}

func TestAuth(t *testing.T) {
	const secret = "test-secret"
	sign := func(t *testing.T, claims jwt.RegisteredClaims, key string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return token
	}

	env := newTestEnv(t, secret, nil)

	rec := env.do(http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/settings", nil, "Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongKey := sign(t, jwt.RegisteredClaims{Subject: "alice"}, "other")
	rec = env.do(http.MethodGet, "/api/settings", nil, "Authorization", "Bearer "+wrongKey)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired := sign(t, jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}, secret)
	rec = env.do(http.MethodGet, "/api/settings", nil, "Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized: Token expired", decodeError(t, rec))

	noSubject := sign(t, jwt.RegisteredClaims{}, secret)
	rec = env.do(http.MethodGet, "/api/settings", nil, "Authorization", "Bearer "+noSubject)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	valid := sign(t, jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}, secret)
	rec = env.do(http.MethodGet, "/ws", nil, "Authorization", "Bearer "+valid)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	// X-User-ID не действует при настроенном JWT
	rec = env.do(http.MethodGet, "/ws?token="+valid, nil, "X-User-ID", "mallory")
	assert.Equal(t, "alice", rec.Body.String())

	// токен в строке запроса принимается только для /ws
	rec = env.do(http.MethodGet, "/api/settings?token="+valid, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// health доступен без токена
	rec = env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics_CountsAPIRoutes(t *testing.T) {
	env := newTestEnvWithMetrics(t, "", nil, true)

	for i := 0; i < 3; i++ {
		rec := env.do(http.MethodGet, "/api/catalog", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "gin_requests_total")
	assert.Contains(t, body, `url="/api/catalog"`)
}

func TestGuestMode(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rec := env.do(http.MethodGet, "/ws", nil)
	assert.Equal(t, "guest", rec.Body.String())

	rec = env.do(http.MethodGet, "/ws", nil, "X-User-ID", "carol")
	assert.Equal(t, "carol", rec.Body.String())
}

func TestHandleServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("%w: Missing required field: context", models.ErrBadRequest), http.StatusBadRequest, "Missing required field: context"},
		{models.ErrInvalidChoice, http.StatusBadRequest, models.ErrInvalidChoice.Error()},
		{models.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		{models.ErrForbidden, http.StatusForbidden, "Forbidden"},
		{fmt.Errorf("session x: %w", models.ErrNotFound), http.StatusNotFound, "Not found"},
		{taskmanager.ErrTooManyTasks, http.StatusTooManyRequests, "Too many active tasks"},
		{fmt.Errorf("%w: timeout", models.ErrGenerationFailed), http.StatusInternalServerError, "Failed to generate story"},
		{errors.New("boom"), http.StatusInternalServerError, "Failed to generate story"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		handleServiceError(c, tc.err, "Failed to generate story")
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.msg, decodeError(t, rec), tc.err.Error())
	}
}
