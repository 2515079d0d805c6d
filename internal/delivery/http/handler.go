package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"vnovel-server/internal/catalog"
	"vnovel-server/internal/chat"
	"vnovel-server/internal/delivery/http/middleware"
	"vnovel-server/internal/game"
	"vnovel-server/internal/image"
	"vnovel-server/internal/messaging"
	"vnovel-server/internal/models"
	"vnovel-server/internal/repository"
	"vnovel-server/internal/story"
	"vnovel-server/pkg/taskmanager"
)

// ChatService - потоковый ролевой чат.
type ChatService interface {
	Stream(ctx context.Context, userID string, req chat.Request, emit chat.Emitter) error
	History(ctx context.Context, userID, chatID string) ([]*models.ChatMessage, error)
}

// StoryService - генерация сегмента истории по контексту.
type StoryService interface {
	Generate(ctx context.Context, userID string, req story.Request) (*story.GeneratedStory, error)
}

// ImageService - синхронная и фоновая генерация изображений.
type ImageService interface {
	Generate(ctx context.Context, userID, prompt string) (*image.Result, error)
	GenerateReplicate(ctx context.Context, userID, prompt string, opts image.ReplicateOptions) (*image.Result, error)
	RunJob(ctx context.Context, userID string, job image.Job) (*image.Result, error)
	List(ctx context.Context, userID string, services []string, limit int) ([]*models.ImageRecord, error)
}

// WebSocketServer принимает WebSocket подключения пользователей.
type WebSocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

// Deps - зависимости обработчиков. Publisher == nil означает выполнение задач в процессе.
type Deps struct {
	Chat      ChatService
	Stories   StoryService
	Images    ImageService
	Games     game.Service
	Documents repository.DocumentRepository
	Catalog   *catalog.Catalog
	Tasks     taskmanager.ITaskManager
	Publisher messaging.Publisher
	WS        WebSocketServer
	TaskLog   zerolog.Logger
}

// Handler обрабатывает HTTP запросы визуальной новеллы.
type Handler struct {
	Deps
	logger *zap.Logger
}

// NewHandler создает обработчик.
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{Deps: deps, logger: logger.Named("HTTPHandler")}
}

// RegisterRoutes регистрирует маршруты API. auth выставляет id пользователя,
// wsAuth делает то же для /ws и дополнительно принимает токен из ?token=.
func (h *Handler) RegisterRoutes(r gin.IRouter, auth, wsAuth gin.HandlerFunc) {
	api := r.Group("/api", auth)
	{
		api.POST("/chat", h.chat)
		api.GET("/chat/:chatId/messages", h.chatHistory)

		api.POST("/story", h.generateStory)

		api.POST("/image", h.generateImage)
		api.POST("/image-replicate", h.generateReplicateImage)
		api.GET("/images", h.listImages)

		jobs := api.Group("/image/jobs")
		jobs.POST("", h.submitImageJob)
		jobs.GET("/:id", h.getImageJob)
		jobs.DELETE("/:id", h.cancelImageJob)

		api.GET("/catalog", h.getCatalog)

		games := api.Group("/games")
		games.POST("", h.startGame)
		games.GET("", h.listGames)
		games.GET("/:id", h.getGame)
		games.DELETE("/:id", h.deleteGame)
		games.POST("/:id/choices", h.makeChoice)
		games.POST("/:id/custom", h.customAction)
		games.POST("/:id/save", h.saveGame)

		api.GET("/settings", h.getSettings)
		api.PUT("/settings", h.updateSettings)

		api.GET("/documents", h.listDocuments)
		api.GET("/documents/:id", h.getDocument)
	}

	r.GET("/ws", wsAuth, h.serveWS)
}

// userID возвращает пользователя запроса. Без Auth middleware запрос отклоняется.
func (h *Handler) userID(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		handleServiceError(c, models.ErrUnauthorized, "")
		return "", false
	}
	return userID, true
}

func (h *Handler) getCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.Catalog)
}

func (h *Handler) serveWS(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	h.WS.ServeWS(c.Writer, c.Request, userID)
}
