package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vnovel-server/internal/chat"
	"vnovel-server/internal/models"
)

// chat отдает ответ модели потоком Server-Sent Events.
// Заголовки потока выставляются при первом событии, поэтому ошибки валидации
// возвращаются обычным JSON ответом.
func (h *Handler) chat(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, models.ErrBadRequest, "")
		return
	}
	if len(req.Messages) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Error: "Messages are required"})
		return
	}

	ctx := c.Request.Context()
	started := false
	emit := func(ev chat.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !started {
			started = true
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
		}
		c.SSEvent(ev.Name, ev.Data)
		c.Writer.Flush()
		return nil
	}

	if err := h.Chat.Stream(ctx, userID, req, emit); err != nil {
		if started {
			// событие error уже отправлено сервисом
			h.logger.Warn("chat stream ended with error", zap.String("user_id", userID), zap.Error(err))
			return
		}
		handleServiceError(c, err, "Failed to generate response")
	}
}

func (h *Handler) chatHistory(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	messages, err := h.Chat.History(c.Request.Context(), userID, c.Param("chatId"))
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
