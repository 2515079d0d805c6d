package messaging

import (
	"context"
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Типы сообщений WebSocket для результатов изображений
const (
	MessageTypeImageResult = "image_result"
	TopicImageJobs         = "image_jobs"
)

// UserNotifier отправляет сообщение пользователю по WebSocket.
type UserNotifier interface {
	SendToUser(userID, messageType, topic string, payload interface{})
}

// ResultHandler пересылает результаты воркера пользователям.
type ResultHandler struct {
	notifier UserNotifier
	logger   *zap.Logger
}

var _ DeliveryHandler = (*ResultHandler)(nil)

func NewResultHandler(notifier UserNotifier, logger *zap.Logger) *ResultHandler {
	return &ResultHandler{notifier: notifier, logger: logger.Named("ResultHandler")}
}

// HandleDelivery подтверждает и битые сообщения: повторная доставка их не исправит.
func (h *ResultHandler) HandleDelivery(_ context.Context, msg amqp091.Delivery) bool {
	var result ImageResultPayload
	if err := json.Unmarshal(msg.Body, &result); err != nil {
		h.logger.Error("Failed to unmarshal image result", zap.Error(err), zap.ByteString("body", msg.Body))
		return true
	}
	if result.UserID == "" {
		h.logger.Warn("Image result without user id", zap.String("task_id", result.TaskID))
		return true
	}

	h.notifier.SendToUser(result.UserID, MessageTypeImageResult, TopicImageJobs, result)
	h.logger.Info("Image result forwarded",
		zap.String("task_id", result.TaskID),
		zap.String("user_id", result.UserID),
		zap.Bool("success", result.Success))
	return true
}
