package worker

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vnovel-server/internal/image"
	"vnovel-server/internal/messaging"
)

// JobRunner выполняет задачу генерации изображения.
type JobRunner interface {
	RunJob(ctx context.Context, userID string, job image.Job) (*image.Result, error)
}

// Handler обрабатывает сообщения очереди задач изображений.
type Handler struct {
	logger      *zap.Logger
	images      JobRunner
	publisher   messaging.Publisher
	pusher      *push.Pusher
	concurrency int
}

var _ messaging.DeliveryHandler = (*Handler)(nil)

// NewHandler создает обработчик. Пустой pushGatewayURL отключает отправку метрик.
func NewHandler(logger *zap.Logger, images JobRunner, publisher messaging.Publisher, pushGatewayURL string, concurrency int) *Handler {
	if concurrency < 1 {
		concurrency = 1
	}
	h := &Handler{
		logger:      logger.Named("ImageWorker"),
		images:      images,
		publisher:   publisher,
		concurrency: concurrency,
	}
	if pushGatewayURL != "" {
		hostname, _ := os.Hostname()
		h.pusher = push.New(pushGatewayURL, "image-worker").
			Grouping("instance", hostname).
			Gatherer(prometheus.DefaultGatherer)
		logger.Info("Prometheus Pusher initialized", zap.String("url", pushGatewayURL), zap.String("instance", hostname))
	}
	return h
}

// HandleDelivery принимает батч или одиночную задачу.
// Возвращает true, если сообщение нужно подтвердить.
func (h *Handler) HandleDelivery(ctx context.Context, msg amqp091.Delivery) bool {
	defer h.pushMetrics()

	// 1. Пробуем батч
	var batch messaging.ImageTaskBatchPayload
	errBatch := json.Unmarshal(msg.Body, &batch)
	if errBatch == nil && len(batch.Tasks) > 0 {
		return h.handleBatch(ctx, batch, msg.CorrelationId)
	}

	// 2. Одиночная задача
	var task messaging.ImageTaskPayload
	if err := json.Unmarshal(msg.Body, &task); err != nil || task.TaskID == "" {
		h.logger.Error("Failed to unmarshal message body as batch or single task",
			zap.NamedError("batch_error", errBatch),
			zap.Error(err),
			zap.String("correlation_id", msg.CorrelationId),
			zap.ByteString("body", msg.Body))
		tasksProcessed.WithLabelValues("error_unmarshal").Inc()
		// битое сообщение не станет лучше при повторной доставке
		return true
	}

	result := h.process(ctx, task)
	if err := h.publisher.Publish(ctx, result, msg.CorrelationId); err != nil {
		h.logger.Error("Failed to publish result for single task", zap.String("task_id", task.TaskID), zap.Error(err))
		tasksProcessed.WithLabelValues("error_publish").Inc()
		return false
	}
	return true
}

func (h *Handler) handleBatch(ctx context.Context, batch messaging.ImageTaskBatchPayload, correlationID string) bool {
	log := h.logger.With(zap.String("batch_id", batch.BatchID), zap.Int("task_count", len(batch.Tasks)))
	log.Info("Received image task batch")

	results := make([]messaging.ImageResultPayload, len(batch.Tasks))
	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for i, task := range batch.Tasks {
		g.Go(func() error {
			results[i] = h.process(ctx, task)
			return nil
		})
	}
	_ = g.Wait()

	pubFailed := 0
	for _, res := range results {
		if err := h.publisher.Publish(ctx, res, correlationID); err != nil {
			log.Error("Failed to publish result for task from batch", zap.String("task_id", res.TaskID), zap.Error(err))
			tasksProcessed.WithLabelValues("error_publish").Inc()
			pubFailed++
		}
	}

	if pubFailed > 0 {
		log.Warn("Finished processing batch with result publishing errors", zap.Int("failed", pubFailed))
	} else {
		log.Info("Finished processing batch, all results published")
	}
	// ack батча не зависит от ошибок публикации отдельных результатов
	return true
}

func (h *Handler) process(ctx context.Context, task messaging.ImageTaskPayload) messaging.ImageResultPayload {
	log := h.logger.With(
		zap.String("task_id", task.TaskID),
		zap.String("user_id", task.UserID),
		zap.String("provider", task.Provider))
	log.Info("Processing image task")

	start := time.Now()
	res, err := h.images.RunJob(ctx, task.UserID, task.Job())
	taskDuration.Observe(time.Since(start).Seconds())

	out := messaging.ImageResultPayload{TaskID: task.TaskID, UserID: task.UserID}
	if err != nil {
		log.Error("Image task failed", zap.Error(err))
		tasksProcessed.WithLabelValues("error_generation").Inc()
		out.Error = err.Error()
		return out
	}

	tasksProcessed.WithLabelValues("success").Inc()
	out.Success = true
	out.ImageURL = res.ImageURL
	out.Service = res.Service
	out.Fallback = res.Fallback
	log.Info("Image task completed", zap.String("service", res.Service), zap.Duration("took", time.Since(start)))
	return out
}

func (h *Handler) pushMetrics() {
	if h.pusher == nil {
		return
	}
	if err := h.pusher.Push(); err != nil {
		h.logger.Error("Failed to push metrics to Pushgateway", zap.Error(err))
		return
	}
	h.logger.Debug("Metrics pushed to Pushgateway")
}
