package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vnovel-server/internal/image"
	"vnovel-server/internal/messaging"
	"vnovel-server/internal/models"
)

type imageJobRequest struct {
	replicateRequest
	Provider string `json:"provider"`
}

type imageJobResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// submitImageJob ставит генерацию в очередь RabbitMQ, а без брокера запускает ее менеджером задач.
func (h *Handler) submitImageJob(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req imageJobRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Error: missingPrompt})
		return
	}
	switch req.Provider {
	case "", image.ProviderKie, image.ProviderReplicate:
	default:
		handleServiceError(c, fmt.Errorf("%w: unknown image provider '%s'", models.ErrBadRequest, req.Provider), "")
		return
	}
	job := image.Job{Provider: req.Provider, Prompt: req.Prompt, Options: req.options()}
	ctx := c.Request.Context()

	if h.Publisher != nil {
		taskID := uuid.NewString()
		payload := messaging.ImageTaskPayload{
			TaskID:     taskID,
			UserID:     userID,
			Prompt:     job.Prompt,
			Provider:   job.Provider,
			Parameters: job.Options,
		}
		if err := h.Publisher.Publish(ctx, payload, taskID); err != nil {
			h.logger.Error("failed to publish image task", zap.String("task_id", taskID), zap.Error(err))
			handleServiceError(c, err, "Failed to queue image job")
			return
		}
		c.JSON(http.StatusAccepted, imageJobResponse{TaskID: taskID, Status: "queued"})
		return
	}

	run := func(taskCtx context.Context, params interface{}) (interface{}, error) {
		return h.Images.RunJob(taskCtx, userID, params.(image.Job))
	}
	taskID, err := h.Tasks.SubmitTaskWithOwner(h.TaskLog.WithContext(ctx), run, job, userID)
	if err != nil {
		handleServiceError(c, err, "Failed to start image job")
		return
	}
	c.JSON(http.StatusAccepted, imageJobResponse{TaskID: taskID.String(), Status: "pending"})
}

func (h *Handler) getImageJob(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}
	task, err := h.Tasks.GetTaskForOwner(taskID, userID)
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) cancelImageJob(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}
	if err := h.Tasks.CancelTaskForOwner(taskID, userID); err != nil {
		handleServiceError(c, err, "")
		return
	}
	task, err := h.Tasks.GetTaskForOwner(taskID, userID)
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, task)
}

func parseTaskID(c *gin.Context) (uuid.UUID, bool) {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Error: "Invalid task id"})
		return uuid.Nil, false
	}
	return taskID, true
}
