package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vnovel-server/internal/models"
	"vnovel-server/pkg/taskmanager"
)

// APIError - тело ответа с ошибкой.
type APIError struct {
	Error string `json:"error"`
}

// handleServiceError переводит ошибку сервиса в HTTP ответ.
// fallbackMsg заменяет текст ответа для внутренних ошибок и ошибок генерации.
func handleServiceError(c *gin.Context, err error, fallbackMsg string) {
	if fallbackMsg == "" {
		fallbackMsg = "Internal server error"
	}

	var status int
	msg := fallbackMsg
	switch {
	case errors.Is(err, models.ErrBadRequest),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidChoice),
		errors.Is(err, models.ErrDuplicateChoiceID):
		status = http.StatusBadRequest
		msg = clientMessage(err)
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
		msg = "Unauthorized"
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
		msg = "Forbidden"
	case errors.Is(err, models.ErrNotFound), errors.Is(err, taskmanager.ErrTaskNotFound):
		status = http.StatusNotFound
		msg = "Not found"
	case errors.Is(err, models.ErrNoCurrentSegment), errors.Is(err, taskmanager.ErrNotCancelable):
		status = http.StatusConflict
		msg = clientMessage(err)
	case errors.Is(err, taskmanager.ErrTooManyTasks):
		status = http.StatusTooManyRequests
		msg = "Too many active tasks"
	case errors.Is(err, taskmanager.ErrClosed):
		status = http.StatusServiceUnavailable
		msg = "Service is shutting down"
	case errors.Is(err, context.Canceled):
		// клиент ушел, ответ никто не прочитает
		status = 499
		msg = "Request cancelled"
	default:
		status = http.StatusInternalServerError
		zap.L().Error("Unhandled service error", zap.String("path", c.FullPath()), zap.Error(err))
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, APIError{Error: msg})
}

// clientMessage отдает текст после обертки sentinel ошибки ("bad request: Missing ..." -> "Missing ...").
func clientMessage(err error) string {
	for _, sentinel := range []error{models.ErrBadRequest, models.ErrInvalidInput} {
		if !errors.Is(err, sentinel) {
			continue
		}
		prefix := sentinel.Error() + ": "
		if text := err.Error(); len(text) > len(prefix) && text[:len(prefix)] == prefix {
			return text[len(prefix):]
		}
	}
	return err.Error()
}
