package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vnovel-server/internal/models"
	"vnovel-server/internal/story"
)

func (h *Handler) generateStory(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req story.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, models.ErrBadRequest, "")
		return
	}
	if req.Context == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Error: "Missing required field: context"})
		return
	}

	out, err := h.Stories.Generate(c.Request.Context(), userID, req)
	if err != nil {
		handleServiceError(c, err, "Failed to generate story")
		return
	}
	c.JSON(http.StatusOK, out)
}
