package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vnovel-server/internal/models"
)

type choiceRequest struct {
	ChoiceID string `json:"choiceId"`
}

type customActionRequest struct {
	Text string `json:"text"`
}

func (h *Handler) startGame(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var cfg models.GameConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		handleServiceError(c, models.ErrBadRequest, "")
		return
	}
	view, err := h.Games.StartGame(c.Request.Context(), userID, cfg)
	if err != nil {
		handleServiceError(c, err, "Failed to start game")
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) listGames(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	sessions, err := h.Games.List(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	if sessions == nil {
		sessions = []*models.GameSession{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) getGame(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	view, err := h.Games.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) makeChoice(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req choiceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChoiceID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Error: "Missing required field: choiceId"})
		return
	}
	view, err := h.Games.Choose(c.Request.Context(), userID, c.Param("id"), req.ChoiceID)
	if err != nil {
		handleServiceError(c, err, "Failed to continue story")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) customAction(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req customActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Error: "Missing required field: text"})
		return
	}
	view, err := h.Games.CustomAction(c.Request.Context(), userID, c.Param("id"), req.Text)
	if err != nil {
		handleServiceError(c, err, "Failed to continue story")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) saveGame(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	session, err := h.Games.Save(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) deleteGame(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	if err := h.Games.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		handleServiceError(c, err, "")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getSettings(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	settings, err := h.Games.GetSettings(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) updateSettings(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var settings models.VisualNovelSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		handleServiceError(c, models.ErrBadRequest, "")
		return
	}
	saved, err := h.Games.UpdateSettings(c.Request.Context(), userID, settings)
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, saved)
}
