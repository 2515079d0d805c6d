package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vnovel-server/internal/models"
)

func (h *Handler) listDocuments(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	docs, err := h.Documents.ListByUser(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *Handler) getDocument(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	doc, err := h.Documents.GetByID(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, doc)
}
