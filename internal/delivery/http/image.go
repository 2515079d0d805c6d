package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"vnovel-server/internal/image"
	"vnovel-server/internal/models"
)

const missingPrompt = "Missing required field: prompt"

type imageRequest struct {
	Prompt string `json:"prompt"`
}

// replicateRequest - тело /api/image-replicate. Незаданные поля берутся из image.DefaultReplicateOptions.
type replicateRequest struct {
	Prompt        string           `json:"prompt"`
	AspectRatio   string           `json:"aspectRatio"`
	OutputFormat  string           `json:"outputFormat"`
	OutputQuality int              `json:"outputQuality"`
	Parameters    image.Parameters `json:"parameters"`
}

func (r replicateRequest) options() image.ReplicateOptions {
	opts := image.DefaultReplicateOptions()
	if r.AspectRatio != "" {
		opts.AspectRatio = r.AspectRatio
	}
	if r.OutputFormat != "" {
		opts.OutputFormat = r.OutputFormat
	}
	if r.OutputQuality > 0 {
		opts.OutputQuality = r.OutputQuality
	}
	opts.Parameters = r.Parameters.Merge(opts.Parameters)
	return opts
}

func (h *Handler) generateImage(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Error: missingPrompt})
		return
	}

	res, err := h.Images.Generate(c.Request.Context(), userID, req.Prompt)
	if err != nil {
		handleServiceError(c, err, "Failed to generate image")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) generateReplicateImage(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req replicateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Error: missingPrompt})
		return
	}

	res, err := h.Images.GenerateReplicate(c.Request.Context(), userID, req.Prompt, req.options())
	if err != nil {
		handleServiceError(c, err, "Failed to generate image")
		return
	}
	c.JSON(http.StatusOK, res)
}

// listImages возвращает журнал изображений. ?service=kie.ai,replicate фильтрует по сервису.
func (h *Handler) listImages(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var services []string
	if raw := c.Query("service"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				services = append(services, s)
			}
		}
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			handleServiceError(c, models.ErrBadRequest, "")
			return
		}
		limit = n
	}

	records, err := h.Images.List(c.Request.Context(), userID, services, limit)
	if err != nil {
		handleServiceError(c, err, "")
		return
	}
	if records == nil {
		records = []*models.ImageRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"images": records})
}
