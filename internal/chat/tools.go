package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"vnovel-server/internal/image"
	"vnovel-server/internal/llm"
	"vnovel-server/internal/models"
	"vnovel-server/internal/repository"
)

// Имена инструментов
const (
	ToolCreateFile  = "create_file"
	ToolCreateImage = "create_image"
)

// Tool - инструмент, который модель может вызвать во время ответа.
type Tool interface {
	Definition() llm.ToolDefinition
	// Execute выполняет вызов. args - JSON аргументов от модели.
	Execute(ctx context.Context, userID, args string) (any, error)
}

// CreateFileTool сохраняет HTML-документ, который клиент показывает в отдельном окне.
type CreateFileTool struct {
	docs   repository.DocumentRepository
	now    func() time.Time
	offset func() float64
}

// NewCreateFileTool создает инструмент create_file.
func NewCreateFileTool(docs repository.DocumentRepository) *CreateFileTool {
	return &CreateFileTool{
		docs: docs,
		now:  time.Now,
		offset: func() float64 {
			return rand.Float64() * 200
		},
	}
}

func (t *CreateFileTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        ToolCreateFile,
		Description: "Creates an HTML file in a draggable iframe window that appears behind the chat interface",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filename": map[string]any{"type": "string", "description": `The name of the file to create (e.g., "my-page.html")`},
				"content":  map[string]any{"type": "string", "description": "The HTML content to display in the iframe"},
				"title":    map[string]any{"type": "string", "description": "Optional title for the iframe window"},
				"width":    map[string]any{"type": "number", "description": "Width of the iframe window in pixels"},
				"height":   map[string]any{"type": "number", "description": "Height of the iframe window in pixels"},
			},
			"required": []string{"filename", "content"},
		},
	}
}

type createFileArgs struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Title    string `json:"title"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func (t *CreateFileTool) Execute(ctx context.Context, userID, args string) (any, error) {
	var in createFileArgs
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return nil, fmt.Errorf("%w: create_file arguments: %v", models.ErrInvalidInput, err)
	}
	if in.Filename == "" {
		return nil, fmt.Errorf("%w: filename is required", models.ErrInvalidInput)
	}

	doc := &models.Document{
		ID:       uuid.NewString(),
		UserID:   userID,
		Filename: in.Filename,
		Title:    in.Title,
		Content:  in.Content,
		Width:    in.Width,
		Height:   in.Height,
		Position: models.DocumentPosition{
			X: t.offset() + 100,
			Y: t.offset() + 100,
		},
		CreatedAt: t.now().UTC(),
	}
	if doc.Title == "" {
		doc.Title = doc.Filename
	}
	if doc.Width <= 0 {
		doc.Width = models.DefaultDocumentWidth
	}
	if doc.Height <= 0 {
		doc.Height = models.DefaultDocumentHeight
	}

	if err := t.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return map[string]string{"id": doc.ID, "filename": doc.Filename}, nil
}

// ReplicateGenerator - часть сервиса изображений, нужная create_image.
type ReplicateGenerator interface {
	GenerateReplicate(ctx context.Context, userID, prompt string, opts image.ReplicateOptions) (*image.Result, error)
}

// CreateImageTool генерирует изображение через Replicate.
type CreateImageTool struct {
	images ReplicateGenerator
}

// NewCreateImageTool создает инструмент create_image.
func NewCreateImageTool(images ReplicateGenerator) *CreateImageTool {
	return &CreateImageTool{images: images}
}

func (t *CreateImageTool) Definition() llm.ToolDefinition {
	str := func(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
	return llm.ToolDefinition{
		Name:        ToolCreateImage,
		Description: "Generates an AI image based on a text prompt using Replicate's Flux 1.1 Pro model",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt":        str("The text prompt describing the image to generate"),
				"aspectRatio":   str("The aspect ratio of the image (e.g., 1:1, 16:9, 9:16, 3:4, 4:3)"),
				"outputFormat":  str("The output format (jpg, png)"),
				"outputQuality": map[string]any{"type": "number", "description": "The output quality (1-100)"},
				"parameters": map[string]any{
					"type":        "object",
					"description": "Additional parameters for enhanced image generation",
					"properties": map[string]any{
						"genre":     str("Genre context for enhanced prompting"),
						"mood":      str("Mood or atmosphere for the image"),
						"character": str("Character description if applicable"),
						"scene":     str("Scene description for context"),
					},
				},
			},
			"required": []string{"prompt"},
		},
	}
}

type createImageArgs struct {
	Prompt string `json:"prompt"`
	image.ReplicateOptions
}

type createImageOutput struct {
	Success        bool   `json:"success"`
	ImageURL       string `json:"imageUrl,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	Prompt         string `json:"prompt,omitempty"`
	OriginalPrompt string `json:"originalPrompt,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Execute не возвращает ошибку генерации: модель получает {success:false, error}.
func (t *CreateImageTool) Execute(ctx context.Context, userID, args string) (any, error) {
	var in createImageArgs
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return nil, fmt.Errorf("%w: create_image arguments: %v", models.ErrInvalidInput, err)
	}

	res, err := t.images.GenerateReplicate(ctx, userID, in.Prompt, in.ReplicateOptions)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return createImageOutput{Success: false, Error: err.Error()}, nil
	}
	return createImageOutput{
		Success:        true,
		ImageURL:       res.ImageURL,
		FileName:       res.FileName,
		Prompt:         res.Prompt,
		OriginalPrompt: res.OriginalPrompt,
	}, nil
}
