package image

import (
	"context"
	"fmt"

	"vnovel-server/internal/models"
)

// Провайдеры фоновых задач
const (
	ProviderKie       = "kie"
	ProviderReplicate = "replicate"
)

// Job - задача фоновой генерации изображения.
type Job struct {
	Provider string
	Prompt   string
	Options  ReplicateOptions
}

// RunJob выполняет задачу выбранным провайдером. Пустой провайдер означает kie с запасным сервисом.
func (s *Service) RunJob(ctx context.Context, userID string, job Job) (*Result, error) {
	switch job.Provider {
	case "", ProviderKie:
		return s.Generate(ctx, userID, job.Prompt)
	case ProviderReplicate:
		return s.GenerateReplicate(ctx, userID, job.Prompt, job.Options)
	default:
		return nil, fmt.Errorf("%w: unknown image provider '%s'", models.ErrBadRequest, job.Provider)
	}
}
