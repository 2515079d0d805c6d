package image

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"vnovel-server/internal/config"
	"vnovel-server/internal/models"
	"vnovel-server/internal/repository"
)

// PlaceholderImageURL возвращается, когда изображение получить не удалось.
const PlaceholderImageURL = "https://via.placeholder.com/800x600/4f46e5/ffffff?text=Visual+Novel+Scene"

// Result - результат генерации изображения в формате ответа API.
type Result struct {
	ImageURL       string            `json:"imageUrl"`
	Service        string            `json:"service"`
	Model          string            `json:"model,omitempty"`
	TaskID         string            `json:"taskId,omitempty"`
	Fallback       bool              `json:"fallback,omitempty"`
	Message        string            `json:"message,omitempty"`
	Cached         bool              `json:"cached,omitempty"`
	FileName       string            `json:"fileName,omitempty"`
	Prompt         string            `json:"prompt,omitempty"`
	OriginalPrompt string            `json:"originalPrompt,omitempty"`
	Metadata       *ReplicateOptions `json:"metadata,omitempty"`
}

// Service - фасад генерации изображений: основной провайдер, запасной, Replicate,
// ограничение частоты, кэш и журнал изображений.
type Service struct {
	kie          *KieProvider
	pollinations *Pollinations
	replicate    *ReplicateProvider
	cache        Cache
	limiter      *rate.Limiter
	records      repository.ImageRepository
	logger       *zap.Logger
	now          func() time.Time
}

// NewService собирает сервис из конфигурации. cache может быть nil.
func NewService(cfg config.ImageConfig, store *FileStore, cache Cache, records repository.ImageRepository, logger *zap.Logger) *Service {
	log := logger.Named("ImageService")
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RateInterval > 0 {
		limit = rate.Every(cfg.RateInterval)
	}

	return &Service{
		kie: NewKieProvider(KieConfig{
			BaseURL:      strings.TrimSuffix(cfg.KieBaseURL, "/"),
			APIKey:       cfg.KieAPIKey,
			PollAttempts: cfg.KiePollAttempts,
			PollInterval: cfg.KiePollInterval,
		}, httpClient, log),
		pollinations: NewPollinations(cfg.PollinationsBaseURL),
		replicate: NewReplicateProvider(ReplicateConfig{
			BaseURL:   cfg.ReplicateBaseURL,
			APIKey:    cfg.ReplicateAPIKey,
			PollDelay: cfg.ReplicatePollDelay,
			MaxPolls:  cfg.ReplicateMaxPolls,
		MaxBytes:  cfg.ReplicateMaxBytes,
		}, httpClient, store, log),
		cache:   cache,
		limiter: rate.NewLimiter(limit, burst),
		records: records,
		logger:  log,
		now:     time.Now,
	}
}

// Generate генерирует сцену через Kie.ai; при любой ошибке основного провайдера
// возвращает URL запасного сервиса. Для непустого промпта ошибка возможна только при отмене ctx.
func (s *Service) Generate(ctx context.Context, userID, prompt string) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: Missing required field: prompt", models.ErrBadRequest)
	}
	log := s.logger.With(zap.String("user_id", userID))
	enhanced := EnhanceScenePrompt(prompt)
	key := CacheKey(enhanced)

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			log.Debug("Image cache hit")
			imageRequestsTotal.WithLabelValues(KieServiceName, "cached").Inc()
			result := &Result{
				ImageURL: cached.ImageURL,
				Service:  KieServiceName,
				Model:    KieModel,
				TaskID:   cached.TaskID,
				Cached:   true,
			}
			s.record(ctx, userID, prompt, result)
			return result, nil
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := s.kie.Generate(ctx, enhanced)
	if err != nil {
		if ctx.Err() != nil {
			imageRequestsTotal.WithLabelValues(KieServiceName, "cancelled").Inc()
			return nil, ctx.Err()
		}
		log.Warn("Kie.ai image generation failed, using fallback", zap.Error(err))
		imageRequestsTotal.WithLabelValues(KieServiceName, "error").Inc()
		imageRequestsTotal.WithLabelValues(PollinationsServiceName, "success").Inc()
		result = s.pollinations.Fallback(enhanced)
	} else {
		imageRequestsTotal.WithLabelValues(KieServiceName, "success").Inc()
		if s.cache != nil {
			s.cache.Set(ctx, key, CachedImage{ImageURL: result.ImageURL, TaskID: result.TaskID})
		}
	}

	s.record(ctx, userID, prompt, result)
	return result, nil
}

// GenerateReplicate генерирует изображение через Replicate с дополнением промпта контекстом.
func (s *Service) GenerateReplicate(ctx context.Context, userID, prompt string, opts ReplicateOptions) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: Missing required field: prompt", models.ErrBadRequest)
	}
	defaults := DefaultReplicateOptions()
	if opts.AspectRatio == "" {
		opts.AspectRatio = "1:1"
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = defaults.OutputFormat
	}
	if opts.OutputQuality <= 0 {
		opts.OutputQuality = defaults.OutputQuality
	}

	enhanced := EnhanceWithContext(prompt, opts.Parameters)
	log := s.logger.With(zap.String("user_id", userID))

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := s.replicate.Generate(ctx, enhanced, opts)
	if err != nil {
		imageRequestsTotal.WithLabelValues(ReplicateServiceName, "error").Inc()
		log.Error("Replicate image generation failed", zap.Error(err))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrImageGenerationFailed, err)
	}
	imageRequestsTotal.WithLabelValues(ReplicateServiceName, "success").Inc()

	result.Prompt = enhanced
	result.OriginalPrompt = prompt
	result.Metadata = &opts
	s.record(ctx, userID, prompt, result)
	return result, nil
}

// List возвращает журнал изображений пользователя.
func (s *Service) List(ctx context.Context, userID string, services []string, limit int) ([]*models.ImageRecord, error) {
	return s.records.ListByUser(ctx, userID, services, limit)
}

func (s *Service) record(ctx context.Context, userID, prompt string, result *Result) {
	if s.records == nil {
		return
	}
	rec := &models.ImageRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		URL:       result.ImageURL,
		Prompt:    prompt,
		Service:   result.Service,
		Model:     result.Model,
		Fallback:  result.Fallback,
		CreatedAt: s.now().UTC(),
	}
	if err := s.records.Create(ctx, rec); err != nil {
		s.logger.Warn("Failed to store image record", zap.String("user_id", userID), zap.Error(err))
	}
}
