package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"vnovel-server/internal/models"
)

const (
	ReplicateServiceName = "replicate"
	ReplicateModel       = "flux-1.1-pro"

	replicatePredictionsPath = "/v1/models/black-forest-labs/flux-1.1-pro/predictions"

	defaultReplicateMaxBytes = 20 << 20
)

// ReplicateConfig - параметры клиента Replicate.
type ReplicateConfig struct {
	BaseURL   string
	APIKey    string
	PollDelay time.Duration
	MaxPolls  int
	// MaxBytes - предельный размер скачиваемого файла.
	MaxBytes int64
}

// ReplicateOptions - параметры генерации через Replicate.
type ReplicateOptions struct {
	AspectRatio   string     `json:"aspectRatio"`
	OutputFormat  string     `json:"outputFormat"`
	OutputQuality int        `json:"outputQuality"`
	Parameters    Parameters `json:"parameters"`
}

// DefaultReplicateOptions - значения по умолчанию для /api/image-replicate.
func DefaultReplicateOptions() ReplicateOptions {
	return ReplicateOptions{
		AspectRatio:   "16:9",
		OutputFormat:  "jpg",
		OutputQuality: 80,
		Parameters:    Parameters{Genre: "visual novel", Mood: "intimate"},
	}
}

// ReplicateProvider генерирует изображения моделью Flux 1.1 Pro и сохраняет их в FileStore.
type ReplicateProvider struct {
	cfg    ReplicateConfig
	client *http.Client
	store  *FileStore
	logger *zap.Logger
	now    func() time.Time
}

func NewReplicateProvider(cfg ReplicateConfig, client *http.Client, store *FileStore, logger *zap.Logger) *ReplicateProvider {
	if cfg.MaxPolls < 1 {
		cfg.MaxPolls = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultReplicateMaxBytes
	}
	return &ReplicateProvider{
		cfg:    cfg,
		client: client,
		store:  store,
		logger: logger.Named("ReplicateProvider"),
		now:    time.Now,
	}
}

type replicateInput struct {
	Prompt          string `json:"prompt"`
	AspectRatio     string `json:"aspect_ratio"`
	OutputFormat    string `json:"output_format"`
	OutputQuality   int    `json:"output_quality"`
	SafetyTolerance int    `json:"safety_tolerance"`
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// outputURL возвращает первый URL из output (строка или массив строк).
func (p *replicatePrediction) outputURL() string {
	if len(p.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

// Generate создает предсказание, дожидается результата, скачивает и сохраняет изображение.
// prompt должен быть уже дополнен контекстом.
func (p *ReplicateProvider) Generate(ctx context.Context, prompt string, opts ReplicateOptions) (*Result, error) {
	if p.cfg.APIKey == "" {
		return nil, errors.New("replicate api key is not configured")
	}
	log := p.logger.With(zap.Int("prompt_len", len(prompt)))

	prediction, err := p.create(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("prediction_id", prediction.ID))

	for poll := 0; prediction.Status != "succeeded"; poll++ {
		switch prediction.Status {
		case "failed", "canceled":
			return nil, fmt.Errorf("%w: replicate prediction %s: %v", models.ErrImageGenerationFailed, prediction.Status, prediction.Error)
		}
		if poll >= p.cfg.MaxPolls {
			return nil, models.ErrImageTimeout
		}
		if err := sleepCtx(ctx, p.cfg.PollDelay); err != nil {
			return nil, err
		}
		if prediction, err = p.get(ctx, prediction.URLs.Get); err != nil {
			return nil, err
		}
	}

	outputURL := prediction.outputURL()
	if outputURL == "" {
		return nil, fmt.Errorf("%w: replicate returned no output", models.ErrImageGenerationFailed)
	}

	data, err := p.download(ctx, outputURL)
	if err != nil {
		return nil, err
	}
	log.Info("Generated image successfully with Flux 1.1 Pro", zap.Int("size_bytes", len(data)))

	fileName := fmt.Sprintf("generated-images/%d-%s.%s", p.now().UnixMilli(), strconv.FormatUint(rand.Uint64(), 36), opts.OutputFormat)
	publicURL, err := p.store.Save(fileName, data)
	if err != nil {
		log.Error("Failed to save replicate image", zap.String("file", fileName), zap.Error(err))
		return nil, err
	}

	return &Result{
		ImageURL: publicURL,
		Service:  ReplicateServiceName,
		Model:    ReplicateModel,
		FileName: fileName,
		TaskID:   prediction.ID,
	}, nil
}

func (p *ReplicateProvider) create(ctx context.Context, prompt string, opts ReplicateOptions) (*replicatePrediction, error) {
	body, err := json.Marshal(map[string]any{
		"input": replicateInput{
			Prompt:          prompt,
			AspectRatio:     opts.AspectRatio,
			OutputFormat:    opts.OutputFormat,
			OutputQuality:   opts.OutputQuality,
			SafetyTolerance: 6,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal replicate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(p.cfg.BaseURL, "/")+replicatePredictionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create replicate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")
	return p.do(req)
}

func (p *ReplicateProvider) get(ctx context.Context, getURL string) (*replicatePrediction, error) {
	if getURL == "" {
		return nil, fmt.Errorf("%w: replicate prediction has no status url", models.ErrImageGenerationFailed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create replicate poll request: %w", err)
	}
	return p.do(req)
}

func (p *ReplicateProvider) do(req *http.Request) (*replicatePrediction, error) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Error("Replicate API returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", body),
		)
		return nil, fmt.Errorf("replicate API returned status %d", resp.StatusCode)
	}

	var prediction replicatePrediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		return nil, fmt.Errorf("failed to decode replicate response: %w", err)
	}
	return &prediction, nil
}

func (p *ReplicateProvider) download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > p.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: image is larger than %d bytes", models.ErrImageGenerationFailed, p.cfg.MaxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", models.ErrImageGenerationFailed)
	}
	return data, nil
}
