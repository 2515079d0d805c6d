package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"vnovel-server/internal/models"
)

const (
	KieServiceName = "kie.ai"
	KieModel       = "flux-kontext-pro"

	kieGeneratePath = "/api/v1/flux/kontext/generate"
	kieRecordPath   = "/api/v1/flux/kontext/record-info"
)

// errKieTaskFailed - Kie сообщил о неуспешном завершении задачи, повторять бессмысленно.
var errKieTaskFailed = errors.New("kie task failed")

// KieConfig - параметры клиента Kie.ai.
type KieConfig struct {
	BaseURL      string
	APIKey       string
	PollAttempts int
	PollInterval time.Duration
}

// KieProvider - основной провайдер изображений (Flux Kontext через Kie.ai).
type KieProvider struct {
	cfg    KieConfig
	client *http.Client
	logger *zap.Logger
}

func NewKieProvider(cfg KieConfig, client *http.Client, logger *zap.Logger) *KieProvider {
	if cfg.PollAttempts < 1 {
		cfg.PollAttempts = 1
	}
	return &KieProvider{
		cfg:    cfg,
		client: client,
		logger: logger.Named("KieProvider"),
	}
}

type kieGenerateRequest struct {
	Prompt            string `json:"prompt"`
	EnableTranslation bool   `json:"enableTranslation"`
	AspectRatio       string `json:"aspectRatio"`
	OutputFormat      string `json:"outputFormat"`
	PromptUpsampling  bool   `json:"promptUpsampling"`
	Model             string `json:"model"`
}

type kieGenerateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

type kieURLFields struct {
	ResultImageURL string `json:"resultImageUrl"`
	ImageURL       string `json:"imageUrl"`
	ImageURLSnake  string `json:"image_url"`
	Result         *struct {
		URL string `json:"url"`
	} `json:"result"`
}

type kieRecordData struct {
	kieURLFields
	TaskID       string `json:"taskId"`
	SuccessFlag  *int   `json:"successFlag"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Response     *struct {
		ResultImageURL string `json:"resultImageUrl"`
	} `json:"response"`
}

type kieRecordResponse struct {
	kieURLFields
	Code int            `json:"code"`
	Msg  string         `json:"msg"`
	Data *kieRecordData `json:"data"`
}

// imageURL возвращает первый найденный URL результата.
// Порядок: data.response.resultImageUrl, затем поля data, затем поля верхнего уровня.
func (r *kieRecordResponse) imageURL() string {
	var candidates []string
	if r.Data != nil {
		if r.Data.Response != nil {
			candidates = append(candidates, r.Data.Response.ResultImageURL)
		}
		candidates = append(candidates, r.Data.urls()...)
	}
	candidates = append(candidates, r.urls()...)
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

func (f kieURLFields) urls() []string {
	out := []string{f.ResultImageURL, f.ImageURL, f.ImageURLSnake}
	if f.Result != nil {
		out = append(out, f.Result.URL)
	}
	return out
}

// failure сообщает о терминальной ошибке задачи (successFlag 2/3 или статус failed).
func (r *kieRecordResponse) failure() (string, bool) {
	if r.Data == nil {
		return "", false
	}
	if r.Data.SuccessFlag != nil && (*r.Data.SuccessFlag == 2 || *r.Data.SuccessFlag == 3) {
		return r.Data.ErrorMessage, true
	}
	switch strings.ToUpper(r.Data.Status) {
	case "FAILED", "CREATE_TASK_FAILED", "GENERATE_FAILED":
		return r.Data.ErrorMessage, true
	}
	return "", false
}

// Submit создает задачу генерации и возвращает ее taskId.
func (p *KieProvider) Submit(ctx context.Context, prompt string) (string, error) {
	if p.cfg.APIKey == "" {
		return "", errors.New("kie api key is not configured")
	}

	body, err := json.Marshal(kieGenerateRequest{
		Prompt:            prompt,
		EnableTranslation: true,
		AspectRatio:       "16:9",
		OutputFormat:      "jpeg",
		PromptUpsampling:  false,
		Model:             KieModel,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal kie request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+kieGeneratePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create kie request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("kie request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("Kie.ai API error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var parsed kieGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode kie response: %w", err)
	}
	if parsed.Data == nil || parsed.Data.TaskID == "" {
		return "", errors.New("No task ID returned from Kie.ai service")
	}

	p.logger.Info("Kie task submitted", zap.String("task_id", parsed.Data.TaskID))
	return parsed.Data.TaskID, nil
}

// Poll опрашивает статус задачи фиксированное число раз с фиксированным интервалом.
// Временные ошибки повторяются до последней попытки; отмена ctx прерывает ожидание.
func (p *KieProvider) Poll(ctx context.Context, taskID string) (string, error) {
	log := p.logger.With(zap.String("task_id", taskID))
	maxAttempts := p.cfg.PollAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		imageURL, err := p.checkRecord(ctx, taskID)
		if err == nil && imageURL != "" {
			imagePollAttempts.Observe(float64(attempt + 1))
			log.Info("Kie image ready", zap.Int("attempt", attempt+1))
			return imageURL, nil
		}
		if err != nil {
			if errors.Is(err, errKieTaskFailed) {
				return "", fmt.Errorf("%w: %v", models.ErrImageGenerationFailed, err)
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Warn("Kie polling attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
			if attempt == maxAttempts-1 {
				return "", err
			}
		}

		if attempt < maxAttempts-1 {
			if err := sleepCtx(ctx, p.cfg.PollInterval); err != nil {
				log.Info("Kie polling cancelled", zap.Int("attempt", attempt+1))
				return "", err
			}
		}
	}

	imagePollAttempts.Observe(float64(maxAttempts))
	return "", models.ErrImageTimeout
}

func (p *KieProvider) checkRecord(ctx context.Context, taskID string) (string, error) {
	endpoint := p.cfg.BaseURL + kieRecordPath + "?taskId=" + url.QueryEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create kie poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("kie poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("Kie.ai polling error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var record kieRecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return "", fmt.Errorf("failed to decode kie record: %w", err)
	}
	if u := record.imageURL(); u != "" {
		return u, nil
	}
	if msg, failed := record.failure(); failed {
		return "", fmt.Errorf("%w: %s", errKieTaskFailed, msg)
	}
	return "", nil
}

// Generate создает задачу и дожидается изображения.
func (p *KieProvider) Generate(ctx context.Context, prompt string) (*Result, error) {
	taskID, err := p.Submit(ctx, prompt)
	if err != nil {
		return nil, err
	}
	imageURL, err := p.Poll(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &Result{
		ImageURL: imageURL,
		Service:  KieServiceName,
		Model:    KieModel,
		TaskID:   taskID,
	}, nil
}

// sleepCtx ждет d или отмены контекста.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
