package messaging

import "vnovel-server/internal/image"

// ImageTaskPayload - задача генерации изображения для воркера.
type ImageTaskPayload struct {
	TaskID     string                 `json:"taskId"`
	UserID     string                 `json:"userId"`
	Prompt     string                 `json:"prompt"`
	Provider   string                 `json:"provider"` // kie | replicate
	Parameters image.ReplicateOptions `json:"parameters"`
}

// Job приводит payload к задаче сервиса изображений.
func (p ImageTaskPayload) Job() image.Job {
	return image.Job{Provider: p.Provider, Prompt: p.Prompt, Options: p.Parameters}
}

// ImageTaskBatchPayload - пачка задач в одном сообщении.
type ImageTaskBatchPayload struct {
	BatchID string             `json:"batchId"`
	Tasks   []ImageTaskPayload `json:"tasks"`
}

// ImageResultPayload - результат задачи, который воркер отправляет обратно серверу.
type ImageResultPayload struct {
	TaskID   string `json:"taskId"`
	UserID   string `json:"userId"`
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl,omitempty"`
	Service  string `json:"service,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}
