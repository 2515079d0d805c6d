package models

import "time"

// ImageRecord - запись о сгенерированном изображении.
type ImageRecord struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	URL       string    `json:"url" db:"url"`
	Prompt    string    `json:"prompt" db:"prompt"`
	Service   string    `json:"service" db:"service"`
	Model     string    `json:"model,omitempty" db:"model"`
	Fallback  bool      `json:"fallback" db:"fallback"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
