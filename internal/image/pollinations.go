package image

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
)

const (
	PollinationsServiceName = "pollinations.ai"
	fallbackMessage         = "Using fallback image service"
)

// Pollinations строит URL запасного сервиса. Запрос к сервису делает клиент при загрузке картинки.
type Pollinations struct {
	baseURL string
	seed    func() int
}

func NewPollinations(baseURL string) *Pollinations {
	return &Pollinations{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		seed:    func() int { return rand.IntN(1000000) },
	}
}

// URL возвращает адрес изображения 800x600 со случайным seed.
func (p *Pollinations) URL(prompt string) string {
	return fmt.Sprintf("%s/prompt/%s?width=800&height=600&seed=%d", p.baseURL, url.PathEscape(prompt), p.seed())
}

// Fallback формирует ответ запасного сервиса.
func (p *Pollinations) Fallback(prompt string) *Result {
	return &Result{
		ImageURL: p.URL(prompt),
		Service:  PollinationsServiceName,
		Fallback: true,
		Message:  fallbackMessage,
	}
}
