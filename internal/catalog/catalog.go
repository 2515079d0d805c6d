// Package catalog содержит справочники жанров, тем и тонов для настройки новой игры.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"vnovel-server/internal/models"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Entry - элемент справочника.
type Entry struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Catalog - набор справочников.
type Catalog struct {
	Genres []Entry `yaml:"genres" json:"genres"`
	Themes []Entry `yaml:"themes" json:"themes"`
	Tones  []Entry `yaml:"tones" json:"tones"`
}

// Load разбирает встроенный справочник.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

// Parse разбирает справочник из YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(c.Genres) == 0 {
		return nil, fmt.Errorf("catalog has no genres")
	}
	return &c, nil
}

func find(entries []Entry, id string) (Entry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func (c *Catalog) Genre(id string) (Entry, bool) { return find(c.Genres, id) }
func (c *Catalog) Theme(id string) (Entry, bool) { return find(c.Themes, id) }
func (c *Catalog) Tone(id string) (Entry, bool)  { return find(c.Tones, id) }

// DefaultTitle возвращает название игры по умолчанию: "<жанр> Adventure".
func (c *Catalog) DefaultTitle(genre string) string {
	if g, ok := c.Genre(genre); ok {
		return g.Label + " Adventure"
	}
	return genre + " Adventure"
}

// ValidateConfig проверяет, что жанр задан, а тема и тон (если заданы) есть в справочнике.
func (c *Catalog) ValidateConfig(cfg models.GameConfig) error {
	if cfg.Genre == "" {
		return fmt.Errorf("%w: genre is required", models.ErrInvalidInput)
	}
	if _, ok := c.Genre(cfg.Genre); !ok {
		return fmt.Errorf("%w: unknown genre '%s'", models.ErrInvalidInput, cfg.Genre)
	}
	if cfg.Theme != "" {
		if _, ok := c.Theme(cfg.Theme); !ok {
			return fmt.Errorf("%w: unknown theme '%s'", models.ErrInvalidInput, cfg.Theme)
		}
	}
	if cfg.Tone != "" {
		if _, ok := c.Tone(cfg.Tone); !ok {
			return fmt.Errorf("%w: unknown tone '%s'", models.ErrInvalidInput, cfg.Tone)
		}
	}
	return nil
}
