package models

import "fmt"

// VisualNovelSettings - пользовательские настройки проигрывания.
type VisualNovelSettings struct {
	TextSpeed        int     `json:"textSpeed" db:"text_speed"`
	AutoAdvance      bool    `json:"autoAdvance" db:"auto_advance"`
	AutoAdvanceDelay int     `json:"autoAdvanceDelay" db:"auto_advance_delay"`
	VoiceVolume      float64 `json:"voiceVolume" db:"voice_volume"`
	MusicVolume      float64 `json:"musicVolume" db:"music_volume"`
	EffectsVolume    float64 `json:"effectsVolume" db:"effects_volume"`
	Fullscreen       bool    `json:"fullscreen" db:"fullscreen"`
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() VisualNovelSettings {
	return VisualNovelSettings{
		TextSpeed:        50,
		AutoAdvance:      false,
		AutoAdvanceDelay: 3,
		VoiceVolume:      0.7,
		MusicVolume:      0.5,
		EffectsVolume:    0.8,
		Fullscreen:       false,
	}
}

func (s VisualNovelSettings) Validate() error {
	if s.TextSpeed < 1 || s.TextSpeed > 100 {
		return fmt.Errorf("%w: textSpeed must be between 1 and 100", ErrInvalidInput)
	}
	if s.AutoAdvanceDelay < 1 || s.AutoAdvanceDelay > 30 {
		return fmt.Errorf("%w: autoAdvanceDelay must be between 1 and 30", ErrInvalidInput)
	}
	for name, v := range map[string]float64{
		"voiceVolume":   s.VoiceVolume,
		"musicVolume":   s.MusicVolume,
		"effectsVolume": s.EffectsVolume,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1", ErrInvalidInput, name)
		}
	}
	return nil
}
