package models

import (
	"fmt"
	"time"
)

// CustomChoiceID записывается в PlayerChoices, когда игрок вводит свое действие.
const CustomChoiceID = "custom"

// Choice - вариант выбора в конце сегмента.
type Choice struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	NextSegmentID string   `json:"nextSegmentId"`
	Weight        *float64 `json:"weight,omitempty"`
}

// SegmentMetadata - описание сцены сегмента.
type SegmentMetadata struct {
	Scene    string `json:"scene,omitempty"`
	Mood     string `json:"mood,omitempty"`
	Location string `json:"location,omitempty"`
}

// StorySegment - один шаг истории.
type StorySegment struct {
	ID              string          `json:"id"`
	Text            string          `json:"text"`
	CharacterName   string          `json:"characterName,omitempty"`
	CharacterImage  string          `json:"characterImage,omitempty"`
	BackgroundImage string          `json:"backgroundImage,omitempty"`
	IsBreakpoint    bool            `json:"isBreakpoint"`
	Choices         []Choice        `json:"choices,omitempty"`
	NextSegmentID   string          `json:"nextSegmentId,omitempty"`
	Metadata        SegmentMetadata `json:"metadata"`
}

// FindChoice ищет выбор по id.
func (s *StorySegment) FindChoice(choiceID string) (*Choice, bool) {
	for i := range s.Choices {
		if s.Choices[i].ID == choiceID {
			return &s.Choices[i], true
		}
	}
	return nil, false
}

// ValidateChoices проверяет, что у всех выборов сегмента есть уникальный непустой id.
func (s *StorySegment) ValidateChoices() error {
	seen := make(map[string]struct{}, len(s.Choices))
	for i, c := range s.Choices {
		if c.ID == "" {
			return fmt.Errorf("%w: choice %d of segment %s has empty id", ErrInvalidInput, i, s.ID)
		}
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("%w: %s in segment %s", ErrDuplicateChoiceID, c.ID, s.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// GameState - состояние прохождения.
type GameState struct {
	CurrentSegmentID       string            `json:"currentSegmentId"`
	VisitedSegments        VisitedSet        `json:"visitedSegments"`
	PlayerChoices          map[string]string `json:"playerChoices"`
	CharacterRelationships map[string]int    `json:"characterRelationships,omitempty"`
	GameVariables          map[string]any    `json:"gameVariables,omitempty"`
	SaveDate               time.Time         `json:"saveDate"`
}

// Character - персонаж истории.
type Character struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Personality  string `json:"personality"`
	ImagePrompt  string `json:"imagePrompt"`
	CurrentImage string `json:"currentImage,omitempty"`
}

// GameSession - игровая сессия пользователя.
type GameSession struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Title      string         `json:"title"`
	Genre      string         `json:"genre"`
	Theme      string         `json:"theme"`
	Characters []Character    `json:"characters"`
	Story      []StorySegment `json:"story"`
	GameState  GameState      `json:"gameState"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Segment ищет сегмент по id.
func (s *GameSession) Segment(id string) (*StorySegment, bool) {
	for i := range s.Story {
		if s.Story[i].ID == id {
			return &s.Story[i], true
		}
	}
	return nil, false
}

// ValidateChoices проверяет, что каждый записанный выбор (кроме пользовательского ввода)
// ссылается на существующий выбор своего сегмента.
func (s *GameSession) ValidateChoices() error {
	for i := range s.Story {
		if err := s.Story[i].ValidateChoices(); err != nil {
			return err
		}
	}
	for segID, choiceID := range s.GameState.PlayerChoices {
		if choiceID == CustomChoiceID {
			continue
		}
		seg, ok := s.Segment(segID)
		if !ok {
			return fmt.Errorf("%w: choice recorded for unknown segment %s", ErrInvalidChoice, segID)
		}
		if _, ok := seg.FindChoice(choiceID); !ok {
			return fmt.Errorf("%w: %s in segment %s", ErrInvalidChoice, choiceID, segID)
		}
	}
	return nil
}

// DropDanglingChoices удаляет записанные выборы, которые не ссылаются на выбор
// своего сегмента, и возвращает id затронутых сегментов.
func (s *GameSession) DropDanglingChoices() []string {
	var dropped []string
	for segID, choiceID := range s.GameState.PlayerChoices {
		if choiceID == CustomChoiceID {
			continue
		}
		if seg, ok := s.Segment(segID); ok {
			if _, ok := seg.FindChoice(choiceID); ok {
				continue
			}
		}
		delete(s.GameState.PlayerChoices, segID)
		dropped = append(dropped, segID)
	}
	return dropped
}

// GameConfig - параметры новой игры, выбранные игроком.
type GameConfig struct {
	Title           string `json:"title"`
	Genre           string `json:"genre"`
	Theme           string `json:"theme"`
	Setting         string `json:"setting"`
	PlayerCharacter string `json:"playerCharacter"`
	Tone            string `json:"tone"`
	CustomPrompt    string `json:"customPrompt"`
}

// GameProgress - прогресс прохождения.
type GameProgress struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}
