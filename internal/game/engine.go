package game

import (
	"fmt"
	"time"

	"vnovel-server/internal/models"
)

// CurrentSegment возвращает текущий сегмент сессии или nil.
func CurrentSegment(s *models.GameSession) *models.StorySegment {
	if s == nil {
		return nil
	}
	seg, ok := s.Segment(s.GameState.CurrentSegmentID)
	if !ok {
		return nil
	}
	return seg
}

// MakeChoice применяет выбор игрока к состоянию сессии.
// Для пользовательского ввода следующий сегмент получает id custom_<unixMillis>,
// иначе берется NextSegmentID выбора. Неизвестный выбор ничего не меняет.
func MakeChoice(s *models.GameSession, choiceID, customInput string, at time.Time) (string, bool) {
	current := CurrentSegment(s)
	if current == nil {
		return "", false
	}

	var next string
	if customInput != "" {
		next = fmt.Sprintf("custom_%d", at.UnixMilli())
	} else {
		choice, ok := current.FindChoice(choiceID)
		if !ok {
			return "", false
		}
		next = choice.NextSegmentID
	}

	if s.GameState.PlayerChoices == nil {
		s.GameState.PlayerChoices = make(map[string]string)
	}
	s.GameState.PlayerChoices[current.ID] = choiceID
	s.GameState.VisitedSegments.Add(current.ID)
	s.GameState.CurrentSegmentID = next
	s.UpdatedAt = at
	return next, true
}

// PreviousSegments возвращает последние n посещенных сегментов. Отсутствующие id пропускаются.
func PreviousSegments(s *models.GameSession, n int) []models.StorySegment {
	ids := s.GameState.VisitedSegments.Last(n)
	out := make([]models.StorySegment, 0, len(ids))
	for _, id := range ids {
		if seg, ok := s.Segment(id); ok {
			out = append(out, *seg)
		}
	}
	return out
}

// Progress считает прогресс прохождения.
func Progress(s *models.GameSession) models.GameProgress {
	p := models.GameProgress{
		Completed: s.GameState.VisitedSegments.Len(),
		Total:     len(s.Story),
	}
	if p.Total > 0 {
		p.Percentage = float64(p.Completed) / float64(p.Total) * 100
	}
	return p
}

// AppendSegment добавляет сегмент или заменяет существующий с тем же id.
// При замене записанный выбор сегмента сбрасывается, если в новом сегменте его нет.
func AppendSegment(s *models.GameSession, seg models.StorySegment) error {
	if seg.ID == "" {
		return fmt.Errorf("%w: segment id is required", models.ErrInvalidInput)
	}
	if err := seg.ValidateChoices(); err != nil {
		return err
	}
	if existing, ok := s.Segment(seg.ID); ok {
		*existing = seg
		if choiceID, ok := s.GameState.PlayerChoices[seg.ID]; ok && choiceID != models.CustomChoiceID {
			if _, found := seg.FindChoice(choiceID); !found {
				delete(s.GameState.PlayerChoices, seg.ID)
			}
		}
		return nil
	}
	s.Story = append(s.Story, seg)
	return nil
}
