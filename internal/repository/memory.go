package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"

	"vnovel-server/internal/models"
)

// In-memory реализации используются, когда DATABASE_URL не задан, и в тестах.
// Сессии хранятся сериализованными, чтобы вызывающий код не делил состояние с хранилищем.

type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	owners   map[string]string
}

func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{
		sessions: make(map[string][]byte),
		owners:   make(map[string]string),
	}
}

func (r *memorySessionRepository) Save(_ context.Context, session *models.GameSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[session.ID]; ok && owner != session.UserID {
		return fmt.Errorf("%w: session %s", models.ErrForbidden, session.ID)
	}
	r.sessions[session.ID] = data
	r.owners[session.ID] = session.UserID
	return nil
}

func (r *memorySessionRepository) GetByID(_ context.Context, userID, sessionID string) (*models.GameSession, error) {
	r.mu.RLock()
	data, ok := r.sessions[sessionID]
	owner := r.owners[sessionID]
	r.mu.RUnlock()
	if !ok || owner != userID {
		return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
	}
	return decodeSession(data)
}

func (r *memorySessionRepository) ListByUser(_ context.Context, userID string) ([]*models.GameSession, error) {
	r.mu.RLock()
	var out []*models.GameSession
	for id, data := range r.sessions {
		if r.owners[id] != userID {
			continue
		}
		s, err := decodeSession(data)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memorySessionRepository) Delete(_ context.Context, userID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[sessionID]; !ok || owner != userID {
		return fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
	}
	delete(r.sessions, sessionID)
	delete(r.owners, sessionID)
	return nil
}

type memoryImageRepository struct {
	mu      sync.RWMutex
	records []models.ImageRecord
}

func NewMemoryImageRepository() ImageRepository {
	return &memoryImageRepository{}
}

func (r *memoryImageRepository) Create(_ context.Context, record *models.ImageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *record)
	return nil
}

func (r *memoryImageRepository) ListByUser(_ context.Context, userID string, services []string, limit int) ([]*models.ImageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ImageRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.UserID != userID {
			continue
		}
		if len(services) > 0 && !slices.Contains(services, rec.Service) {
			continue
		}
		out = append(out, &rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type memorySettingsRepository struct {
	mu       sync.RWMutex
	settings map[string]models.VisualNovelSettings
}

func NewMemorySettingsRepository() SettingsRepository {
	return &memorySettingsRepository{settings: make(map[string]models.VisualNovelSettings)}
}

func (r *memorySettingsRepository) Get(_ context.Context, userID string) (*models.VisualNovelSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (r *memorySettingsRepository) Upsert(_ context.Context, userID string, s models.VisualNovelSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[userID] = s
	return nil
}

type memoryDocumentRepository struct {
	mu   sync.RWMutex
	docs []models.Document
}

func NewMemoryDocumentRepository() DocumentRepository {
	return &memoryDocumentRepository{}
}

func (r *memoryDocumentRepository) Create(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, *doc)
	return nil
}

func (r *memoryDocumentRepository) GetByID(_ context.Context, userID, docID string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.docs {
		if d.ID == docID && d.UserID == userID {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, docID)
}

func (r *memoryDocumentRepository) ListByUser(_ context.Context, userID string) ([]*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Document
	for i := len(r.docs) - 1; i >= 0; i-- {
		if d := r.docs[i]; d.UserID == userID {
			out = append(out, &d)
		}
	}
	return out, nil
}

type memoryChatRepository struct {
	mu       sync.RWMutex
	messages map[string][]models.ChatMessage
}

func NewMemoryChatRepository() ChatRepository {
	return &memoryChatRepository{messages: make(map[string][]models.ChatMessage)}
}

func (r *memoryChatRepository) Append(_ context.Context, messages ...*models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range messages {
		r.messages[m.ChatID] = append(r.messages[m.ChatID], *m)
	}
	return nil
}

func (r *memoryChatRepository) ListByChat(_ context.Context, userID, chatID string) ([]*models.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.ChatMessage
	for _, m := range r.messages[chatID] {
		if m.UserID == userID {
			out = append(out, &m)
		}
	}
	return out, nil
}
