package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Ошибки менеджера задач
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTooManyTasks  = errors.New("too many active tasks")
	ErrNotCancelable = errors.New("task is already finished")
	ErrClosed        = errors.New("task manager is shutting down")
)

// Типы сообщений WebSocket
const (
	MessageTypeTaskUpdate = "task_update"
	TopicTasks            = "tasks"
)

// ITaskManager определяет интерфейс для управления задачами
type ITaskManager interface {
	SubmitTaskWithOwner(ctx context.Context, taskFunc TaskFunc, params interface{}, ownerID string) (uuid.UUID, error)
	GetTask(taskID uuid.UUID) (*Task, error)
	GetTaskForOwner(taskID uuid.UUID, ownerID string) (*Task, error)
	CancelTask(taskID uuid.UUID) error
	CancelTaskForOwner(taskID uuid.UUID, ownerID string) error
	RegisterCallback(taskID uuid.UUID, callback TaskCallback) error
	UnregisterCallbacks(taskID uuid.UUID)
	CleanupTasks(age time.Duration)
	SetWebSocketNotifier(notifier WebSocketNotifier)
	Shutdown(ctx context.Context) error
}

// WebSocketNotifier интерфейс для отправки уведомлений через WebSocket
type WebSocketNotifier interface {
	SendToUser(userID, messageType, topic string, payload interface{})
	Broadcast(messageType, topic string, payload interface{})
}

// Task - снимок состояния задачи.
type Task struct {
	ID        uuid.UUID   `json:"taskId"`
	OwnerID   string      `json:"-"`
	Status    TaskStatus  `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// TaskStatus представляет статус задачи
type TaskStatus string

// Возможные статусы задач
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Finished сообщает, что задача больше не изменится.
func (s TaskStatus) Finished() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskFunc представляет функцию, выполняемую в задаче
type TaskFunc func(ctx context.Context, params interface{}) (interface{}, error)

// TaskCallback вызывается при каждом изменении статуса задачи и получает снимок.
type TaskCallback func(task Task)

type taskEntry struct {
	Task
	cancel context.CancelFunc
}

// TaskManager управляет асинхронными задачами
type TaskManager struct {
	tasks      map[uuid.UUID]*taskEntry
	mu         sync.RWMutex
	maxTasks   int
	callbacks  map[uuid.UUID][]TaskCallback
	closing    chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
	wsNotifier WebSocketNotifier
	now        func() time.Time
}

var _ ITaskManager = (*TaskManager)(nil)

// Config содержит конфигурацию для TaskManager
type Config struct {
	MaxTasks int
}

// New создает новый экземпляр TaskManager
func New(cfg Config) *TaskManager {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}
	return &TaskManager{
		tasks:     make(map[uuid.UUID]*taskEntry),
		maxTasks:  maxTasks,
		callbacks: make(map[uuid.UUID][]TaskCallback),
		closing:   make(chan struct{}),
		now:       time.Now,
	}
}

// Shutdown перестает принимать задачи, отменяет незавершенные и ждет их окончания.
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.closeOnce.Do(func() {
		close(tm.closing)
		tm.mu.Lock()
		for _, t := range tm.tasks {
			if !t.Status.Finished() && t.cancel != nil {
				t.cancel()
			}
		}
		tm.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for tasks: %w", ctx.Err())
	}
}

// SubmitTaskWithOwner создает и запускает задачу от имени пользователя.
// Контекст задачи не зависит от ctx запроса, из ctx берется только zerolog логгер.
func (tm *TaskManager) SubmitTaskWithOwner(ctx context.Context, taskFunc TaskFunc, params interface{}, ownerID string) (uuid.UUID, error) {
	select {
	case <-tm.closing:
		return uuid.Nil, ErrClosed
	default:
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	active := 0
	for _, t := range tm.tasks {
		if !t.Status.Finished() {
			active++
		}
	}
	if active >= tm.maxTasks {
		return uuid.Nil, fmt.Errorf("%w: limit %d", ErrTooManyTasks, tm.maxTasks)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	taskCtx := log.Ctx(ctx).WithContext(baseCtx)

	now := tm.now()
	entry := &taskEntry{
		Task: Task{
			ID:        uuid.New(),
			OwnerID:   ownerID,
			Status:    TaskStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}
	tm.tasks[entry.ID] = entry

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()
		tm.runTask(taskCtx, entry, taskFunc, params)
	}()

	return entry.ID, nil
}

func (tm *TaskManager) runTask(ctx context.Context, entry *taskEntry, taskFunc TaskFunc, params interface{}) {
	tm.updateTaskStatus(ctx, entry, TaskStatusRunning, 0, "Task started", nil, "")

	result, err := taskFunc(ctx, params)

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		log.Ctx(ctx).Info().Str("taskID", entry.ID.String()).Msg("Task context cancelled")
		tm.updateTaskStatus(ctx, entry, TaskStatusCancelled, 100, "Task cancelled", nil, "")
	case ctx.Err() != nil:
		log.Ctx(ctx).Error().Err(ctx.Err()).Str("taskID", entry.ID.String()).Msg("Task context error")
		tm.updateTaskStatus(ctx, entry, TaskStatusFailed, 100, "Task context error", nil, ctx.Err().Error())
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Str("taskID", entry.ID.String()).Msg("Task failed")
		tm.updateTaskStatus(ctx, entry, TaskStatusFailed, 100, "Task failed", nil, err.Error())
	default:
		log.Ctx(ctx).Info().Str("taskID", entry.ID.String()).Msg("Task completed")
		tm.updateTaskStatus(ctx, entry, TaskStatusCompleted, 100, "Task completed", result, "")
	}
}

// updateTaskStatus обновляет статус и рассылает уведомления.
// Завершенная задача (например, отмененная пользователем) больше не меняется.
func (tm *TaskManager) updateTaskStatus(ctx context.Context, entry *taskEntry, status TaskStatus, progress int, message string, result interface{}, errMsg string) {
	tm.mu.Lock()
	if entry.Status.Finished() {
		tm.mu.Unlock()
		return
	}
	entry.Status = status
	entry.Progress = progress
	entry.Message = message
	entry.Result = result
	entry.Error = errMsg
	entry.UpdatedAt = tm.now()

	snapshot := entry.Task
	callbacks := append([]TaskCallback(nil), tm.callbacks[entry.ID]...)
	notifier := tm.wsNotifier
	tm.mu.Unlock()

	tm.notify(snapshot, callbacks, notifier)

	log.Ctx(ctx).Debug().
		Str("taskID", snapshot.ID.String()).
		Str("newStatus", string(snapshot.Status)).
		Int("progress", snapshot.Progress).
		Msg("Task status updated")
}

func (tm *TaskManager) notify(snapshot Task, callbacks []TaskCallback, notifier WebSocketNotifier) {
	for _, cb := range callbacks {
		go cb(snapshot)
	}
	if notifier != nil && snapshot.OwnerID != "" {
		notifier.SendToUser(snapshot.OwnerID, MessageTypeTaskUpdate, TopicTasks, snapshot)
	}
}

// GetTask возвращает снимок задачи.
func (tm *TaskManager) GetTask(taskID uuid.UUID) (*Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	entry, ok := tm.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	snapshot := entry.Task
	return &snapshot, nil
}

// GetTaskForOwner возвращает задачу, только если она принадлежит ownerID.
// Чужая задача неотличима от несуществующей.
func (tm *TaskManager) GetTaskForOwner(taskID uuid.UUID, ownerID string) (*Task, error) {
	task, err := tm.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}

// CancelTask отменяет выполнение задачи
func (tm *TaskManager) CancelTask(taskID uuid.UUID) error {
	tm.mu.Lock()
	entry, ok := tm.tasks[taskID]
	if !ok {
		tm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if entry.Status.Finished() {
		tm.mu.Unlock()
		return fmt.Errorf("%w: status %s", ErrNotCancelable, entry.Status)
	}

	if entry.cancel != nil {
		entry.cancel()
	}
	entry.Status = TaskStatusCancelled
	entry.Message = "Task cancelled by user"
	entry.UpdatedAt = tm.now()

	snapshot := entry.Task
	callbacks := append([]TaskCallback(nil), tm.callbacks[taskID]...)
	notifier := tm.wsNotifier
	tm.mu.Unlock()

	tm.notify(snapshot, callbacks, notifier)
	return nil
}

// CancelTaskForOwner отменяет задачу владельца.
func (tm *TaskManager) CancelTaskForOwner(taskID uuid.UUID, ownerID string) error {
	if _, err := tm.GetTaskForOwner(taskID, ownerID); err != nil {
		return err
	}
	return tm.CancelTask(taskID)
}

// RegisterCallback регистрирует функцию обратного вызова для задачи
func (tm *TaskManager) RegisterCallback(taskID uuid.UUID, callback TaskCallback) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, ok := tm.tasks[taskID]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	tm.callbacks[taskID] = append(tm.callbacks[taskID], callback)
	return nil
}

// UnregisterCallbacks удаляет все коллбэки для задачи
func (tm *TaskManager) UnregisterCallbacks(taskID uuid.UUID) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	delete(tm.callbacks, taskID)
}

// CleanupTasks удаляет завершенные задачи, которые старше указанного времени
func (tm *TaskManager) CleanupTasks(age time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := tm.now()
	for id, t := range tm.tasks {
		if t.Status.Finished() && now.Sub(t.UpdatedAt) > age {
			delete(tm.tasks, id)
			delete(tm.callbacks, id)
		}
	}
}

// RunCleanup периодически вызывает CleanupTasks до отмены ctx или Shutdown.
func (tm *TaskManager) RunCleanup(ctx context.Context, interval, age time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tm.closing:
			return
		case <-ticker.C:
			tm.CleanupTasks(age)
		}
	}
}

// SetWebSocketNotifier устанавливает WebSocket нотификатор
func (tm *TaskManager) SetWebSocketNotifier(notifier WebSocketNotifier) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.wsNotifier = notifier
}
