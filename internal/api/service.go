package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tgienger/taskmanager/internal/db"
	"github.com/tgienger/taskmanager/internal/events"
	"github.com/tgienger/taskmanager/internal/logger"
	"github.com/tgienger/taskmanager/internal/metrics"
	"github.com/tgienger/taskmanager/internal/models"
)

// Store is the part of the task store the service needs. *db.DB implements it.
type Store interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	CreateTask(ctx context.Context, userID int64, title string) (*models.Task, error)
	UpdateTask(ctx context.Context, id int64, title string, isDone bool) (*models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	EnsureDefaultUser(ctx context.Context) (*models.User, error)
}

// TaskService implements the task CRUD rules. Every method returns either a
// result or one of *ValidationError, *NotFoundError or *StoreError.
type TaskService struct {
	store  Store
	events events.Publisher
	logger *zap.Logger
}

func NewTaskService(store Store, pub events.Publisher, logger *zap.Logger) *TaskService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &TaskService{store: store, events: pub, logger: logger}
}

func (s *TaskService) List(ctx context.Context) ([]TaskDTO, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, &StoreError{Op: opList, Err: err}
	}

	out := make([]TaskDTO, len(tasks))
	for i := range tasks {
		out[i] = toDTO(&tasks[i])
	}
	return out, nil
}

func (s *TaskService) Get(ctx context.Context, id int64) (TaskDTO, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return TaskDTO{}, s.lookupError(id, opGet, err)
	}
	return toDTO(task), nil
}

// Create validates the title, makes sure an owner exists and inserts the task.
func (s *TaskService) Create(ctx context.Context, req CreateTaskRequest) (TaskDTO, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return TaskDTO{}, &ValidationError{Msg: msgTitleRequired}
	}

	user, err := s.store.EnsureDefaultUser(ctx)
	if err != nil {
		return TaskDTO{}, &StoreError{Op: opCreate, Err: err}
	}

	// An absent or zero userId means the default owner. Any other value is
	// passed through and must satisfy the users foreign key.
	userID := user.ID
	if req.UserID != nil && *req.UserID != 0 {
		userID = *req.UserID
	}

	task, err := s.store.CreateTask(ctx, userID, title)
	if err != nil {
		return TaskDTO{}, &StoreError{Op: opCreate, Err: err}
	}

	metrics.IncrementTaskMutation("create")
	s.publish(ctx, events.TaskCreated, task)
	return toDTO(task), nil
}

// Update overwrites title and isDone. The owner never changes.
func (s *TaskService) Update(ctx context.Context, id int64, req UpdateTaskRequest) (TaskDTO, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return TaskDTO{}, &ValidationError{Msg: msgTitleRequired}
	}

	if _, err := s.store.GetTask(ctx, id); err != nil {
		return TaskDTO{}, s.lookupError(id, opUpdate, err)
	}

	task, err := s.store.UpdateTask(ctx, id, title, req.IsDone)
	if err != nil {
		return TaskDTO{}, s.lookupError(id, opUpdate, err)
	}

	metrics.IncrementTaskMutation("update")
	s.publish(ctx, events.TaskUpdated, task)
	return toDTO(task), nil
}

func (s *TaskService) Delete(ctx context.Context, id int64) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return s.lookupError(id, opDelete, err)
	}

	if err := s.store.DeleteTask(ctx, id); err != nil {
		return s.lookupError(id, opDelete, err)
	}

	metrics.IncrementTaskMutation("delete")
	s.publish(ctx, events.TaskDeleted, task)
	return nil
}

func (s *TaskService) lookupError(id int64, op string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return &NotFoundError{ID: id}
	}
	return &StoreError{Op: op, Err: err}
}

// publish never fails the request; a broken broker only costs the event.
func (s *TaskService) publish(ctx context.Context, routingKey string, task *models.Task) {
	ev := events.TaskEvent{
		TaskID:     task.ID,
		Title:      task.Title,
		IsDone:     task.IsDone,
		UserID:     task.UserID,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, routingKey, ev); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to publish task event",
			zap.String("routing_key", routingKey),
			zap.Int64("task_id", task.ID),
			zap.Error(err),
		)
		metrics.IncrementEventPublished(routingKey, "failed")
		return
	}
	metrics.IncrementEventPublished(routingKey, "success")
}
