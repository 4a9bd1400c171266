package api

import "github.com/tgienger/taskmanager/internal/models"

// TaskDTO is the only task shape that crosses the wire.
type TaskDTO struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	IsDone bool   `json:"isDone"`
	UserID int64  `json:"userId"`
}

// CreateTaskRequest is the POST /api/tasks body. UserID is optional; the
// default user owns the task when it is absent or zero.
type CreateTaskRequest struct {
	Title  string `json:"title"`
	UserID *int64 `json:"userId,omitempty"`
}

// UpdateTaskRequest is the PUT /api/tasks/{id} body. A missing isDone means false.
type UpdateTaskRequest struct {
	Title  string `json:"title"`
	IsDone bool   `json:"isDone"`
}

// ErrorResponse is the body of every non-2xx response. Message is only set
// for unexpected failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func toDTO(t *models.Task) TaskDTO {
	return TaskDTO{
		ID:     t.ID,
		Title:  t.Title,
		IsDone: t.IsDone,
		UserID: t.UserID,
	}
}
