// Package client talks to the task API over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tgienger/taskmanager/internal/api"
)

// ErrUnreachable wraps transport failures where no response was received.
var ErrUnreachable = errors.New("server unreachable")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Err     string // server "error" field
	Message string // server "message" field, set for unexpected failures
}

func (e *APIError) Error() string {
	switch {
	case e.Err != "" && e.Message != "":
		return e.Err + ": " + e.Message
	case e.Err != "":
		return e.Err
	default:
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
}

// Client is a thin wrapper over the /api/tasks endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) ListTasks(ctx context.Context) ([]api.TaskDTO, error) {
	var tasks []api.TaskDTO
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []api.TaskDTO{}
	}
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id int64) (api.TaskDTO, error) {
	var task api.TaskDTO
	err := c.do(ctx, http.MethodGet, taskPath(id), nil, &task)
	return task, err
}

func (c *Client) CreateTask(ctx context.Context, title string) (api.TaskDTO, error) {
	var task api.TaskDTO
	err := c.do(ctx, http.MethodPost, "/api/tasks", api.CreateTaskRequest{Title: title}, &task)
	return task, err
}

func (c *Client) UpdateTask(ctx context.Context, id int64, title string, isDone bool) (api.TaskDTO, error) {
	var task api.TaskDTO
	err := c.do(ctx, http.MethodPut, taskPath(id), api.UpdateTaskRequest{Title: title, IsDone: isDone}, &task)
	return task, err
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

func taskPath(id int64) string {
	return "/api/tasks/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload api.ErrorResponse
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); json.Unmarshal(data, &payload) == nil {
			apiErr.Err = payload.Error
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// UserMessage turns err into text for the user. Server supplied error and
// message fields are preferred; fallback is used when the server said nothing.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Err != "" {
			return apiErr.Error()
		}
		return fallback
	}
	if errors.Is(err, ErrUnreachable) {
		return fallback + ": could not reach the server"
	}
	return fallback
}

// IsUnreachable reports whether err means no response was received.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
