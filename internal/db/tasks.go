package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tgienger/taskmanager/internal/models"
)

const taskColumns = `id, title, is_done, user_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	if err := row.Scan(&t.ID, &t.Title, &t.IsDone, &t.UserID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTask inserts a task that is not done yet and returns the stored row.
func (db *DB) CreateTask(ctx context.Context, userID int64, title string) (*models.Task, error) {
	defer observe("insert", "tasks", time.Now())
	db.logger.Debug("Inserting task", zap.Int64("user_id", userID), zap.String("title", title))

	var id int64
	err := db.QueryRowContext(ctx, db.rebind(`
		INSERT INTO tasks (title, is_done, user_id) VALUES (?, ?, ?)
		RETURNING id
	`), title, false, userID).Scan(&id)
	if err != nil {
		db.logger.Error("Failed to insert task", zap.Error(err), zap.Int64("user_id", userID))
		return nil, err
	}

	db.logger.Info("Task inserted", zap.Int64("task_id", id), zap.Int64("user_id", userID))
	return db.GetTask(ctx, id)
}

// GetTask retrieves a task by ID
func (db *DB) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	defer observe("select", "tasks", time.Now())

	t, err := scanTask(db.QueryRowContext(ctx, db.rebind(`
		SELECT `+taskColumns+` FROM tasks WHERE id = ?
	`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		db.logger.Error("Failed to get task", zap.Error(err), zap.Int64("task_id", id))
		return nil, err
	}
	return t, nil
}

// ListTasks returns every task in insertion order. The result is never nil.
func (db *DB) ListTasks(ctx context.Context) ([]models.Task, error) {
	defer observe("select", "tasks", time.Now())

	rows, err := db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		db.logger.Error("Failed to query tasks", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			db.logger.Error("Failed to scan task row", zap.Error(err))
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	db.logger.Debug("Tasks listed", zap.Int("count", len(tasks)))
	return tasks, nil
}

// UpdateTask overwrites title and completion state of an existing task.
func (db *DB) UpdateTask(ctx context.Context, id int64, title string, isDone bool) (*models.Task, error) {
	start := time.Now()
	result, err := db.ExecContext(ctx, db.rebind(`
		UPDATE tasks SET title = ?, is_done = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`), title, isDone, id)
	observe("update", "tasks", start)
	if err != nil {
		db.logger.Error("Failed to update task", zap.Error(err), zap.Int64("task_id", id))
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrNotFound
	}

	db.logger.Info("Task updated", zap.Int64("task_id", id), zap.Bool("is_done", isDone))
	return db.GetTask(ctx, id)
}

// DeleteTask deletes a task
func (db *DB) DeleteTask(ctx context.Context, id int64) error {
	defer observe("delete", "tasks", time.Now())

	result, err := db.ExecContext(ctx, db.rebind("DELETE FROM tasks WHERE id = ?"), id)
	if err != nil {
		db.logger.Error("Failed to delete task", zap.Error(err), zap.Int64("task_id", id))
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	db.logger.Info("Task deleted", zap.Int64("task_id", id))
	return nil
}

// TaskCount returns the number of tasks
func (db *DB) TaskCount(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count)
	return count, err
}
