package models

import "time"

// User owns tasks. There is no real authentication yet; a single default
// user is created on demand and PasswordHash only ever holds a placeholder.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Task represents a single task
type Task struct {
	ID        int64
	Title     string
	IsDone    bool
	UserID    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
