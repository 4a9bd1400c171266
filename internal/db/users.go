package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tgienger/taskmanager/internal/models"
)

// Placeholder credentials for the bootstrap user. Nothing authenticates with them.
const (
	DefaultUserEmail    = "default@example.com"
	defaultUserPassword = "default"
)

const userColumns = `id, email, password_hash, created_at`

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts a user and returns the stored row.
func (db *DB) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	defer observe("insert", "users", time.Now())

	var id int64
	err := db.QueryRowContext(ctx, db.rebind(`
		INSERT INTO users (email, password_hash) VALUES (?, ?)
		RETURNING id
	`), email, passwordHash).Scan(&id)
	if err != nil {
		db.logger.Error("Failed to insert user", zap.Error(err), zap.String("email", email))
		return nil, err
	}
	return db.GetUser(ctx, id)
}

// GetUser retrieves a user by ID
func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	defer observe("select", "users", time.Now())

	u, err := scanUser(db.QueryRowContext(ctx, db.rebind(`
		SELECT `+userColumns+` FROM users WHERE id = ?
	`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// FirstUser returns the oldest user, or ErrNotFound when there are none.
func (db *DB) FirstUser(ctx context.Context) (*models.User, error) {
	defer observe("select", "users", time.Now())

	u, err := scanUser(db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users ORDER BY id LIMIT 1
	`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// EnsureDefaultUser returns the first user, creating the placeholder default
// user when the table is empty. Safe to call repeatedly and concurrently.
func (db *DB) EnsureDefaultUser(ctx context.Context) (*models.User, error) {
	u, err := db.FirstUser(ctx)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultUserPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash default password: %w", err)
	}

	start := time.Now()
	_, err = db.ExecContext(ctx, db.rebind(`
		INSERT INTO users (email, password_hash) VALUES (?, ?)
		ON CONFLICT (email) DO NOTHING
	`), DefaultUserEmail, string(hash))
	observe("insert", "users", start)
	if err != nil {
		db.logger.Error("Failed to create default user", zap.Error(err))
		return nil, err
	}

	u, err = db.FirstUser(ctx)
	if err != nil {
		return nil, err
	}
	db.logger.Info("Default user ready", zap.Int64("user_id", u.ID), zap.String("email", u.Email))
	return u, nil
}
