package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/commentboard/server/internal/db"
	"github.com/commentboard/server/internal/hub"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrNotOwner     = errors.New("store: comment belongs to another user")
	ErrEmptyContent = errors.New("store: comment content cannot be empty")
)

type Store struct{ db *db.DB }

func New(d *db.DB) *Store { return &Store{db: d} }

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Comment is a stored row joined with the author's display name.
type Comment struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Wire converts a row to the projection broadcast to clients and returned
// by the REST API: string ids, ISO-8601 timestamps.
func (c *Comment) Wire() hub.Comment {
	return hub.Comment{
		ID:        strconv.FormatInt(c.ID, 10),
		Content:   c.Content,
		UserID:    strconv.FormatInt(c.UserID, 10),
		Username:  c.Username,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Store) CreateUser(ctx context.Context, email, hashedPassword, name string) (*User, error) {
	var u User
	err := s.db.Pool.QueryRow(ctx, `
INSERT INTO users(email, password, name)
VALUES ($1, $2, $3)
RETURNING id, email, password, name, created_at;
`, email, hashedPassword, name).Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.Pool.QueryRow(ctx, `
SELECT id, email, password, name, created_at FROM users WHERE email = $1
`, email).Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.Pool.QueryRow(ctx, `
SELECT id, email, password, name, created_at FROM users WHERE id = $1
`, id).Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &u, nil
}

func (s *Store) CreateComment(ctx context.Context, userID int64, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	var c Comment
	err := s.db.Pool.QueryRow(ctx, `
WITH inserted AS (
  INSERT INTO comments(content, user_id, char_count)
  VALUES ($1, $2, $3)
  RETURNING id, content, user_id, created_at, updated_at
)
SELECT i.id, i.content, i.user_id, u.name, i.created_at, i.updated_at
FROM inserted i JOIN users u ON i.user_id = u.id;
`, content, userID, len(content)).Scan(&c.ID, &c.Content, &c.UserID, &c.Username, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return &c, nil
}

func (s *Store) FindAllComments(ctx context.Context) ([]Comment, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT c.id, c.content, c.user_id, u.name, c.created_at, c.updated_at
FROM comments c JOIN users u ON c.user_id = u.id
ORDER BY c.created_at DESC;
`)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Content, &c.UserID, &c.Username, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) FindCommentByID(ctx context.Context, id int64) (*Comment, error) {
	var c Comment
	err := s.db.Pool.QueryRow(ctx, `
SELECT c.id, c.content, c.user_id, u.name, c.created_at, c.updated_at
FROM comments c JOIN users u ON c.user_id = u.id
WHERE c.id = $1;
`, id).Scan(&c.ID, &c.Content, &c.UserID, &c.Username, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find comment: %w", err)
	}
	return &c, nil
}

// UpdateComment replaces the content of a comment owned by userID and
// refreshes updated_at.
func (s *Store) UpdateComment(ctx context.Context, id, userID int64, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	existing, err := s.FindCommentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, ErrNotOwner
	}
	var c Comment
	err = s.db.Pool.QueryRow(ctx, `
WITH updated AS (
  UPDATE comments SET content = $1, char_count = $2, updated_at = now()
  WHERE id = $3
  RETURNING id, content, user_id, created_at, updated_at
)
SELECT up.id, up.content, up.user_id, u.name, up.created_at, up.updated_at
FROM updated up JOIN users u ON up.user_id = u.id;
`, content, len(content), id).Scan(&c.ID, &c.Content, &c.UserID, &c.Username, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	return &c, nil
}

// DeleteComment removes a comment owned by userID.
func (s *Store) DeleteComment(ctx context.Context, id, userID int64) error {
	existing, err := s.FindCommentByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.UserID != userID {
		return ErrNotOwner
	}
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
