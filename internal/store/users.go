package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the permission level of a user account.
type Role string

const (
	// RoleAdmin may manage users and documents and read every thread.
	RoleAdmin Role = "admin"
	// RoleUser may only chat in their own threads.
	RoleUser Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// User is one account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserUpdate lists the account fields an admin may change. Nil fields are
// left as they are.
type UserUpdate struct {
	Email    *string
	Role     *Role
	IsActive *bool
}

const userColumns = `id, email, password_hash, role, is_active, created_at, updated_at`

// CreateUser inserts an active account. It returns ErrDuplicate when the
// email is already registered (compared case-insensitively).
func (s *SQLiteStore) CreateUser(ctx context.Context, email, passwordHash string, role Role) (User, error) {
	if !role.Valid() {
		return User{}, fmt.Errorf("store: create user: invalid role %q", role)
	}
	now := s.stamp()
	u := User{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(email),
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	const q = `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, u.ID, u.Email, u.PasswordHash, string(u.Role), u.IsActive,
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		if isUnique(err) {
			return User{}, fmt.Errorf("store: create user %s: %w", u.Email, ErrDuplicate)
		}
		return User{}, fmt.Errorf("store: create user: %w", err)
	}
	return u, nil
}

// UserByEmail looks an account up by email, case-insensitively.
func (s *SQLiteStore) UserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email))
	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("store: user by email: %w", err)
	}
	return u, nil
}

// UserByID looks an account up by id.
func (s *SQLiteStore) UserByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("store: user by id: %w", err)
	}
	return u, nil
}

// ListUsers returns every account ordered by creation time. A non-empty
// search keeps only emails containing it, case-insensitively.
func (s *SQLiteStore) ListUsers(ctx context.Context, search string) ([]User, error) {
	q := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		q += ` WHERE email LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(search)+"%")
	}
	q += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list users scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list users rows: %w", err)
	}
	return users, nil
}

// UpdateUser applies the non-nil fields of upd and returns the updated
// account. It returns ErrNoChanges when upd is empty.
func (s *SQLiteStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	var sets []string
	var args []any
	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, strings.TrimSpace(*upd.Email))
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return User{}, fmt.Errorf("store: update user: invalid role %q", *upd.Role)
		}
		sets = append(sets, "role = ?")
		args = append(args, string(*upd.Role))
	}
	if upd.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *upd.IsActive)
	}
	if len(sets) == 0 {
		return User{}, fmt.Errorf("store: update user: %w", ErrNoChanges)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.stamp().UnixMilli(), id)

	res, err := s.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUnique(err) {
			return User{}, fmt.Errorf("store: update user: %w", ErrDuplicate)
		}
		return User{}, fmt.Errorf("store: update user: %w", err)
	}
	if err := affected(res, "update user"); err != nil {
		return User{}, err
	}
	return s.UserByID(ctx, id)
}

// DeleteUser removes an account together with its threads and their messages.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete user: %w", err)
	}
	if err := affected(res, "delete user"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE thread_id IN (SELECT id FROM threads WHERE user_id = ?)`, id); err != nil {
		return fmt.Errorf("store: delete user messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete user threads: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete user commit: %w", err)
	}
	return nil
}

func scanUser(sc scanner) (User, error) {
	var u User
	var role string
	var created, updated int64
	if err := sc.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.IsActive, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Role = Role(role)
	u.CreatedAt = time.UnixMilli(created).UTC()
	u.UpdatedAt = time.UnixMilli(updated).UTC()
	return u, nil
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
