package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/docchat-go/internal/rag"
)

// DefaultMessageLimit is the page size used when callers pass limit <= 0.
const DefaultMessageLimit = 50

// Author identifies who wrote a chat message.
type Author string

const (
	// AuthorUser is a message sent by the human.
	AuthorUser Author = "user"
	// AuthorAssistant is a message produced by the answer composer.
	AuthorAssistant Author = "assistant"
)

// Thread is one conversation owned by a user.
type Thread struct {
	ID        string    `json:"id"`
	UserID    string    `json:"owner_user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn in a thread. Refs is nil for user messages and a
// possibly empty list for assistant messages.
type Message struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	Role      Author          `json:"role"`
	Content   string          `json:"content"`
	Refs      []rag.Reference `json:"retrieval_refs"`
	CreatedAt time.Time       `json:"created_at"`
}

// DefaultTitle is the title given to threads created without one.
func DefaultTitle(t time.Time) string {
	return "New Chat " + t.UTC().Format("2006-01-02 15:04")
}

const threadColumns = `id, user_id, title, created_at, updated_at`

// CreateThread inserts a thread owned by userID. An empty title is replaced
// by DefaultTitle.
func (s *SQLiteStore) CreateThread(ctx context.Context, userID, title string) (Thread, error) {
	now := s.stamp()
	if title = strings.TrimSpace(title); title == "" {
		title = DefaultTitle(now)
	}
	th := Thread{ID: uuid.NewString(), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}
	const q = `INSERT INTO threads (` + threadColumns + `) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, th.ID, th.UserID, th.Title, now.UnixMilli(), now.UnixMilli()); err != nil {
		return Thread{}, fmt.Errorf("store: create thread: %w", err)
	}
	return th, nil
}

// Thread returns one thread by id.
func (s *SQLiteStore) Thread(ctx context.Context, id string) (Thread, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM threads WHERE id = ?`, id)
	th, err := scanThread(row)
	if err != nil {
		return Thread{}, fmt.Errorf("store: thread: %w", err)
	}
	return th, nil
}

// ListThreads returns threads most recently updated first. An empty userID
// lists every user's threads.
func (s *SQLiteStore) ListThreads(ctx context.Context, userID string) ([]Thread, error) {
	q := `SELECT ` + threadColumns + ` FROM threads`
	var args []any
	if userID != "" {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY updated_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list threads: %w", err)
	}
	defer rows.Close()

	threads := []Thread{}
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list threads scan: %w", err)
		}
		threads = append(threads, th)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list threads rows: %w", err)
	}
	return threads, nil
}

// RenameThread sets the title and bumps updated_at.
func (s *SQLiteStore) RenameThread(ctx context.Context, id, title string) (Thread, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE threads SET title = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(title), s.stamp().UnixMilli(), id)
	if err != nil {
		return Thread{}, fmt.Errorf("store: rename thread: %w", err)
	}
	if err := affected(res, "rename thread"); err != nil {
		return Thread{}, err
	}
	return s.Thread(ctx, id)
}

// TouchThread bumps updated_at so the thread sorts first.
func (s *SQLiteStore) TouchThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE threads SET updated_at = ? WHERE id = ?`, s.stamp().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: touch thread: %w", err)
	}
	return affected(res, "touch thread")
}

// DeleteThread removes a thread and all of its messages.
func (s *SQLiteStore) DeleteThread(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete thread: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete thread: %w", err)
	}
	if err := affected(res, "delete thread"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete thread messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete thread commit: %w", err)
	}
	return nil
}

const messageColumns = `id, thread_id, role, content, refs, created_at`

// AppendMessage stores one message in a thread. Refs are kept as JSON; nil
// refs are stored as NULL.
func (s *SQLiteStore) AppendMessage(ctx context.Context, threadID string, role Author, content string, refs []rag.Reference) (Message, error) {
	m := Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		Refs:      refs,
		CreatedAt: s.stamp(),
	}
	var encoded sql.NullString
	if refs != nil {
		b, err := json.Marshal(refs)
		if err != nil {
			return Message{}, fmt.Errorf("store: encode refs: %w", err)
		}
		encoded = sql.NullString{String: string(b), Valid: true}
	}
	const q = `INSERT INTO messages (` + messageColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, m.ID, m.ThreadID, string(m.Role), m.Content, encoded, m.CreatedAt.UnixMilli()); err != nil {
		return Message{}, fmt.Errorf("store: append message: %w", err)
	}
	return m, nil
}

// Message returns one message by id.
func (s *SQLiteStore) Message(ctx context.Context, id string) (Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("store: message: %w", err)
	}
	return m, nil
}

// Messages returns a page of a thread's messages, oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, threadID string, skip, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	skip = max(skip, 0)
	const q = `
SELECT ` + messageColumns + `
FROM   messages
WHERE  thread_id = ?
ORDER  BY created_at ASC, rowid ASC
LIMIT  ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, threadID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("store: messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: messages scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: messages rows: %w", err)
	}
	return msgs, nil
}

// CountMessages returns the number of messages in a thread.
func (s *SQLiteStore) CountMessages(ctx context.Context, threadID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE thread_id = ?`, threadID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count messages: %w", err)
	}
	return n, nil
}

// DeleteMessage removes one message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete message: %w", err)
	}
	return affected(res, "delete message")
}

func scanThread(sc scanner) (Thread, error) {
	var th Thread
	var created, updated int64
	if err := sc.Scan(&th.ID, &th.UserID, &th.Title, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Thread{}, ErrNotFound
		}
		return Thread{}, err
	}
	th.CreatedAt = time.UnixMilli(created).UTC()
	th.UpdatedAt = time.UnixMilli(updated).UTC()
	return th, nil
}

func scanMessage(sc scanner) (Message, error) {
	var m Message
	var role string
	var refs sql.NullString
	var created int64
	if err := sc.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &refs, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	m.Role = Author(role)
	m.CreatedAt = time.UnixMilli(created).UTC()
	if refs.Valid {
		if err := json.Unmarshal([]byte(refs.String), &m.Refs); err != nil {
			return Message{}, fmt.Errorf("decode refs: %w", err)
		}
		if m.Refs == nil {
			m.Refs = []rag.Reference{}
		}
	}
	return m, nil
}
