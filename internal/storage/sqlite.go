package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"smartdesk/internal/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	session_id  TEXT NOT NULL,
	id          INTEGER NOT NULL,
	role        TEXT NOT NULL,
	text        TEXT NOT NULL,
	attachments TEXT,
	intent      TEXT,
	search_mode INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (session_id, id)
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
`

// SQLiteStore is the durable local document store: session logs survive
// process restarts. Ids are allocated per session under a single writer
// lock; WAL mode keeps concurrent readers on a consistent snapshot.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	policy PrunePolicy
	now    func() time.Time
}

func NewSQLiteStore(dbPath string, policy PrunePolicy) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db, policy: policy, now: time.Now}, nil
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, msg core.Message) (core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Message{}, storageErr(err)
	}
	defer tx.Rollback()

	var nextID int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM messages WHERE session_id = ?`,
		sessionID).Scan(&nextID)
	if err != nil {
		return core.Message{}, storageErr(err)
	}

	msg.ID = nextID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	var attachments []byte
	if len(msg.Attachments) > 0 {
		attachments, err = sonic.Marshal(msg.Attachments)
		if err != nil {
			return core.Message{}, storageErr(err)
		}
	}

	searchMode := 0
	if msg.SearchMode {
		searchMode = 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, id, role, text, attachments, intent, search_mode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, msg.ID, string(msg.Role), msg.Text, attachments,
		string(msg.Intent), searchMode, msg.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return core.Message{}, storageErr(err)
	}

	if err := s.pruneTx(ctx, tx, sessionID); err != nil {
		return core.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Message{}, storageErr(err)
	}
	return msg, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]core.Message, error) {
	query := `SELECT id, role, text, attachments, intent, search_mode, created_at
		FROM messages WHERE session_id = ? ORDER BY id DESC`
	args := []any{sessionID}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var msgs []core.Message
	for rows.Next() {
		var (
			msg         core.Message
			role        string
			intent      string
			attachments []byte
			searchMode  int
			createdAt   string
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Text, &attachments, &intent, &searchMode, &createdAt); err != nil {
			return nil, storageErr(err)
		}
		msg.Role = core.Role(role)
		msg.Intent = core.Intent(intent)
		msg.SearchMode = searchMode != 0
		if msg.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, storageErr(err)
		}
		if len(attachments) > 0 {
			if err := sonic.Unmarshal(attachments, &msg.Attachments); err != nil {
				return nil, storageErr(err)
			}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}

	// Reverse into oldest-first order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr(err)
	}
	defer tx.Rollback()

	dropped, err := s.pruneCountTx(ctx, tx, sessionID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr(err)
	}
	return dropped, nil
}

func (s *SQLiteStore) pruneTx(ctx context.Context, tx *sql.Tx, sessionID string) error {
	_, err := s.pruneCountTx(ctx, tx, sessionID)
	return err
}

func (s *SQLiteStore) pruneCountTx(ctx context.Context, tx *sql.Tx, sessionID string) (int, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, created_at FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return 0, storageErr(err)
	}
	var idx []core.Message
	for rows.Next() {
		var (
			msg       core.Message
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &createdAt); err != nil {
			rows.Close()
			return 0, storageErr(err)
		}
		if msg.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			rows.Close()
			return 0, storageErr(err)
		}
		idx = append(idx, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, storageErr(err)
	}

	n := s.policy.drop(idx, s.now())
	if n == 0 {
		return 0, nil
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND id <= ?`,
		sessionID, idx[n-1].ID)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return storageErr(err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
