package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	direction TEXT NOT NULL,
	text TEXT NOT NULL,
	ts_ns INTEGER NOT NULL,
	generated_by TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ts_ns);
CREATE INDEX IF NOT EXISTS idx_messages_direction ON messages(direction, ts_ns);

CREATE TABLE IF NOT EXISTS watermarks (
	conversation_id TEXT PRIMARY KEY,
	last_processed_ns INTEGER NOT NULL
);
`

// SQLite implements Store on a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the message database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open message db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// ListMessages returns the full log ordered by conversation, then timestamp.
func (s *SQLite) ListMessages(ctx context.Context) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, direction, text, ts_ns, generated_by
		FROM messages
		ORDER BY conversation_id, ts_ns`)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListOutboundSince returns outbound messages newer than since, oldest first.
func (s *SQLite) ListOutboundSince(ctx context.Context, since time.Time) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, direction, text, ts_ns, generated_by
		FROM messages
		WHERE direction = ? AND ts_ns > ?
		ORDER BY ts_ns`, string(DirectionOutbound), since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list outbound: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var dir string
		var ns int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &dir, &m.Text, &ns, &m.GeneratedBy); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Direction = Direction(dir)
		m.Timestamp = time.Unix(0, ns)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendMessages inserts the batch inside one transaction. Rows whose ID
// already exists are skipped, which makes retried appends safe.
func (s *SQLite) AppendMessages(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO messages (id, conversation_id, direction, text, ts_ns, generated_by)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, m.ID, m.ConversationID, string(m.Direction), m.Text, m.Timestamp.UnixNano(), m.GeneratedBy); err != nil {
			return fmt.Errorf("append message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// GetWatermark returns the stored watermark for a conversation, if any.
func (s *SQLite) GetWatermark(ctx context.Context, conversationID string) (time.Time, bool, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_processed_ns FROM watermarks WHERE conversation_id = ?`,
		conversationID).Scan(&ns)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get watermark: %w", err)
	}
	return time.Unix(0, ns), true, nil
}

// AdvanceWatermark moves the watermark forward. The conditional upsert keeps
// the invariant that a watermark never regresses, regardless of call order.
func (s *SQLite) AdvanceWatermark(ctx context.Context, conversationID string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (conversation_id, last_processed_ns)
		VALUES (?, ?)
		ON CONFLICT(conversation_id) DO UPDATE
		SET last_processed_ns = excluded.last_processed_ns
		WHERE excluded.last_processed_ns > watermarks.last_processed_ns`,
		conversationID, ts.UnixNano())
	if err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}
