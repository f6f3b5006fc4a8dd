package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/naiolune/zenithwell/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			category TEXT,
			status TEXT NOT NULL,
			lock_reason TEXT,
			can_unlock INTEGER NOT NULL DEFAULT 1,
			owner_id TEXT NOT NULL,
			title TEXT,
			summary TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			sender_id TEXT,
			content TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS participants (
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			is_ready INTEGER NOT NULL DEFAULT 0,
			last_heartbeat DATETIME,
			joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, user_id),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_flags (
			flag_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_flags_session ON audit_flags(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS memories (
			memory_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			content TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS goals (
			goal_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id, updated_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, kind, category, status, lock_reason, can_unlock, owner_id, title, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.Kind, nullString(string(session.Category)), session.Status,
		nullString(session.LockReason), boolToInt(session.CanUnlock), session.OwnerID,
		nullString(session.Title), nullString(session.Summary), session.CreatedAt)
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var category, lockReason, title, summary sql.NullString
	var canUnlock int
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, kind, category, status, lock_reason, can_unlock, owner_id, title, summary, created_at
		 FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.Kind, &category, &session.Status,
		&lockReason, &canUnlock, &session.OwnerID, &title, &summary, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if category.Valid {
		session.Category = domain.SessionCategory(category.String)
	}
	if lockReason.Valid {
		session.LockReason = lockReason.String
	}
	if title.Valid {
		session.Title = title.String
	}
	if summary.Valid {
		session.Summary = summary.String
	}
	session.CanUnlock = canUnlock != 0
	return &session, nil
}

// UpdateSessionStatus updates the lifecycle fields of a session.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, lockReason string, canUnlock bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, lock_reason = ?, can_unlock = ? WHERE session_id = ?`,
		status, nullString(lockReason), boolToInt(canUnlock), sessionID)
	return err
}

// UpdateSessionTitle updates the title of a session. Idempotent.
func (s *SQLiteStore) UpdateSessionTitle(ctx context.Context, sessionID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ? WHERE session_id = ?`, title, sessionID)
	return err
}

// UpdateSessionSummary updates the summary of a session. Idempotent.
func (s *SQLiteStore) UpdateSessionSummary(ctx context.Context, sessionID, summary string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET summary = ? WHERE session_id = ?`, summary, sessionID)
	return err
}

// AppendMessage appends a committed message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, sender, sender_id, content, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, message.Sender, nullString(message.SenderID),
		message.Content, message.Status, message.CreatedAt)
	return err
}

// ReadHistory retrieves the full message history for a session in commit order.
func (s *SQLiteStore) ReadHistory(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, sender, sender_id, content, status, created_at
		 FROM messages WHERE session_id = ? ORDER BY rowid ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var senderID sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &msg.Sender, &senderID, &msg.Content, &msg.Status, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if senderID.Valid {
			msg.SenderID = senderID.String
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// LastMessage retrieves the most recently delivered message for a session.
// Pending and failed rows never count toward turn alternation.
func (s *SQLiteStore) LastMessage(ctx context.Context, sessionID string) (*domain.Message, error) {
	var msg domain.Message
	var senderID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id, session_id, sender, sender_id, content, status, created_at
		 FROM messages WHERE session_id = ? AND status = ? ORDER BY rowid DESC LIMIT 1`,
		sessionID, domain.MessageDelivered).Scan(&msg.MessageID, &msg.SessionID, &msg.Sender, &senderID, &msg.Content, &msg.Status, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if senderID.Valid {
		msg.SenderID = senderID.String
	}
	return &msg, nil
}

// UpdateMessageStatus transitions the delivery status of a message.
// Content is never mutated once committed.
func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, messageID string, status domain.MessageStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ? WHERE message_id = ?`, status, messageID)
	return err
}

// UpsertParticipant creates or replaces a participant row.
func (s *SQLiteStore) UpsertParticipant(ctx context.Context, p *domain.Participant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO participants (session_id, user_id, role, is_ready, last_heartbeat, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.UserID, p.Role, boolToInt(p.IsReady), nullTime(p.LastHeartbeat), p.JoinedAt)
	return err
}

// GetParticipant retrieves a participant by session and user.
func (s *SQLiteStore) GetParticipant(ctx context.Context, sessionID, userID string) (*domain.Participant, error) {
	var p domain.Participant
	var isReady int
	var lastHeartbeat sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, role, is_ready, last_heartbeat, joined_at
		 FROM participants WHERE session_id = ? AND user_id = ?`,
		sessionID, userID).Scan(&p.SessionID, &p.UserID, &p.Role, &isReady, &lastHeartbeat, &p.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.IsReady = isReady != 0
	if lastHeartbeat.Valid {
		p.LastHeartbeat = lastHeartbeat.Time
	}
	return &p, nil
}

// ReadParticipants lists all participants of a session in join order.
func (s *SQLiteStore) ReadParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, user_id, role, is_ready, last_heartbeat, joined_at
		 FROM participants WHERE session_id = ? ORDER BY joined_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		var isReady int
		var lastHeartbeat sql.NullTime
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.Role, &isReady, &lastHeartbeat, &p.JoinedAt); err != nil {
			return nil, err
		}
		p.IsReady = isReady != 0
		if lastHeartbeat.Valid {
			p.LastHeartbeat = lastHeartbeat.Time
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// UpdateHeartbeat records a heartbeat timestamp. Idempotent.
func (s *SQLiteStore) UpdateHeartbeat(ctx context.Context, sessionID, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET last_heartbeat = ? WHERE session_id = ? AND user_id = ?`,
		at, sessionID, userID)
	return err
}

// SetReady toggles a participant's readiness flag.
func (s *SQLiteStore) SetReady(ctx context.Context, sessionID, userID string, ready bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET is_ready = ? WHERE session_id = ? AND user_id = ?`,
		boolToInt(ready), sessionID, userID)
	return err
}

// AppendAuditFlag appends an audit record.
func (s *SQLiteStore) AppendAuditFlag(ctx context.Context, flag *domain.AuditFlag) error {
	detail := ""
	if flag.Detail != nil {
		detail = string(flag.Detail)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_flags (flag_id, session_id, kind, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		flag.FlagID, flag.SessionID, flag.Kind, nullString(detail), flag.CreatedAt)
	return err
}

// ListAuditFlags lists audit records for a session.
func (s *SQLiteStore) ListAuditFlags(ctx context.Context, sessionID string) ([]domain.AuditFlag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT flag_id, session_id, kind, detail, created_at FROM audit_flags WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []domain.AuditFlag
	for rows.Next() {
		var f domain.AuditFlag
		var detail sql.NullString
		if err := rows.Scan(&f.FlagID, &f.SessionID, &f.Kind, &detail, &f.CreatedAt); err != nil {
			return nil, err
		}
		if detail.Valid {
			f.Detail = []byte(detail.String)
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// UpsertMemory creates or replaces a memory row.
func (s *SQLiteStore) UpsertMemory(ctx context.Context, memory *domain.Memory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO memories (memory_id, user_id, category, content, updated_at) VALUES (?, ?, ?, ?, ?)`,
		memory.MemoryID, memory.UserID, memory.Category, memory.Content, memory.UpdatedAt)
	return err
}

// GetMemory retrieves a memory by ID.
func (s *SQLiteStore) GetMemory(ctx context.Context, memoryID string) (*domain.Memory, error) {
	var m domain.Memory
	err := s.db.QueryRowContext(ctx,
		`SELECT memory_id, user_id, category, content, updated_at FROM memories WHERE memory_id = ?`,
		memoryID).Scan(&m.MemoryID, &m.UserID, &m.Category, &m.Content, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMemories lists memories for a user.
func (s *SQLiteStore) ListMemories(ctx context.Context, userID string) ([]domain.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_id, user_id, category, content, updated_at FROM memories WHERE user_id = ? ORDER BY updated_at ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []domain.Memory
	for rows.Next() {
		var m domain.Memory
		if err := rows.Scan(&m.MemoryID, &m.UserID, &m.Category, &m.Content, &m.UpdatedAt); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// UpsertGoal creates or replaces a goal row.
func (s *SQLiteStore) UpsertGoal(ctx context.Context, goal *domain.Goal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO goals (goal_id, user_id, title, status, updated_at) VALUES (?, ?, ?, ?, ?)`,
		goal.GoalID, goal.UserID, goal.Title, goal.Status, goal.UpdatedAt)
	return err
}

// GetGoal retrieves a goal by ID.
func (s *SQLiteStore) GetGoal(ctx context.Context, goalID string) (*domain.Goal, error) {
	var g domain.Goal
	err := s.db.QueryRowContext(ctx,
		`SELECT goal_id, user_id, title, status, updated_at FROM goals WHERE goal_id = ?`,
		goalID).Scan(&g.GoalID, &g.UserID, &g.Title, &g.Status, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGoals lists goals for a user.
func (s *SQLiteStore) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT goal_id, user_id, title, status, updated_at FROM goals WHERE user_id = ? ORDER BY updated_at ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		var g domain.Goal
		if err := rows.Scan(&g.GoalID, &g.UserID, &g.Title, &g.Status, &g.UpdatedAt); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
