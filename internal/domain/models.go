// Package domain defines the core domain models for the session orchestrator.
package domain

import (
	"encoding/json"
	"time"
)

// Session represents a coaching session.
type Session struct {
	SessionID  string          `json:"session_id"`
	Kind       SessionKind     `json:"kind"`
	Category   SessionCategory `json:"category,omitempty"`
	Status     SessionStatus   `json:"status"`
	LockReason string          `json:"lock_reason,omitempty"`
	CanUnlock  bool            `json:"can_unlock"`
	OwnerID    string          `json:"owner_id"`
	Title      string          `json:"title,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Message represents a single committed message in a session.
type Message struct {
	MessageID string        `json:"message_id"`
	SessionID string        `json:"session_id"`
	Sender    Sender        `json:"sender"`
	SenderID  string        `json:"sender_id,omitempty"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Participant represents a user's membership in a group session.
type Participant struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	Role          Role      `json:"role"`
	IsReady       bool      `json:"is_ready"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	JoinedAt      time.Time `json:"joined_at"`
}

// ParticipantState is a participant plus their derived presence status.
// Presence is never stored; it is always recomputed from heartbeat age.
type ParticipantState struct {
	Participant
	Presence PresenceStatus `json:"presence_status"`
}

// Memory is a durable fact the coach has learned about a user.
type Memory struct {
	MemoryID  string    `json:"memory_id"`
	UserID    string    `json:"user_id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Goal is a wellness goal tracked for a user.
type Goal struct {
	GoalID    string    `json:"goal_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditFlag is an append-only record produced by escalation tools.
type AuditFlag struct {
	FlagID    string          `json:"flag_id"`
	SessionID string          `json:"session_id"`
	Kind      string          `json:"kind"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Event is a realtime notification published to all session participants.
type Event struct {
	Type      EventType   `json:"type"`
	Ts        int64       `json:"ts"` // Unix milliseconds
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
}

// MessageCommittedPayload is the payload for message_committed events.
type MessageCommittedPayload struct {
	Participant *Message `json:"participant_message"`
	Assistant   *Message `json:"assistant_message"`
}

// PresenceChangedPayload is the payload for presence_changed events.
type PresenceChangedPayload struct {
	UserID    string         `json:"user_id"`
	Presence  PresenceStatus `json:"presence_status"`
	AllOnline bool           `json:"all_online"`
}

// ReadinessChangedPayload is the payload for readiness_changed events.
type ReadinessChangedPayload struct {
	UserID   string `json:"user_id"`
	IsReady  bool   `json:"is_ready"`
	AllReady bool   `json:"all_ready"`
}

// StatusChangedPayload is the payload for session lifecycle events.
type StatusChangedPayload struct {
	Status     SessionStatus `json:"status"`
	LockReason string        `json:"lock_reason,omitempty"`
	CanUnlock  bool          `json:"can_unlock"`
}
