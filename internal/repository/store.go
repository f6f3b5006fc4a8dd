// Package store defines the persistence contract for the orchestrator.
// All operations are atomic at row granularity; callers never assume
// cross-row transactions.
package store

import (
	"context"
	"time"

	"github.com/naiolune/zenithwell/internal/domain"
)

// Store is the interface for persistent storage operations.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, lockReason string, canUnlock bool) error
	UpdateSessionTitle(ctx context.Context, sessionID, title string) error
	UpdateSessionSummary(ctx context.Context, sessionID, summary string) error

	// Messages
	AppendMessage(ctx context.Context, message *domain.Message) error
	ReadHistory(ctx context.Context, sessionID string) ([]domain.Message, error)
	LastMessage(ctx context.Context, sessionID string) (*domain.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID string, status domain.MessageStatus) error

	// Participants
	UpsertParticipant(ctx context.Context, participant *domain.Participant) error
	GetParticipant(ctx context.Context, sessionID, userID string) (*domain.Participant, error)
	ReadParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	UpdateHeartbeat(ctx context.Context, sessionID, userID string, at time.Time) error
	SetReady(ctx context.Context, sessionID, userID string, ready bool) error

	// Audit flags
	AppendAuditFlag(ctx context.Context, flag *domain.AuditFlag) error
	ListAuditFlags(ctx context.Context, sessionID string) ([]domain.AuditFlag, error)

	// Memories and goals
	UpsertMemory(ctx context.Context, memory *domain.Memory) error
	GetMemory(ctx context.Context, memoryID string) (*domain.Memory, error)
	ListMemories(ctx context.Context, userID string) ([]domain.Memory, error)
	UpsertGoal(ctx context.Context, goal *domain.Goal) error
	GetGoal(ctx context.Context, goalID string) (*domain.Goal, error)
	ListGoals(ctx context.Context, userID string) ([]domain.Goal, error)

	Close() error
}
