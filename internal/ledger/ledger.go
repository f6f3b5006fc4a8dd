// Package ledger enforces strict turn alternation for sessions.
//
// The ledger owns the PendingTurn: at most one in-flight participant
// message exists per session, and the committed history never contains two
// consecutive messages from the same sender. The pending turn is the
// per-session concurrency control primitive; operations on one session
// never block operations on another.
package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/naiolune/zenithwell/internal/domain"
	store "github.com/naiolune/zenithwell/internal/repository"
)

// PendingTurn is the in-flight participant message awaiting its assistant
// reply. Exactly zero or one exists per session at any instant.
type PendingTurn struct {
	MessageID     string
	SessionID     string
	ParticipantID string
	Content       string
	AcceptedAt    time.Time
}

type sessionState struct {
	mu      sync.Mutex
	pending *PendingTurn
	// halted is set after a fatal invariant violation; further processing
	// for the session is refused rather than guessing at recovery.
	halted bool
}

// Ledger tracks turn alternation per session.
type Ledger struct {
	store store.Store

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New creates a ledger backed by the given store.
func New(st store.Store) *Ledger {
	return &Ledger{
		store:    st,
		sessions: make(map[string]*sessionState),
	}
}

func (l *Ledger) state(sessionID string) *sessionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		l.sessions[sessionID] = st
	}
	return st
}

// Accept admits a participant message and creates the PendingTurn,
// persisting the message with status pending so the input survives a
// crashed or aborted turn. It rejects with TURN_IN_PROGRESS while a
// pending turn exists and with CONSECUTIVE_SAME_SENDER when the last
// delivered message was also from a participant.
func (l *Ledger) Accept(ctx context.Context, sessionID, participantID, content string) (*PendingTurn, error) {
	st := l.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.halted {
		return nil, fmt.Errorf("session %s halted: %w", sessionID, domain.ErrMalformedHistory)
	}
	if st.pending != nil {
		return nil, domain.Reject(domain.RejectTurnInProgress, "a reply is already in flight for this session")
	}

	last, err := l.store.LastMessage(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last message: %w", err)
	}
	if last != nil && last.Sender == domain.SenderParticipant {
		return nil, domain.Reject(domain.RejectConsecutiveSameSender, "last committed message is also from a participant")
	}

	turn := &PendingTurn{
		MessageID:     "msg_" + uuid.New().String()[:8],
		SessionID:     sessionID,
		ParticipantID: participantID,
		Content:       content,
		AcceptedAt:    time.Now(),
	}
	if err := l.store.AppendMessage(ctx, &domain.Message{
		MessageID: turn.MessageID,
		SessionID: sessionID,
		Sender:    domain.SenderParticipant,
		SenderID:  participantID,
		Content:   content,
		Status:    domain.MessagePending,
		CreatedAt: turn.AcceptedAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist pending message: %w", err)
	}
	st.pending = turn
	return turn, nil
}

// Commit transitions the pending participant message to delivered,
// appends the assistant reply, and clears the PendingTurn. No other
// commit may interleave for the same session.
func (l *Ledger) Commit(ctx context.Context, turn *PendingTurn, assistantMsg *domain.Message) error {
	st := l.state(turn.SessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.pending == nil || st.pending.MessageID != turn.MessageID {
		st.halted = true
		return fmt.Errorf("session %s: %w", turn.SessionID, domain.ErrDoubleCommit)
	}

	if err := l.store.UpdateMessageStatus(ctx, turn.MessageID, domain.MessageDelivered); err != nil {
		return fmt.Errorf("failed to deliver participant message: %w", err)
	}
	if err := l.store.AppendMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("failed to append assistant message: %w", err)
	}

	st.pending = nil
	return nil
}

// Abort clears the PendingTurn after a failed turn so the session is not
// wedged, marking the persisted participant message failed. The content
// is preserved; the caller resends it as a new turn. A no-op when the
// turn is no longer pending.
func (l *Ledger) Abort(ctx context.Context, turn *PendingTurn) {
	st := l.state(turn.SessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.pending == nil || st.pending.MessageID != turn.MessageID {
		return
	}
	if err := l.store.UpdateMessageStatus(ctx, turn.MessageID, domain.MessageFailed); err != nil {
		log.Printf("ERROR: failed to mark message %s failed: %v", turn.MessageID, err)
	}
	st.pending = nil
}

// Pending returns a copy of the session's pending turn, or nil.
func (l *Ledger) Pending(sessionID string) *PendingTurn {
	st := l.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.pending == nil {
		return nil
	}
	cp := *st.pending
	return &cp
}

// History returns the message sequence in commit order, including pending
// and failed rows, after validating that the delivered subsequence
// alternates. A violation is fatal for the session: the ledger halts it
// and returns ErrMalformedHistory.
func (l *Ledger) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	messages, err := l.store.ReadHistory(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var prev *domain.Message
	for i := range messages {
		if messages[i].Status != domain.MessageDelivered {
			continue
		}
		if prev != nil && messages[i].Sender == prev.Sender {
			st := l.state(sessionID)
			st.mu.Lock()
			st.halted = true
			st.mu.Unlock()
			return nil, fmt.Errorf("session %s: messages %s and %s share sender %s: %w",
				sessionID, prev.MessageID, messages[i].MessageID, messages[i].Sender, domain.ErrMalformedHistory)
		}
		prev = &messages[i]
	}
	return messages, nil
}

// Halted reports whether the session was stopped by an invariant violation.
func (l *Ledger) Halted(sessionID string) bool {
	st := l.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.halted
}
