// Package service composes the ledger, lifecycle machine, presence
// coordinator, prompt composer, and tool executor into the session
// orchestrator's operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/naiolune/zenithwell/internal/adapter/llm"
	"github.com/naiolune/zenithwell/internal/domain"
	"github.com/naiolune/zenithwell/internal/ledger"
	"github.com/naiolune/zenithwell/internal/lifecycle"
	"github.com/naiolune/zenithwell/internal/presence"
	"github.com/naiolune/zenithwell/internal/prompt"
	"github.com/naiolune/zenithwell/internal/realtime"
	store "github.com/naiolune/zenithwell/internal/repository"
	"github.com/naiolune/zenithwell/internal/toolexec"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Service is the session orchestrator.
type Service struct {
	store     store.Store
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Machine
	presence  *presence.Coordinator
	composer  *prompt.Composer
	executor  *toolexec.Executor
	llm       llm.Client
	publisher realtime.Publisher
	now       func() time.Time
}

// New creates the orchestrator service.
func New(st store.Store, lg *ledger.Ledger, lc *lifecycle.Machine, pc *presence.Coordinator, cmp *prompt.Composer, ex *toolexec.Executor, client llm.Client, pub realtime.Publisher) *Service {
	if pub == nil {
		pub = realtime.NopPublisher{}
	}
	return &Service{
		store:     st,
		ledger:    lg,
		lifecycle: lc,
		presence:  pc,
		composer:  cmp,
		executor:  ex,
		llm:       client,
		publisher: pub,
		now:       time.Now,
	}
}

// WithClock overrides the clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) event(t domain.EventType, sessionID string, payload interface{}) {
	s.publisher.Publish(domain.Event{
		Type:      t,
		Ts:        s.now().UnixMilli(),
		SessionID: sessionID,
		Payload:   payload,
	})
}

// CreateSession creates a session owned by ownerID. Group sessions start
// waiting; individual and introduction sessions start active.
func (s *Service) CreateSession(ctx context.Context, ownerID string, kind domain.SessionKind, category domain.SessionCategory) (*domain.Session, error) {
	switch kind {
	case domain.SessionKindIndividual, domain.SessionKindGroup, domain.SessionKindIntroduction:
	default:
		return nil, fmt.Errorf("unknown session kind %q", kind)
	}

	now := s.now()
	session := &domain.Session{
		SessionID: "sess_" + uuid.New().String()[:8],
		Kind:      kind,
		Category:  category,
		Status:    lifecycle.InitialStatus(kind),
		CanUnlock: true,
		OwnerID:   ownerID,
		CreatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	owner := &domain.Participant{
		SessionID: session.SessionID,
		UserID:    ownerID,
		Role:      domain.RoleOwner,
		JoinedAt:  now,
	}
	if err := s.store.UpsertParticipant(ctx, owner); err != nil {
		return nil, fmt.Errorf("failed to add owner participant: %w", err)
	}
	return session, nil
}

// JoinSession adds a participant to a session. Joining a locked or ended
// session is rejected; rejoining is idempotent.
func (s *Service) JoinSession(ctx context.Context, sessionID, userID string) (*domain.Participant, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionLocked {
		return nil, domain.Reject(domain.RejectSessionLocked, "session is locked")
	}
	if session.Status == domain.SessionEnded {
		return nil, domain.Reject(domain.RejectSessionEnded, "session has ended")
	}

	existing, err := s.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read participant: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	p := &domain.Participant{
		SessionID: sessionID,
		UserID:    userID,
		Role:      domain.RoleParticipant,
		JoinedAt:  s.now(),
	}
	if err := s.store.UpsertParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}
	s.event(domain.EventTypeParticipantJoined, sessionID, map[string]string{"user_id": userID})
	return p, nil
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.getSession(ctx, sessionID)
}

func (s *Service) getSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// History returns the alternation-validated committed history.
func (s *Service) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, sessionID)
}

// Participants returns the participant set with derived presence.
func (s *Service) Participants(ctx context.Context, sessionID string) ([]domain.ParticipantState, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	participants, err := s.store.ReadParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read participants: %w", err)
	}
	return s.presence.Snapshot(participants), nil
}

// SendMessage runs one full turn: admit the participant message, compose
// the prompt, call the model (with one tool round if requested), and
// commit the participant/assistant pair atomically with respect to the
// turn ledger. Returns the committed assistant message.
func (s *Service) SendMessage(ctx context.Context, sessionID, participantID, content string) (*domain.Message, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.GateSend(session); err != nil {
		return nil, err
	}

	participant, err := s.store.GetParticipant(ctx, sessionID, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read participant: %w", err)
	}
	if participant == nil {
		return nil, domain.Reject(domain.RejectNotParticipant, "sender is not a participant of this session")
	}

	participants, err := s.store.ReadParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read participants: %w", err)
	}
	if session.Kind == domain.SessionKindGroup && !s.presence.AllOnline(participants) {
		return nil, domain.Reject(domain.RejectWaitingForParticipants, "not all participants are online")
	}

	turn, err := s.ledger.Accept(ctx, sessionID, participantID, content)
	if err != nil {
		return nil, err
	}

	assistantMsg, err := s.runTurn(ctx, session, participants, turn)
	if err != nil {
		s.ledger.Abort(ctx, turn)
		s.event(domain.EventTypeTurnFailed, sessionID, map[string]string{
			"message_id": turn.MessageID,
			"error":      err.Error(),
		})
		return nil, err
	}
	return assistantMsg, nil
}

func (s *Service) runTurn(ctx context.Context, session *domain.Session, participants []domain.Participant, turn *ledger.PendingTurn) (*domain.Message, error) {
	history, err := s.ledger.History(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}
	// The model only sees delivered messages; the current turn's pending
	// row and any failed attempts stay out of the prompt.
	delivered := history[:0:0]
	for _, msg := range history {
		if msg.Status == domain.MessageDelivered {
			delivered = append(delivered, msg)
		}
	}

	memories, err := s.store.ListMemories(ctx, session.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read memories: %w", err)
	}
	goals, err := s.store.ListGoals(ctx, session.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read goals: %w", err)
	}

	messages := s.composer.Compose(session, participants, memories, goals, delivered, turn.Content, turn.ParticipantID)

	completion, err := s.llm.Complete(ctx, messages, toolexec.Defs())
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	replyText := completion.Text
	if len(completion.ToolCalls) > 0 {
		replyText, err = s.runToolRound(ctx, session, messages, completion)
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	participantMsg := &domain.Message{
		MessageID: turn.MessageID,
		SessionID: session.SessionID,
		Sender:    domain.SenderParticipant,
		SenderID:  turn.ParticipantID,
		Content:   turn.Content,
		Status:    domain.MessageDelivered,
		CreatedAt: turn.AcceptedAt,
	}
	assistantMsg := &domain.Message{
		MessageID: "msg_" + uuid.New().String()[:8],
		SessionID: session.SessionID,
		Sender:    domain.SenderAssistant,
		Content:   replyText,
		Status:    domain.MessageDelivered,
		CreatedAt: now,
	}

	if err := s.ledger.Commit(ctx, turn, assistantMsg); err != nil {
		return nil, err
	}

	s.event(domain.EventTypeMessageCommitted, session.SessionID, domain.MessageCommittedPayload{
		Participant: participantMsg,
		Assistant:   assistantMsg,
	})
	if session.Status == domain.SessionLocked {
		// The tool round locked the session mid-turn; the commit above is
		// the final exchange.
		s.event(domain.EventTypeSessionLocked, session.SessionID, domain.StatusChangedPayload{
			Status:     session.Status,
			LockReason: session.LockReason,
			CanUnlock:  session.CanUnlock,
		})
	}
	return assistantMsg, nil
}

// runToolRound executes all requested tools and makes exactly one
// follow-up model call with the results. The follow-up offers no tools,
// bounding each turn at two model calls.
func (s *Service) runToolRound(ctx context.Context, session *domain.Session, messages []llm.ChatMessage, completion *llm.Completion) (string, error) {
	followup := append(messages, llm.ChatMessage{
		Role:      "assistant",
		Content:   completion.Text,
		ToolCalls: completion.ToolCalls,
	})

	for _, call := range completion.ToolCalls {
		result := s.executor.Execute(ctx, session, call)
		if !result.Success {
			log.Printf("WARN: tool %s failed: %s", call.Name, result.Message)
		}
		followup = append(followup, llm.ChatMessage{
			Role:       "tool",
			Name:       call.Name,
			ToolCallID: call.ID,
			Content:    result.Content(),
		})
	}

	final, err := s.llm.Complete(ctx, followup, nil)
	if err != nil {
		return "", fmt.Errorf("follow-up model call failed: %w", err)
	}
	return final.Text, nil
}

// Heartbeat records a presence heartbeat and publishes a presence event
// when the derived status changes.
func (s *Service) Heartbeat(ctx context.Context, sessionID, userID string) (domain.PresenceStatus, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return "", err
	}
	participant, err := s.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to read participant: %w", err)
	}
	if participant == nil {
		return "", domain.Reject(domain.RejectNotParticipant, "not a participant of this session")
	}

	before := s.presence.Status(participant)
	now := s.now()
	if err := s.store.UpdateHeartbeat(ctx, sessionID, userID, now); err != nil {
		return "", fmt.Errorf("failed to update heartbeat: %w", err)
	}
	participant.LastHeartbeat = now
	after := s.presence.Status(participant)

	if after != before {
		participants, err := s.store.ReadParticipants(ctx, sessionID)
		if err != nil {
			return "", fmt.Errorf("failed to read participants: %w", err)
		}
		s.event(domain.EventTypePresenceChanged, sessionID, domain.PresenceChangedPayload{
			UserID:    userID,
			Presence:  after,
			AllOnline: s.presence.AllOnline(participants),
		})
	}
	return after, nil
}

// ToggleReady flips a participant's readiness and publishes the resulting
// quorum state. Returns the new readiness value.
func (s *Service) ToggleReady(ctx context.Context, sessionID, userID string) (bool, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return false, err
	}
	participant, err := s.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to read participant: %w", err)
	}
	if participant == nil {
		return false, domain.Reject(domain.RejectNotParticipant, "not a participant of this session")
	}

	ready := !participant.IsReady
	if err := s.store.SetReady(ctx, sessionID, userID, ready); err != nil {
		return false, fmt.Errorf("failed to set readiness: %w", err)
	}

	participants, err := s.store.ReadParticipants(ctx, sessionID)
	if err != nil {
		return ready, fmt.Errorf("failed to read participants: %w", err)
	}
	s.event(domain.EventTypeReadinessChanged, sessionID, domain.ReadinessChangedPayload{
		UserID:   userID,
		IsReady:  ready,
		AllReady: presence.AllReady(participants),
	})
	return ready, nil
}

// StartSession transitions a waiting session to active. Owner-only; group
// sessions additionally require readiness quorum.
func (s *Service) StartSession(ctx context.Context, sessionID, requesterID string) (*domain.Session, error) {
	participants, err := s.store.ReadParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read participants: %w", err)
	}

	session, err := s.lifecycle.Start(ctx, sessionID, requesterID, presence.AllReady(participants))
	if err != nil {
		return nil, err
	}
	s.event(domain.EventTypeSessionStarted, sessionID, domain.StatusChangedPayload{
		Status:    session.Status,
		CanUnlock: session.CanUnlock,
	})
	return session, nil
}

// LockSession locks a session with the given reason. Used by the admin
// surface; the model locks through its tool instead.
func (s *Service) LockSession(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	session, err := s.lifecycle.Lock(ctx, sessionID, reason)
	if err != nil {
		return nil, err
	}
	s.event(domain.EventTypeSessionLocked, sessionID, domain.StatusChangedPayload{
		Status:     session.Status,
		LockReason: session.LockReason,
		CanUnlock:  session.CanUnlock,
	})
	return session, nil
}

// UnlockSession reverses a non-terminal lock. The session owner and
// admins may unlock; everyone else is rejected.
func (s *Service) UnlockSession(ctx context.Context, sessionID, requesterID string, isAdmin bool) (*domain.Session, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && requesterID != session.OwnerID {
		return nil, domain.Reject(domain.RejectNotOwner, "only the session owner or an admin may unlock")
	}

	session, err = s.lifecycle.Unlock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.event(domain.EventTypeSessionUnlocked, sessionID, domain.StatusChangedPayload{
		Status:    session.Status,
		CanUnlock: session.CanUnlock,
	})
	return session, nil
}

// EndSession ends a session. Terminal and idempotent.
func (s *Service) EndSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.lifecycle.End(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.event(domain.EventTypeSessionEnded, sessionID, domain.StatusChangedPayload{
		Status:     session.Status,
		LockReason: session.LockReason,
		CanUnlock:  session.CanUnlock,
	})
	return session, nil
}
