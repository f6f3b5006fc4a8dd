// Package lifecycle governs session state transitions.
//
// States: waiting -> active -> {locked, ended}. A locked session is further
// qualified by can_unlock; locked(can_unlock=false) is terminal. The store
// is the single source of truth: every transition rereads the session row
// before mutating it.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/naiolune/zenithwell/internal/domain"
	store "github.com/naiolune/zenithwell/internal/repository"
)

// Machine applies lifecycle transitions against the store.
type Machine struct {
	store store.Store
}

// New creates a lifecycle machine.
func New(st store.Store) *Machine {
	return &Machine{store: st}
}

// InitialStatus returns the status a freshly created session starts in.
// Group sessions wait for readiness quorum; everything else starts active.
func InitialStatus(kind domain.SessionKind) domain.SessionStatus {
	if kind == domain.SessionKindGroup {
		return domain.SessionWaiting
	}
	return domain.SessionActive
}

// CanUnlock computes lock terminality. An introduction session locked
// because the introduction completed can never be unlocked; every other
// lock is reversible.
func CanUnlock(kind domain.SessionKind, reason string) bool {
	return !(kind == domain.SessionKindIntroduction && reason == domain.LockReasonIntroductionComplete)
}

// GateSend checks that the session accepts new participant messages.
// Non-active states produce expected rejections, not errors.
func GateSend(session *domain.Session) error {
	switch session.Status {
	case domain.SessionActive:
		return nil
	case domain.SessionWaiting:
		return domain.Reject(domain.RejectSessionWaiting, "session has not started")
	case domain.SessionLocked:
		return domain.Reject(domain.RejectSessionLocked, "session is locked: "+session.LockReason)
	case domain.SessionEnded:
		return domain.Reject(domain.RejectSessionEnded, "session has ended")
	default:
		return fmt.Errorf("unknown session status %q", session.Status)
	}
}

// Start transitions waiting -> active. Only the owner may trigger it, and
// for group sessions only once readiness quorum holds.
func (m *Machine) Start(ctx context.Context, sessionID, requesterID string, quorumReady bool) (*domain.Session, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	if session.Status == domain.SessionActive {
		return session, nil // already started
	}
	if session.Status != domain.SessionWaiting {
		return nil, domain.Reject(domain.RejectSessionLocked, "session cannot start from status "+string(session.Status))
	}
	if session.OwnerID != requesterID {
		return nil, domain.Reject(domain.RejectNotOwner, "only the session owner may start the session")
	}
	if session.Kind == domain.SessionKindGroup && !quorumReady {
		return nil, domain.Reject(domain.RejectQuorumNotReady, "not all participants are ready")
	}

	if err := m.store.UpdateSessionStatus(ctx, sessionID, domain.SessionActive, "", true); err != nil {
		return nil, fmt.Errorf("failed to activate session: %w", err)
	}
	session.Status = domain.SessionActive
	session.LockReason = ""
	session.CanUnlock = true
	return session, nil
}

// Lock transitions active -> locked with the given reason. Terminality is
// computed from the session kind and the reason.
func (m *Machine) Lock(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	if session.Status == domain.SessionLocked {
		return nil, domain.Reject(domain.RejectSessionLocked, "session is already locked")
	}
	if session.Status == domain.SessionEnded {
		return nil, domain.Reject(domain.RejectSessionEnded, "session has ended")
	}

	canUnlock := CanUnlock(session.Kind, reason)
	if err := m.store.UpdateSessionStatus(ctx, sessionID, domain.SessionLocked, reason, canUnlock); err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	session.Status = domain.SessionLocked
	session.LockReason = reason
	session.CanUnlock = canUnlock
	return session, nil
}

// Unlock transitions locked(can_unlock=true) -> active. A terminal lock
// never transitions out.
func (m *Machine) Unlock(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	if session.Status != domain.SessionLocked {
		return nil, domain.Reject(domain.RejectSessionLocked, "session is not locked")
	}
	if !session.CanUnlock {
		return nil, domain.Reject(domain.RejectLockTerminal, "lock is terminal for this session")
	}

	if err := m.store.UpdateSessionStatus(ctx, sessionID, domain.SessionActive, "", true); err != nil {
		return nil, fmt.Errorf("failed to unlock session: %w", err)
	}
	session.Status = domain.SessionActive
	session.LockReason = ""
	session.CanUnlock = true
	return session, nil
}

// End transitions any state to ended. Terminal.
func (m *Machine) End(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if session.Status == domain.SessionEnded {
		return session, nil
	}

	if err := m.store.UpdateSessionStatus(ctx, sessionID, domain.SessionEnded, session.LockReason, session.CanUnlock); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	session.Status = domain.SessionEnded
	return session, nil
}
