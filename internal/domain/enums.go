package domain

// SessionKind represents the kind of a session.
type SessionKind string

const (
	SessionKindIndividual   SessionKind = "individual"
	SessionKindGroup        SessionKind = "group"
	SessionKindIntroduction SessionKind = "introduction"
)

// SessionCategory qualifies group sessions.
type SessionCategory string

const (
	CategoryRelationship SessionCategory = "relationship"
	CategoryFamily       SessionCategory = "family"
	CategoryGeneral      SessionCategory = "general"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionActive  SessionStatus = "active"
	SessionLocked  SessionStatus = "locked"
	SessionEnded   SessionStatus = "ended"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderParticipant Sender = "participant"
	SenderAssistant   Sender = "assistant"
)

// MessageStatus represents the delivery state of a message.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

// Role is the caller's role within a session.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

// PresenceStatus is derived from heartbeat age, never stored.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// EventType represents the type of a realtime event.
type EventType string

const (
	EventTypeMessageCommitted  EventType = "message_committed"
	EventTypeTurnFailed        EventType = "turn_failed"
	EventTypePresenceChanged   EventType = "presence_changed"
	EventTypeReadinessChanged  EventType = "readiness_changed"
	EventTypeSessionStarted    EventType = "session_started"
	EventTypeSessionLocked     EventType = "session_locked"
	EventTypeSessionUnlocked   EventType = "session_unlocked"
	EventTypeSessionEnded      EventType = "session_ended"
	EventTypeParticipantJoined EventType = "participant_joined"
)

// Lock reasons produced by the lock tool.
const (
	LockReasonIntroductionComplete = "introduction_complete"
	LockReasonSessionComplete      = "session_complete"
	LockReasonSafetyConcern        = "safety_concern"
)

// Lock reasons reserved for administrative actions. All of them are
// unlockable; terminality is only computed for introduction completion.
const (
	LockReasonAccountSuspended = "account_suspended"
	LockReasonSafetyHold       = "safety_hold"
	LockReasonManualReview     = "manual_review"
)

// GoalStatus values accepted by update_goal_status.
const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
	GoalStatusPaused    = "paused"
	GoalStatusAbandoned = "abandoned"
)
