package domain

import (
	"errors"
	"fmt"
)

// RejectReason identifies an expected, non-fatal rejection.
type RejectReason string

const (
	RejectConsecutiveSameSender   RejectReason = "CONSECUTIVE_SAME_SENDER"
	RejectTurnInProgress          RejectReason = "TURN_IN_PROGRESS"
	RejectSessionLocked           RejectReason = "SESSION_LOCKED"
	RejectSessionWaiting          RejectReason = "SESSION_WAITING"
	RejectSessionEnded            RejectReason = "SESSION_ENDED"
	RejectWaitingForParticipants  RejectReason = "WAITING_FOR_PARTICIPANTS"
	RejectNotOwner                RejectReason = "NOT_OWNER"
	RejectQuorumNotReady          RejectReason = "QUORUM_NOT_READY"
	RejectAlreadyPending          RejectReason = "ALREADY_PENDING"
	RejectNothingPending          RejectReason = "NOTHING_PENDING"
	RejectNotParticipant          RejectReason = "NOT_PARTICIPANT"
	RejectLockTerminal            RejectReason = "LOCK_TERMINAL"
)

// Rejection is an expected refusal surfaced to the caller. It is not a
// system failure: the caller decides whether to wait or resend.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Reject creates a Rejection with the given reason.
func Reject(reason RejectReason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}

// AsRejection extracts a Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// ErrMalformedHistory indicates the stored history violates the alternation
// invariant. This is a bug in the ledger's guarantees, not a recoverable
// condition: processing for the affected session halts.
var ErrMalformedHistory = errors.New("MALFORMED_HISTORY")

// ErrDoubleCommit indicates a commit was attempted without a matching
// pending turn.
var ErrDoubleCommit = errors.New("commit without pending turn")

// IsInvariantViolation reports whether err is a fatal ledger invariant error.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrMalformedHistory) || errors.Is(err, ErrDoubleCommit)
}
