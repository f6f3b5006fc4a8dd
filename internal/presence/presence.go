// Package presence derives participant presence and readiness quorum for
// group sessions.
//
// Presence is never stored as a raw field: it is always a pure function of
// heartbeat age, so two observers computing it from the same timestamp at
// the same instant agree.
package presence

import (
	"time"

	"github.com/naiolune/zenithwell/internal/domain"
)

// DefaultInterval is the expected heartbeat cadence while a participant is
// viewing a group session.
const DefaultInterval = 30 * time.Second

// Coordinator derives presence from heartbeat timestamps.
type Coordinator struct {
	interval time.Duration
	now      func() time.Time
}

// New creates a coordinator with the given heartbeat interval.
func New(interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{interval: interval, now: time.Now}
}

// WithClock overrides the clock. For tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// StatusAt computes presence from a heartbeat timestamp at an instant:
// online below one interval, away below three, offline otherwise.
func StatusAt(lastHeartbeat, now time.Time, interval time.Duration) domain.PresenceStatus {
	if lastHeartbeat.IsZero() {
		return domain.PresenceOffline
	}
	age := now.Sub(lastHeartbeat)
	switch {
	case age < interval:
		return domain.PresenceOnline
	case age < 3*interval:
		return domain.PresenceAway
	default:
		return domain.PresenceOffline
	}
}

// Status derives the current presence of a participant.
func (c *Coordinator) Status(p *domain.Participant) domain.PresenceStatus {
	return StatusAt(p.LastHeartbeat, c.now(), c.interval)
}

// Snapshot pairs each participant with their derived presence.
func (c *Coordinator) Snapshot(participants []domain.Participant) []domain.ParticipantState {
	now := c.now()
	states := make([]domain.ParticipantState, 0, len(participants))
	for _, p := range participants {
		states = append(states, domain.ParticipantState{
			Participant: p,
			Presence:    StatusAt(p.LastHeartbeat, now, c.interval),
		})
	}
	return states
}

// AllOnline reports whether every participant is online. Gates dispatch of
// new participant messages in active group sessions.
func (c *Coordinator) AllOnline(participants []domain.Participant) bool {
	if len(participants) == 0 {
		return false
	}
	now := c.now()
	for _, p := range participants {
		if StatusAt(p.LastHeartbeat, now, c.interval) != domain.PresenceOnline {
			return false
		}
	}
	return true
}

// AllReady reports readiness quorum: a non-empty participant set in which
// every participant has signaled ready. Independent of presence; consulted
// only for the waiting -> active transition.
func AllReady(participants []domain.Participant) bool {
	if len(participants) == 0 {
		return false
	}
	for _, p := range participants {
		if !p.IsReady {
			return false
		}
	}
	return true
}
