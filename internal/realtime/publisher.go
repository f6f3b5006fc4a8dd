// Package realtime fans session events out to connected websocket clients.
package realtime

import "github.com/naiolune/zenithwell/internal/domain"

// Publisher delivers events to everyone attached to a session.
type Publisher interface {
	Publish(event domain.Event)
}

// NopPublisher discards events. Used in tests and in CLI contexts with no
// connected clients.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(domain.Event) {}

var (
	_ Publisher = (*Hub)(nil)
	_ Publisher = NopPublisher{}
)
