// Package dispatch tracks in-flight participant sends on the client side.
// One send may be outstanding per session; a reply that does not arrive
// within the reply timeout marks the send for resend rather than silently
// duplicating it.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/naiolune/zenithwell/internal/domain"
)

// DefaultReplyTimeout is how long a send waits for the assistant reply
// before it is marked for resend.
const DefaultReplyTimeout = 10 * time.Second

// Sender submits a participant message and returns the assistant reply.
type Sender interface {
	SendMessage(ctx context.Context, sessionID, participantID, content string) (*domain.Message, error)
}

// PendingSend is an in-flight participant message.
type PendingSend struct {
	SessionID     string
	ParticipantID string
	Content       string
	SentAt        time.Time
	NeedsResend   bool
	ResendCount   int

	timer *time.Timer
}

// Client guards sends with an at-most-one-outstanding rule per session.
type Client struct {
	sender  Sender
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*PendingSend // keyed by session id
	now     func() time.Time
}

// NewClient creates a dispatch client with the given reply timeout. A zero
// timeout falls back to DefaultReplyTimeout.
func NewClient(sender Sender, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	return &Client{
		sender:  sender,
		timeout: timeout,
		pending: make(map[string]*PendingSend),
		now:     time.Now,
	}
}

// WithClock overrides the clock for tests.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Send submits a message. A second send while one is outstanding for the
// same session is rejected with ALREADY_PENDING; the caller must Resend
// or Observe the first one.
func (c *Client) Send(ctx context.Context, sessionID, participantID, content string) (*domain.Message, error) {
	c.mu.Lock()
	if _, exists := c.pending[sessionID]; exists {
		c.mu.Unlock()
		return nil, domain.Reject(domain.RejectAlreadyPending, "a send is already awaiting its reply")
	}
	p := &PendingSend{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Content:       content,
		SentAt:        c.now(),
	}
	p.timer = time.AfterFunc(c.timeout, func() { c.markNeedsResend(sessionID) })
	c.pending[sessionID] = p
	c.mu.Unlock()

	return c.submit(ctx, p)
}

// Resend retries the outstanding send with the same identity. The resend
// counter increments; the content never changes.
func (c *Client) Resend(ctx context.Context, sessionID string) (*domain.Message, error) {
	c.mu.Lock()
	p, exists := c.pending[sessionID]
	if !exists {
		c.mu.Unlock()
		return nil, domain.Reject(domain.RejectNothingPending, "no send awaiting resend")
	}
	p.NeedsResend = false
	p.ResendCount++
	p.SentAt = c.now()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(c.timeout, func() { c.markNeedsResend(sessionID) })
	c.mu.Unlock()

	return c.submit(ctx, p)
}

// Observe records that the reply for a session arrived out of band (for
// example over the websocket) and clears the outstanding send.
func (c *Client) Observe(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked(sessionID)
}

// Pending returns a copy of the outstanding send for a session, if any.
func (c *Client) Pending(sessionID string) (PendingSend, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, exists := c.pending[sessionID]
	if !exists {
		return PendingSend{}, false
	}
	return *p, true
}

func (c *Client) submit(ctx context.Context, p *PendingSend) (*domain.Message, error) {
	reply, err := c.sender.SendMessage(ctx, p.SessionID, p.ParticipantID, p.Content)
	if err != nil {
		c.mu.Lock()
		if _, ok := domain.AsRejection(err); ok {
			// Expected rejections mean the send will never land; clear it.
			c.clearLocked(p.SessionID)
		} else if cur, exists := c.pending[p.SessionID]; exists {
			// Transport errors mark the send for resend right away.
			if cur.timer != nil {
				cur.timer.Stop()
			}
			cur.NeedsResend = true
		}
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.clearLocked(p.SessionID)
	c.mu.Unlock()
	return reply, nil
}

func (c *Client) markNeedsResend(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, exists := c.pending[sessionID]; exists {
		p.NeedsResend = true
	}
}

func (c *Client) clearLocked(sessionID string) {
	if p, exists := c.pending[sessionID]; exists {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(c.pending, sessionID)
	}
}
