package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/naiolune/zenithwell/internal/adapter/llm"
	"github.com/naiolune/zenithwell/internal/domain"
	"github.com/naiolune/zenithwell/internal/ledger"
	"github.com/naiolune/zenithwell/internal/lifecycle"
	"github.com/naiolune/zenithwell/internal/presence"
	"github.com/naiolune/zenithwell/internal/prompt"
	"github.com/naiolune/zenithwell/internal/toolexec"
	"github.com/naiolune/zenithwell/policy"
	"github.com/naiolune/zenithwell/tests/helpers"
)

// capturePublisher records published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturePublisher) Publish(event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) ofType(t domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	svc  *Service
	mock *llm.MockClient
	pub  *capturePublisher
	now  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env := &testEnv{
		mock: llm.NewMockClient(),
		pub:  &capturePublisher{},
		now:  &now,
	}
	clock := func() time.Time { return *env.now }

	lc := lifecycle.New(db)
	env.svc = New(
		db,
		ledger.New(db),
		lc,
		presence.New(30*time.Second).WithClock(clock),
		prompt.New(),
		toolexec.New(db, lc, engine).WithClock(clock),
		env.mock,
		env.pub,
	).WithClock(clock)
	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.now = e.now.Add(d)
}

func TestIndividualTurnRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindIndividual, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Status != domain.SessionActive {
		t.Fatalf("individual session should start active, got %s", session.Status)
	}

	env.mock.Enqueue(&llm.Completion{Text: "Hello! How are you feeling today?"})

	reply, err := env.svc.SendMessage(ctx, session.SessionID, "u1", "Hi coach")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if reply.Sender != domain.SenderAssistant || reply.Content != "Hello! How are you feeling today?" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	history, err := env.svc.History(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 committed messages, got %d", len(history))
	}
	if history[0].Sender != domain.SenderParticipant || history[1].Sender != domain.SenderAssistant {
		t.Fatal("history must alternate participant, assistant")
	}

	committed := env.pub.ofType(domain.EventTypeMessageCommitted)
	if len(committed) != 1 {
		t.Fatalf("expected 1 message_committed event, got %d", len(committed))
	}
}

func TestSecondSendWhileTurnInFlight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindIndividual, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	release := make(chan struct{})
	env.mock.EnqueueBlocking(&llm.Completion{Text: "slow reply"}, release)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := env.svc.SendMessage(ctx, session.SessionID, "u1", "first")
		done <- err
	}()
	<-started

	// Wait until the model call is actually in flight.
	deadline := time.Now().Add(time.Second)
	for env.mock.CallCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first send never reached the model")
		}
		time.Sleep(time.Millisecond)
	}

	_, err = env.svc.SendMessage(ctx, session.SessionID, "u1", "second")
	rej, ok := domain.AsRejection(err)
	if !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rej.Reason != domain.RejectTurnInProgress {
		t.Fatalf("expected TURN_IN_PROGRESS, got %s", rej.Reason)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
}

func TestModelFailureFreesTheTurn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindIndividual, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	env.mock.EnqueueError(errors.New("provider unavailable"))

	if _, err := env.svc.SendMessage(ctx, session.SessionID, "u1", "hello"); err == nil {
		t.Fatal("expected the model failure to surface")
	}

	failed := env.pub.ofType(domain.EventTypeTurnFailed)
	if len(failed) != 1 {
		t.Fatalf("expected 1 turn_failed event, got %d", len(failed))
	}

	// Nothing delivered, but the input is preserved with status failed
	// and the session is free for a retry.
	history, err := env.svc.History(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Status != domain.MessageFailed {
		t.Fatalf("failed turn must preserve the input as failed, got %+v", history)
	}
	if history[0].Content != "hello" {
		t.Fatalf("failed message content must be preserved, got %q", history[0].Content)
	}

	env.mock.Enqueue(&llm.Completion{Text: "recovered"})
	reply, err := env.svc.SendMessage(ctx, session.SessionID, "u1", "hello again")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if reply.Content != "recovered" {
		t.Fatalf("unexpected retry reply: %+v", reply)
	}

	history, err = env.svc.History(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected failed row plus delivered pair, got %d messages", len(history))
	}
	if history[1].Status != domain.MessageDelivered || history[2].Status != domain.MessageDelivered {
		t.Fatalf("retry pair must be delivered, got %+v", history[1:])
	}
}

func TestToolRoundLocksIntroduction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindIntroduction, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	env.mock.Enqueue(&llm.Completion{
		ToolCalls: []llm.ToolCall{{
			ID:        "tc_1",
			Name:      "end_and_lock_session",
			Arguments: json.RawMessage(`{"reason":"introduction_complete"}`),
		}},
	})
	env.mock.Enqueue(&llm.Completion{Text: "It was lovely meeting you. Take care!"})

	reply, err := env.svc.SendMessage(ctx, session.SessionID, "u1", "That's everything about me")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if reply.Content != "It was lovely meeting you. Take care!" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	// Two model calls: the tool round plus one follow-up, never more.
	if len(env.mock.Calls) != 2 {
		t.Fatalf("expected exactly 2 model calls, got %d", len(env.mock.Calls))
	}
	if env.mock.Calls[0].Tools == nil {
		t.Fatal("first call must offer tools")
	}
	if env.mock.Calls[1].Tools != nil {
		t.Fatal("follow-up call must not offer tools")
	}

	// The farewell commits even though the session locked mid-turn.
	history, err := env.svc.History(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected the final exchange to commit, got %d messages", len(history))
	}

	reread, err := env.svc.GetSession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if reread.Status != domain.SessionLocked || reread.CanUnlock {
		t.Fatalf("expected a terminal lock, got status=%s can_unlock=%v", reread.Status, reread.CanUnlock)
	}

	_, err = env.svc.SendMessage(ctx, session.SessionID, "u1", "one more thing")
	rej, ok := domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectSessionLocked {
		t.Fatalf("expected SESSION_LOCKED, got %v", err)
	}

	_, err = env.svc.UnlockSession(ctx, session.SessionID, "u1", false)
	rej, ok = domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectLockTerminal {
		t.Fatalf("expected LOCK_TERMINAL, got %v", err)
	}
}

func TestToolFailureStillCompletesTurn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindIndividual, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	env.mock.Enqueue(&llm.Completion{
		ToolCalls: []llm.ToolCall{{
			ID:        "tc_1",
			Name:      "update_memory",
			Arguments: json.RawMessage(`{"memory_id":"mem_missing","content":"x"}`),
		}},
	})
	env.mock.Enqueue(&llm.Completion{Text: "Noted anyway."})

	reply, err := env.svc.SendMessage(ctx, session.SessionID, "u1", "remember this")
	if err != nil {
		t.Fatalf("a failed tool must not fail the turn: %v", err)
	}
	if reply.Content != "Noted anyway." {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	// The failed result went back to the model as a tool message.
	followup := env.mock.Calls[1].Messages
	last := followup[len(followup)-1]
	if last.Role != "tool" {
		t.Fatalf("expected a tool message, got role %s", last.Role)
	}
	var result struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(last.Content), &result); err != nil {
		t.Fatalf("tool message is not JSON: %v", err)
	}
	if result.Success {
		t.Fatal("expected the tool result to report failure")
	}
}

func TestGroupSessionLifecycleAndGating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindGroup, domain.CategoryRelationship)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Status != domain.SessionWaiting {
		t.Fatalf("group session should start waiting, got %s", session.Status)
	}

	// Sends are rejected before the session starts.
	_, err = env.svc.SendMessage(ctx, session.SessionID, "u1", "anyone here?")
	rej, ok := domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectSessionWaiting {
		t.Fatalf("expected SESSION_WAITING, got %v", err)
	}

	if _, err := env.svc.JoinSession(ctx, session.SessionID, "u2"); err != nil {
		t.Fatalf("JoinSession failed: %v", err)
	}

	// Start requires full readiness quorum.
	ready1, err := env.svc.ToggleReady(ctx, session.SessionID, "u1")
	if err != nil {
		t.Fatalf("ToggleReady failed: %v", err)
	}
	if !ready1 {
		t.Fatal("first toggle should flip readiness on")
	}
	_, err = env.svc.StartSession(ctx, session.SessionID, "u1")
	rej, ok = domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectQuorumNotReady {
		t.Fatalf("expected QUORUM_NOT_READY, got %v", err)
	}

	if _, err := env.svc.ToggleReady(ctx, session.SessionID, "u2"); err != nil {
		t.Fatalf("ToggleReady failed: %v", err)
	}
	ready := env.pub.ofType(domain.EventTypeReadinessChanged)
	if len(ready) != 2 {
		t.Fatalf("expected 2 readiness events, got %d", len(ready))
	}

	// Only the owner may start.
	_, err = env.svc.StartSession(ctx, session.SessionID, "u2")
	rej, ok = domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectNotOwner {
		t.Fatalf("expected NOT_OWNER, got %v", err)
	}

	started, err := env.svc.StartSession(ctx, session.SessionID, "u1")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if started.Status != domain.SessionActive {
		t.Fatalf("expected active, got %s", started.Status)
	}

	// Active, but nobody has heartbeated: sends wait for presence.
	_, err = env.svc.SendMessage(ctx, session.SessionID, "u1", "hello")
	rej, ok = domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectWaitingForParticipants {
		t.Fatalf("expected WAITING_FOR_PARTICIPANTS, got %v", err)
	}

	if _, err := env.svc.Heartbeat(ctx, session.SessionID, "u1"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if _, err := env.svc.Heartbeat(ctx, session.SessionID, "u2"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	env.mock.Enqueue(&llm.Completion{Text: "Welcome both of you."})
	reply, err := env.svc.SendMessage(ctx, session.SessionID, "u1", "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if reply.Content != "Welcome both of you." {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	// One participant drifts away; group sends stop.
	env.advance(45 * time.Second)
	if _, err := env.svc.Heartbeat(ctx, session.SessionID, "u1"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	_, err = env.svc.SendMessage(ctx, session.SessionID, "u2", "still there?")
	rej, ok = domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectWaitingForParticipants {
		t.Fatalf("expected WAITING_FOR_PARTICIPANTS after drift, got %v", err)
	}
}

func TestHeartbeatPublishesOnStatusChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindGroup, domain.CategoryGeneral)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// offline -> online publishes.
	if _, err := env.svc.Heartbeat(ctx, session.SessionID, "u1"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if got := len(env.pub.ofType(domain.EventTypePresenceChanged)); got != 1 {
		t.Fatalf("expected 1 presence event, got %d", got)
	}

	// online -> online stays silent.
	env.advance(5 * time.Second)
	if _, err := env.svc.Heartbeat(ctx, session.SessionID, "u1"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if got := len(env.pub.ofType(domain.EventTypePresenceChanged)); got != 1 {
		t.Fatalf("unchanged presence must not publish, got %d events", got)
	}

	// away -> online publishes again.
	env.advance(45 * time.Second)
	status, err := env.svc.Heartbeat(ctx, session.SessionID, "u1")
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if status != domain.PresenceOnline {
		t.Fatalf("heartbeat should restore online, got %s", status)
	}
	if got := len(env.pub.ofType(domain.EventTypePresenceChanged)); got != 2 {
		t.Fatalf("expected 2 presence events, got %d", got)
	}
}

func TestSendMessageRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindIndividual, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	_, err = env.svc.SendMessage(ctx, session.SessionID, "stranger", "let me in")
	rej, ok := domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectNotParticipant {
		t.Fatalf("expected NOT_PARTICIPANT, got %v", err)
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.SendMessage(context.Background(), "sess_missing", "u1", "hello")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAdminLockAndUnlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindIndividual, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	locked, err := env.svc.LockSession(ctx, session.SessionID, domain.LockReasonAccountSuspended)
	if err != nil {
		t.Fatalf("LockSession failed: %v", err)
	}
	if !locked.CanUnlock {
		t.Fatal("administrative locks must stay unlockable")
	}

	_, err = env.svc.SendMessage(ctx, session.SessionID, "u1", "hello")
	rej, ok := domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectSessionLocked {
		t.Fatalf("expected SESSION_LOCKED, got %v", err)
	}

	// Non-owner, non-admin callers may not unlock.
	_, err = env.svc.UnlockSession(ctx, session.SessionID, "u2", false)
	rej, ok = domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectNotOwner {
		t.Fatalf("expected NOT_OWNER, got %v", err)
	}

	if _, err := env.svc.UnlockSession(ctx, session.SessionID, "admin1", true); err != nil {
		t.Fatalf("UnlockSession failed: %v", err)
	}

	env.mock.Enqueue(&llm.Completion{Text: "back again"})
	if _, err := env.svc.SendMessage(ctx, session.SessionID, "u1", "hello"); err != nil {
		t.Fatalf("SendMessage after unlock failed: %v", err)
	}
}

func TestOwnerCanUnlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindIndividual, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := env.svc.LockSession(ctx, session.SessionID, domain.LockReasonManualReview); err != nil {
		t.Fatalf("LockSession failed: %v", err)
	}

	unlocked, err := env.svc.UnlockSession(ctx, session.SessionID, "u1", false)
	if err != nil {
		t.Fatalf("owner unlock failed: %v", err)
	}
	if unlocked.Status != domain.SessionActive {
		t.Fatalf("expected active after unlock, got %s", unlocked.Status)
	}
}

func TestEndSessionIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, "u1", domain.SessionKindIndividual, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := env.svc.EndSession(ctx, session.SessionID); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	_, err = env.svc.SendMessage(ctx, session.SessionID, "u1", "hello")
	rej, ok := domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectSessionEnded {
		t.Fatalf("expected SESSION_ENDED, got %v", err)
	}

	_, err = env.svc.JoinSession(ctx, session.SessionID, "u2")
	rej, ok = domain.AsRejection(err)
	if !ok || rej.Reason != domain.RejectSessionEnded {
		t.Fatalf("expected SESSION_ENDED on join, got %v", err)
	}
}
