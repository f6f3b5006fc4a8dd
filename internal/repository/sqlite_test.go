package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/naiolune/zenithwell/internal/domain"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *SQLiteStore) *domain.Session {
	t.Helper()
	session := &domain.Session{
		SessionID: "s1",
		Kind:      domain.SessionKindGroup,
		Category:  domain.CategoryFamily,
		Status:    domain.SessionWaiting,
		CanUnlock: true,
		OwnerID:   "u1",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func TestSessionRoundTrip(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	ctx := context.Background()

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a session")
	}
	if got.Kind != domain.SessionKindGroup || got.Category != domain.CategoryFamily {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.CanUnlock {
		t.Fatal("can_unlock should round-trip as true")
	}

	missing, err := s.GetSession(ctx, "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if missing != nil {
		t.Fatal("missing session should be nil, not an error")
	}
}

func TestUpdateSessionStatusPersistsLockFields(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	ctx := context.Background()

	if err := s.UpdateSessionStatus(ctx, "s1", domain.SessionLocked, domain.LockReasonSafetyConcern, false); err != nil {
		t.Fatalf("UpdateSessionStatus failed: %v", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != domain.SessionLocked || got.LockReason != domain.LockReasonSafetyConcern || got.CanUnlock {
		t.Fatalf("lock fields did not persist: %+v", got)
	}
}

func TestMessageOrderIsCommitOrder(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	ctx := context.Background()

	// Identical created_at timestamps: commit order must still hold.
	at := time.Now().UTC()
	for i, id := range []string{"m1", "m2", "m3"} {
		sender := domain.SenderParticipant
		if i%2 == 1 {
			sender = domain.SenderAssistant
		}
		msg := &domain.Message{
			MessageID: id,
			SessionID: "s1",
			Sender:    sender,
			Content:   id,
			Status:    domain.MessageDelivered,
			CreatedAt: at,
		}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	history, err := s.ReadHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if history[i].MessageID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, history[i].MessageID)
		}
	}

	last, err := s.LastMessage(ctx, "s1")
	if err != nil {
		t.Fatalf("LastMessage failed: %v", err)
	}
	if last == nil || last.MessageID != "m3" {
		t.Fatalf("expected m3 as last message, got %+v", last)
	}
}

func TestLastMessageSkipsPendingAndFailed(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	ctx := context.Background()

	at := time.Now().UTC()
	for _, m := range []struct {
		id     string
		sender domain.Sender
		status domain.MessageStatus
	}{
		{"m1", domain.SenderAssistant, domain.MessageDelivered},
		{"m2", domain.SenderParticipant, domain.MessageFailed},
		{"m3", domain.SenderParticipant, domain.MessagePending},
	} {
		msg := &domain.Message{
			MessageID: m.id,
			SessionID: "s1",
			Sender:    m.sender,
			Content:   m.id,
			Status:    m.status,
			CreatedAt: at,
		}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	last, err := s.LastMessage(ctx, "s1")
	if err != nil {
		t.Fatalf("LastMessage failed: %v", err)
	}
	if last == nil || last.MessageID != "m1" {
		t.Fatalf("expected the delivered m1, got %+v", last)
	}

	if err := s.UpdateMessageStatus(ctx, "m3", domain.MessageDelivered); err != nil {
		t.Fatalf("UpdateMessageStatus failed: %v", err)
	}
	last, err = s.LastMessage(ctx, "s1")
	if err != nil {
		t.Fatalf("LastMessage failed: %v", err)
	}
	if last == nil || last.MessageID != "m3" {
		t.Fatalf("delivered m3 should now be last, got %+v", last)
	}

	// The failed row keeps its content and status in history.
	history, err := s.ReadHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadHistory failed: %v", err)
	}
	if len(history) != 3 || history[1].Status != domain.MessageFailed {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestLastMessageEmptySession(t *testing.T) {
	s := newStore(t)
	seed(t, s)

	last, err := s.LastMessage(context.Background(), "s1")
	if err != nil {
		t.Fatalf("LastMessage failed: %v", err)
	}
	if last != nil {
		t.Fatalf("expected nil for empty session, got %+v", last)
	}
}

func TestParticipantRoundTrip(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	ctx := context.Background()

	p := &domain.Participant{
		SessionID: "s1",
		UserID:    "u2",
		Role:      domain.RoleParticipant,
		JoinedAt:  time.Now().UTC(),
	}
	if err := s.UpsertParticipant(ctx, p); err != nil {
		t.Fatalf("UpsertParticipant failed: %v", err)
	}

	got, err := s.GetParticipant(ctx, "s1", "u2")
	if err != nil {
		t.Fatalf("GetParticipant failed: %v", err)
	}
	if got == nil || got.IsReady {
		t.Fatalf("unexpected participant: %+v", got)
	}
	if !got.LastHeartbeat.IsZero() {
		t.Fatal("heartbeat should be zero before any heartbeat")
	}

	hb := time.Now().UTC()
	if err := s.UpdateHeartbeat(ctx, "s1", "u2", hb); err != nil {
		t.Fatalf("UpdateHeartbeat failed: %v", err)
	}
	if err := s.SetReady(ctx, "s1", "u2", true); err != nil {
		t.Fatalf("SetReady failed: %v", err)
	}

	got, err = s.GetParticipant(ctx, "s1", "u2")
	if err != nil {
		t.Fatalf("GetParticipant failed: %v", err)
	}
	if !got.IsReady {
		t.Fatal("readiness did not persist")
	}
	if got.LastHeartbeat.IsZero() {
		t.Fatal("heartbeat did not persist")
	}

	all, err := s.ReadParticipants(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadParticipants failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(all))
	}
}

func TestAuditFlagRoundTrip(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	ctx := context.Background()

	detail, _ := json.Marshal(map[string]string{"reason": "check", "severity": "low"})
	flag := &domain.AuditFlag{
		FlagID:    "f1",
		SessionID: "s1",
		Kind:      "review_flag",
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.AppendAuditFlag(ctx, flag); err != nil {
		t.Fatalf("AppendAuditFlag failed: %v", err)
	}

	flags, err := s.ListAuditFlags(ctx, "s1")
	if err != nil {
		t.Fatalf("ListAuditFlags failed: %v", err)
	}
	if len(flags) != 1 || flags[0].Kind != "review_flag" {
		t.Fatalf("unexpected flags: %+v", flags)
	}
	var decoded map[string]string
	if err := json.Unmarshal(flags[0].Detail, &decoded); err != nil {
		t.Fatalf("detail is not JSON: %v", err)
	}
	if decoded["severity"] != "low" {
		t.Fatalf("unexpected detail: %v", decoded)
	}
}

func TestMemoryAndGoalRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	memory := &domain.Memory{
		MemoryID:  "mem_1",
		UserID:    "u1",
		Category:  "preference",
		Content:   "prefers morning sessions",
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.UpsertMemory(ctx, memory); err != nil {
		t.Fatalf("UpsertMemory failed: %v", err)
	}

	memory.Content = "prefers evening sessions"
	if err := s.UpsertMemory(ctx, memory); err != nil {
		t.Fatalf("UpsertMemory replace failed: %v", err)
	}
	memories, err := s.ListMemories(ctx, "u1")
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	if len(memories) != 1 || memories[0].Content != "prefers evening sessions" {
		t.Fatalf("upsert should replace, got %+v", memories)
	}

	goal := &domain.Goal{
		GoalID:    "goal_1",
		UserID:    "u1",
		Title:     "daily walk",
		Status:    domain.GoalStatusActive,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.UpsertGoal(ctx, goal); err != nil {
		t.Fatalf("UpsertGoal failed: %v", err)
	}
	got, err := s.GetGoal(ctx, "goal_1")
	if err != nil {
		t.Fatalf("GetGoal failed: %v", err)
	}
	if got == nil || got.Status != domain.GoalStatusActive {
		t.Fatalf("unexpected goal: %+v", got)
	}

	missing, err := s.GetMemory(ctx, "mem_nope")
	if err != nil || missing != nil {
		t.Fatalf("missing memory should be (nil, nil), got (%+v, %v)", missing, err)
	}
}
