// Package toolexec executes model-requested tool invocations against a
// closed, schema-validated tool set. Every failure mode is reported back
// to the model as a failed result; Execute never surfaces an error to the
// turn pipeline.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/naiolune/zenithwell/internal/adapter/llm"
	"github.com/naiolune/zenithwell/internal/domain"
	"github.com/naiolune/zenithwell/internal/lifecycle"
	store "github.com/naiolune/zenithwell/internal/repository"
	"github.com/naiolune/zenithwell/policy"
)

// Result is the outcome of one tool invocation, serialized back to the
// model as the tool message content.
type Result struct {
	ToolCallID string      `json:"-"`
	ToolName   string      `json:"-"`
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// Content renders the result as the tool message body.
func (r Result) Content() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"message":"failed to serialize result"}`
	}
	return string(data)
}

// Executor runs tool invocations against the store and lifecycle machine.
type Executor struct {
	store     store.Store
	lifecycle *lifecycle.Machine
	policy    *policy.Engine
	now       func() time.Time
}

// New creates a tool executor. The policy engine may be nil, in which
// case no policy gate is applied.
func New(st store.Store, lc *lifecycle.Machine, pe *policy.Engine) *Executor {
	return &Executor{store: st, lifecycle: lc, policy: pe, now: time.Now}
}

// WithClock overrides the executor clock for tests.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

func failure(call llm.ToolCall, format string, args ...interface{}) Result {
	return Result{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Success:    false,
		Message:    fmt.Sprintf(format, args...),
	}
}

func success(call llm.ToolCall, message string, data interface{}) Result {
	return Result{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Success:    true,
		Message:    message,
		Data:       data,
	}
}

// Execute runs a single tool invocation. Unknown tools, malformed
// arguments, policy blocks, and side-effect failures all come back as
// failed results so the turn can still complete.
func (e *Executor) Execute(ctx context.Context, session *domain.Session, call llm.ToolCall) Result {
	spec, ok := specsByName[call.Name]
	if !ok {
		return failure(call, "unknown tool %q", call.Name)
	}

	args, err := validateArgs(spec, call.Arguments)
	if err != nil {
		return failure(call, "invalid arguments: %v", err)
	}

	if e.policy != nil {
		decision, reason, err := e.policy.Evaluate(ctx, map[string]interface{}{
			"tool_name":      spec.Name,
			"session_kind":   string(session.Kind),
			"session_status": string(session.Status),
			"mutating":       spec.Mutating,
		})
		if err != nil {
			log.Printf("ERROR: policy evaluation failed for %s: %v", spec.Name, err)
			return failure(call, "policy evaluation failed")
		}
		if decision == "block" {
			if reason == "" {
				reason = "blocked by policy"
			}
			return failure(call, "tool blocked: %s", reason)
		}
	}

	switch spec.Name {
	case ToolUpdateSessionTitle:
		if err := e.store.UpdateSessionTitle(ctx, session.SessionID, args["title"]); err != nil {
			return failure(call, "failed to update title: %v", err)
		}
		session.Title = args["title"]
		return success(call, "title updated", nil)

	case ToolUpdateSessionSummary:
		if err := e.store.UpdateSessionSummary(ctx, session.SessionID, args["summary"]); err != nil {
			return failure(call, "failed to update summary: %v", err)
		}
		session.Summary = args["summary"]
		return success(call, "summary updated", nil)

	case ToolAddMemory:
		memory := &domain.Memory{
			MemoryID:  "mem_" + uuid.NewString()[:8],
			UserID:    session.OwnerID,
			Category:  args["category"],
			Content:   args["content"],
			UpdatedAt: e.now(),
		}
		if err := e.store.UpsertMemory(ctx, memory); err != nil {
			return failure(call, "failed to add memory: %v", err)
		}
		return success(call, "memory recorded", map[string]string{"memory_id": memory.MemoryID})

	case ToolUpdateMemory:
		memory, err := e.store.GetMemory(ctx, args["memory_id"])
		if err != nil {
			return failure(call, "failed to read memory: %v", err)
		}
		if memory == nil {
			return failure(call, "memory %q not found", args["memory_id"])
		}
		memory.Content = args["content"]
		memory.UpdatedAt = e.now()
		if err := e.store.UpsertMemory(ctx, memory); err != nil {
			return failure(call, "failed to update memory: %v", err)
		}
		return success(call, "memory updated", nil)

	case ToolAddGoal:
		goal := &domain.Goal{
			GoalID:    "goal_" + uuid.NewString()[:8],
			UserID:    session.OwnerID,
			Title:     args["title"],
			Status:    domain.GoalStatusActive,
			UpdatedAt: e.now(),
		}
		if err := e.store.UpsertGoal(ctx, goal); err != nil {
			return failure(call, "failed to add goal: %v", err)
		}
		return success(call, "goal created", map[string]string{"goal_id": goal.GoalID})

	case ToolUpdateGoalStatus:
		goal, err := e.store.GetGoal(ctx, args["goal_id"])
		if err != nil {
			return failure(call, "failed to read goal: %v", err)
		}
		if goal == nil {
			return failure(call, "goal %q not found", args["goal_id"])
		}
		goal.Status = args["status"]
		goal.UpdatedAt = e.now()
		if err := e.store.UpsertGoal(ctx, goal); err != nil {
			return failure(call, "failed to update goal: %v", err)
		}
		return success(call, "goal status updated", nil)

	case ToolEndAndLockSession:
		locked, err := e.lifecycle.Lock(ctx, session.SessionID, args["reason"])
		if err != nil {
			if rej, ok := domain.AsRejection(err); ok {
				return failure(call, "cannot lock session: %s", rej.Detail)
			}
			return failure(call, "failed to lock session: %v", err)
		}
		session.Status = locked.Status
		session.LockReason = locked.LockReason
		session.CanUnlock = locked.CanUnlock
		return success(call, "session locked", map[string]interface{}{
			"lock_reason": locked.LockReason,
			"can_unlock":  locked.CanUnlock,
		})

	case ToolFlagForReview:
		return e.appendFlag(ctx, session, call, "review_flag", map[string]string{
			"reason":   args["reason"],
			"severity": args["severity"],
		}, "session flagged for review")

	case ToolEscalateToHuman:
		return e.appendFlag(ctx, session, call, "escalation", map[string]string{
			"reason":  args["reason"],
			"urgency": args["urgency"],
		}, "escalation recorded; a human coach will be notified")

	case ToolScheduleCheckIn:
		detail := map[string]string{"when": args["when"]}
		if note, ok := args["note"]; ok {
			detail["note"] = note
		}
		return e.appendFlag(ctx, session, call, "check_in", detail, "check-in scheduled")

	case ToolProvideEmergencyResources:
		return success(call, "emergency resources provided", map[string]string{
			"resources": emergencyResources(args["urgency"]),
		})

	case ToolSuggestSessionBreak:
		return success(call, "break suggested", map[string]string{
			"suggestion": breakSuggestion(args["duration"]),
		})
	}

	return failure(call, "unknown tool %q", call.Name)
}

func (e *Executor) appendFlag(ctx context.Context, session *domain.Session, call llm.ToolCall, kind string, detail map[string]string, okMessage string) Result {
	payload, err := json.Marshal(detail)
	if err != nil {
		return failure(call, "failed to encode flag detail: %v", err)
	}
	flag := &domain.AuditFlag{
		FlagID:    "flag_" + uuid.NewString()[:8],
		SessionID: session.SessionID,
		Kind:      kind,
		Detail:    payload,
		CreatedAt: e.now(),
	}
	if err := e.store.AppendAuditFlag(ctx, flag); err != nil {
		return failure(call, "failed to record flag: %v", err)
	}
	return success(call, okMessage, map[string]string{"flag_id": flag.FlagID})
}

func emergencyResources(urgency string) string {
	switch urgency {
	case "crisis":
		return "If you are in immediate danger, call your local emergency number now. " +
			"You can also reach the 988 Suicide & Crisis Lifeline by calling or texting 988, " +
			"or text HOME to 741741 to reach the Crisis Text Line."
	case "elevated":
		return "Support is available. The 988 Suicide & Crisis Lifeline (call or text 988) " +
			"is free and confidential, 24/7. The Crisis Text Line is available by texting HOME to 741741."
	default:
		return "For ongoing support you can reach the 988 Suicide & Crisis Lifeline (call or text 988) " +
			"or talk with your doctor about local counseling options."
	}
}

func breakSuggestion(duration string) string {
	switch duration {
	case "extended":
		return "Consider stepping away from this conversation for a day or more. The session will be here when you return."
	case "short":
		return "A short break of an hour or so can help. Stretch, get some water, and come back when you feel ready."
	default:
		return "Take a few minutes away from the screen. A brief pause can help you collect your thoughts."
	}
}
