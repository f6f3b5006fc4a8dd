package toolexec

import (
	"encoding/json"
	"fmt"

	"github.com/naiolune/zenithwell/internal/adapter/llm"
)

// ArgType is the wire type of a tool argument.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
)

// ArgSpec describes one argument of a tool.
type ArgSpec struct {
	Name     string
	Type     ArgType
	Required bool
	Enum     []string
	MaxLen   int
}

// ToolSpec describes a tool: its schema and whether it mutates state.
type ToolSpec struct {
	Name        string
	Description string
	Mutating    bool
	Args        []ArgSpec
}

// Tool names form a closed set; dispatch is an exhaustive switch, never
// reflection.
const (
	ToolUpdateSessionTitle        = "update_session_title"
	ToolUpdateSessionSummary      = "update_session_summary"
	ToolAddMemory                 = "add_memory"
	ToolUpdateMemory              = "update_memory"
	ToolAddGoal                   = "add_goal"
	ToolUpdateGoalStatus          = "update_goal_status"
	ToolEndAndLockSession         = "end_and_lock_session"
	ToolFlagForReview             = "flag_for_review"
	ToolEscalateToHuman           = "escalate_to_human"
	ToolScheduleCheckIn           = "schedule_check_in"
	ToolProvideEmergencyResources = "provide_emergency_resources"
	ToolSuggestSessionBreak       = "suggest_session_break"
)

var specs = []ToolSpec{
	{
		Name:        ToolUpdateSessionTitle,
		Description: "Set a short title for the current session.",
		Mutating:    true,
		Args: []ArgSpec{
			{Name: "title", Type: ArgString, Required: true, MaxLen: 120},
		},
	},
	{
		Name:        ToolUpdateSessionSummary,
		Description: "Replace the running summary of the current session.",
		Mutating:    true,
		Args: []ArgSpec{
			{Name: "summary", Type: ArgString, Required: true, MaxLen: 2000},
		},
	},
	{
		Name:        ToolAddMemory,
		Description: "Record a durable fact about the user.",
		Mutating:    true,
		Args: []ArgSpec{
			{Name: "category", Type: ArgString, Required: true, Enum: []string{"preference", "background", "health", "relationship"}},
			{Name: "content", Type: ArgString, Required: true, MaxLen: 1000},
		},
	},
	{
		Name:        ToolUpdateMemory,
		Description: "Rewrite an existing memory.",
		Mutating:    true,
		Args: []ArgSpec{
			{Name: "memory_id", Type: ArgString, Required: true},
			{Name: "content", Type: ArgString, Required: true, MaxLen: 1000},
		},
	},
	{
		Name:        ToolAddGoal,
		Description: "Create a wellness goal for the user.",
		Mutating:    true,
		Args: []ArgSpec{
			{Name: "title", Type: ArgString, Required: true, MaxLen: 200},
		},
	},
	{
		Name:        ToolUpdateGoalStatus,
		Description: "Change the status of an existing goal.",
		Mutating:    true,
		Args: []ArgSpec{
			{Name: "goal_id", Type: ArgString, Required: true},
			{Name: "status", Type: ArgString, Required: true, Enum: []string{"active", "completed", "paused", "abandoned"}},
		},
	},
	{
		Name:        ToolEndAndLockSession,
		Description: "End the conversation and lock the session.",
		Mutating:    true,
		Args: []ArgSpec{
			{Name: "reason", Type: ArgString, Required: true, Enum: []string{"introduction_complete", "session_complete", "safety_concern"}},
		},
	},
	{
		Name:        ToolFlagForReview,
		Description: "Flag the session for asynchronous human review.",
		Mutating:    true,
		Args: []ArgSpec{
			{Name: "reason", Type: ArgString, Required: true, MaxLen: 500},
			{Name: "severity", Type: ArgString, Required: true, Enum: []string{"low", "medium", "high"}},
		},
	},
	{
		Name:        ToolEscalateToHuman,
		Description: "Escalate the session to a human coach.",
		Mutating:    true,
		Args: []ArgSpec{
			{Name: "reason", Type: ArgString, Required: true, MaxLen: 500},
			{Name: "urgency", Type: ArgString, Required: true, Enum: []string{"low", "high", "immediate"}},
		},
	},
	{
		Name:        ToolScheduleCheckIn,
		Description: "Schedule a follow-up check-in with the user.",
		Mutating:    true,
		Args: []ArgSpec{
			{Name: "when", Type: ArgString, Required: true, Enum: []string{"tomorrow", "three_days", "one_week"}},
			{Name: "note", Type: ArgString, MaxLen: 200},
		},
	},
	{
		Name:        ToolProvideEmergencyResources,
		Description: "Return emergency support resources for the user.",
		Args: []ArgSpec{
			{Name: "urgency", Type: ArgString, Required: true, Enum: []string{"routine", "elevated", "crisis"}},
		},
	},
	{
		Name:        ToolSuggestSessionBreak,
		Description: "Suggest the user take a break from the session.",
		Args: []ArgSpec{
			{Name: "duration", Type: ArgString, Required: true, Enum: []string{"brief", "short", "extended"}},
		},
	},
}

var specsByName = func() map[string]ToolSpec {
	m := make(map[string]ToolSpec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return m
}()

// Defs returns the tool definitions offered to the model.
func Defs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, llm.ToolDef{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.parametersSchema(),
		})
	}
	return defs
}

// parametersSchema renders the arg specs as a JSON Schema object.
func (s ToolSpec) parametersSchema() json.RawMessage {
	properties := map[string]interface{}{}
	var required []string
	for _, a := range s.Args {
		prop := map[string]interface{}{"type": string(a.Type)}
		if len(a.Enum) > 0 {
			prop["enum"] = a.Enum
		}
		if a.MaxLen > 0 {
			prop["maxLength"] = a.MaxLen
		}
		properties[a.Name] = prop
		if a.Required {
			required = append(required, a.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, _ := json.Marshal(schema)
	return data
}

// validateArgs decodes and checks arguments against the tool's schema. It returns
// the decoded string arguments; validation failures never touch state.
func validateArgs(spec ToolSpec, raw json.RawMessage) (map[string]string, error) {
	var decoded map[string]interface{}
	if len(raw) == 0 {
		decoded = map[string]interface{}{}
	} else if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %v", err)
	}

	known := make(map[string]ArgSpec, len(spec.Args))
	for _, a := range spec.Args {
		known[a.Name] = a
	}
	for name := range decoded {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("unknown argument %q", name)
		}
	}

	out := make(map[string]string, len(spec.Args))
	for _, a := range spec.Args {
		val, present := decoded[a.Name]
		if !present {
			if a.Required {
				return nil, fmt.Errorf("missing required argument %q", a.Name)
			}
			continue
		}

		switch a.Type {
		case ArgString:
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q must be a string", a.Name)
			}
			if a.MaxLen > 0 && len(s) > a.MaxLen {
				return nil, fmt.Errorf("argument %q exceeds %d characters", a.Name, a.MaxLen)
			}
			if len(a.Enum) > 0 && !containsString(a.Enum, s) {
				return nil, fmt.Errorf("argument %q must be one of %v", a.Name, a.Enum)
			}
			out[a.Name] = s
		case ArgNumber:
			n, ok := val.(float64)
			if !ok {
				return nil, fmt.Errorf("argument %q must be a number", a.Name)
			}
			out[a.Name] = fmt.Sprintf("%g", n)
		case ArgBoolean:
			b, ok := val.(bool)
			if !ok {
				return nil, fmt.Errorf("argument %q must be a boolean", a.Name)
			}
			out[a.Name] = fmt.Sprintf("%t", b)
		}
	}
	return out, nil
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
