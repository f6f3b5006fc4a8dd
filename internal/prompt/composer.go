// Package prompt assembles the model conversation for a turn: system
// instructions derived from the session, durable user context, and the
// committed history mapped into provider roles.
package prompt

import (
	"fmt"
	"strings"

	"github.com/naiolune/zenithwell/internal/adapter/llm"
	"github.com/naiolune/zenithwell/internal/domain"
)

// Composer builds model conversations.
type Composer struct{}

// New creates a composer.
func New() *Composer {
	return &Composer{}
}

// Compose builds the message list for one model call. History must already
// be alternation-validated; the composer maps it verbatim. The pending
// participant message is passed separately and becomes the final user turn.
func (c *Composer) Compose(session *domain.Session, participants []domain.Participant, memories []domain.Memory, goals []domain.Goal, history []domain.Message, pending string, pendingSenderID string) []llm.ChatMessage {
	messages := []llm.ChatMessage{
		{Role: "system", Content: c.systemPrompt(session, participants, memories, goals)},
	}

	for _, m := range history {
		role := "user"
		content := m.Content
		if m.Sender == domain.SenderAssistant {
			role = "assistant"
		} else if session.Kind == domain.SessionKindGroup && m.SenderID != "" {
			// Group turns carry the speaker so the model can address
			// participants individually.
			content = fmt.Sprintf("[%s] %s", m.SenderID, m.Content)
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: content})
	}

	final := pending
	if session.Kind == domain.SessionKindGroup && pendingSenderID != "" {
		final = fmt.Sprintf("[%s] %s", pendingSenderID, pending)
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: final})
	return messages
}

func (c *Composer) systemPrompt(session *domain.Session, participants []domain.Participant, memories []domain.Memory, goals []domain.Goal) string {
	var b strings.Builder

	switch session.Kind {
	case domain.SessionKindIntroduction:
		b.WriteString("You are a wellness coach conducting a one-time introduction session. ")
		b.WriteString("Get to know the user: their situation, preferences, and what they want from coaching. ")
		b.WriteString("Record important facts with the add_memory tool as you learn them. ")
		b.WriteString("When you have a solid picture, wrap up warmly and call end_and_lock_session with reason introduction_complete.\n")
	case domain.SessionKindGroup:
		b.WriteString("You are a wellness coach facilitating a group session. ")
		b.WriteString("Messages are prefixed with the speaker's id in brackets. ")
		b.WriteString("Address participants by keeping the conversation balanced and inclusive.\n")
		switch session.Category {
		case domain.CategoryRelationship:
			b.WriteString("This is a relationship session between partners. Stay neutral; never take sides.\n")
		case domain.CategoryFamily:
			b.WriteString("This is a family session. Be mindful of family dynamics and differing perspectives.\n")
		}
	default:
		b.WriteString("You are a supportive wellness coach in a one-on-one session. ")
		b.WriteString("Listen actively, build on what you know about the user, and keep advice practical.\n")
	}

	b.WriteString("\nYou are not a therapist and do not diagnose. ")
	b.WriteString("If the user appears to be in crisis, use the provide_emergency_resources tool.\n")

	if session.Title != "" {
		fmt.Fprintf(&b, "\nSession topic: %s\n", session.Title)
	}
	if session.Summary != "" {
		fmt.Fprintf(&b, "\nSummary of the conversation so far:\n%s\n", session.Summary)
	}

	if len(participants) > 0 && session.Kind == domain.SessionKindGroup {
		b.WriteString("\nParticipants:\n")
		for _, p := range participants {
			fmt.Fprintf(&b, "- %s (%s)\n", p.UserID, p.Role)
		}
	}

	if len(memories) > 0 {
		b.WriteString("\nWhat you know about the user:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- [%s] %s\n", m.Category, m.Content)
		}
	}

	if len(goals) > 0 {
		b.WriteString("\nThe user's goals:\n")
		for _, g := range goals {
			fmt.Fprintf(&b, "- %s (%s)\n", g.Title, g.Status)
		}
	}

	return b.String()
}
