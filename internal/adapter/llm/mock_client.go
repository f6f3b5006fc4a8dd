package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scriptable Client for testing. Completions are returned
// in the order they were enqueued; when the script is empty it echoes the
// last user message.
type MockClient struct {
	mu     sync.Mutex
	script []scriptEntry

	// Calls records every request the mock received.
	Calls []MockCall
}

type scriptEntry struct {
	completion *Completion
	err        error
	block      chan struct{}
}

// MockCall captures one Complete invocation.
type MockCall struct {
	Messages []ChatMessage
	Tools    []ToolDef
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Enqueue schedules a completion to return.
func (m *MockClient) Enqueue(c *Completion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{completion: c})
}

// EnqueueError schedules an error to return.
func (m *MockClient) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{err: err})
}

// EnqueueBlocking schedules a completion that is not returned until the
// given channel is closed. Lets tests hold a turn in flight.
func (m *MockClient) EnqueueBlocking(c *Completion, release chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{completion: c, block: release})
}

// CallCount returns how many Complete invocations the mock has seen.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Complete returns the next scripted completion.
func (m *MockClient) Complete(ctx context.Context, messages []ChatMessage, tools []ToolDef) (*Completion, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Messages: messages, Tools: tools})
	var entry scriptEntry
	scripted := len(m.script) > 0
	if scripted {
		entry = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	if !scripted {
		var lastUser string
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == "user" {
				lastUser = messages[i].Content
				break
			}
		}
		return &Completion{Text: fmt.Sprintf("[MOCK] Received: %q", lastUser)}, nil
	}

	if entry.block != nil {
		select {
		case <-entry.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if entry.err != nil {
		return nil, entry.err
	}
	return entry.completion, nil
}
