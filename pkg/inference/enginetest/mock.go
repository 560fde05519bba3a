package enginetest

import (
	"context"
	"sync"

	"github.com/go-go-golems/chatty/pkg/inference/engine"
)

// MockEngine is a scriptable Engine for tests and offline mode. Replies are
// returned in order; when they run out, DefaultReply is returned. A non-nil
// Err fails every call. GenerateFunc, when set, takes over entirely; tests
// use it to observe or mutate state at the exact moment the remote call is
// in flight.
type MockEngine struct {
	mu           sync.Mutex
	Replies      []string
	DefaultReply string
	Err          error
	GenerateFunc func(ctx context.Context, parts []engine.Part) (string, error)

	calls [][]engine.Part
}

func NewMockEngine(replies ...string) *MockEngine {
	return &MockEngine{
		Replies:      replies,
		DefaultReply: "mock reply",
	}
}

var _ engine.Engine = (*MockEngine)(nil)

func (m *MockEngine) Generate(ctx context.Context, parts []engine.Part) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, parts)
	generateFunc := m.GenerateFunc
	err := m.Err
	reply := m.DefaultReply
	// a failing call does not consume a scripted reply
	if err == nil && generateFunc == nil && len(m.Replies) > 0 {
		reply = m.Replies[0]
		m.Replies = m.Replies[1:]
	}
	m.mu.Unlock()

	if generateFunc != nil {
		return generateFunc(ctx, parts)
	}
	if err != nil {
		return "", err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return reply, nil
}

// Calls returns the recorded part sequences, one per Generate invocation.
func (m *MockEngine) Calls() [][]engine.Part {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]engine.Part, len(m.calls))
	copy(out, m.calls)
	return out
}
