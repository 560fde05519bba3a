package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatty/pkg/conversation"
	"github.com/go-go-golems/chatty/pkg/events"
	"github.com/go-go-golems/chatty/pkg/inference/engine"
	"github.com/go-go-golems/chatty/pkg/inference/enginetest"
)

// capturePublisher records every published message so tests can assert on
// the event stream without running a router.
type capturePublisher struct {
	mu   sync.Mutex
	msgs []*message.Message
}

var _ message.Publisher = (*capturePublisher)(nil)

func (p *capturePublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, messages...)
	return nil
}

func (p *capturePublisher) Close() error {
	return nil
}

func (p *capturePublisher) Events(t *testing.T) []events.Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, 0, len(p.msgs))
	for _, msg := range p.msgs {
		e, err := events.NewEventFromJson(msg.Payload)
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func newTestSetup(t *testing.T, eng engine.Engine) (*conversation.Store, *Orchestrator, *capturePublisher) {
	t.Helper()
	store := conversation.NewStore()
	store.CreateConversation()

	capture := &capturePublisher{}
	publisher := events.NewPublisherManager()
	publisher.SubscribePublisher("chat", capture)

	orchestrator := NewOrchestrator(store, eng,
		WithPublisher(publisher),
		WithModelName("test-model"),
	)
	return store, orchestrator, capture
}

func TestSendRejectsEmptyInput(t *testing.T) {
	eng := enginetest.NewMockEngine()
	store, orchestrator, capture := newTestSetup(t, eng)

	_, err := orchestrator.Send(context.Background(), "", nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	conv, _ := store.GetActiveConversation()
	assert.Empty(t, conv.Messages)
	assert.Empty(t, eng.Calls())

	evts := capture.Events(t)
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventTypeRejected, evts[0].Type())
}

func TestSendWithOnlyImagesIsAccepted(t *testing.T) {
	eng := enginetest.NewMockEngine("I see a cat")
	store, orchestrator, _ := newTestSetup(t, eng)

	images := []*conversation.ImageContent{
		{ImageName: "cat.png", MediaType: "image/png", ImageContent: []byte{1}},
	}
	exchange, err := orchestrator.Send(context.Background(), "", images)
	require.NoError(t, err)
	assert.Equal(t, "I see a cat", exchange.Reply)

	conv, _ := store.GetActiveConversation()
	require.Len(t, conv.Messages, 2)
	require.Len(t, conv.Messages[0].Images, 1)
}

func TestSendRequiresActiveConversation(t *testing.T) {
	store := conversation.NewStore()
	orchestrator := NewOrchestrator(store, enginetest.NewMockEngine())

	_, err := orchestrator.Send(context.Background(), "hello", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSendAppendsBothMessagesAtomically(t *testing.T) {
	eng := enginetest.NewMockEngine("hi there")
	store, orchestrator, capture := newTestSetup(t, eng)

	// the optimistic commit happens before the remote call, so the pending
	// tail is observable from inside the engine
	var observed []*conversation.Message
	eng.GenerateFunc = func(ctx context.Context, parts []engine.Part) (string, error) {
		conv, ok := store.GetActiveConversation()
		require.True(t, ok)
		observed = conv.Messages
		return "hi there", nil
	}

	exchange, err := orchestrator.Send(context.Background(), "hello", nil)
	require.NoError(t, err)

	require.Len(t, observed, 2)
	assert.Equal(t, conversation.RoleUser, observed[0].Role)
	assert.Equal(t, "hello", observed[0].Content)
	assert.Equal(t, conversation.StatusFinal, observed[0].Status)
	assert.Equal(t, conversation.RoleAssistant, observed[1].Role)
	assert.Equal(t, conversation.StatusPending, observed[1].Status)
	assert.Empty(t, observed[1].Content)

	conv, _ := store.GetActiveConversation()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, exchange.UserMessageID, conv.Messages[0].ID)
	assert.Equal(t, exchange.AssistantMessageID, conv.Messages[1].ID)
	assert.Equal(t, conversation.StatusFinal, conv.Messages[1].Status)
	assert.Equal(t, "hi there", conv.Messages[1].Content)

	evts := capture.Events(t)
	require.Len(t, evts, 2)
	assert.Equal(t, events.EventTypeStart, evts[0].Type())
	assert.Equal(t, events.EventTypeFinal, evts[1].Type())
	final, ok := evts[1].(*events.EventFinal)
	require.True(t, ok)
	assert.Equal(t, "hi there", final.Text)
	assert.Equal(t, "test-model", final.Metadata().Model)
}

func TestSendConvertsPendingToFailedOnError(t *testing.T) {
	eng := enginetest.NewMockEngine()
	eng.Err = errors.New("backend exploded")
	store, orchestrator, capture := newTestSetup(t, eng)

	exchange, err := orchestrator.Send(context.Background(), "hello", nil)
	require.Error(t, err)
	require.NotNil(t, exchange)

	conv, _ := store.GetActiveConversation()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, conversation.StatusFinal, conv.Messages[0].Status)
	assert.Equal(t, conversation.StatusFailed, conv.Messages[1].Status)
	assert.Equal(t, conversation.FailedReplyContent, conv.Messages[1].Content)

	evts := capture.Events(t)
	require.Len(t, evts, 2)
	assert.Equal(t, events.EventTypeStart, evts[0].Type())
	errEvent, ok := evts[1].(*events.EventError)
	require.True(t, ok)
	assert.Contains(t, errEvent.ErrorString, "backend exploded")
}

func TestSendPutsImagesBeforeText(t *testing.T) {
	eng := enginetest.NewMockEngine()
	_, orchestrator, _ := newTestSetup(t, eng)

	images := []*conversation.ImageContent{
		{ImageName: "a.png", MediaType: "image/png", ImageContent: []byte{1}},
		{ImageName: "b.png", MediaType: "image/png", ImageContent: []byte{2}},
	}
	_, err := orchestrator.Send(context.Background(), "describe these", images)
	require.NoError(t, err)

	calls := eng.Calls()
	require.Len(t, calls, 1)
	parts := calls[0]
	require.Len(t, parts, 3)
	assert.True(t, parts[0].IsImage())
	assert.True(t, parts[1].IsImage())
	assert.False(t, parts[2].IsImage())
	assert.Equal(t, "describe these", parts[2].Text)
}

func TestSendSurvivesMidFlightConversationDeletion(t *testing.T) {
	eng := enginetest.NewMockEngine()
	store, orchestrator, _ := newTestSetup(t, eng)
	convID, _ := store.ActiveConversationID()

	eng.GenerateFunc = func(ctx context.Context, parts []engine.Part) (string, error) {
		store.DeleteConversation(convID)
		return "", errors.New("backend exploded")
	}

	_, err := orchestrator.Send(context.Background(), "hello", nil)
	require.Error(t, err)

	// the failure record has nowhere to live, the conversation is gone
	assert.Equal(t, 0, store.Len())
}

func TestRegenerateReplacesExchange(t *testing.T) {
	eng := enginetest.NewMockEngine("first answer", "second answer")
	store, orchestrator, _ := newTestSetup(t, eng)

	first, err := orchestrator.Send(context.Background(), "tell me a joke", nil)
	require.NoError(t, err)

	second, err := orchestrator.Regenerate(context.Background(), first.AssistantMessageID)
	require.NoError(t, err)
	assert.Equal(t, "second answer", second.Reply)
	assert.NotEqual(t, first.AssistantMessageID, second.AssistantMessageID)
	assert.Equal(t, first.UserMessageID, second.UserMessageID)

	conv, _ := store.GetActiveConversation()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, first.UserMessageID, conv.Messages[0].ID)
	assert.Equal(t, conversation.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "tell me a joke", conv.Messages[0].Content)
	assert.Equal(t, conversation.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "second answer", conv.Messages[1].Content)
	assert.Equal(t, conversation.StatusFinal, conv.Messages[1].Status)
}

func TestRegenerateKeepsUserAttachments(t *testing.T) {
	eng := enginetest.NewMockEngine("a cat", "still a cat")
	store, orchestrator, _ := newTestSetup(t, eng)

	images := []*conversation.ImageContent{
		{ImageName: "cat.png", MediaType: "image/png", ImageContent: []byte{1, 2, 3}},
	}
	first, err := orchestrator.Send(context.Background(), "what is this", images)
	require.NoError(t, err)

	_, err = orchestrator.Regenerate(context.Background(), first.AssistantMessageID)
	require.NoError(t, err)

	conv, _ := store.GetActiveConversation()
	require.Len(t, conv.Messages, 2)
	require.Len(t, conv.Messages[0].Images, 1)
	assert.Equal(t, "cat.png", conv.Messages[0].Images[0].ImageName)
	assert.Equal(t, "still a cat", conv.Messages[1].Content)

	// the re-run submits only the prompt text
	calls := eng.Calls()
	require.Len(t, calls, 2)
	require.Len(t, calls[1], 1)
	assert.False(t, calls[1][0].IsImage())
	assert.Equal(t, "what is this", calls[1][0].Text)
}

func TestRegenerateRejectsAttachmentOnlyExchange(t *testing.T) {
	eng := enginetest.NewMockEngine("I see a cat")
	store, orchestrator, _ := newTestSetup(t, eng)

	images := []*conversation.ImageContent{
		{ImageName: "cat.png", MediaType: "image/png", ImageContent: []byte{1}},
	}
	first, err := orchestrator.Send(context.Background(), "", images)
	require.NoError(t, err)

	_, err = orchestrator.Regenerate(context.Background(), first.AssistantMessageID)
	require.ErrorIs(t, err, ErrEmptyInput)

	// the rejection leaves the log untouched
	conv, _ := store.GetActiveConversation()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, first.UserMessageID, conv.Messages[0].ID)
	require.Len(t, conv.Messages[0].Images, 1)
	assert.Equal(t, first.AssistantMessageID, conv.Messages[1].ID)
	assert.Equal(t, "I see a cat", conv.Messages[1].Content)
	assert.Len(t, eng.Calls(), 1)
}

func TestRegenerateFailedExchange(t *testing.T) {
	eng := enginetest.NewMockEngine("recovered answer")
	eng.Err = errors.New("backend exploded")
	store, orchestrator, _ := newTestSetup(t, eng)

	first, err := orchestrator.Send(context.Background(), "hello", nil)
	require.Error(t, err)

	eng.Err = nil
	second, err := orchestrator.Regenerate(context.Background(), first.AssistantMessageID)
	require.NoError(t, err)
	assert.Equal(t, "recovered answer", second.Reply)

	conv, _ := store.GetActiveConversation()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, conversation.StatusFinal, conv.Messages[1].Status)
	assert.Equal(t, "recovered answer", conv.Messages[1].Content)
}

func TestRegeneratePreservesAlternation(t *testing.T) {
	eng := enginetest.NewMockEngine("a1", "a2", "a1 again")
	store, orchestrator, _ := newTestSetup(t, eng)

	first, err := orchestrator.Send(context.Background(), "q1", nil)
	require.NoError(t, err)
	_, err = orchestrator.Send(context.Background(), "q2", nil)
	require.NoError(t, err)

	_, err = orchestrator.Regenerate(context.Background(), first.AssistantMessageID)
	require.NoError(t, err)

	// the regenerated reply stays at its original position in the log
	conv, _ := store.GetActiveConversation()
	require.Len(t, conv.Messages, 4)
	for i, msg := range conv.Messages {
		if i%2 == 0 {
			assert.Equal(t, conversation.RoleUser, msg.Role)
		} else {
			assert.Equal(t, conversation.RoleAssistant, msg.Role)
		}
	}
	assert.Equal(t, "q1", conv.Messages[0].Content)
	assert.Equal(t, "a1 again", conv.Messages[1].Content)
	assert.Equal(t, "q2", conv.Messages[2].Content)
	assert.Equal(t, "a2", conv.Messages[3].Content)
}

func TestRegenerateRejectsUnknownMessage(t *testing.T) {
	_, orchestrator, _ := newTestSetup(t, enginetest.NewMockEngine())

	_, err := orchestrator.Regenerate(context.Background(), conversation.NewMessageID())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegenerateRejectsUserMessage(t *testing.T) {
	eng := enginetest.NewMockEngine()
	_, orchestrator, _ := newTestSetup(t, eng)

	exchange, err := orchestrator.Send(context.Background(), "hello", nil)
	require.NoError(t, err)

	_, err = orchestrator.Regenerate(context.Background(), exchange.UserMessageID)
	require.ErrorIs(t, err, ErrInvalidState)
}
