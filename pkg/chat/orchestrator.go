package chat

// The orchestrator performs one full send-and-receive exchange against the
// active conversation:
//
//	validate -> optimistic append (final user + pending assistant)
//	         -> single remote call (attachments first, then text)
//	         -> pending message resolved to final, or converted to failed
//
// The orchestrator holds no state of its own: an in-flight exchange exists
// only as the pending message inside the store, which keeps it visible to
// any reader. No lock is held across the remote call; correctness rests on
// message identity. If the conversation is deleted while the call is in
// flight, resolving the pending message is a documented no-op.

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatty/pkg/conversation"
	"github.com/go-go-golems/chatty/pkg/events"
	"github.com/go-go-golems/chatty/pkg/inference/engine"
)

var (
	// ErrEmptyInput rejects a send with no text and no attachments. No
	// state is mutated.
	ErrEmptyInput = errors.New("empty input: prompt and attachments are both empty")
	// ErrNotFound reports a missing conversation or message target.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState reports a regeneration target whose preceding message
	// is not a user turn. The alternation invariant makes this unreachable
	// in practice; the operation defends against it instead of assuming.
	ErrInvalidState = errors.New("invalid conversation state")
)

// Exchange reports the identifiers of one completed send/regenerate cycle.
type Exchange struct {
	ConversationID     conversation.ConversationID
	UserMessageID      conversation.MessageID
	AssistantMessageID conversation.MessageID
	Reply              string
}

type Orchestrator struct {
	store     *conversation.Store
	engine    engine.Engine
	publisher *events.PublisherManager
	model     string
}

type OrchestratorOption func(*Orchestrator)

// WithPublisher wires exchange lifecycle events into a publisher manager so
// the UI can surface notifications.
func WithPublisher(publisher *events.PublisherManager) OrchestratorOption {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

// WithModelName attaches the model name to event metadata, for display only.
func WithModelName(model string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.model = model
	}
}

func NewOrchestrator(store *conversation.Store, eng engine.Engine, options ...OrchestratorOption) *Orchestrator {
	ret := &Orchestrator{
		store:  store,
		engine: eng,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Send runs one exchange against the active conversation. It blocks until
// the remote call resolves; callers that need the optimistic state run it
// on a goroutine and read the store.
//
// Any error other than ErrEmptyInput and ErrNotFound is a remote generation
// failure; by then the pending message has already been converted to a
// failed one, so the caller has nothing to clean up.
func (o *Orchestrator) Send(ctx context.Context, prompt string, images []*conversation.ImageContent) (*Exchange, error) {
	metadata := events.EventMetadata{ID: uuid.New(), Model: o.model}

	if prompt == "" && len(images) == 0 {
		o.publishBlind(events.NewRejectedEvent(metadata, "please enter a message or attach an image"))
		return nil, ErrEmptyInput
	}

	convID, ok := o.store.ActiveConversationID()
	if !ok {
		return nil, errors.Wrap(ErrNotFound, "no active conversation")
	}

	userMessage := conversation.NewUserMessage(prompt, conversation.WithImages(images))
	pending := conversation.NewPendingMessage()

	// Optimistic commit point: both messages become visible to readers
	// before the remote call is issued.
	o.store.AppendMessages(convID, userMessage, pending)

	metadata.ConversationID = convID.String()
	metadata.MessageID = pending.ID.String()
	o.publishBlind(events.NewStartEvent(metadata, prompt))

	exchange := &Exchange{
		ConversationID:     convID,
		UserMessageID:      userMessage.ID,
		AssistantMessageID: pending.ID,
	}

	return o.complete(ctx, metadata, exchange, engine.PartsFromPrompt(prompt, images))
}

// complete issues the remote call and resolves the pending message to final
// content or converts it to a failed one.
func (o *Orchestrator) complete(ctx context.Context, metadata events.EventMetadata, exchange *Exchange, parts []engine.Part) (*Exchange, error) {
	startTime := time.Now()
	reply, err := o.engine.Generate(ctx, parts)
	durationMs := time.Since(startTime).Milliseconds()
	metadata.DurationMs = &durationMs

	if err != nil {
		log.Warn().Err(err).
			Str("conversation_id", exchange.ConversationID.String()).
			Str("pending_message_id", exchange.AssistantMessageID.String()).
			Msg("remote generation failed")

		// The conversation may have been deleted mid-flight; ReplaceMessage
		// is a no-op then and the failure record simply has nowhere to live.
		o.store.ReplaceMessage(exchange.ConversationID, exchange.AssistantMessageID, func(m conversation.Message) conversation.Message {
			m.Content = conversation.FailedReplyContent
			m.Status = conversation.StatusFailed
			return m
		})
		o.publishBlind(events.NewErrorEvent(metadata, err))
		return exchange, errors.Wrap(err, "remote generation failed")
	}

	o.store.ReplaceMessage(exchange.ConversationID, exchange.AssistantMessageID, func(m conversation.Message) conversation.Message {
		m.Content = reply
		m.Status = conversation.StatusFinal
		return m
	})
	o.publishBlind(events.NewFinalEvent(metadata, reply))

	exchange.Reply = reply
	return exchange, nil
}

// Regenerate discards a prior assistant reply and re-runs the exchange for
// the same prompt. The discarded assistant message is swapped in place for a
// fresh pending one, so the message count, the position in the log, and the
// original user message (attachments included) are all preserved.
// Attachments are not resubmitted to the remote call; only the text is
// regenerated, so an attachment-only exchange is rejected before anything
// is mutated.
func (o *Orchestrator) Regenerate(ctx context.Context, messageID conversation.MessageID) (*Exchange, error) {
	metadata := events.EventMetadata{ID: uuid.New(), Model: o.model}

	conv, ok := o.store.GetActiveConversation()
	if !ok {
		return nil, errors.Wrap(ErrNotFound, "no active conversation")
	}

	idx := conv.IndexOf(messageID)
	if idx == -1 {
		return nil, errors.Wrapf(ErrNotFound, "message %s", messageID)
	}
	target := conv.Messages[idx]
	if target.Role != conversation.RoleAssistant {
		return nil, errors.Wrapf(ErrInvalidState, "message %s is not an assistant message", messageID)
	}
	if idx == 0 {
		return nil, errors.Wrapf(ErrInvalidState, "message %s has no preceding message", messageID)
	}
	previous := conv.Messages[idx-1]
	if previous.Role != conversation.RoleUser {
		return nil, errors.Wrapf(ErrInvalidState, "message preceding %s is not a user message", messageID)
	}
	if previous.Content == "" {
		o.publishBlind(events.NewRejectedEvent(metadata, "this exchange has no text to regenerate"))
		return nil, errors.Wrap(ErrEmptyInput, "attachment-only exchange has no prompt text")
	}

	pending := conversation.NewPendingMessage()
	replaced := o.store.ReplaceMessage(conv.ID, messageID, func(conversation.Message) conversation.Message {
		return *pending
	})
	if !replaced {
		return nil, errors.Wrapf(ErrNotFound, "message %s", messageID)
	}

	o.publishBlind(events.NewConversationEvent(events.EventTypeMessageDeleted, events.EventMetadata{
		ID:             uuid.New(),
		ConversationID: conv.ID.String(),
		MessageID:      messageID.String(),
		Model:          o.model,
	}, conv.Title))

	metadata.ConversationID = conv.ID.String()
	metadata.MessageID = pending.ID.String()
	o.publishBlind(events.NewStartEvent(metadata, previous.Content))

	exchange := &Exchange{
		ConversationID:     conv.ID,
		UserMessageID:      previous.ID,
		AssistantMessageID: pending.ID,
	}

	return o.complete(ctx, metadata, exchange, engine.PartsFromPrompt(previous.Content, nil))
}

func (o *Orchestrator) publishBlind(event events.Event) {
	if o.publisher == nil {
		return
	}
	o.publisher.PublishBlind(event)
}
