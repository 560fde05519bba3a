package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStart is published at the optimistic commit point of an
	// exchange, once the user message and the pending assistant message are
	// in the store.
	EventTypeStart EventType = "start"
	// EventTypeFinal carries the resolved assistant reply.
	EventTypeFinal EventType = "final"
	// EventTypeError marks a failed exchange; the pending message has been
	// converted to a failed one by the time this is published.
	EventTypeError EventType = "error"
	// EventTypeRejected marks an exchange refused before any state change
	// (empty prompt and no attachments).
	EventTypeRejected EventType = "rejected"

	// Store lifecycle notifications, surfaced as toasts by the UI.
	EventTypeConversationCreated  EventType = "conversation-created"
	EventTypeConversationDeleted  EventType = "conversation-deleted"
	EventTypeConversationExported EventType = "conversation-exported"
	EventTypeMessageDeleted       EventType = "message-deleted"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

// EventMetadata identifies the exchange an event belongs to. ConversationID
// and MessageID refer to the conversation and pending assistant message
// captured at submission time.
type EventMetadata struct {
	ID             uuid.UUID `json:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"pending_message_id,omitempty"`
	Model          string    `json:"model,omitempty"`
	DurationMs     *int64    `json:"duration_ms,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.ConversationID != "" {
		e.Str("conversation_id", em.ConversationID)
	}
	if em.MessageID != "" {
		e.Str("pending_message_id", em.MessageID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.DurationMs != nil {
		e.Int64("duration_ms", *em.DurationMs)
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// raw JSON payload, set when the event was deserialized (see NewEventFromJson)
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

type EventStart struct {
	EventImpl
	Prompt string `json:"prompt"`
}

func NewStartEvent(metadata EventMetadata, prompt string) *EventStart {
	return &EventStart{
		EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata},
		Prompt:    prompt,
	}
}

var _ Event = &EventStart{}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:      text,
	}
}

var _ Event = &EventFinal{}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

var _ Event = &EventError{}

type EventRejected struct {
	EventImpl
	Reason string `json:"reason"`
}

func NewRejectedEvent(metadata EventMetadata, reason string) *EventRejected {
	return &EventRejected{
		EventImpl: EventImpl{Type_: EventTypeRejected, Metadata_: metadata},
		Reason:    reason,
	}
}

var _ Event = &EventRejected{}

// EventConversation covers the store lifecycle notifications.
type EventConversation struct {
	EventImpl
	Title string `json:"title,omitempty"`
}

func NewConversationEvent(type_ EventType, metadata EventMetadata, title string) *EventConversation {
	return &EventConversation{
		EventImpl: EventImpl{Type_: type_, Metadata_: metadata},
		Title:     title,
	}
}

var _ Event = &EventConversation{}

// NewEventFromJson parses a serialized event back into its concrete type.
func NewEventFromJson(b []byte) (Event, error) {
	var e EventImpl
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event")
	}
	e.payload = b

	switch e.Type_ {
	case EventTypeStart:
		ret, ok := decodeEvent[EventStart](&e, b)
		if !ok {
			return nil, errors.Errorf("could not decode %s event", e.Type_)
		}
		return ret, nil
	case EventTypeFinal:
		ret, ok := decodeEvent[EventFinal](&e, b)
		if !ok {
			return nil, errors.Errorf("could not decode %s event", e.Type_)
		}
		return ret, nil
	case EventTypeError:
		ret, ok := decodeEvent[EventError](&e, b)
		if !ok {
			return nil, errors.Errorf("could not decode %s event", e.Type_)
		}
		return ret, nil
	case EventTypeRejected:
		ret, ok := decodeEvent[EventRejected](&e, b)
		if !ok {
			return nil, errors.Errorf("could not decode %s event", e.Type_)
		}
		return ret, nil
	case EventTypeConversationCreated, EventTypeConversationDeleted,
		EventTypeConversationExported, EventTypeMessageDeleted:
		ret, ok := decodeEvent[EventConversation](&e, b)
		if !ok {
			return nil, errors.Errorf("could not decode %s event", e.Type_)
		}
		return ret, nil
	}

	return &e, nil
}

func decodeEvent[T any](e *EventImpl, b []byte) (*T, bool) {
	var ret T
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, false
	}
	if impl, ok := any(&ret).(interface{ setPayload([]byte) }); ok {
		impl.setPayload(b)
	}
	return &ret, true
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}
