package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatty/pkg/helpers"
)

// ChatEventHandler is implemented by consumers that want the exchange
// lifecycle dispatched to typed methods instead of raw watermill messages.
type ChatEventHandler interface {
	HandleStart(ctx context.Context, e *EventStart) error
	HandleFinal(ctx context.Context, e *EventFinal) error
	HandleError(ctx context.Context, e *EventError) error
	HandleRejected(ctx context.Context, e *EventRejected) error
	HandleConversation(ctx context.Context, e *EventConversation) error
}

// EventRouter wires an in-process gochannel pub/sub to watermill handlers.
// The orchestrator publishes through Publisher; UIs subscribe with
// AddHandler or RegisterChatEventHandler.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		if verbose {
			r.logger = helpers.NewWatermill(log.Logger)
		}
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}

	ret.router = router

	return ret, nil
}

func (e *EventRouter) Close() error {
	log.Debug().Msg("closing event router publisher")
	err := e.Publisher.Close()
	if err != nil {
		log.Error().Err(err).Msg("failed to close pubsub")
		// not returning just yet
	}

	log.Debug().Msg("closing event router")
	err = e.router.Close()
	if err != nil {
		log.Error().Err(err).Msg("failed to close router")
	}

	return nil
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// RegisterChatEventHandler parses chat events off the topic and dispatches
// them to the typed handler. A message that fails to parse is logged and
// acked; one bad payload must not kill the handler.
func (e *EventRouter) RegisterChatEventHandler(name string, topic string, handler ChatEventHandler) {
	e.AddHandler(name, topic, func(msg *message.Message) error {
		defer msg.Ack()

		event, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("failed to parse chat event")
			return nil
		}

		msgCtx := msg.Context()
		switch ev := event.(type) {
		case *EventStart:
			return handler.HandleStart(msgCtx, ev)
		case *EventFinal:
			return handler.HandleFinal(msgCtx, ev)
		case *EventError:
			return handler.HandleError(msgCtx, ev)
		case *EventRejected:
			return handler.HandleRejected(msgCtx, ev)
		case *EventConversation:
			return handler.HandleConversation(msgCtx, ev)
		default:
			log.Warn().Str("event_type", string(event.Type())).Msg("unhandled chat event type")
		}

		return nil
	})
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}
