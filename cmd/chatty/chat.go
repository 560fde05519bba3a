package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatty/pkg/chat"
	"github.com/go-go-golems/chatty/pkg/conversation"
	"github.com/go-go-golems/chatty/pkg/events"
	"github.com/go-go-golems/chatty/pkg/export"
)

const chatTopic = "chat"

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
	}
}

func runChat(cmd *cobra.Command) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}

	if _, ok := store.ActiveConversationID(); !ok {
		store.CreateConversation()
	}

	stepSettings := buildSettings()
	eng, err := buildEngine(stepSettings)
	if err != nil {
		return err
	}

	router, err := events.NewEventRouter(events.WithVerbose(log.Logger.GetLevel() <= zerolog.DebugLevel))
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	publisher := events.NewPublisherManager()
	publisher.SubscribePublisher(chatTopic, router.Publisher)
	router.RegisterChatEventHandler("toasts", chatTopic, &toastHandler{})

	model := ""
	if stepSettings.Chat.Engine != nil {
		model = *stepSettings.Chat.Engine
	}
	orchestrator := chat.NewOrchestrator(store, eng,
		chat.WithPublisher(publisher),
		chat.WithModelName(model),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return router.Run(groupCtx)
	})
	group.Go(func() error {
		defer cancel()
		<-router.Running()
		return inputLoop(groupCtx, store, orchestrator, publisher)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// inputLoop reads prompts from stdin. Lines starting with "/" are commands;
// anything else is sent to the active conversation.
func inputLoop(ctx context.Context, store *conversation.Store, orchestrator *chat.Orchestrator, publisher *events.PublisherManager) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var stagedImages []*conversation.ImageContent

	printHistory(store)
	fmt.Print("> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "/quit" || line == "/exit":
			return nil

		case line == "/new":
			id := store.CreateConversation()
			publisher.PublishBlind(events.NewConversationEvent(
				events.EventTypeConversationCreated,
				events.EventMetadata{ID: uuid.New(), ConversationID: id.String()},
				conversation.DefaultTitle))

		case line == "/history":
			printHistory(store)

		case line == "/list":
			for i, conv := range store.List() {
				pin := " "
				if conv.IsPinned {
					pin = "*"
				}
				fmt.Printf("%2d %s %s (%d messages)\n", i+1, pin, conv.Title, len(conv.Messages))
			}

		case strings.HasPrefix(line, "/image "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/image "))
			img, err := conversation.NewImageContentFromFile(path)
			if err != nil {
				fmt.Printf("could not attach image: %v\n", err)
				break
			}
			stagedImages = append(stagedImages, img)
			fmt.Printf("attached %s\n", img.ImageName)

		case line == "/regen":
			regenerateLast(ctx, store, orchestrator)

		case line == "/export":
			if conv, ok := store.GetActiveConversation(); ok {
				path, err := export.WriteFile(".", conv)
				if err != nil {
					fmt.Printf("export failed: %v\n", err)
				} else {
					fmt.Printf("exported to %s\n", path)
					publisher.PublishBlind(events.NewConversationEvent(
						events.EventTypeConversationExported,
						events.EventMetadata{ID: uuid.New(), ConversationID: conv.ID.String()},
						conv.Title))
				}
			}

		case line == "/delete":
			if conv, ok := store.GetActiveConversation(); ok {
				store.DeleteConversation(conv.ID)
				publisher.PublishBlind(events.NewConversationEvent(
					events.EventTypeConversationDeleted,
					events.EventMetadata{ID: uuid.New(), ConversationID: conv.ID.String()},
					conv.Title))
				if _, ok := store.ActiveConversationID(); !ok {
					store.CreateConversation()
				}
			}

		case strings.HasPrefix(line, "/"):
			fmt.Println("commands: /new /list /history /image <path> /regen /export /delete /quit")

		default:
			images := stagedImages
			stagedImages = nil
			exchange, err := orchestrator.Send(ctx, line, images)
			if err != nil {
				if !errors.Is(err, chat.ErrEmptyInput) {
					log.Debug().Err(err).Msg("exchange failed")
				}
			} else {
				fmt.Println(exchange.Reply)
			}
		}

		fmt.Print("> ")
	}

	return scanner.Err()
}

func regenerateLast(ctx context.Context, store *conversation.Store, orchestrator *chat.Orchestrator) {
	conv, ok := store.GetActiveConversation()
	if !ok {
		return
	}
	last, ok := conv.LastMessage()
	if !ok || last.Role != conversation.RoleAssistant {
		fmt.Println("nothing to regenerate")
		return
	}
	exchange, err := orchestrator.Regenerate(ctx, last.ID)
	if err != nil {
		fmt.Printf("regeneration failed: %v\n", err)
		return
	}
	fmt.Println(exchange.Reply)
}

func printHistory(store *conversation.Store) {
	conv, ok := store.GetActiveConversation()
	if !ok {
		return
	}
	fmt.Printf("-- %s --\n", conv.Title)
	for _, msg := range conv.Messages {
		fmt.Println(msg.View())
	}
}

// toastHandler surfaces exchange lifecycle events as one-line notifications,
// the terminal stand-in for the toast channel.
type toastHandler struct{}

var _ events.ChatEventHandler = (*toastHandler)(nil)

func (h *toastHandler) HandleStart(_ context.Context, _ *events.EventStart) error {
	return nil
}

func (h *toastHandler) HandleFinal(_ context.Context, _ *events.EventFinal) error {
	fmt.Fprintln(os.Stderr, "· response generated")
	return nil
}

func (h *toastHandler) HandleError(_ context.Context, _ *events.EventError) error {
	fmt.Fprintln(os.Stderr, "· failed to generate response")
	return nil
}

func (h *toastHandler) HandleRejected(_ context.Context, e *events.EventRejected) error {
	fmt.Fprintf(os.Stderr, "· %s\n", e.Reason)
	return nil
}

func (h *toastHandler) HandleConversation(_ context.Context, e *events.EventConversation) error {
	fmt.Fprintf(os.Stderr, "· %s: %s\n", e.Type(), e.Title)
	return nil
}
