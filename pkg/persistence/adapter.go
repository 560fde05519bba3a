package persistence

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatty/pkg/conversation"
)

// Adapter synchronizes the conversation store with the durable backend: one
// load at startup, then a wholesale flush after every mutation of the
// conversations collection. There is no delta persistence and no debouncing;
// every flush independently reflects the in-memory state at the time it was
// taken, and racing flushes resolve to last-write-wins.
type Adapter struct {
	backend Backend
}

func NewAdapter(backend Backend) *Adapter {
	return &Adapter{backend: backend}
}

// Load reads the durable snapshot. Messages persisted while still pending
// are demoted to failed: the exchange that would have resolved them died
// with the previous process, and a permanently stuck pending message is
// worse than an honest failure.
func (a *Adapter) Load(ctx context.Context) ([]*conversation.Conversation, error) {
	data, err := a.backend.Load(ctx, StorageKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return []*conversation.Conversation{}, nil
	}

	var conversations []*conversation.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, errors.Wrap(err, "failed to decode conversations")
	}

	reconciled := 0
	for _, conv := range conversations {
		for _, msg := range conv.Messages {
			if msg.Pending() {
				msg.Status = conversation.StatusFailed
				msg.Content = conversation.FailedReplyContent
				reconciled++
			}
		}
	}
	if reconciled > 0 {
		log.Warn().Int("count", reconciled).Msg("reconciled stale pending messages to failed")
	}

	log.Debug().Int("conversation_count", len(conversations)).Msg("loaded conversations")
	return conversations, nil
}

// Flush overwrites the durable record with the snapshot.
func (a *Adapter) Flush(ctx context.Context, conversations []*conversation.Conversation) error {
	data, err := json.MarshalIndent(conversations, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode conversations")
	}
	return a.backend.Save(ctx, StorageKey, data)
}

// Attach populates the store from the backend and installs the flush hook so
// every subsequent mutation is persisted. Flush errors are logged, never
// propagated: persistence must not fail a store operation.
func (a *Adapter) Attach(ctx context.Context, store *conversation.Store) error {
	conversations, err := a.Load(ctx)
	if err != nil {
		return err
	}
	store.Reset(conversations, conversation.NullConversationID)

	store.SetFlushFunc(func(snapshot []*conversation.Conversation) {
		if err := a.Flush(context.Background(), snapshot); err != nil {
			log.Error().Err(err).Msg("failed to flush conversations")
		}
	})

	return nil
}
