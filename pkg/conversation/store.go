package conversation

// The Store is the authoritative in-memory collection of all conversations
// plus the id of the active one. It is the single source of truth read by
// any rendering layer; all mutation goes through the operations below.
//
// Every operation that changes the conversations collection invokes the
// flush hook after the in-memory update commits, so a persistence adapter
// can overwrite the durable snapshot wholesale. Changing only the active id
// does not flush.
//
// The remote generation call resolves on its own goroutine, so the Store is
// guarded by a mutex and hands out deep copies; callers never observe a
// partially applied operation.

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// FlushFunc receives a deep-copied snapshot of all conversations after each
// mutation of the collection.
type FlushFunc func(conversations []*Conversation)

type Store struct {
	mu            sync.RWMutex
	conversations []*Conversation
	activeID      ConversationID
	flush         FlushFunc
}

type StoreOption func(*Store)

func WithFlushFunc(flush FlushFunc) StoreOption {
	return func(s *Store) {
		s.flush = flush
	}
}

func WithConversations(conversations []*Conversation, activeID ConversationID) StoreOption {
	return func(s *Store) {
		s.conversations = conversations
		s.activeID = activeID
	}
}

func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		conversations: []*Conversation{},
		activeID:      NullConversationID,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// SetFlushFunc installs the persistence hook. It replaces any previous hook.
func (s *Store) SetFlushFunc(flush FlushFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flush = flush
}

// Reset replaces the whole collection, used once at startup by the
// persistence adapter. It does not trigger a flush.
func (s *Store) Reset(conversations []*Conversation, activeID ConversationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = conversations
	s.activeID = activeID
	if s.activeID == NullConversationID && len(conversations) > 0 {
		s.activeID = conversations[0].ID
	}
}

// CreateConversation inserts a new empty conversation at the front of the
// collection and makes it active.
func (s *Store) CreateConversation() ConversationID {
	s.mu.Lock()
	conv := NewConversation()
	s.conversations = append([]*Conversation{conv}, s.conversations...)
	s.activeID = conv.ID
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	log.Debug().Str("conversation_id", conv.ID.String()).Msg("created conversation")
	s.runFlush(snapshot)
	return conv.ID
}

// DeleteConversation removes the conversation. If it was active, the first
// remaining conversation becomes active, or none if the collection is empty.
// Deleting an unknown id is a no-op.
func (s *Store) DeleteConversation(id ConversationID) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
	if s.activeID == id {
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		} else {
			s.activeID = NullConversationID
		}
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	log.Debug().Str("conversation_id", id.String()).Msg("deleted conversation")
	s.runFlush(snapshot)
}

// RenameConversation sets the title verbatim. An unknown id or a title that
// is empty after trimming is ignored; the boolean reports whether the
// rename was applied.
func (s *Store) RenameConversation(id ConversationID, title string) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		return false
	}
	s.conversations[idx].Title = title
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.runFlush(snapshot)
	return true
}

func (s *Store) TogglePin(id ConversationID) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		return false
	}
	s.conversations[idx].IsPinned = !s.conversations[idx].IsPinned
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.runFlush(snapshot)
	return true
}

// AppendMessages appends messages to the conversation's tail as one atomic
// commit. If the conversation was empty, the title is derived from the first
// appended message's content.
func (s *Store) AppendMessages(id ConversationID, messages ...*Message) bool {
	if len(messages) == 0 {
		return false
	}

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		return false
	}
	conv := s.conversations[idx]
	if len(conv.Messages) == 0 {
		if title := DeriveTitle(messages[0].Content); title != "" {
			conv.Title = title
		}
	}
	conv.Messages = append(conv.Messages, messages...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	log.Trace().
		Str("conversation_id", id.String()).
		Int("message_count", len(messages)).
		Msg("appended messages")
	s.runFlush(snapshot)
	return true
}

// ReplaceMessage applies a pure transformation to exactly one message. The
// updater receives a copy and returns the replacement. A missing
// conversation or message is a no-op: the pending message of an in-flight
// exchange may legitimately have been deleted along with its conversation
// before the remote call resolved.
func (s *Store) ReplaceMessage(id ConversationID, messageID MessageID, updater func(Message) Message) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		return false
	}
	conv := s.conversations[idx]
	msgIdx := conv.IndexOf(messageID)
	if msgIdx == -1 {
		s.mu.Unlock()
		return false
	}
	updated := updater(*conv.Messages[msgIdx].Clone())
	conv.Messages[msgIdx] = &updated
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.runFlush(snapshot)
	return true
}

// RemoveMessage deletes exactly one message by id.
func (s *Store) RemoveMessage(id ConversationID, messageID MessageID) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		return false
	}
	conv := s.conversations[idx]
	msgIdx := conv.IndexOf(messageID)
	if msgIdx == -1 {
		s.mu.Unlock()
		return false
	}
	conv.Messages = append(conv.Messages[:msgIdx], conv.Messages[msgIdx+1:]...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.runFlush(snapshot)
	return true
}

func (s *Store) GetConversation(id ConversationID) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx == -1 {
		return nil, false
	}
	return s.conversations[idx].Clone(), true
}

func (s *Store) GetActiveConversation() (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == NullConversationID {
		return nil, false
	}
	idx := s.indexLocked(s.activeID)
	if idx == -1 {
		return nil, false
	}
	return s.conversations[idx].Clone(), true
}

func (s *Store) ActiveConversationID() (ConversationID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == NullConversationID {
		return NullConversationID, false
	}
	return s.activeID, true
}

// SetActiveConversation switches the active conversation. This does not
// touch the collection and therefore does not flush.
func (s *Store) SetActiveConversation(id ConversationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) == -1 {
		return false
	}
	s.activeID = id
	return true
}

// List returns copies of all conversations, pinned ones first, otherwise in
// collection order (most recently created first).
func (s *Store) List() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pinned := []*Conversation{}
	rest := []*Conversation{}
	for _, c := range s.conversations {
		if c.IsPinned {
			pinned = append(pinned, c.Clone())
		} else {
			rest = append(rest, c.Clone())
		}
	}
	return append(pinned, rest...)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// Snapshot returns a deep copy of the collection in insertion order, the
// same shape handed to the flush hook.
func (s *Store) Snapshot() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) indexLocked(id ConversationID) int {
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []*Conversation {
	out := make([]*Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

func (s *Store) runFlush(snapshot []*Conversation) {
	s.mu.RLock()
	flush := s.flush
	s.mu.RUnlock()
	if flush != nil {
		flush(snapshot)
	}
}
