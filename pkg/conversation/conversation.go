package conversation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is the title of a conversation before its first user message.
const DefaultTitle = "New Chat"

// TitleMaxLength caps titles derived from the first user message.
const TitleMaxLength = 30

type ConversationID uuid.UUID

func (id ConversationID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *ConversationID) UnmarshalJSON(data []byte) error {
	var u uuid.UUID
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	*id = ConversationID(u)
	return nil
}

func (id ConversationID) String() string {
	return uuid.UUID(id).String()
}

func NewConversationID() ConversationID {
	return ConversationID(uuid.New())
}

var NullConversationID = ConversationID(uuid.Nil)

// Conversation is a titled, ordered log of messages. Insertion order is
// chronological order. Conversations are owned by the Store; consumers only
// ever see copies.
type Conversation struct {
	ID        ConversationID `json:"id"`
	Title     string         `json:"title"`
	Messages  []*Message     `json:"messages"`
	CreatedAt time.Time      `json:"createdAt"`
	IsPinned  bool           `json:"isPinned"`
}

func NewConversation() *Conversation {
	return &Conversation{
		ID:        NewConversationID(),
		Title:     DefaultTitle,
		Messages:  []*Message{},
		CreatedAt: time.Now(),
	}
}

func (c *Conversation) LastMessage() (*Message, bool) {
	if len(c.Messages) == 0 {
		return nil, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// IndexOf returns the position of the message with the given id, or -1.
func (c *Conversation) IndexOf(id MessageID) int {
	for i, m := range c.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) GetMessage(id MessageID) (*Message, bool) {
	idx := c.IndexOf(id)
	if idx == -1 {
		return nil, false
	}
	return c.Messages[idx], true
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return &out
}

// DeriveTitle truncates the first user message's content to TitleMaxLength
// runes. An empty derivation keeps the current title.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) > TitleMaxLength {
		runes = runes[:TitleMaxLength]
	}
	return string(runes)
}
