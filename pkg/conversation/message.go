package conversation

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status tracks the lifecycle of an assistant turn. User messages are always
// StatusFinal.
type Status string

const (
	StatusFinal   Status = "final"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// FailedReplyContent is the fixed user-facing body of a failed assistant turn.
// The original provider error is logged but never stored in the message.
const FailedReplyContent = "Sorry, something went wrong. Please try again."

type MessageID uuid.UUID

func (id MessageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *MessageID) UnmarshalJSON(data []byte) error {
	var u uuid.UUID
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	*id = MessageID(u)
	return nil
}

func (id MessageID) String() string {
	return uuid.UUID(id).String()
}

func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

var NullMessageID = MessageID(uuid.Nil)

// ImageContent is an opaque image attachment. Either ImageContent holds the
// raw bytes (local files) or ImageURL points at a remote image.
type ImageContent struct {
	ImageURL     string `json:"imageURL,omitempty"`
	ImageContent []byte `json:"imageContent,omitempty"`
	ImageName    string `json:"imageName"`
	MediaType    string `json:"mediaType,omitempty"`
}

func NewImageContentFromFile(path string) (*ImageContent, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return &ImageContent{
			ImageURL:  path,
			ImageName: filepath.Base(path),
		}, nil
	}
	return newImageContentFromLocalFile(path)
}

func newImageContentFromLocalFile(path string) (*ImageContent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image file")
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image file")
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat image file")
	}

	if fileInfo.Size() > 20*1024*1024 {
		return nil, errors.New("image size exceeds 20MB limit")
	}

	mediaType := getMediaTypeFromExtension(filepath.Ext(path))
	if mediaType == "" {
		return nil, errors.Errorf("unsupported image format: %s", filepath.Ext(path))
	}

	return &ImageContent{
		ImageContent: content,
		ImageName:    fileInfo.Name(),
		MediaType:    mediaType,
	}, nil
}

func getMediaTypeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return ""
	}
}

func (i *ImageContent) String() string {
	return fmt.Sprintf("ImageContent{ImageURL: %s, ImageName: %s, MediaType: %s}", i.ImageURL, i.ImageName, i.MediaType)
}

func (i *ImageContent) Clone() *ImageContent {
	if i == nil {
		return nil
	}
	out := *i
	if i.ImageContent != nil {
		out.ImageContent = append([]byte(nil), i.ImageContent...)
	}
	return &out
}

// Message represents a single turn in a conversation. Messages are
// append-only; the only mutation after creation is a pending assistant
// message resolving to final content or to a failed state, and that mutation
// goes through Store.ReplaceMessage.
type Message struct {
	ID      MessageID       `json:"id"`
	Role    Role            `json:"role"`
	Content string          `json:"content"`
	Images  []*ImageContent `json:"images,omitempty"`
	Time    time.Time       `json:"timestamp"`
	Status  Status          `json:"status"`
}

type MessageOption func(*Message)

func WithID(id MessageID) MessageOption {
	return func(message *Message) {
		message.ID = id
	}
}

func WithTime(t time.Time) MessageOption {
	return func(message *Message) {
		message.Time = t
	}
}

func WithImages(images []*ImageContent) MessageOption {
	return func(message *Message) {
		message.Images = images
	}
}

func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:      NewMessageID(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
		Status:  StatusFinal,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func NewUserMessage(content string, options ...MessageOption) *Message {
	return NewMessage(RoleUser, content, options...)
}

// NewPendingMessage creates the assistant placeholder appended at the
// optimistic commit point of an exchange. Content stays empty until the
// remote call resolves.
func NewPendingMessage(options ...MessageOption) *Message {
	ret := NewMessage(RoleAssistant, "", options...)
	ret.Status = StatusPending
	return ret
}

func (m *Message) Pending() bool {
	return m.Status == StatusPending
}

func (m *Message) Failed() bool {
	return m.Status == StatusFailed
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Images != nil {
		out.Images = make([]*ImageContent, len(m.Images))
		for i, img := range m.Images {
			out.Images[i] = img.Clone()
		}
	}
	return &out
}

func (m *Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}
