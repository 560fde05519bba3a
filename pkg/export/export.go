package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatty/pkg/conversation"
)

// Artifact is the downloadable form of a conversation. It intentionally
// carries no versioning field, matching the established export format.
type Artifact struct {
	Title     string                  `json:"title"`
	CreatedAt time.Time               `json:"createdAt"`
	Messages  []*conversation.Message `json:"messages"`
}

// Conversation serializes a conversation into the export artifact. Pure and
// read-only.
func Conversation(c *conversation.Conversation) ([]byte, error) {
	artifact := Artifact{
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		Messages:  c.Messages,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode export artifact")
	}
	return data, nil
}

// WriteFile writes the artifact as "<title>.json" under dir and returns the
// path written.
func WriteFile(dir string, c *conversation.Conversation) (string, error) {
	data, err := Conversation(c)
	if err != nil {
		return "", err
	}

	name := SanitizeFilename(c.Title)
	if name == "" {
		name = c.ID.String()
	}
	path := filepath.Join(dir, name+".json")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", dir)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}

	return path, nil
}

// SanitizeFilename strips path separators and control characters from a
// title so it is safe as a file name.
func SanitizeFilename(title string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':':
			return '-'
		case r < 32:
			return -1
		default:
			return r
		}
	}, title)
	return strings.TrimSpace(out)
}
