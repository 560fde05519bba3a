package engine

import (
	"context"

	"github.com/go-go-golems/chatty/pkg/conversation"
)

// Part is one element of a generation request. Exactly one of Text or Image
// is set. The remote multi-modal APIs expect all image parts ahead of the
// text part; PartsFromPrompt produces that ordering.
type Part struct {
	Text  string
	Image *conversation.ImageContent
}

func NewTextPart(text string) Part {
	return Part{Text: text}
}

func NewImagePart(image *conversation.ImageContent) Part {
	return Part{Image: image}
}

func (p Part) IsImage() bool {
	return p.Image != nil
}

// PartsFromPrompt builds the request parts for an exchange: attachments
// first, then the prompt text if non-empty.
func PartsFromPrompt(prompt string, images []*conversation.ImageContent) []Part {
	parts := make([]Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, NewImagePart(img))
	}
	if prompt != "" {
		parts = append(parts, NewTextPart(prompt))
	}
	return parts
}

// Engine is the remote generation capability. Implementations handle
// provider-specific request building for services like Gemini or OpenAI.
//
// Generate issues exactly one remote call and returns the reply text. All
// transport, quota, and model errors are returned uniformly as a single
// error; the orchestrator does not distinguish failure kinds. There is no
// engine-level timeout: cancellation comes from ctx or from the provider's
// own limits.
type Engine interface {
	Generate(ctx context.Context, parts []Part) (string, error)
}
