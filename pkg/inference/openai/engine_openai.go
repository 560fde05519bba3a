package openai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/chatty/pkg/inference/engine"
	"github.com/go-go-golems/chatty/pkg/settings"
)

// OpenAIEngine implements the Engine interface for OpenAI-compatible chat
// completion APIs. Image attachments are submitted as base64 data URLs.
type OpenAIEngine struct {
	settings *settings.StepSettings
}

func NewOpenAIEngine(stepSettings *settings.StepSettings) (*OpenAIEngine, error) {
	if stepSettings == nil || stepSettings.Chat == nil || stepSettings.Chat.Engine == nil {
		return nil, errors.New("no engine specified")
	}
	return &OpenAIEngine{settings: stepSettings}, nil
}

var _ engine.Engine = (*OpenAIEngine)(nil)

func (e *OpenAIEngine) Generate(ctx context.Context, parts []engine.Part) (string, error) {
	apiKey, err := e.settings.APIKey()
	if err != nil {
		return "", err
	}

	cfg := go_openai.DefaultConfig(apiKey)
	if baseURL := e.settings.BaseURL(); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := go_openai.NewClientWithConfig(cfg)

	msg, err := buildUserMessage(parts)
	if err != nil {
		return "", err
	}

	req := go_openai.ChatCompletionRequest{
		Model:    *e.settings.Chat.Engine,
		Messages: []go_openai.ChatCompletionMessage{msg},
	}
	if e.settings.Chat.Temperature != nil {
		req.Temperature = float32(*e.settings.Chat.Temperature)
	}
	if e.settings.Chat.TopP != nil {
		req.TopP = float32(*e.settings.Chat.TopP)
	}
	if e.settings.Chat.MaxResponseTokens != nil {
		req.MaxTokens = *e.settings.Chat.MaxResponseTokens
	}

	log.Debug().Str("model", req.Model).Msg("openai generate started")

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("model", req.Model).Msg("openai generate failed")
		return "", errors.Wrap(err, "openai generation failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", errors.New("openai returned no text")
	}

	log.Debug().Str("model", req.Model).Int("text_len", len(text)).Msg("openai generate completed")
	return text, nil
}

func buildUserMessage(parts []engine.Part) (go_openai.ChatCompletionMessage, error) {
	hasImages := false
	for _, p := range parts {
		if p.IsImage() {
			hasImages = true
			break
		}
	}

	// Text-only requests use the plain content field; mixed requests use
	// the multi-part content the vision models expect.
	if !hasImages {
		text := ""
		for _, p := range parts {
			text += p.Text
		}
		if text == "" {
			return go_openai.ChatCompletionMessage{}, errors.New("no parts to send")
		}
		return go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleUser,
			Content: text,
		}, nil
	}

	multi := make([]go_openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		if p.IsImage() {
			if len(p.Image.ImageContent) == 0 {
				return go_openai.ChatCompletionMessage{}, errors.Errorf("image %s has no inline content", p.Image.ImageName)
			}
			dataURL := fmt.Sprintf("data:%s;base64,%s",
				p.Image.MediaType,
				base64.StdEncoding.EncodeToString(p.Image.ImageContent))
			multi = append(multi, go_openai.ChatMessagePart{
				Type: go_openai.ChatMessagePartTypeImageURL,
				ImageURL: &go_openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: go_openai.ImageURLDetailAuto,
				},
			})
			continue
		}
		multi = append(multi, go_openai.ChatMessagePart{
			Type: go_openai.ChatMessagePartTypeText,
			Text: p.Text,
		})
	}

	return go_openai.ChatCompletionMessage{
		Role:         go_openai.ChatMessageRoleUser,
		MultiContent: multi,
	}, nil
}
