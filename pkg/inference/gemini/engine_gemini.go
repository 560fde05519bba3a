package gemini

import (
	"context"
	"math"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/go-go-golems/chatty/pkg/inference/engine"
	"github.com/go-go-golems/chatty/pkg/settings"
)

// GeminiEngine implements the Engine interface for Google's Gemini API.
type GeminiEngine struct {
	settings *settings.StepSettings
}

func NewGeminiEngine(stepSettings *settings.StepSettings) (*GeminiEngine, error) {
	if stepSettings == nil || stepSettings.Chat == nil || stepSettings.Chat.Engine == nil {
		return nil, errors.New("no engine specified")
	}
	return &GeminiEngine{settings: stepSettings}, nil
}

var _ engine.Engine = (*GeminiEngine)(nil)

func (e *GeminiEngine) Generate(ctx context.Context, parts []engine.Part) (string, error) {
	apiKey, err := e.settings.APIKey()
	if err != nil {
		return "", err
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if baseURL := e.settings.BaseURL(); baseURL != "" {
		opts = append(opts, option.WithEndpoint(baseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", errors.Wrap(err, "failed to create gemini client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close gemini client")
		}
	}()

	modelName := *e.settings.Chat.Engine
	model := client.GenerativeModel(modelName)
	applyGenerationConfig(model, e.settings.Chat)

	genaiParts, err := buildParts(parts)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("model", modelName).
		Int("num_parts", len(genaiParts)).
		Msg("gemini generate started")

	resp, err := model.GenerateContent(ctx, genaiParts...)
	if err != nil {
		log.Error().Err(err).Str("model", modelName).Msg("gemini generate failed")
		return "", errors.Wrap(err, "gemini generation failed")
	}

	text := extractText(resp)
	if text == "" {
		return "", errors.New("gemini returned no text")
	}

	log.Debug().Str("model", modelName).Int("text_len", len(text)).Msg("gemini generate completed")
	return text, nil
}

func applyGenerationConfig(model *genai.GenerativeModel, chat *settings.ChatSettings) {
	cfg := genai.GenerationConfig{}
	if chat.Temperature != nil {
		v := float32(*chat.Temperature)
		cfg.Temperature = &v
	}
	if chat.TopP != nil {
		v := float32(*chat.TopP)
		cfg.TopP = &v
	}
	if chat.TopK != nil {
		v := clampInt32(*chat.TopK)
		cfg.TopK = &v
	}
	if chat.MaxResponseTokens != nil {
		v := clampInt32(*chat.MaxResponseTokens)
		cfg.MaxOutputTokens = &v
	}
	model.GenerationConfig = cfg
}

func clampInt32(v int) int32 {
	if v < 0 {
		return 0
	}
	if v > int(math.MaxInt32) {
		return math.MaxInt32
	}
	return int32(int64(v)) // #nosec G115
}

func buildParts(parts []engine.Part) ([]genai.Part, error) {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsImage() {
			if len(p.Image.ImageContent) == 0 {
				return nil, errors.Errorf("image %s has no inline content", p.Image.ImageName)
			}
			out = append(out, genai.Blob{
				MIMEType: p.Image.MediaType,
				Data:     p.Image.ImageContent,
			})
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	if len(out) == 0 {
		return nil, errors.New("no parts to send")
	}
	return out, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	text := ""
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	return text
}
