package inference

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatty/pkg/inference/engine"
	"github.com/go-go-golems/chatty/pkg/inference/gemini"
	"github.com/go-go-golems/chatty/pkg/inference/openai"
	"github.com/go-go-golems/chatty/pkg/settings"
)

// StandardEngineFactory builds the provider engine matching the configured
// api type.
type StandardEngineFactory struct {
	Settings *settings.StepSettings
}

func (f *StandardEngineFactory) NewEngine() (engine.Engine, error) {
	settings_ := f.Settings
	if settings_ == nil {
		settings_ = settings.NewStepSettings()
	}
	settings_ = settings_.Clone()

	if settings_.Chat == nil || settings_.Chat.Engine == nil {
		return nil, errors.New("no chat engine specified")
	}
	if settings_.Chat.ApiType == nil {
		return nil, errors.New("no chat api type specified")
	}

	switch *settings_.Chat.ApiType {
	case settings.ApiTypeGemini:
		return gemini.NewGeminiEngine(settings_)
	case settings.ApiTypeOpenAI:
		return openai.NewOpenAIEngine(settings_)
	}

	return nil, errors.Errorf("unsupported api type %s", *settings_.Chat.ApiType)
}
