package settings

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type ApiType string

const (
	ApiTypeGemini ApiType = "gemini"
	ApiTypeOpenAI ApiType = "openai"
)

// Generation defaults, matching the product's tuned values.
const (
	DefaultEngine            = "gemini-2.5-flash"
	DefaultTemperature       = 1.0
	DefaultTopP              = 0.95
	DefaultTopK              = 64
	DefaultMaxResponseTokens = 8192
)

// ChatSettings configures the generation request. Pointer fields distinguish
// "unset" from zero so providers can fall back to their own defaults.
type ChatSettings struct {
	Engine            *string  `yaml:"engine,omitempty"`
	ApiType           *ApiType `yaml:"api_type,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
	TopP              *float64 `yaml:"top_p,omitempty"`
	TopK              *int     `yaml:"top_k,omitempty"`
	MaxResponseTokens *int     `yaml:"max_response_tokens,omitempty"`
}

func NewChatSettings() *ChatSettings {
	engine := DefaultEngine
	apiType := ApiTypeGemini
	temperature := DefaultTemperature
	topP := DefaultTopP
	topK := DefaultTopK
	maxTokens := DefaultMaxResponseTokens

	return &ChatSettings{
		Engine:            &engine,
		ApiType:           &apiType,
		Temperature:       &temperature,
		TopP:              &topP,
		TopK:              &topK,
		MaxResponseTokens: &maxTokens,
	}
}

// APISettings holds per-provider credentials and endpoints, keyed by
// "<api-type>-api-key" and "<api-type>-base-url".
type APISettings struct {
	APIKeys  map[string]string `yaml:"api_keys,omitempty"`
	BaseUrls map[string]string `yaml:"base_urls,omitempty"`
}

func NewAPISettings() *APISettings {
	return &APISettings{
		APIKeys:  map[string]string{},
		BaseUrls: map[string]string{},
	}
}

type StepSettings struct {
	Chat *ChatSettings `yaml:"chat,omitempty"`
	API  *APISettings  `yaml:"api,omitempty"`
}

func NewStepSettings() *StepSettings {
	return &StepSettings{
		Chat: NewChatSettings(),
		API:  NewAPISettings(),
	}
}

func NewStepSettingsFromYAML(s io.Reader) (*StepSettings, error) {
	settings_ := NewStepSettings()
	if err := yaml.NewDecoder(s).Decode(settings_); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if settings_.Chat == nil {
		settings_.Chat = NewChatSettings()
	}
	if settings_.API == nil {
		settings_.API = NewAPISettings()
	}
	return settings_, nil
}

// UpdateFromViper overlays CLI/env/config values onto the settings. Only
// keys that were actually set are applied.
func (ss *StepSettings) UpdateFromViper(v *viper.Viper) {
	if v.IsSet("api-type") {
		apiType := ApiType(v.GetString("api-type"))
		ss.Chat.ApiType = &apiType
	}
	if v.IsSet("model") {
		engine := v.GetString("model")
		ss.Chat.Engine = &engine
	}
	if v.IsSet("temperature") {
		t := v.GetFloat64("temperature")
		ss.Chat.Temperature = &t
	}
	for _, apiType := range []ApiType{ApiTypeGemini, ApiTypeOpenAI} {
		keyName := string(apiType) + "-api-key"
		if v.IsSet(keyName) {
			ss.API.APIKeys[keyName] = v.GetString(keyName)
		}
		urlName := string(apiType) + "-base-url"
		if v.IsSet(urlName) {
			ss.API.BaseUrls[urlName] = v.GetString(urlName)
		}
	}
}

// APIKey returns the credential for the configured api type.
func (ss *StepSettings) APIKey() (string, error) {
	if ss.Chat == nil || ss.Chat.ApiType == nil {
		return "", errors.New("no chat api type specified")
	}
	keyName := string(*ss.Chat.ApiType) + "-api-key"
	apiKey, ok := ss.API.APIKeys[keyName]
	if !ok || apiKey == "" {
		return "", errors.Errorf("missing API key %s", keyName)
	}
	return apiKey, nil
}

// BaseURL returns the endpoint override for the configured api type, or ""
// when the provider default should be used.
func (ss *StepSettings) BaseURL() string {
	if ss.Chat == nil || ss.Chat.ApiType == nil {
		return ""
	}
	return ss.API.BaseUrls[string(*ss.Chat.ApiType)+"-base-url"]
}

func (ss *StepSettings) Clone() *StepSettings {
	out := NewStepSettings()
	if ss.Chat != nil {
		chat := *ss.Chat
		out.Chat = &chat
	}
	if ss.API != nil {
		out.API = NewAPISettings()
		for k, v := range ss.API.APIKeys {
			out.API.APIKeys[k] = v
		}
		for k, v := range ss.API.BaseUrls {
			out.API.BaseUrls[k] = v
		}
	}
	return out
}

// GetMetadata returns the settings that are safe to attach to events and
// logs. Credentials are never included.
func (ss *StepSettings) GetMetadata() map[string]interface{} {
	metadata := make(map[string]interface{})

	if ss.Chat != nil {
		if ss.Chat.Engine != nil {
			metadata["engine"] = *ss.Chat.Engine
		}
		if ss.Chat.ApiType != nil {
			metadata["api_type"] = string(*ss.Chat.ApiType)
		}
		if ss.Chat.Temperature != nil {
			metadata["temperature"] = *ss.Chat.Temperature
		}
		if ss.Chat.TopP != nil {
			metadata["top_p"] = *ss.Chat.TopP
		}
		if ss.Chat.TopK != nil {
			metadata["top_k"] = *ss.Chat.TopK
		}
		if ss.Chat.MaxResponseTokens != nil {
			metadata["max_response_tokens"] = *ss.Chat.MaxResponseTokens
		}
	}

	return metadata
}
