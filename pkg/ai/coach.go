package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoCoach indicates hints are disabled because no provider credentials are configured.
var ErrNoCoach = errors.New("no ai coach configured")

// CoachConfig selects and configures a provider.
type CoachConfig struct {
	Provider        string
	Model           string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	Logger          zerolog.Logger
}

// NewCoach builds the coach for cfg.Provider. It returns ErrNoCoach when the
// selected provider has no API key.
func NewCoach(cfg CoachConfig) (Coach, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, ErrNoCoach
		}
		coach, err := NewOpenAICoach(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.Model, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		return coach, nil
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, ErrNoCoach
		}
		coach, err := NewAnthropicCoach(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.Model, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		return coach, nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}
