package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIConfig defines configuration options for the OpenAI coach.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAICoach implements Coach against the OpenAI chat completion API.
type OpenAICoach struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAICoach builds a new coach using the provided configuration.
func NewOpenAICoach(cfg OpenAIConfig) (*OpenAICoach, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAICoach{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/scorestream-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_coach").Logger(),
	}, nil
}

// Hint sends the hint request to OpenAI and parses the response.
func (c *OpenAICoach) Hint(parent context.Context, input HintInput) (HintResult, error) {
	ctx, span := c.tracer.Start(parent, "openai.hint", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: coachSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildHintPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := c.client.CreateChatCompletion(ctx, request)
	hintDuration.WithLabelValues(ProviderOpenAI, c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return HintResult{}, c.fail(span, fmt.Errorf("openai hint: %w", err))
	}

	if len(resp.Choices) == 0 {
		return HintResult{}, c.fail(span, errors.New("no choices returned from openai"))
	}

	hint, err := parseHintResponse(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return HintResult{}, c.fail(span, err)
	}

	c.logger.Debug().Int("total_tokens", resp.Usage.TotalTokens).Msg("hint generated")

	return HintResult{Hint: hint, Provider: ProviderOpenAI, Model: c.cfg.Model}, nil
}

func (c *OpenAICoach) fail(span trace.Span, err error) error {
	hintFailures.WithLabelValues(ProviderOpenAI, c.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
