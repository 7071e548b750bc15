package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AnthropicConfig defines configuration options for the Anthropic coach.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
	Logger    zerolog.Logger
}

// AnthropicCoach implements Coach against the Anthropic messages API.
type AnthropicCoach struct {
	client anthropic.Client
	cfg    AnthropicConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewAnthropicCoach builds a new coach using the provided configuration.
func NewAnthropicCoach(cfg AnthropicConfig) (*AnthropicCoach, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaude3_5HaikuLatest)
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicCoach{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/scorestream-api/pkg/ai/anthropic"),
		logger: logger.With().Str("component", "anthropic_coach").Logger(),
	}, nil
}

// Hint sends the hint request to Anthropic and parses the response.
func (c *AnthropicCoach) Hint(parent context.Context, input HintInput) (HintResult, error) {
	ctx, span := c.tracer.Start(parent, "anthropic.hint", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: coachSystemPrompt()}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildHintPrompt(input))),
		},
	})
	hintDuration.WithLabelValues(ProviderAnthropic, c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return HintResult{}, c.fail(span, fmt.Errorf("anthropic hint: %w", err))
	}

	var text strings.Builder
	for _, block := range message.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	hint, err := parseHintResponse(text.String())
	if err != nil {
		return HintResult{}, c.fail(span, err)
	}

	c.logger.Debug().Int64("output_tokens", message.Usage.OutputTokens).Msg("hint generated")

	return HintResult{Hint: hint, Provider: ProviderAnthropic, Model: c.cfg.Model}, nil
}

func (c *AnthropicCoach) fail(span trace.Span, err error) error {
	hintFailures.WithLabelValues(ProviderAnthropic, c.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
