package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "linguahub",
		Subsystem: "ai",
		Name:      "completion_duration_seconds",
		Help:      "Duration of AI completion requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linguahub",
		Subsystem: "ai",
		Name:      "completion_failures_total",
		Help:      "Number of AI completion failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI generator.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGenerator implements StudyGuideGenerator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a new generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1500
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = 0.4
	}

	tracer := otel.Tracer("github.com/noah-isme/linguahub-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAIGenerator{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Model reports the model name used for completions.
func (g *OpenAIGenerator) Model() string {
	return g.cfg.Model
}

// Generate asks OpenAI for a study guide and parses the JSON response.
func (g *OpenAIGenerator) Generate(parent context.Context, input StudyGuideInput) (StudyGuide, error) {
	ctx, span := g.tracer.Start(parent, "openai.study_guide", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.String("guide.language", input.Language),
		attribute.String("guide.level", input.Level),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: studyGuideSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildStudyGuidePrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := g.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return StudyGuide{}, g.fail(span, fmt.Errorf("openai generate: %w", err))
	}

	if len(resp.Choices) == 0 {
		return StudyGuide{}, g.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	guide, err := ParseStudyGuide(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return StudyGuide{}, g.fail(span, err)
	}
	guide.Model = g.cfg.Model

	g.logger.Debug().
		Str("model", g.cfg.Model).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("study guide generated")

	return guide, nil
}

func (g *OpenAIGenerator) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues(g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func studyGuideSystemPrompt() string {
	return "You are a language teacher writing concise study guides. Respond with a JSON object containing title, summary, " +
		"and sections (an array of objects with heading, content and exercises). Pitch vocabulary and grammar at the requested CEFR level."
}

func buildStudyGuidePrompt(input StudyGuideInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Language\n")
	builder.WriteString(input.Language)
	builder.WriteString("\n\n## Level\n")
	builder.WriteString(input.Level)
	builder.WriteString("\n\n## Topic\n")
	builder.WriteString(input.Topic)
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

// ParseStudyGuide decodes a generator response. Sections without a heading are dropped.
func ParseStudyGuide(content string) (StudyGuide, error) {
	var guide StudyGuide
	if err := json.Unmarshal([]byte(content), &guide); err != nil {
		return StudyGuide{}, fmt.Errorf("parse study guide json: %w", err)
	}

	guide.Title = strings.TrimSpace(guide.Title)
	if guide.Title == "" {
		return StudyGuide{}, fmt.Errorf("study guide title missing")
	}

	sections := guide.Sections[:0]
	for _, section := range guide.Sections {
		section.Heading = strings.TrimSpace(section.Heading)
		if section.Heading == "" {
			continue
		}
		sections = append(sections, section)
	}
	guide.Sections = sections

	return guide, nil
}
