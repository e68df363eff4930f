// Package llm extracts structured violent-death data from article text
// using Gemini. Model trouble never propagates: every error path degrades
// to a stub extraction so the pipeline keeps moving.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"vigia/internal/config"
	"vigia/internal/dates"
	"vigia/internal/logger"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-2.5-flash"
	// DefaultConfidence is assigned when the model omits a usable score.
	DefaultConfidence = 0.5

	// maxBodyRunes caps how much article text goes into the prompt.
	maxBodyRunes = 3000
	// stubSummary marks extractions produced without a model reply.
	stubSummary = "fallback"
)

// TextGenerator is the model transport. Client implements it over the
// Gemini API; tests substitute their own.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Client is the Gemini-backed TextGenerator.
type Client struct {
	modelName   string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	gClient     *genai.Client
}

// NewClient creates a Gemini client from configuration. The API key is
// required here; callers that tolerate a missing key use
// NewExtractorFromConfig instead.
func NewClient(ctx context.Context, cfg config.LLM) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName:   modelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.TimeoutDuration(),
		gClient:     gClient,
	}, nil
}

// GenerateText sends one prompt and returns the model's text reply.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	cfg := &genai.GenerateContentConfig{}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = c.maxTokens
	}
	if c.temperature > 0 {
		cfg.Temperature = genai.Ptr(c.temperature)
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// Extraction is one validated model pass over an article.
type Extraction struct {
	IsValid    bool       `json:"is_valid"`
	Summary    string     `json:"summary"`
	VictimName *string    `json:"victim_name"`
	Location   *string    `json:"location"`
	Date       *time.Time `json:"date"`
	Confidence float64    `json:"confidence"`
}

// Stub is the degraded extraction used when the model cannot be consulted
// or its reply cannot be trusted.
func Stub() Extraction {
	return Extraction{IsValid: true, Summary: stubSummary, Confidence: DefaultConfidence}
}

// IsStub reports whether e carries stub values rather than model output.
func (e Extraction) IsStub() bool {
	return e.Summary == stubSummary && e.VictimName == nil && e.Location == nil && e.Date == nil
}

// Input carries what the extraction prompt needs for one article.
type Input struct {
	Body        string
	Keywords    []string
	PublishedAt *time.Time // anchor for relative date expressions
}

// Extractor runs the extraction prompt and parses the reply.
type Extractor struct {
	generator TextGenerator
	city      string
	log       *slog.Logger
}

// NewExtractor builds an Extractor over a transport. A nil generator is
// allowed and makes the extractor degraded: every call yields the stub.
func NewExtractor(generator TextGenerator, city string) *Extractor {
	return &Extractor{
		generator: generator,
		city:      city,
		log:       logger.Component("llm"),
	}
}

// NewExtractorFromConfig wires the Gemini transport. A missing API key is
// not an error: credential absence is detected once here, at startup, and
// the extractor runs degraded from then on.
func NewExtractorFromConfig(ctx context.Context, cfg config.LLM, city string) *Extractor {
	log := logger.Component("llm")
	if cfg.APIKey == "" {
		log.Warn("no model API key configured, extractions will use stub values")
		return NewExtractor(nil, city)
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		log.Warn("model client unavailable, extractions will use stub values", "error", err.Error())
		return NewExtractor(nil, city)
	}
	return NewExtractor(client, city)
}

// Degraded reports whether Extract can only produce stubs.
func (e *Extractor) Degraded() bool {
	return e.generator == nil
}

// Extract classifies one article. It never fails: transport errors,
// malformed replies, and missing credentials all yield the stub.
func (e *Extractor) Extract(ctx context.Context, in Input) Extraction {
	if e.generator == nil {
		return Stub()
	}

	prompt := buildPrompt(in, e.city)
	response, err := e.generator.GenerateText(ctx, prompt)
	if err != nil {
		e.log.Warn("model call failed, using stub extraction", "error", err.Error())
		return Stub()
	}

	extraction, err := parseResponse(response)
	if err != nil {
		e.log.Warn("model reply unusable, using stub extraction", "error", err.Error())
		return Stub()
	}
	return extraction
}

// buildPrompt assembles the extraction prompt for one article.
func buildPrompt(in Input, city string) string {
	var sb strings.Builder

	sb.WriteString("You are an information extraction system monitoring violent deaths ")
	sb.WriteString(fmt.Sprintf("(homicídio, feminicídio, latrocínio, chacina) in %s, Brazil.\n", city))
	sb.WriteString("Analyze the Brazilian news article below.\n\n")

	sb.WriteString("ARTICLE:\n")
	sb.WriteString(truncateBody(in.Body))
	sb.WriteString("\n\n")

	if len(in.Keywords) > 0 {
		sb.WriteString("MATCHED KEYWORDS: ")
		sb.WriteString(strings.Join(in.Keywords, ", "))
		sb.WriteString("\n\n")
	}

	if in.PublishedAt != nil {
		sb.WriteString("PUBLICATION DATE: ")
		sb.WriteString(in.PublishedAt.Format("2006-01-02"))
		sb.WriteString("\n")
		sb.WriteString("Resolve relative expressions like \"ontem\" or \"na última sexta-feira\" against this date.\n\n")
	}

	sb.WriteString("Respond with a single JSON object and nothing else:\n")
	sb.WriteString("{\n")
	sb.WriteString(fmt.Sprintf("  \"is_valid\": <true only when the article reports a violent death in %s>,\n", city))
	sb.WriteString("  \"summary\": \"<1-2 sentences in Brazilian Portuguese describing the event>\",\n")
	sb.WriteString("  \"victim_name\": \"<full name, or null; join multiple victims with '; '>\",\n")
	sb.WriteString("  \"location\": \"<street or neighborhood as written in the article, or null>\",\n")
	sb.WriteString("  \"date\": \"<date of the death as YYYY-MM-DD, or null when the article gives none>\",\n")
	sb.WriteString("  \"confidence\": <number between 0.0 and 1.0>\n")
	sb.WriteString("}\n")

	return sb.String()
}

// truncateBody keeps the head of the article, never splitting a rune.
func truncateBody(body string) string {
	if utf8.RuneCountInString(body) <= maxBodyRunes {
		return body
	}
	return string([]rune(body)[:maxBodyRunes])
}

// parseResponse decodes the model reply into an Extraction, coercing the
// optional fields and rejecting replies without the is_valid discriminator.
func parseResponse(response string) (Extraction, error) {
	clean := strings.TrimSpace(response)
	if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```json")
		clean = strings.TrimPrefix(clean, "```")
		clean = strings.TrimSuffix(clean, "```")
		clean = strings.TrimSpace(clean)
	}

	var parsed struct {
		IsValid    *bool    `json:"is_valid"`
		Summary    string   `json:"summary"`
		VictimName *string  `json:"victim_name"`
		Location   *string  `json:"location"`
		Date       *string  `json:"date"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return Extraction{}, fmt.Errorf("failed to parse model reply: %w", err)
	}
	if parsed.IsValid == nil {
		return Extraction{}, fmt.Errorf("model reply missing is_valid")
	}

	summary := strings.TrimSpace(parsed.Summary)
	if *parsed.IsValid && summary == "" {
		return Extraction{}, fmt.Errorf("model reply missing summary")
	}

	// A date the model could not shape as YYYY-MM-DD stays null.
	var date *time.Time
	if d := optionalText(parsed.Date); d != nil {
		if t, err := dates.ParseYMD(*d); err == nil {
			date = &t
		}
	}

	return Extraction{
		IsValid:    *parsed.IsValid,
		Summary:    summary,
		VictimName: optionalText(parsed.VictimName),
		Location:   optionalText(parsed.Location),
		Date:       date,
		Confidence: coerceConfidence(parsed.Confidence),
	}, nil
}

// optionalText trims p and collapses empty or literal-null strings to nil.
func optionalText(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

// coerceConfidence returns the model score when it is usable, otherwise
// DefaultConfidence.
func coerceConfidence(p *float64) float64 {
	if p == nil {
		return DefaultConfidence
	}
	c := *p
	if math.IsNaN(c) || c < 0 || c > 1 {
		return DefaultConfidence
	}
	return c
}
