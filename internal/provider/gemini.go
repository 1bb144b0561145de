// Package provider implements the generative backend.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chatbridge/internal/domain"
	"chatbridge/internal/media"

	"google.golang.org/genai"
)

const (
	geminiDefaultModel = "gemini-2.0-flash"
	jpegMIME           = "image/jpeg"
)

// DefaultSystemInstruction frames the tagged parts produced by the normalizer.
const DefaultSystemInstruction = `You are a friendly assistant chatting with people through a messaging app.
Some messages carry metadata tags:
- "[Language] <code>" gives the user's preferred language. Reply in that language; use English when no language has been given.
- "[Sticker] <keywords>" means the user sent a sticker described by those keywords. React to the feeling it conveys.
- "[Location Title]", "[Location Address]", "[Latitude]" and "[Longitude]" describe a place the user shared.
When the user sends an image or a sequence of video frames, describe what you see in a sentence or two and respond to it.
Never write these tags in your own replies. Keep answers short and conversational.`

// GenerationConfig holds the sampling parameters sent with every request.
// Zero values leave the backend defaults in place.
type GenerationConfig struct {
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

type GeminiConfig struct {
	APIKey            string
	Model             string
	SystemInstruction string
	Generation        GenerationConfig
	HTTPTimeout       time.Duration
	Logger            *slog.Logger
}

// contentGenerator is satisfied by *genai.Models.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements domain.Backend on the Gemini API. It is stateless: the
// session sends the full history on every call.
type Gemini struct {
	models contentGenerator
	model  string
	config *genai.GenerateContentConfig
	logger *slog.Logger
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: no API key configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: SharedHTTPClient(cfg.HTTPTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(models contentGenerator, cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gemini{
		models: models,
		model:  cfg.Model,
		config: generateConfig(cfg),
		logger: cfg.Logger,
	}
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

// SubmitTurn sends history followed by parts as a new user turn and returns
// the model's text.
func (g *Gemini) SubmitTurn(ctx context.Context, history []domain.Turn, parts []domain.Part) (string, error) {
	contents, err := toContents(history, parts)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response (%s)", emptyReason(resp))
	}

	g.logger.Debug("gemini reply", "model", g.model, "contents", len(contents), "duration", time.Since(start))
	return text, nil
}

func generateConfig(cfg GeminiConfig) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		MaxOutputTokens:   cfg.Generation.MaxOutputTokens,
	}
	if cfg.Generation.Temperature > 0 {
		out.Temperature = genai.Ptr(cfg.Generation.Temperature)
	}
	if cfg.Generation.TopP > 0 {
		out.TopP = genai.Ptr(cfg.Generation.TopP)
	}
	if cfg.Generation.TopK > 0 {
		out.TopK = genai.Ptr(cfg.Generation.TopK)
	}
	return out
}

func toContents(history []domain.Turn, parts []domain.Part) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for i, turn := range history {
		c, err := toContent(turn.Role, turn.Parts)
		if err != nil {
			return nil, fmt.Errorf("history turn %d: %w", i, err)
		}
		contents = append(contents, c)
	}
	c, err := toContent(domain.RoleUser, parts)
	if err != nil {
		return nil, err
	}
	return append(contents, c), nil
}

func toContent(role domain.Role, parts []domain.Part) (*genai.Content, error) {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsText() {
			out = append(out, genai.NewPartFromText(p.Text))
			continue
		}
		data, err := media.EncodeJPEG(p.Image)
		if err != nil {
			return nil, err
		}
		out = append(out, genai.NewPartFromBytes(data, jpegMIME))
	}

	r := genai.Role(genai.RoleUser)
	if role == domain.RoleAssistant {
		r = genai.RoleModel
	}
	return genai.NewContentFromParts(out, r), nil
}

func emptyReason(resp *genai.GenerateContentResponse) string {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "no candidates"
	}
	if reason := resp.Candidates[0].FinishReason; reason != "" {
		return "finish reason " + string(reason)
	}
	return "no text parts"
}
