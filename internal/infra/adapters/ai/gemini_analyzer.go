package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"telegram-knowledge-bot/internal/config"
	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
	"telegram-knowledge-bot/internal/infra/metrics"
)

// GeminiAnalyzer sends the downloaded video to a multimodal Gemini model and
// parses the structured analysis out of its JSON reply.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
	log    *zerolog.Logger
}

var _ adapter.ContentAnalyzer = (*GeminiAnalyzer)(nil)

func NewGeminiAnalyzer(ctx context.Context, cfg *config.AIConfig, log *zerolog.Logger) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiAnalyzer{client: client, model: cfg.GeminiModel, log: log}, nil
}

// analysisWire is the JSON shape requested from the model.
type analysisWire struct {
	Title           string   `json:"title"`
	Topic           string   `json:"topic"`
	Summary         string   `json:"summary"`
	KeyPoints       []string `json:"key_points"`
	Tools           []string `json:"tools"`
	Entities        []string `json:"entities"`
	Difficulty      string   `json:"difficulty"`
	TranscriptWords int      `json:"transcript_words"`
	QualityScore    float64  `json:"quality_score"`
}

const analysisPrompt = `Analyze this short educational video. Reply with a single JSON object:
{
  "title": "short descriptive title",
  "topic": "the main technical topic",
  "summary": "3-5 sentence summary of what the video teaches",
  "key_points": ["the concrete takeaways"],
  "tools": ["tools, libraries or products mentioned"],
  "entities": ["other named things: companies, languages, sites"],
  "difficulty": "beginner|intermediate|advanced|expert",
  "transcript_words": <approximate spoken word count>,
  "quality_score": <0-100, educational value of the content>
}
Transcribe what is said and shown, then fill the fields from that. JSON only.`

func (g *GeminiAnalyzer) Analyze(ctx context.Context, localPath, url, platform string) (*model.VideoAnalysis, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read video file: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(analysisPrompt),
			genai.NewPartFromBytes(data, "video/mp4"),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	truncated := resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens
	if resp.UsageMetadata != nil {
		metrics.ObserveTokens("gemini", "analyze",
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount))
	}

	text := resp.Text()
	var wire analysisWire
	if err := json.Unmarshal([]byte(extractJSON(text)), &wire); err != nil {
		return nil, fmt.Errorf("parse analysis json: %w", err)
	}

	sum := sha256.Sum256(data)
	a := &model.VideoAnalysis{
		URL:             url,
		Platform:        platform,
		Title:           strings.TrimSpace(wire.Title),
		Topic:           strings.TrimSpace(wire.Topic),
		Summary:         strings.TrimSpace(wire.Summary),
		KeyPoints:       wire.KeyPoints,
		Tools:           wire.Tools,
		Entities:        wire.Entities,
		Difficulty:      strings.ToLower(strings.TrimSpace(wire.Difficulty)),
		TranscriptWords: wire.TranscriptWords,
		QualityScore:    wire.QualityScore,
		ContentHash:     hex.EncodeToString(sum[:]),
		Truncated:       truncated,
		Model:           g.model,
		AnalyzedAt:      time.Now(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
