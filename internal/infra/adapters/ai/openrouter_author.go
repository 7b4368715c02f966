package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"telegram-knowledge-bot/internal/config"
	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
	"telegram-knowledge-bot/internal/infra/metrics"
)

// OpenRouterAuthor writes long-form articles through OpenRouter's
// OpenAI-compatible chat API.
type OpenRouterAuthor struct {
	client      openai.Client
	model       string
	maxTokens   int
	targetWords int
	encoder     *tiktoken.Tiktoken
	log         *zerolog.Logger
}

var _ adapter.ContentAuthor = (*OpenRouterAuthor)(nil)

func NewOpenRouterAuthor(cfg *config.AIConfig, log *zerolog.Logger) (*OpenRouterAuthor, error) {
	if cfg.OpenRouterKey == "" {
		return nil, errors.New("openrouter api key empty")
	}
	// Approximate counter for providers that omit usage data.
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenRouterKey),
		option.WithBaseURL(cfg.OpenRouterBase),
	)
	return &OpenRouterAuthor{
		client:      client,
		model:       cfg.AuthorModel,
		maxTokens:   cfg.MaxTokens,
		targetWords: cfg.TargetWords,
		encoder:     encoder,
		log:         log,
	}, nil
}

const authorSystemPrompt = `You are a technical writer building a personal knowledge base. You turn short-video analyses into thorough, self-contained educational articles in Markdown. Expand on the video's material with accurate background, examples and practical steps. Never mention the video or that this came from one.`

func (o *OpenRouterAuthor) Author(ctx context.Context, a *model.VideoAnalysis, sel *model.ApprovalSelection) (*model.AuthoredContent, error) {
	prompt := o.buildPrompt(a, sel)
	return o.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(authorSystemPrompt),
		openai.UserMessage(prompt),
	}, "")
}

// Continue extends a truncated draft once. The prior text is replayed as the
// assistant turn so the model picks up mid-sentence.
func (o *OpenRouterAuthor) Continue(ctx context.Context, a *model.VideoAnalysis, sel *model.ApprovalSelection, prior *model.AuthoredContent) (*model.AuthoredContent, error) {
	prompt := o.buildPrompt(a, sel)
	return o.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(authorSystemPrompt),
		openai.UserMessage(prompt),
		openai.AssistantMessage(prior.Markdown),
		openai.UserMessage("Continue exactly where you left off. Do not repeat anything already written."),
	}, prior.Markdown)
}

func (o *OpenRouterAuthor) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, prefix string) (*model.AuthoredContent, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(o.model),
		Messages:  messages,
		MaxTokens: openai.Int(int64(o.maxTokens)),
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openrouter returned no choices")
	}

	choice := resp.Choices[0]
	text := choice.Message.Content
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("openrouter returned empty content")
	}

	promptTokens := int(resp.Usage.PromptTokens)
	completionTokens := int(resp.Usage.CompletionTokens)
	if completionTokens == 0 {
		completionTokens = len(o.encoder.Encode(text, nil, nil))
	}
	metrics.ObserveTokens("openrouter", "author", promptTokens, completionTokens)

	markdown := prefix + text
	return &model.AuthoredContent{
		Markdown:         markdown,
		WordCount:        len(strings.Fields(markdown)),
		Truncated:        choice.FinishReason == "length",
		Model:            o.model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

func (o *OpenRouterAuthor) buildPrompt(a *model.VideoAnalysis, sel *model.ApprovalSelection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a ~%d word Markdown article.\n\n", o.targetWords)
	fmt.Fprintf(&b, "Title: %s\nTopic: %s\nCategory: %s / %s\nDifficulty: %s\n\n",
		a.Title, a.Topic, sel.Category.Display(), sel.Subcategory, a.Difficulty)
	fmt.Fprintf(&b, "Summary of the source material:\n%s\n", a.Summary)
	if len(a.KeyPoints) > 0 {
		b.WriteString("\nKey points to cover:\n")
		for _, kp := range a.KeyPoints {
			b.WriteString("- " + kp + "\n")
		}
	}
	if len(a.Tools) > 0 {
		b.WriteString("\nTools involved: " + strings.Join(a.Tools, ", ") + "\n")
	}
	b.WriteString("\nStructure it with headings, include concrete examples and finish with a short takeaway section.")
	return b.String()
}

// OpenRouterEvaluator decides whether an entry needs diagrams and plans them.
type OpenRouterEvaluator struct {
	client openai.Client
	model  string
	log    *zerolog.Logger
}

var _ adapter.ImageEvaluator = (*OpenRouterEvaluator)(nil)

func NewOpenRouterEvaluator(cfg *config.AIConfig, log *zerolog.Logger) (*OpenRouterEvaluator, error) {
	if cfg.OpenRouterKey == "" {
		return nil, errors.New("openrouter api key empty")
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenRouterKey),
		option.WithBaseURL(cfg.OpenRouterBase),
	)
	return &OpenRouterEvaluator{client: client, model: cfg.AuthorModel, log: log}, nil
}

const evaluatorPrompt = `Decide whether this knowledge-base article would genuinely benefit from explanatory diagrams. Most articles do not. Reply with a single JSON object:
{"needs_images": bool, "reason": "one sentence", "plans": [{"slot": 1, "caption": "...", "prompt": "detailed prompt for an image model"}]}
Plan at most 3 diagrams, only for architecture, flows or comparisons that are hard to convey in prose. JSON only.`

func (e *OpenRouterEvaluator) Evaluate(ctx context.Context, a *model.VideoAnalysis, sel *model.ApprovalSelection) (*model.ImageDecision, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nTitle: %s\nSummary: %s\n", a.Topic, a.Title, a.Summary)
	if len(a.KeyPoints) > 0 {
		b.WriteString("Key points: " + strings.Join(a.KeyPoints, "; ") + "\n")
	}

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(evaluatorPrompt),
			openai.UserMessage(b.String()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter evaluate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openrouter returned no choices")
	}
	metrics.ObserveTokens("openrouter", "evaluate", int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))

	var decision model.ImageDecision
	if err := json.Unmarshal([]byte(extractJSON(resp.Choices[0].Message.Content)), &decision); err != nil {
		return nil, fmt.Errorf("parse image decision: %w", err)
	}
	return &decision, nil
}
