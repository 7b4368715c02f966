package model

import (
	"errors"
	"time"
)

// VideoAnalysis is the structured result of the multimodal analysis stage.
// It is validated once at the analyzer boundary; everything downstream can
// rely on the required fields being present.
type VideoAnalysis struct {
	URL      string
	Platform string

	Title      string
	Topic      string
	Summary    string
	KeyPoints  []string
	Tools      []string
	Entities   []string
	Difficulty string // beginner | intermediate | advanced | expert

	TranscriptWords int
	QualityScore    float64 // 0-100
	ContentHash     string

	// Truncated is set when the provider stopped at its output limit, i.e.
	// the analysis itself may be incomplete.
	Truncated bool

	Model      string
	AnalyzedAt time.Time
}

func (a *VideoAnalysis) Validate() error {
	if a == nil {
		return errors.New("analysis is nil")
	}
	if a.Title == "" {
		return errors.New("analysis missing title")
	}
	if a.Topic == "" {
		return errors.New("analysis missing topic")
	}
	if a.Summary == "" {
		return errors.New("analysis missing summary")
	}
	return nil
}

// AuthoredContent is the long-form educational text produced from an
// approved analysis.
type AuthoredContent struct {
	Markdown  string
	WordCount int

	// Truncated is set when the provider hit its output ceiling; the
	// pipeline performs at most one continuation call before proceeding.
	Truncated bool

	Model            string
	PromptTokens     int
	CompletionTokens int
}

// ImagePlan describes one illustrative diagram the evaluator asked for.
type ImagePlan struct {
	Slot    int    `json:"slot"`
	Caption string `json:"caption"`
	Prompt  string `json:"prompt"`
}

// ImageDecision is the image-necessity verdict for an entry. NeedsImages
// false is a normal outcome, not an error: the generation stage is skipped.
type ImageDecision struct {
	NeedsImages bool        `json:"needs_images"`
	Reason      string      `json:"reason"`
	Plans       []ImagePlan `json:"plans"`
}

type GeneratedImage struct {
	Slot     int
	Caption  string
	MIME     string
	Data     []byte
	FileName string
}

// KnowledgeEntry is the fully assembled artifact handed to the persistor.
type KnowledgeEntry struct {
	ID          string
	Title       string
	Category    Category
	Subcategory string

	SourceURL string
	Platform  string

	Summary    string
	Body       string
	Tools      []string
	Difficulty string
	WordCount  int

	QualityFlags []string
	Images       []GeneratedImage

	CreatedAt time.Time
}

// PersistedLocation reports where an entry ended up. The markdown path is
// authoritative; the database record is best-effort.
type PersistedLocation struct {
	EntryID       string
	MarkdownPath  string
	DatabaseSaved bool
}
