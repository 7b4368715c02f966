package adapter

import (
	"context"

	"telegram-knowledge-bot/internal/domain/model"
)

// Downloader fetches a video through the remote download service for one
// format selector. The closed fallback list over selectors lives in the
// pipeline, which makes the retry policy visible and testable.
type Downloader interface {
	// Download returns the local path of the fetched file.
	Download(ctx context.Context, url, format string) (string, error)
	// Cleanup removes a previously downloaded file. Best effort.
	Cleanup(ctx context.Context, path string) error
}

// ContentAnalyzer runs the multimodal analysis of a downloaded video. The
// result is validated at this boundary; the core only passes it along and
// checks the explicit truncation signal.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, localPath, url, platform string) (*model.VideoAnalysis, error)
}

// ContentAuthor turns an approved analysis into long-form educational text.
type ContentAuthor interface {
	Author(ctx context.Context, a *model.VideoAnalysis, sel *model.ApprovalSelection) (*model.AuthoredContent, error)
	// Continue extends a truncated draft. Called at most once per job.
	Continue(ctx context.Context, a *model.VideoAnalysis, sel *model.ApprovalSelection, prior *model.AuthoredContent) (*model.AuthoredContent, error)
}

// ImageEvaluator decides whether an entry benefits from diagrams and plans
// them when it does.
type ImageEvaluator interface {
	Evaluate(ctx context.Context, a *model.VideoAnalysis, sel *model.ApprovalSelection) (*model.ImageDecision, error)
}

// ImageGenerator renders one planned diagram. Per-plan failures are skipped
// by the pipeline, never fatal to the job.
type ImageGenerator interface {
	Generate(ctx context.Context, plan model.ImagePlan) (*model.GeneratedImage, error)
}

// Persistor stores an assembled entry. It may fan out to several backing
// stores but reports a single logical outcome.
type Persistor interface {
	Save(ctx context.Context, entry *model.KnowledgeEntry) (*model.PersistedLocation, error)
}

// Classifier suggests a category for an analysis. Pure, no IO.
type Classifier interface {
	Suggest(a *model.VideoAnalysis) model.CategorySuggestion
}
