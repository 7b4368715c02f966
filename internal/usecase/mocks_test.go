package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
)

// ---- Downloader ----

type fakeDownloader struct {
	mu          sync.Mutex
	failFormats map[string]error // formats that fail; others succeed
	path        string
	calls       []string
	cleaned     []string
}

var _ adapter.Downloader = (*fakeDownloader)(nil)

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{failFormats: map[string]error{}, path: "/tmp/fake-video.mp4"}
}

func (f *fakeDownloader) Download(ctx context.Context, url, format string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, format)
	if err, ok := f.failFormats[format]; ok {
		return "", err
	}
	return f.path, nil
}

func (f *fakeDownloader) Cleanup(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, path)
	return nil
}

func (f *fakeDownloader) downloadCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDownloader) cleanedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleaned...)
}

// ---- Analyzer ----

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	err   error
}

var _ adapter.ContentAnalyzer = (*fakeAnalyzer)(nil)

func (f *fakeAnalyzer) Analyze(ctx context.Context, localPath, url, platform string) (*model.VideoAnalysis, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &model.VideoAnalysis{
		URL:        url,
		Platform:   platform,
		Title:      fmt.Sprintf("Docker Basics (pass %d)", n),
		Topic:      "containers",
		Summary:    "An introduction to Docker images and containers.",
		KeyPoints:  []string{"images are layered", "containers are ephemeral"},
		Tools:      []string{"docker"},
		Difficulty: "beginner",
		AnalyzedAt: time.Now(),
	}, nil
}

func (f *fakeAnalyzer) analyzeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ---- Author ----

type fakeAuthor struct {
	mu            sync.Mutex
	truncateFirst bool
	err           error
	release       chan struct{} // when set, Author blocks until it is closed
	authorCalls   int
	continueCalls int
}

var _ adapter.ContentAuthor = (*fakeAuthor)(nil)

func (f *fakeAuthor) Author(ctx context.Context, a *model.VideoAnalysis, sel *model.ApprovalSelection) (*model.AuthoredContent, error) {
	f.mu.Lock()
	f.authorCalls++
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	if f.err != nil {
		return nil, f.err
	}
	md := "# " + a.Title + "\n\nFirst half of the article."
	return &model.AuthoredContent{
		Markdown:  md,
		WordCount: len(strings.Fields(md)),
		Truncated: f.truncateFirst,
	}, nil
}

func (f *fakeAuthor) Continue(ctx context.Context, a *model.VideoAnalysis, sel *model.ApprovalSelection, prior *model.AuthoredContent) (*model.AuthoredContent, error) {
	f.mu.Lock()
	f.continueCalls++
	f.mu.Unlock()
	md := prior.Markdown + " Second half of the article."
	return &model.AuthoredContent{
		Markdown:  md,
		WordCount: len(strings.Fields(md)),
		Truncated: false,
	}, nil
}

func (f *fakeAuthor) authored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorCalls
}

// ---- Image evaluator / generator ----

type fakeEvaluator struct {
	decision *model.ImageDecision
	err      error
}

var _ adapter.ImageEvaluator = (*fakeEvaluator)(nil)

func (f *fakeEvaluator) Evaluate(ctx context.Context, a *model.VideoAnalysis, sel *model.ApprovalSelection) (*model.ImageDecision, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.decision != nil {
		return f.decision, nil
	}
	return &model.ImageDecision{NeedsImages: false, Reason: "prose is enough"}, nil
}

type fakeImageGen struct {
	mu    sync.Mutex
	err   error
	calls int
}

var _ adapter.ImageGenerator = (*fakeImageGen)(nil)

func (f *fakeImageGen) Generate(ctx context.Context, plan model.ImagePlan) (*model.GeneratedImage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &model.GeneratedImage{
		Slot:    plan.Slot,
		Caption: plan.Caption,
		MIME:    "image/png",
		Data:    []byte{0x89, 0x50},
	}, nil
}

// ---- Persistor ----

type fakePersistor struct {
	mu      sync.Mutex
	err     error
	entries []*model.KnowledgeEntry
}

var _ adapter.Persistor = (*fakePersistor)(nil)

func (f *fakePersistor) Save(ctx context.Context, e *model.KnowledgeEntry) (*model.PersistedLocation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.entries = append(f.entries, e)
	f.mu.Unlock()
	return &model.PersistedLocation{
		EntryID:       e.ID,
		MarkdownPath:  "/kb/" + string(e.Category) + "/" + e.ID + ".md",
		DatabaseSaved: true,
	}, nil
}

func (f *fakePersistor) saved() []*model.KnowledgeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.KnowledgeEntry(nil), f.entries...)
}

// ---- Notifier ----

type fakeNotifier struct {
	mu      sync.Mutex
	nextRef int
	updates []adapter.StatusUpdate
}

var _ adapter.Notifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) Notify(ctx context.Context, owner int64, ref int, upd adapter.StatusUpdate) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, upd)
	if ref != 0 {
		return ref, nil
	}
	f.nextRef++
	return f.nextRef, nil
}

func (f *fakeNotifier) all() []adapter.StatusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adapter.StatusUpdate(nil), f.updates...)
}

func (f *fakeNotifier) last() (adapter.StatusUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return adapter.StatusUpdate{}, false
	}
	return f.updates[len(f.updates)-1], true
}

func (f *fakeNotifier) seenState(st model.JobState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.updates {
		if u.State == st {
			return true
		}
	}
	return false
}

// ---- Classifier ----

type fakeClassifier struct {
	suggestion model.CategorySuggestion
}

var _ adapter.Classifier = (*fakeClassifier)(nil)

func (f *fakeClassifier) Suggest(a *model.VideoAnalysis) model.CategorySuggestion {
	if f.suggestion.Category == "" {
		return model.CategorySuggestion{Category: model.CategoryDevOps, Confidence: 0.8, Reason: "matched docker"}
	}
	return f.suggestion
}
