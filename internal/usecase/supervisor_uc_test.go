package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-knowledge-bot/internal/config"
	"telegram-knowledge-bot/internal/domain"
	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/infra/state"
	"telegram-knowledge-bot/internal/infra/worker"
)

const testURL = "https://www.tiktok.com/@dev/video/7123456789"

type testEnv struct {
	sup      *JobSupervisor
	sessions *state.SessionStore

	downloader *fakeDownloader
	analyzer   *fakeAnalyzer
	author     *fakeAuthor
	evaluator  *fakeEvaluator
	imageGen   *fakeImageGen
	persistor  *fakePersistor
	notifier   *fakeNotifier
}

// newTestEnv wires a supervisor over fakes with a running pool. Configure the
// fakes before the first Submit.
func newTestEnv(t *testing.T, rateCeiling int) *testEnv {
	t.Helper()
	log := zerolog.Nop()

	env := &testEnv{
		downloader: newFakeDownloader(),
		analyzer:   &fakeAnalyzer{},
		author:     &fakeAuthor{},
		evaluator:  &fakeEvaluator{},
		imageGen:   &fakeImageGen{},
		persistor:  &fakePersistor{},
		notifier:   &fakeNotifier{},
	}

	pipeline := NewPipeline(
		env.downloader, env.analyzer, env.author, env.evaluator, env.imageGen, env.persistor,
		[]string{"hi", "mid", "low"}, true, 3, config.TimeoutConfig{}, &log,
	)
	pool := worker.NewPool(2, &log)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Stop()
	})

	env.sessions = state.NewSessionStore(&log)
	rate := state.NewRateLimiter(rateCeiling, time.Hour)
	gate := NewApprovalGate(&log)
	env.sup = NewJobSupervisor(
		env.sessions, rate, pipeline, gate, pool, env.notifier, &fakeClassifier{},
		30*time.Minute, &log,
	)
	return env
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// submitAndAwaitCheckpoint runs a job to the approval checkpoint.
func submitAndAwaitCheckpoint(t *testing.T, env *testEnv, owner int64) *model.Job {
	t.Helper()
	job, err := env.sup.Submit(context.Background(), owner, testURL)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, "approval checkpoint", func() bool {
		sess, ok := env.sessions.Get(owner)
		return ok && sess.Job != nil && sess.Job.State == model.JobStateAwaitingApproval
	})
	return job
}

func TestSubmitRejectsUnsupportedURL(t *testing.T) {
	env := newTestEnv(t, 10)
	for _, text := range []string{
		"hello there",
		"https://youtube.com/watch?v=abc",
		"https://tiktok.example.com/fake",
	} {
		if _, err := env.sup.Submit(context.Background(), 1, text); !errors.Is(err, domain.ErrUnsupportedURL) {
			t.Errorf("Submit(%q) err = %v, want ErrUnsupportedURL", text, err)
		}
	}
	// Rejections spent no rate budget: a real link still goes through.
	if _, err := env.sup.Submit(context.Background(), 1, testURL); err != nil {
		t.Fatalf("Submit after rejections: %v", err)
	}
}

func TestSubmitRejectionOrder(t *testing.T) {
	// Ceiling of one: the second valid submission hits the rate wall before
	// the single-job rule.
	env := newTestEnv(t, 1)
	if _, err := env.sup.Submit(context.Background(), 1, testURL); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := env.sup.Submit(context.Background(), 1, testURL); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("second Submit err = %v, want ErrRateLimited", err)
	}
	// An unsupported URL outranks both.
	if _, err := env.sup.Submit(context.Background(), 1, "not a link"); !errors.Is(err, domain.ErrUnsupportedURL) {
		t.Fatalf("unsupported Submit err = %v, want ErrUnsupportedURL", err)
	}
}

func TestSubmitRejectsSecondJob(t *testing.T) {
	env := newTestEnv(t, 10)
	submitAndAwaitCheckpoint(t, env, 1)
	if _, err := env.sup.Submit(context.Background(), 1, testURL); !errors.Is(err, domain.ErrJobActive) {
		t.Fatalf("Submit err = %v, want ErrJobActive", err)
	}
	// A different owner is unaffected.
	if _, err := env.sup.Submit(context.Background(), 2, testURL); err != nil {
		t.Fatalf("Submit other owner: %v", err)
	}
}

func TestApproveFlowCompletes(t *testing.T) {
	env := newTestEnv(t, 10)
	job := submitAndAwaitCheckpoint(t, env, 1)
	ctx := context.Background()

	if err := env.sup.HandleAction(ctx, 1, job.ID, ActionApprove); err != nil {
		t.Fatalf("approve: %v", err)
	}
	last, _ := env.notifier.last()
	if len(last.Menu) == 0 || last.Menu[0].Field != model.SelectionCategory {
		t.Fatalf("expected category menu after approve, got %+v", last.Menu)
	}
	foundMarked := false
	for _, a := range last.Menu {
		if a.Marked && a.Value == string(model.CategoryDevOps) {
			foundMarked = true
		}
	}
	if !foundMarked {
		t.Error("classifier suggestion not marked in category menu")
	}

	if err := env.sup.HandleSelection(ctx, 1, job.ID, model.SelectionCategory, "devops"); err != nil {
		t.Fatalf("category: %v", err)
	}
	last, _ = env.notifier.last()
	if len(last.Menu) == 0 || last.Menu[0].Field != model.SelectionSubcategory {
		t.Fatalf("expected subcategory menu, got %+v", last.Menu)
	}

	if err := env.sup.HandleSelection(ctx, 1, job.ID, model.SelectionSubcategory, "Tools"); err != nil {
		t.Fatalf("subcategory: %v", err)
	}

	waitFor(t, "completion", func() bool { return env.notifier.seenState(model.JobStateCompleted) })

	if _, ok := env.sessions.Get(1); ok {
		t.Error("session should be removed after completion")
	}
	entries := env.persistor.saved()
	if len(entries) != 1 {
		t.Fatalf("saved entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Category != model.CategoryDevOps || e.Subcategory != "Tools" {
		t.Errorf("entry filed under %s/%s, want devops/Tools", e.Category, e.Subcategory)
	}
	if e.ID == "" || e.SourceURL != testURL {
		t.Errorf("entry missing identity: %+v", e)
	}
	// Intermediate stages were reported along the way.
	for _, st := range []model.JobState{model.JobStateDownloading, model.JobStateAnalyzing, model.JobStateAuthoring, model.JobStatePersisting} {
		if !env.notifier.seenState(st) {
			t.Errorf("no status update for state %s", st)
		}
	}
	// The kept download was released on approval.
	waitFor(t, "temp cleanup", func() bool { return len(env.downloader.cleanedPaths()) == 1 })
}

func TestDownloadFormatFallback(t *testing.T) {
	env := newTestEnv(t, 10)
	env.downloader.failFormats["hi"] = errors.New("format unavailable")
	env.downloader.failFormats["mid"] = errors.New("format unavailable")

	submitAndAwaitCheckpoint(t, env, 1)

	calls := env.downloader.downloadCalls()
	if len(calls) != 3 || calls[0] != "hi" || calls[1] != "mid" || calls[2] != "low" {
		t.Fatalf("download calls = %v, want [hi mid low]", calls)
	}
}

func TestDownloadExhaustionFailsJob(t *testing.T) {
	env := newTestEnv(t, 10)
	for _, f := range []string{"hi", "mid", "low"} {
		env.downloader.failFormats[f] = errors.New("boom " + f)
	}

	if _, err := env.sup.Submit(context.Background(), 1, testURL); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, "failure", func() bool { return env.notifier.seenState(model.JobStateFailed) })

	var failed bool
	for _, u := range env.notifier.all() {
		if u.State == model.JobStateFailed {
			failed = true
			if !strings.Contains(u.Reason, "download") {
				t.Errorf("failure reason %q does not name the stage", u.Reason)
			}
		}
	}
	if !failed {
		t.Fatal("no failed update recorded")
	}
	if _, ok := env.sessions.Get(1); ok {
		t.Error("session should be removed after failure")
	}
	if len(env.downloader.downloadCalls()) != 3 {
		t.Errorf("expected all three formats tried, got %v", env.downloader.downloadCalls())
	}
}

func TestRejectTearsDown(t *testing.T) {
	env := newTestEnv(t, 10)
	job := submitAndAwaitCheckpoint(t, env, 1)

	if err := env.sup.HandleAction(context.Background(), 1, job.ID, ActionReject); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !env.notifier.seenState(model.JobStateRejected) {
		t.Error("no rejected update")
	}
	if _, ok := env.sessions.Get(1); ok {
		t.Error("session should be removed after rejection")
	}
	if len(env.persistor.saved()) != 0 {
		t.Error("nothing should be persisted for a rejected job")
	}
	if got := env.downloader.cleanedPaths(); len(got) != 1 {
		t.Errorf("temp file not cleaned: %v", got)
	}
}

func TestReanalyzeRunsAnalysisAgain(t *testing.T) {
	env := newTestEnv(t, 10)
	job := submitAndAwaitCheckpoint(t, env, 1)

	if err := env.sup.HandleAction(context.Background(), 1, job.ID, ActionReanalyze); err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	waitFor(t, "second analysis", func() bool { return env.analyzer.analyzeCalls() == 2 })
	waitFor(t, "checkpoint again", func() bool {
		sess, ok := env.sessions.Get(1)
		return ok && sess.Job.State == model.JobStateAwaitingApproval
	})

	// Same download is reused; only the analysis repeats.
	if calls := env.downloader.downloadCalls(); len(calls) != 1 {
		t.Errorf("download calls = %v, want a single download", calls)
	}
	sess, _ := env.sessions.Get(1)
	if !strings.Contains(sess.Job.Analysis.Title, "pass 2") {
		t.Errorf("analysis not replaced: %q", sess.Job.Analysis.Title)
	}
}

func TestSubcategoryBeforeCategory(t *testing.T) {
	env := newTestEnv(t, 10)
	job := submitAndAwaitCheckpoint(t, env, 1)
	ctx := context.Background()

	// Before approve the selection sub-protocol has not begun at all.
	err := env.sup.HandleSelection(ctx, 1, job.ID, model.SelectionSubcategory, "Tools")
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("selection before approve err = %v, want ErrSessionExpired", err)
	}

	if err := env.sup.HandleAction(ctx, 1, job.ID, ActionApprove); err != nil {
		t.Fatalf("approve: %v", err)
	}
	err = env.sup.HandleSelection(ctx, 1, job.ID, model.SelectionSubcategory, "Tools")
	if !errors.Is(err, domain.ErrSelectionOrder) {
		t.Fatalf("subcategory first err = %v, want ErrSelectionOrder", err)
	}

	// The job is still parked and recoverable.
	sess, ok := env.sessions.Get(1)
	if !ok || sess.Job.State != model.JobStateAwaitingApproval {
		t.Fatal("job should still be awaiting approval")
	}
}

func TestSelectionConsumedOnce(t *testing.T) {
	env := newTestEnv(t, 10)
	env.author.release = make(chan struct{})
	job := submitAndAwaitCheckpoint(t, env, 1)
	ctx := context.Background()
	approveThrough(t, env, job)

	// The publish task is now parked inside the author call.
	waitFor(t, "authoring start", func() bool { return env.author.authored() == 1 })

	// Checkpoint input after the completed selection is stale, not a re-open.
	if err := env.sup.HandleSelection(ctx, 1, job.ID, model.SelectionCategory, "linux"); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("late category err = %v, want ErrSessionExpired", err)
	}
	if err := env.sup.HandleSelection(ctx, 1, job.ID, model.SelectionSubcategory, "Tools"); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("repeated subcategory err = %v, want ErrSessionExpired", err)
	}
	if err := env.sup.HandleAction(ctx, 1, job.ID, ActionReanalyze); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("late reanalyze err = %v, want ErrSessionExpired", err)
	}

	close(env.author.release)
	waitFor(t, "completion", func() bool { return env.notifier.seenState(model.JobStateCompleted) })

	if got := env.author.authored(); got != 1 {
		t.Errorf("author calls = %d, want exactly 1", got)
	}
	entries := env.persistor.saved()
	if len(entries) != 1 {
		t.Fatalf("saved entries = %d, want 1", len(entries))
	}
	if entries[0].Category != model.CategoryDevOps || entries[0].Subcategory != "Tools" {
		t.Errorf("entry filed under %s/%s, want the approved devops/Tools", entries[0].Category, entries[0].Subcategory)
	}
}

func TestStaleCallbackRejected(t *testing.T) {
	env := newTestEnv(t, 10)
	submitAndAwaitCheckpoint(t, env, 1)

	err := env.sup.HandleAction(context.Background(), 1, "some-old-job", ActionApprove)
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("stale action err = %v, want ErrSessionExpired", err)
	}
}

func TestAuthoringContinuation(t *testing.T) {
	env := newTestEnv(t, 10)
	env.author.truncateFirst = true
	job := submitAndAwaitCheckpoint(t, env, 1)
	approveThrough(t, env, job)

	waitFor(t, "completion", func() bool { return env.notifier.seenState(model.JobStateCompleted) })

	if env.author.continueCalls != 1 {
		t.Errorf("continue calls = %d, want 1", env.author.continueCalls)
	}
	entries := env.persistor.saved()
	if len(entries) != 1 {
		t.Fatalf("saved entries = %d, want 1", len(entries))
	}
	if !strings.Contains(entries[0].Body, "Second half") {
		t.Error("continuation text missing from the entry body")
	}
	if len(entries[0].QualityFlags) != 0 {
		t.Errorf("completed continuation should not be flagged, got %v", entries[0].QualityFlags)
	}
}

func TestImagesGenerated(t *testing.T) {
	env := newTestEnv(t, 10)
	env.evaluator.decision = &model.ImageDecision{
		NeedsImages: true,
		Reason:      "architecture diagram helps",
		Plans: []model.ImagePlan{
			{Slot: 1, Caption: "Layers", Prompt: "diagram of docker image layers"},
			{Slot: 2, Caption: "Lifecycle", Prompt: "container lifecycle flow"},
		},
	}
	job := submitAndAwaitCheckpoint(t, env, 1)
	approveThrough(t, env, job)

	waitFor(t, "completion", func() bool { return env.notifier.seenState(model.JobStateCompleted) })

	entries := env.persistor.saved()
	if len(entries) != 1 {
		t.Fatalf("saved entries = %d, want 1", len(entries))
	}
	if got := len(entries[0].Images); got != 2 {
		t.Fatalf("entry images = %d, want 2", got)
	}
	for _, img := range entries[0].Images {
		if img.FileName == "" {
			t.Error("image file name not assigned at assembly")
		}
	}
}

func TestImageFailureSkippedNotFatal(t *testing.T) {
	env := newTestEnv(t, 10)
	env.evaluator.decision = &model.ImageDecision{
		NeedsImages: true,
		Plans:       []model.ImagePlan{{Slot: 1, Caption: "Layers", Prompt: "p"}},
	}
	env.imageGen.err = errors.New("model refused")
	job := submitAndAwaitCheckpoint(t, env, 1)
	approveThrough(t, env, job)

	waitFor(t, "completion", func() bool { return env.notifier.seenState(model.JobStateCompleted) })

	entries := env.persistor.saved()
	if len(entries) != 1 {
		t.Fatalf("saved entries = %d, want 1", len(entries))
	}
	if len(entries[0].Images) != 0 {
		t.Error("failed image should have been skipped")
	}
	found := false
	for _, f := range entries[0].QualityFlags {
		if strings.Contains(f, "image_failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("quality flags %v missing image failure note", entries[0].QualityFlags)
	}
}

func TestAuthorFailureFailsJob(t *testing.T) {
	env := newTestEnv(t, 10)
	env.author.err = errors.New("provider 500")
	job := submitAndAwaitCheckpoint(t, env, 1)
	approveThrough(t, env, job)

	waitFor(t, "failure", func() bool { return env.notifier.seenState(model.JobStateFailed) })
	if len(env.persistor.saved()) != 0 {
		t.Error("nothing should be persisted when authoring fails")
	}
}

func TestSweepCancelsExpired(t *testing.T) {
	env := newTestEnv(t, 10)
	submitAndAwaitCheckpoint(t, env, 1)

	// Age the session past the TTL.
	sess, _ := env.sessions.Get(1)
	sess.LastActivityAt = time.Now().Add(-time.Hour)

	if n := env.sup.SweepExpired(time.Now()); n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	if _, ok := env.sessions.Get(1); ok {
		t.Error("expired session should be gone")
	}
	if got := env.downloader.cleanedPaths(); len(got) != 1 {
		t.Errorf("temp file not cleaned on sweep: %v", got)
	}
	// The owner's slot is free again.
	if _, err := env.sup.Submit(context.Background(), 1, testURL); err != nil {
		t.Fatalf("Submit after sweep: %v", err)
	}
}

func TestCancelStopsJob(t *testing.T) {
	env := newTestEnv(t, 10)
	submitAndAwaitCheckpoint(t, env, 1)

	if err := env.sup.Cancel(context.Background(), 1); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !env.notifier.seenState(model.JobStateCancelled) {
		t.Error("no cancelled update")
	}
	if _, ok := env.sessions.Get(1); ok {
		t.Error("session should be removed after cancel")
	}
	if err := env.sup.Cancel(context.Background(), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Cancel err = %v, want ErrNotFound", err)
	}
}

// approveThrough walks the full checkpoint: approve, pick a category, pick a
// subcategory.
func approveThrough(t *testing.T, env *testEnv, job *model.Job) {
	t.Helper()
	ctx := context.Background()
	if err := env.sup.HandleAction(ctx, 1, job.ID, ActionApprove); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := env.sup.HandleSelection(ctx, 1, job.ID, model.SelectionCategory, "devops"); err != nil {
		t.Fatalf("category: %v", err)
	}
	if err := env.sup.HandleSelection(ctx, 1, job.ID, model.SelectionSubcategory, "Tools"); err != nil {
		t.Fatalf("subcategory: %v", err)
	}
}
