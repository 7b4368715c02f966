package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telegram-knowledge-bot/internal/config"
	"telegram-knowledge-bot/internal/domain"
	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
	"telegram-knowledge-bot/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// StageExecutor runs one named unit of pipeline work for a job: it flips the
// job into the stage's state, reports progress, bounds the call with a
// timeout and captures failure as a typed StageFailure. Commit is the
// per-owner atomic mutation point supplied by the supervisor; it returns
// false when the session is gone (swept or cancelled while suspended).
type StageExecutor struct {
	Commit func(fn func(*model.Session)) bool
	Notify func(upd adapter.StatusUpdate)
	Log    *zerolog.Logger
}

func (e *StageExecutor) Run(ctx context.Context, job *model.Job, name string, st model.JobState, timeout time.Duration, fn func(context.Context) error) error {
	ok := e.Commit(func(sess *model.Session) {
		sess.Job.State = st
		sess.Job.UpdatedAt = time.Now()
	})
	if !ok {
		return &domain.StageFailure{Stage: name, Err: domain.ErrSessionExpired}
	}
	e.Notify(adapter.StatusUpdate{JobID: job.ID, State: st})

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(runCtx)
	metrics.ObserveStage(name, time.Since(start).Seconds(), err == nil)
	if err != nil {
		e.Log.Error().Err(err).Str("stage", name).Str("job_id", job.ID).Msg("stage failed")
		return &domain.StageFailure{Stage: name, Err: err}
	}
	e.Log.Debug().Str("stage", name).Str("job_id", job.ID).Dur("duration", time.Since(start)).Msg("stage done")
	return nil
}

// Pipeline sequences the automatic stages of one job. The approval
// checkpoint splits it in two phases: the analysis phase ends in
// AwaitingApproval, the publish phase resumes once the selection completes.
// No lock is held while a stage is suspended on a collaborator call.
type Pipeline struct {
	downloader adapter.Downloader
	analyzer   adapter.ContentAnalyzer
	author     adapter.ContentAuthor
	imageEval  adapter.ImageEvaluator
	imageGen   adapter.ImageGenerator
	persistor  adapter.Persistor

	formats       []string
	imagesEnabled bool
	maxImages     int
	timeouts      config.TimeoutConfig
	log           *zerolog.Logger
}

func NewPipeline(
	downloader adapter.Downloader,
	analyzer adapter.ContentAnalyzer,
	author adapter.ContentAuthor,
	imageEval adapter.ImageEvaluator,
	imageGen adapter.ImageGenerator,
	persistor adapter.Persistor,
	formats []string,
	imagesEnabled bool,
	maxImages int,
	timeouts config.TimeoutConfig,
	log *zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		downloader:    downloader,
		analyzer:      analyzer,
		author:        author,
		imageEval:     imageEval,
		imageGen:      imageGen,
		persistor:     persistor,
		formats:       formats,
		imagesEnabled: imagesEnabled,
		maxImages:     maxImages,
		timeouts:      timeouts,
		log:           log,
	}
}

// RunAnalysisPhase downloads the video and analyzes it. On success the job
// carries a validated analysis and the temp file path (kept through the
// approval checkpoint so re-analysis needs no second download).
func (p *Pipeline) RunAnalysisPhase(ctx context.Context, exec *StageExecutor, job *model.Job) error {
	err := exec.Run(ctx, job, "download", model.JobStateDownloading, p.timeouts.Download, func(ctx context.Context) error {
		path, err := p.downloadWithFallback(ctx, job.URL)
		if err != nil {
			return err
		}
		exec.Commit(func(sess *model.Session) { sess.Job.TempPath = path })
		return nil
	})
	if err != nil {
		return err
	}
	return p.RunAnalysisStage(ctx, exec, job)
}

// RunAnalysisStage runs only the Analyzing stage against the already
// downloaded file. Re-analysis replaces the previous analysis in place.
func (p *Pipeline) RunAnalysisStage(ctx context.Context, exec *StageExecutor, job *model.Job) error {
	return exec.Run(ctx, job, "analyze", model.JobStateAnalyzing, p.timeouts.Analyze, func(ctx context.Context) error {
		a, err := p.analyzer.Analyze(ctx, job.TempPath, job.URL, job.Platform)
		if err != nil {
			return err
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("invalid analysis: %w", err)
		}
		exec.Commit(func(sess *model.Session) { sess.Job.Analysis = a })
		return nil
	})
}

// RunPublishPhase runs authoring through persistence for an approved job
// with a complete selection.
func (p *Pipeline) RunPublishPhase(ctx context.Context, exec *StageExecutor, job *model.Job) error {
	if !job.Selection.Complete() {
		return &domain.StageFailure{Stage: "author", Err: domain.ErrSelectionOrder}
	}

	err := exec.Run(ctx, job, "author", model.JobStateAuthoring, p.timeouts.Author, func(ctx context.Context) error {
		content, err := p.author.Author(ctx, job.Analysis, job.Selection)
		if err != nil {
			return err
		}
		if content.Truncated {
			// One bounded continuation; partial content beats total failure.
			cont, cerr := p.author.Continue(ctx, job.Analysis, job.Selection, content)
			if cerr != nil {
				p.log.Warn().Err(cerr).Str("job_id", job.ID).Msg("continuation failed, keeping truncated draft")
			} else {
				content = cont
			}
			if cerr != nil || content.Truncated {
				exec.Commit(func(sess *model.Session) { sess.Job.Flag("authoring_truncated") })
			}
		}
		exec.Commit(func(sess *model.Session) { sess.Job.Content = content })
		return nil
	})
	if err != nil {
		return err
	}

	decision := &model.ImageDecision{}
	if p.imagesEnabled {
		err = exec.Run(ctx, job, "evaluate_images", model.JobStateEvaluatingImages, p.timeouts.Image, func(ctx context.Context) error {
			d, err := p.imageEval.Evaluate(ctx, job.Analysis, job.Selection)
			if err != nil {
				return err
			}
			decision = d
			return nil
		})
		if err != nil {
			return err
		}
	}

	if decision.NeedsImages && len(decision.Plans) > 0 {
		err = exec.Run(ctx, job, "generate_images", model.JobStateGeneratingImages, p.timeouts.Image, func(ctx context.Context) error {
			plans := decision.Plans
			if len(plans) > p.maxImages {
				plans = plans[:p.maxImages]
			}
			var images []model.GeneratedImage
			for _, plan := range plans {
				img, gerr := p.imageGen.Generate(ctx, plan)
				if gerr != nil {
					// Per-plan failures are skipped, never fatal.
					metrics.IncImage("failed")
					p.log.Warn().Err(gerr).Int("slot", plan.Slot).Str("job_id", job.ID).Msg("image generation failed, skipping")
					exec.Commit(func(sess *model.Session) {
						sess.Job.Flag(fmt.Sprintf("image_failed_slot_%d", plan.Slot))
					})
					continue
				}
				metrics.IncImage("generated")
				images = append(images, *img)
			}
			exec.Commit(func(sess *model.Session) { sess.Job.Images = images })
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		metrics.IncImage("skipped")
	}

	var entry *model.KnowledgeEntry
	err = exec.Run(ctx, job, "assemble", model.JobStateAssembling, 0, func(ctx context.Context) error {
		entry = assembleEntry(job)
		return nil
	})
	if err != nil {
		return err
	}

	return exec.Run(ctx, job, "persist", model.JobStatePersisting, p.timeouts.Persist, func(ctx context.Context) error {
		loc, perr := p.persistor.Save(ctx, entry)
		if perr != nil {
			return perr
		}
		exec.Commit(func(sess *model.Session) { sess.Job.Result = loc })
		return nil
	})
}

// CleanupTemp removes a downloaded file once the job no longer needs it.
func (p *Pipeline) CleanupTemp(ctx context.Context, path string) error {
	return p.downloader.Cleanup(ctx, path)
}

// downloadWithFallback walks the closed format-selector list in order and
// stops at the first success. Exhaustion returns one aggregated failure.
func (p *Pipeline) downloadWithFallback(ctx context.Context, url string) (string, error) {
	var errs []error
	for _, format := range p.formats {
		path, err := p.downloader.Download(ctx, url, format)
		if err == nil {
			metrics.IncDownloadAttempt(true)
			return path, nil
		}
		metrics.IncDownloadAttempt(false)
		p.log.Warn().Err(err).Str("format", format).Msg("download attempt failed")
		errs = append(errs, fmt.Errorf("%s: %w", format, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("all format selectors failed: %w", errors.Join(errs...))
}

// assembleEntry is deterministic document construction: it merges the
// authored markdown, generated diagrams and metadata into the final entry.
func assembleEntry(job *model.Job) *model.KnowledgeEntry {
	id := ulid.Make().String()

	images := make([]model.GeneratedImage, len(job.Images))
	copy(images, job.Images)

	var body strings.Builder
	body.WriteString(job.Content.Markdown)
	for i := range images {
		ext := "png"
		if images[i].MIME == "image/jpeg" {
			ext = "jpg"
		}
		images[i].FileName = fmt.Sprintf("%s-%d.%s", id, images[i].Slot, ext)
		body.WriteString(fmt.Sprintf("\n\n![%s](./%s)", images[i].Caption, images[i].FileName))
	}

	return &model.KnowledgeEntry{
		ID:           id,
		Title:        job.Analysis.Title,
		Category:     job.Selection.Category,
		Subcategory:  job.Selection.Subcategory,
		SourceURL:    job.URL,
		Platform:     job.Platform,
		Summary:      job.Analysis.Summary,
		Body:         body.String(),
		Tools:        job.Analysis.Tools,
		Difficulty:   job.Analysis.Difficulty,
		WordCount:    job.Content.WordCount,
		QualityFlags: job.QualityFlags,
		Images:       images,
		CreatedAt:    time.Now(),
	}
}
