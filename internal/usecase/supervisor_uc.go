package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"telegram-knowledge-bot/internal/domain"
	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
	"telegram-knowledge-bot/internal/infra/metrics"
	"telegram-knowledge-bot/internal/infra/state"
	"telegram-knowledge-bot/internal/infra/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxReasonLen = 200

// JobSupervisor owns the lifecycle of jobs: admission, phase scheduling on
// the worker pool, the approval checkpoint, teardown and the TTL sweep. It is
// the only component that moves jobs into terminal states.
type JobSupervisor struct {
	sessions   *state.SessionStore
	rate       *state.RateLimiter
	pipeline   *Pipeline
	gate       *ApprovalGate
	pool       *worker.Pool
	notifier   adapter.Notifier
	classifier adapter.Classifier
	ttl        time.Duration
	log        *zerolog.Logger
}

func NewJobSupervisor(
	sessions *state.SessionStore,
	rate *state.RateLimiter,
	pipeline *Pipeline,
	gate *ApprovalGate,
	pool *worker.Pool,
	notifier adapter.Notifier,
	classifier adapter.Classifier,
	ttl time.Duration,
	log *zerolog.Logger,
) *JobSupervisor {
	return &JobSupervisor{
		sessions:   sessions,
		rate:       rate,
		pipeline:   pipeline,
		gate:       gate,
		pool:       pool,
		notifier:   notifier,
		classifier: classifier,
		ttl:        ttl,
		log:        log,
	}
}

// Submit admits a new URL for an owner. Checks run in a fixed order so the
// user always sees the most actionable rejection: unsupported input first,
// then the hourly ceiling, then the single-job rule. Only an accepted
// submission spends rate budget.
func (s *JobSupervisor) Submit(ctx context.Context, owner int64, text string) (*model.Job, error) {
	url := strings.TrimSpace(text)
	platform, ok := model.DetectPlatform(url)
	if !ok {
		return nil, domain.ErrUnsupportedURL
	}
	if !s.rate.TryAcquire(owner, time.Now()) {
		return nil, domain.ErrRateLimited
	}

	job := model.NewJob(uuid.NewString(), owner, url, platform)
	if _, err := s.sessions.StartJob(owner, job); err != nil {
		return nil, err
	}
	if err := s.pool.Submit(s.analysisTask(owner, job.ID)); err != nil {
		s.sessions.Remove(owner)
		return nil, domain.ErrQueueFull
	}

	metrics.JobStarted()
	s.log.Info().Int64("owner", owner).Str("job_id", job.ID).Str("platform", platform).Msg("job accepted")
	return job, nil
}

// HandleAction routes an approve/reject/reanalyze press for the checkpoint.
func (s *JobSupervisor) HandleAction(ctx context.Context, owner int64, jobID, action string) error {
	var (
		outcome GateOutcome
		upd     *adapter.StatusUpdate
		gerr    error
	)
	ok := s.sessions.With(owner, func(sess *model.Session) {
		outcome, upd, gerr = s.gate.Action(sess, jobID, action)
	})
	if !ok {
		return domain.ErrSessionExpired
	}
	if gerr != nil {
		return gerr
	}

	switch outcome {
	case GateMenu:
		if upd != nil {
			s.notify(ctx, owner, *upd)
		}
	case GateRejected:
		s.finish(ctx, owner, jobID, model.JobStateRejected, "")
	case GateReanalyze:
		s.launchReanalyze(ctx, owner, jobID)
	}
	return nil
}

// HandleSelection routes a category or subcategory press.
func (s *JobSupervisor) HandleSelection(ctx context.Context, owner int64, jobID string, field model.SelectionField, value string) error {
	var (
		outcome GateOutcome
		upd     *adapter.StatusUpdate
		gerr    error
	)
	ok := s.sessions.With(owner, func(sess *model.Session) {
		outcome, upd, gerr = s.gate.Selection(sess, jobID, field, value)
	})
	if !ok {
		return domain.ErrSessionExpired
	}
	if gerr != nil {
		return gerr
	}

	switch outcome {
	case GateMenu:
		if upd != nil {
			s.notify(ctx, owner, *upd)
		}
	case GateResume:
		s.launchPublish(ctx, owner, jobID)
	}
	return nil
}

// Cancel tears down the owner's current job, stopping any in-flight stage.
func (s *JobSupervisor) Cancel(ctx context.Context, owner int64) error {
	sess, ok := s.sessions.Get(owner)
	if !ok || sess.Job == nil {
		return domain.ErrNotFound
	}
	s.finish(ctx, owner, sess.Job.ID, model.JobStateCancelled, "cancelled by user")
	return nil
}

// SweepExpired evicts sessions inactive past the TTL, cancelling any work
// still in flight. Returns the number of evicted sessions.
func (s *JobSupervisor) SweepExpired(now time.Time) int {
	s.rate.Sweep(now)
	evicted := s.sessions.SweepExpired(now, s.ttl)
	for _, sess := range evicted {
		if sess.Cancel != nil {
			sess.Cancel()
		}
		if sess.Job == nil {
			continue
		}
		if !sess.Job.State.Terminal() {
			metrics.IncJob(string(model.JobStateCancelled))
			metrics.JobFinished()
		}
		if sess.Job.TempPath != "" {
			if err := s.pipeline.CleanupTemp(context.Background(), sess.Job.TempPath); err != nil {
				s.log.Warn().Err(err).Str("job_id", sess.Job.ID).Msg("temp cleanup failed on sweep")
			}
		}
		s.log.Info().Int64("owner", sess.Owner).Str("job_id", sess.Job.ID).Msg("expired session evicted")
	}
	if n := len(evicted); n > 0 {
		metrics.AddEvictedSessions(n)
	}
	return len(evicted)
}

// ActiveSessions exposes a read-only view for the admin API.
func (s *JobSupervisor) ActiveSessions() []state.SessionView {
	return s.sessions.Snapshot()
}

// analysisTask runs the download+analysis phase and parks the job at the
// approval checkpoint. No goroutine waits during the checkpoint; resumption
// schedules a fresh task.
func (s *JobSupervisor) analysisTask(owner int64, jobID string) worker.Task {
	return func(ctx context.Context) error {
		jctx, cancel := context.WithCancel(ctx)
		defer cancel()

		job := s.bindTask(owner, jobID, cancel)
		if job == nil {
			return nil // swept before the task started
		}
		exec := s.executor(owner, jobID)
		if err := s.pipeline.RunAnalysisPhase(jctx, exec, job); err != nil {
			s.finishWithError(owner, jobID, err)
			return nil
		}
		s.presentPreview(ctx, owner, job)
		return nil
	}
}

// launchReanalyze schedules a fresh analyzing pass over the kept download.
func (s *JobSupervisor) launchReanalyze(ctx context.Context, owner int64, jobID string) {
	task := func(ctx context.Context) error {
		jctx, cancel := context.WithCancel(ctx)
		defer cancel()

		job := s.bindTask(owner, jobID, cancel)
		if job == nil {
			return nil
		}
		exec := s.executor(owner, jobID)
		if err := s.pipeline.RunAnalysisStage(jctx, exec, job); err != nil {
			s.finishWithError(owner, jobID, err)
			return nil
		}
		s.presentPreview(ctx, owner, job)
		return nil
	}
	if err := s.pool.Submit(task); err != nil {
		s.finish(ctx, owner, jobID, model.JobStateFailed, "processing queue is saturated")
	}
}

// launchPublish schedules the post-approval half of the pipeline. The kept
// download is released first; re-analysis is no longer possible.
func (s *JobSupervisor) launchPublish(ctx context.Context, owner int64, jobID string) {
	task := func(ctx context.Context) error {
		jctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var temp string
		job := s.bindTaskFn(owner, jobID, func(sess *model.Session) {
			sess.Cancel = cancel
			temp = sess.Job.TempPath
			sess.Job.TempPath = ""
		})
		if job == nil {
			return nil
		}
		if temp != "" {
			if err := s.pipeline.CleanupTemp(context.Background(), temp); err != nil {
				s.log.Warn().Err(err).Str("job_id", jobID).Msg("temp cleanup failed")
			}
		}

		exec := s.executor(owner, jobID)
		if err := s.pipeline.RunPublishPhase(jctx, exec, job); err != nil {
			s.finishWithError(owner, jobID, err)
			return nil
		}
		s.finish(context.Background(), owner, jobID, model.JobStateCompleted, "")
		return nil
	}
	if err := s.pool.Submit(task); err != nil {
		s.finish(ctx, owner, jobID, model.JobStateFailed, "processing queue is saturated")
	}
}

// bindTask attaches the task's cancel func to the session and returns the
// bound job, or nil when the session no longer carries this job.
func (s *JobSupervisor) bindTask(owner int64, jobID string, cancel context.CancelFunc) *model.Job {
	return s.bindTaskFn(owner, jobID, func(sess *model.Session) {
		sess.Cancel = cancel
	})
}

func (s *JobSupervisor) bindTaskFn(owner int64, jobID string, fn func(*model.Session)) *model.Job {
	var job *model.Job
	s.sessions.With(owner, func(sess *model.Session) {
		if sess.Job == nil || sess.Job.ID != jobID {
			return
		}
		job = sess.Job
		fn(sess)
	})
	return job
}

// presentPreview parks the job at the approval checkpoint and shows the
// analysis preview with the classifier's suggestion.
func (s *JobSupervisor) presentPreview(ctx context.Context, owner int64, job *model.Job) {
	suggestion := s.classifier.Suggest(job.Analysis)
	ok := s.sessions.With(owner, func(sess *model.Session) {
		if sess.Job == nil || sess.Job.ID != job.ID {
			return
		}
		sess.Cancel = nil
		sess.Pending = ""
		sess.Job.State = model.JobStateAwaitingApproval
		sess.Job.UpdatedAt = time.Now()
		sess.Job.Suggestion = &suggestion
	})
	if !ok {
		return
	}
	s.notify(ctx, owner, adapter.StatusUpdate{
		JobID:      job.ID,
		State:      model.JobStateAwaitingApproval,
		Preview:    job.Analysis,
		Suggestion: &suggestion,
		Menu:       ApprovalMenu(job.ID),
	})
}

// executor builds the per-job stage executor. Commit only applies when the
// session still carries this job, which makes every stage's writes no-ops
// after teardown.
func (s *JobSupervisor) executor(owner int64, jobID string) *StageExecutor {
	return &StageExecutor{
		Commit: func(fn func(*model.Session)) bool {
			matched := false
			ok := s.sessions.With(owner, func(sess *model.Session) {
				if sess.Job != nil && sess.Job.ID == jobID {
					matched = true
					fn(sess)
				}
			})
			return ok && matched
		},
		Notify: func(upd adapter.StatusUpdate) {
			s.notify(context.Background(), owner, upd)
		},
		Log: s.log,
	}
}

// finish moves the job into a terminal state, tears the session down,
// releases the temp file and delivers the final status update.
func (s *JobSupervisor) finish(ctx context.Context, owner int64, jobID string, st model.JobState, reason string) {
	var (
		job  *model.Job
		ref  int
		temp string
	)
	s.sessions.With(owner, func(sess *model.Session) {
		if sess.Job == nil || sess.Job.ID != jobID {
			return
		}
		job = sess.Job
		job.State = st
		job.UpdatedAt = time.Now()
		if reason != "" {
			job.LastError = reason
		}
		ref = sess.MessageRef
		temp = job.TempPath
		if sess.Cancel != nil {
			sess.Cancel()
			sess.Cancel = nil
		}
	})
	if job == nil {
		return
	}
	s.sessions.Remove(owner)

	if temp != "" {
		if err := s.pipeline.CleanupTemp(context.Background(), temp); err != nil {
			s.log.Warn().Err(err).Str("job_id", jobID).Msg("temp cleanup failed")
		}
	}

	metrics.IncJob(string(st))
	metrics.JobFinished()
	s.log.Info().Int64("owner", owner).Str("job_id", jobID).Str("state", string(st)).Str("reason", reason).Msg("job finished")

	upd := adapter.StatusUpdate{
		JobID:        jobID,
		State:        st,
		Reason:       reason,
		Result:       job.Result,
		QualityFlags: job.QualityFlags,
	}
	if _, err := s.notifier.Notify(ctx, owner, ref, upd); err != nil {
		s.log.Warn().Err(err).Int64("owner", owner).Msg("terminal notification failed")
	}
}

// finishWithError maps a phase error to the right terminal state. Work
// stopped by cancellation (user cancel, sweep, shutdown) ends Cancelled, not
// Failed.
func (s *JobSupervisor) finishWithError(owner int64, jobID string, err error) {
	if errors.Is(err, context.Canceled) {
		s.finish(context.Background(), owner, jobID, model.JobStateCancelled, "cancelled")
		return
	}
	if errors.Is(err, domain.ErrSessionExpired) {
		// Session was torn down while the stage ran; nothing left to report.
		return
	}
	s.finish(context.Background(), owner, jobID, model.JobStateFailed, reasonFor(err))
}

// notify pushes an update, editing the session's status message and storing
// the reference the front end hands back.
func (s *JobSupervisor) notify(ctx context.Context, owner int64, upd adapter.StatusUpdate) {
	var ref int
	s.sessions.With(owner, func(sess *model.Session) { ref = sess.MessageRef })
	newRef, err := s.notifier.Notify(ctx, owner, ref, upd)
	if err != nil {
		s.log.Warn().Err(err).Int64("owner", owner).Str("job_id", upd.JobID).Msg("status notification failed")
		return
	}
	if newRef != ref {
		s.sessions.With(owner, func(sess *model.Session) { sess.MessageRef = newRef })
	}
}

// reasonFor renders a failure into a short user-presentable cause.
func reasonFor(err error) string {
	var sf *domain.StageFailure
	msg := err.Error()
	if errors.As(err, &sf) {
		msg = sf.Error()
	}
	if len(msg) > maxReasonLen {
		msg = msg[:maxReasonLen] + "…"
	}
	return msg
}
