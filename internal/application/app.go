package application

import (
	"context"

	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/infra/state"
	"telegram-knowledge-bot/internal/usecase"
)

// App is the thin facade wiring front ends to the supervisor. It carries no
// policy of its own; admission rules, the checkpoint protocol and teardown
// all live in the use-case layer.
type App struct {
	supervisor *usecase.JobSupervisor
}

var _ Service = (*App)(nil)

func NewApp(supervisor *usecase.JobSupervisor) *App {
	return &App{supervisor: supervisor}
}

func (a *App) HandleURL(ctx context.Context, owner int64, text string) (*model.Job, error) {
	return a.supervisor.Submit(ctx, owner, text)
}

func (a *App) HandleApproval(ctx context.Context, owner int64, jobID, action string) error {
	return a.supervisor.HandleAction(ctx, owner, jobID, action)
}

func (a *App) HandleSelection(ctx context.Context, owner int64, jobID string, field model.SelectionField, value string) error {
	return a.supervisor.HandleSelection(ctx, owner, jobID, field, value)
}

func (a *App) CancelJob(ctx context.Context, owner int64) error {
	return a.supervisor.Cancel(ctx, owner)
}

func (a *App) ActiveSessions() []state.SessionView {
	return a.supervisor.ActiveSessions()
}
