package application

import (
	"context"

	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/infra/state"
)

// Service is the surface the front ends (bot, admin API) program against.
type Service interface {
	HandleURL(ctx context.Context, owner int64, text string) (*model.Job, error)
	HandleApproval(ctx context.Context, owner int64, jobID, action string) error
	HandleSelection(ctx context.Context, owner int64, jobID string, field model.SelectionField, value string) error
	CancelJob(ctx context.Context, owner int64) error
	ActiveSessions() []state.SessionView
}
