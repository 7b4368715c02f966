package adapter

import (
	"context"

	"telegram-knowledge-bot/internal/domain/model"
)

// MenuAction is one offered next step. The core emits these as structured
// routing tokens; how they become buttons is the front end's business.
type MenuAction struct {
	Label string
	// Kind is "approval" or "selection".
	Kind  string
	JobID string
	// Field is set for selection actions: "category" or "subcategory".
	Field model.SelectionField
	// Value is the approval action (approve/reject/reanalyze) or the
	// selected option value.
	Value string
	// Marked highlights the option (e.g. the classifier's suggestion).
	Marked bool
}

// StatusUpdate is the structured progress report pushed to the front end.
// The core never formats presentation text; rendering is the notifier's job.
type StatusUpdate struct {
	JobID string
	State model.JobState

	// Preview and Suggestion accompany the approval checkpoint.
	Preview    *model.VideoAnalysis
	Suggestion *model.CategorySuggestion

	// Menu lists the actions currently available to the user.
	Menu []MenuAction

	// Reason carries a short human-readable cause for failed/rejected
	// terminal states. Never a raw stack trace.
	Reason string

	// Result is set on completion.
	Result *model.PersistedLocation

	QualityFlags []string
}

// Notifier delivers status updates to one owner, editing the referenced
// message in place when ref is non-zero. It returns the (possibly new)
// message reference.
type Notifier interface {
	Notify(ctx context.Context, owner int64, ref int, upd StatusUpdate) (int, error)
}
