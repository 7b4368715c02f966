package usecase

import (
	"time"

	"telegram-knowledge-bot/internal/domain"
	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// GateOutcome tells the supervisor what to do after the gate has applied an
// approval input to the session. The gate itself never spawns work.
type GateOutcome int

const (
	GateNone GateOutcome = iota
	// GateMenu: stay at the checkpoint and show the returned menu.
	GateMenu
	// GateRejected: tear the job down as rejected.
	GateRejected
	// GateReanalyze: discard the analysis and run the analyzing stage again.
	GateReanalyze
	// GateResume: the selection is complete, resume the publish phase.
	GateResume
)

// Approval actions accepted at the checkpoint.
const (
	ActionApprove   = "approve"
	ActionReject    = "reject"
	ActionReanalyze = "reanalyze"
)

// ApprovalGate validates and applies approval-checkpoint inputs. Every method
// must be called inside the session store's mutation point; the gate mutates
// the session directly and reports the outcome for the supervisor to act on.
type ApprovalGate struct {
	log *zerolog.Logger
}

func NewApprovalGate(log *zerolog.Logger) *ApprovalGate {
	return &ApprovalGate{log: log}
}

// Action applies one of approve/reject/reanalyze. Inputs for a different job
// or outside the checkpoint are rejected with ErrSessionExpired so a stale
// button press can never steer a newer job.
func (g *ApprovalGate) Action(sess *model.Session, jobID, action string) (GateOutcome, *adapter.StatusUpdate, error) {
	job := sess.Job
	if job == nil || job.ID != jobID || job.State != model.JobStateAwaitingApproval {
		return GateNone, nil, domain.ErrSessionExpired
	}

	switch action {
	case ActionApprove:
		job.Selection = &model.ApprovalSelection{CreatedAt: time.Now()}
		sess.Pending = model.SelectionCategory
		var marked model.Category
		if job.Suggestion != nil {
			marked = job.Suggestion.Category
		}
		upd := &adapter.StatusUpdate{
			JobID:      job.ID,
			State:      job.State,
			Suggestion: job.Suggestion,
			Menu:       CategoryMenu(job.ID, marked),
		}
		return GateMenu, upd, nil

	case ActionReject:
		sess.Pending = ""
		return GateRejected, nil, nil

	case ActionReanalyze:
		// Analysis is replaced wholesale; any half-made selection dies with it.
		job.Selection = nil
		sess.Pending = ""
		return GateReanalyze, nil, nil

	default:
		g.log.Warn().Str("action", action).Str("job_id", jobID).Msg("unknown approval action")
		return GateNone, nil, domain.ErrInvalidSelection
	}
}

// Selection applies a category or subcategory choice. A category may be
// re-picked while the subcategory is still pending; a subcategory before any
// category is a protocol violation.
func (g *ApprovalGate) Selection(sess *model.Session, jobID string, field model.SelectionField, value string) (GateOutcome, *adapter.StatusUpdate, error) {
	job := sess.Job
	if job == nil || job.ID != jobID || job.State != model.JobStateAwaitingApproval || job.Selection == nil {
		return GateNone, nil, domain.ErrSessionExpired
	}

	switch field {
	case model.SelectionCategory:
		if !model.ValidCategory(value) {
			return GateNone, nil, domain.ErrInvalidSelection
		}
		job.Selection.Category = model.Category(value)
		sess.Pending = model.SelectionSubcategory
		upd := &adapter.StatusUpdate{
			JobID: job.ID,
			State: job.State,
			Menu:  SubcategoryMenu(job.ID),
		}
		return GateMenu, upd, nil

	case model.SelectionSubcategory:
		if job.Selection.Category == "" || sess.Pending != model.SelectionSubcategory {
			return GateNone, nil, domain.ErrSelectionOrder
		}
		if !model.ValidSubcategory(value) {
			return GateNone, nil, domain.ErrInvalidSelection
		}
		job.Selection.Subcategory = value
		// The checkpoint closes here, under the store lock. A repeated press
		// fails the state check above, so the selection is consumed once.
		job.State = model.JobStateAuthoring
		job.UpdatedAt = time.Now()
		sess.Pending = ""
		return GateResume, nil, nil

	default:
		return GateNone, nil, domain.ErrInvalidSelection
	}
}

// ApprovalMenu is the three-way checkpoint menu.
func ApprovalMenu(jobID string) []adapter.MenuAction {
	return []adapter.MenuAction{
		{Label: "✅ Approve", Kind: "approval", JobID: jobID, Value: ActionApprove},
		{Label: "❌ Reject", Kind: "approval", JobID: jobID, Value: ActionReject},
		{Label: "🔄 Re-analyze", Kind: "approval", JobID: jobID, Value: ActionReanalyze},
	}
}

// CategoryMenu lists every category, marking the classifier's suggestion.
func CategoryMenu(jobID string, marked model.Category) []adapter.MenuAction {
	out := make([]adapter.MenuAction, 0, len(model.Categories))
	for _, c := range model.Categories {
		out = append(out, adapter.MenuAction{
			Label:  c.Display(),
			Kind:   "selection",
			JobID:  jobID,
			Field:  model.SelectionCategory,
			Value:  string(c),
			Marked: c == marked,
		})
	}
	return out
}

// SubcategoryMenu lists the shared subcategory set.
func SubcategoryMenu(jobID string) []adapter.MenuAction {
	out := make([]adapter.MenuAction, 0, len(model.Subcategories))
	for _, s := range model.Subcategories {
		out = append(out, adapter.MenuAction{
			Label: s,
			Kind:  "selection",
			JobID: jobID,
			Field: model.SelectionSubcategory,
			Value: s,
		})
	}
	return out
}
