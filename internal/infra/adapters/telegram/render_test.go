package telegram

import (
	"strings"
	"testing"

	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
	"telegram-knowledge-bot/internal/infra/state"
	"telegram-knowledge-bot/internal/usecase"
)

func TestMenuDataRoundTrip(t *testing.T) {
	jobID := "4a0c2f7e-1111-2222-3333-444455556666"

	for _, a := range usecase.ApprovalMenu(jobID) {
		data := menuData(a)
		if !strings.HasPrefix(data, cbApprovalPrefix) || !strings.HasSuffix(data, jobID) {
			t.Errorf("approval data = %q", data)
		}
		if len(data) > 64 {
			t.Errorf("callback data %q over telegram's 64 byte limit", data)
		}
	}
	for _, a := range usecase.CategoryMenu(jobID, model.CategoryDevOps) {
		data := menuData(a)
		if !strings.HasPrefix(data, cbCategoryPrefix+jobID+":") {
			t.Errorf("category data = %q", data)
		}
		if len(data) > 64 {
			t.Errorf("callback data %q over telegram's 64 byte limit", data)
		}
	}
	for _, a := range usecase.SubcategoryMenu(jobID) {
		data := menuData(a)
		if !strings.HasPrefix(data, cbSubcatPrefix+jobID+":") {
			t.Errorf("subcategory data = %q", data)
		}
		if len(data) > 64 {
			t.Errorf("callback data %q over telegram's 64 byte limit", data)
		}
	}
}

func TestRenderCheckpointPreview(t *testing.T) {
	upd := adapter.StatusUpdate{
		JobID: "j",
		State: model.JobStateAwaitingApproval,
		Preview: &model.VideoAnalysis{
			Title:      "Docker Basics",
			Topic:      "containers",
			Summary:    "Intro to Docker.",
			KeyPoints:  []string{"images are layered"},
			Difficulty: "beginner",
		},
		Suggestion: &model.CategorySuggestion{Category: model.CategoryDevOps, Confidence: 0.8},
		Menu:       usecase.ApprovalMenu("j"),
	}

	text := renderStatus(upd)
	for _, want := range []string{"Docker Basics", "containers", "images are layered", "DevOps"} {
		if !strings.Contains(text, want) {
			t.Errorf("preview missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "incomplete") {
		t.Error("complete analysis should not carry a truncation warning")
	}

	upd.Preview.Truncated = true
	if !strings.Contains(renderStatus(upd), "incomplete") {
		t.Error("truncated analysis not surfaced in the preview")
	}
}

func TestRenderSelectionPrompts(t *testing.T) {
	cat := renderStatus(adapter.StatusUpdate{
		State: model.JobStateAwaitingApproval,
		Menu:  usecase.CategoryMenu("j", ""),
	})
	if !strings.Contains(cat, "category") {
		t.Errorf("category prompt = %q", cat)
	}
	sub := renderStatus(adapter.StatusUpdate{
		State: model.JobStateAwaitingApproval,
		Menu:  usecase.SubcategoryMenu("j"),
	})
	if !strings.Contains(sub, "subcategory") {
		t.Errorf("subcategory prompt = %q", sub)
	}
}

func TestOperatorSessionsOverview(t *testing.T) {
	if adminAllowed([]int64{10, 20}, 15) {
		t.Error("non-admin id allowed")
	}
	if !adminAllowed([]int64{10, 20}, 20) {
		t.Error("admin id refused")
	}

	if got := sessionsText(nil); got != "No active sessions." {
		t.Errorf("empty overview = %q", got)
	}
	text := sessionsText([]state.SessionView{
		{Owner: 7, JobID: "job-7", State: model.JobStateDownloading},
	})
	for _, want := range []string{"1 active session", "7", "job-7"} {
		if !strings.Contains(text, want) {
			t.Errorf("overview missing %q:\n%s", want, text)
		}
	}
}

func TestRenderTerminalStates(t *testing.T) {
	done := renderStatus(adapter.StatusUpdate{
		State: model.JobStateCompleted,
		Result: &model.PersistedLocation{
			EntryID:       "e1",
			MarkdownPath:  "/kb/devops/e1.md",
			DatabaseSaved: true,
		},
		QualityFlags: []string{"authoring_truncated"},
	})
	for _, want := range []string{"/kb/devops/e1.md", "authoring_truncated"} {
		if !strings.Contains(done, want) {
			t.Errorf("completed text missing %q:\n%s", want, done)
		}
	}

	failed := renderStatus(adapter.StatusUpdate{State: model.JobStateFailed, Reason: "stage download: boom"})
	if !strings.Contains(failed, "stage download: boom") {
		t.Errorf("failed text = %q", failed)
	}
}
