package classify

import (
	"testing"

	"telegram-knowledge-bot/internal/domain/model"
)

func TestSuggestByKeywords(t *testing.T) {
	c := NewKeywordClassifier()

	cases := []struct {
		name     string
		analysis model.VideoAnalysis
		want     model.Category
	}{
		{
			name: "devops",
			analysis: model.VideoAnalysis{
				Title:   "Docker in 60 seconds",
				Topic:   "containers",
				Summary: "Build and deploy a container with Docker and Kubernetes.",
			},
			want: model.CategoryDevOps,
		},
		{
			name: "ai",
			analysis: model.VideoAnalysis{
				Title:     "Prompting tricks",
				Topic:     "LLM usage",
				Summary:   "Better prompts for ChatGPT and Claude.",
				KeyPoints: []string{"use system prompts"},
			},
			want: model.CategoryAI,
		},
		{
			name: "linux",
			analysis: model.VideoAnalysis{
				Title:   "Bash one-liners",
				Topic:   "terminal productivity",
				Summary: "Five shell tricks for the Linux terminal.",
			},
			want: model.CategoryLinux,
		},
		{
			name: "tools field counts",
			analysis: model.VideoAnalysis{
				Title:   "Ship faster",
				Topic:   "workflow",
				Summary: "A productivity setup.",
				Tools:   []string{"tmux", "vim", "ssh"},
			},
			want: model.CategoryLinux,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Suggest(&tc.analysis)
			if got.Category != tc.want {
				t.Errorf("Suggest = %s (%.2f, %s), want %s", got.Category, got.Confidence, got.Reason, tc.want)
			}
			if got.Confidence <= 0 {
				t.Error("matched suggestion should carry confidence")
			}
		})
	}
}

func TestSuggestFallsBackToGeneral(t *testing.T) {
	c := NewKeywordClassifier()
	got := c.Suggest(&model.VideoAnalysis{
		Title:   "Morning routines",
		Topic:   "productivity habits",
		Summary: "Wake up earlier and journal.",
	})
	if got.Category != model.CategoryGeneral {
		t.Errorf("Suggest = %s, want general", got.Category)
	}
	if got.Confidence != 0 {
		t.Errorf("fallback confidence = %.2f, want 0", got.Confidence)
	}
}
