package classify

import (
	"strings"

	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
)

// KeywordClassifier scores categories by keyword hits over the analysis
// text. Pure and deterministic; the user can always override the suggestion
// in the category menu.
type KeywordClassifier struct{}

var _ adapter.Classifier = (*KeywordClassifier)(nil)

func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

var categoryKeywords = map[model.Category][]string{
	model.CategoryAI: {
		"ai", "llm", "gpt", "chatgpt", "claude", "gemini", "machine learning",
		"neural", "prompt", "openai", "model", "agent", "rag", "embedding",
	},
	model.CategoryWeb: {
		"javascript", "typescript", "react", "vue", "css", "html", "frontend",
		"next.js", "node", "browser", "web app", "tailwind", "api",
	},
	model.CategoryProgramming: {
		"python", "golang", "rust", "java", "algorithm", "code", "coding",
		"function", "refactor", "clean code", "debugging", "git",
	},
	model.CategoryDevOps: {
		"docker", "kubernetes", "ci/cd", "terraform", "ansible", "deploy",
		"container", "pipeline", "aws", "cloud", "nginx", "monitoring",
	},
	model.CategoryMobile: {
		"ios", "android", "swift", "kotlin", "flutter", "react native",
		"mobile app", "xcode",
	},
	model.CategorySecurity: {
		"security", "hacking", "vulnerability", "encryption", "password",
		"phishing", "malware", "pentest", "vpn", "firewall",
	},
	model.CategoryData: {
		"sql", "database", "postgres", "analytics", "pandas", "data science",
		"etl", "spark", "visualization", "excel",
	},
	model.CategoryMacOS: {
		"macos", "mac", "macbook", "homebrew", "finder", "apple silicon",
	},
	model.CategoryLinux: {
		"linux", "ubuntu", "bash", "terminal", "shell", "systemd", "vim", "ssh",
	},
	model.CategoryWindows: {
		"windows", "powershell", "wsl", "microsoft", "registry",
	},
}

// Suggest returns the best-scoring category with a rough confidence. No hits
// at all falls back to General with zero confidence.
func (c *KeywordClassifier) Suggest(a *model.VideoAnalysis) model.CategorySuggestion {
	text := strings.ToLower(strings.Join(append([]string{
		a.Title, a.Topic, a.Summary,
	}, append(a.KeyPoints, append(a.Tools, a.Entities...)...)...), " "))

	best := model.CategoryGeneral
	bestHits := 0
	var bestWord string
	for _, cat := range model.Categories {
		hits := 0
		var firstWord string
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(text, kw) {
				if firstWord == "" {
					firstWord = kw
				}
				hits++
			}
		}
		if hits > bestHits {
			best = cat
			bestHits = hits
			bestWord = firstWord
		}
	}

	if bestHits == 0 {
		return model.CategorySuggestion{Category: model.CategoryGeneral, Confidence: 0, Reason: "no keyword matches"}
	}

	confidence := float64(bestHits) / float64(bestHits+2)
	return model.CategorySuggestion{
		Category:   best,
		Confidence: confidence,
		Reason:     "matched " + bestWord,
	}
}
