package model

import (
	"regexp"
	"time"
)

type JobState string

const (
	JobStateQueued           JobState = "queued"
	JobStateDownloading      JobState = "downloading"
	JobStateAnalyzing        JobState = "analyzing"
	JobStateAwaitingApproval JobState = "awaiting_approval"
	JobStateAuthoring        JobState = "authoring"
	JobStateEvaluatingImages JobState = "evaluating_images"
	JobStateGeneratingImages JobState = "generating_images"
	JobStateAssembling       JobState = "assembling"
	JobStatePersisting       JobState = "persisting"
	JobStateCompleted        JobState = "completed"
	JobStateFailed           JobState = "failed"
	JobStateRejected         JobState = "rejected"
	JobStateCancelled        JobState = "cancelled"
)

// Terminal reports whether the state frees the owner's slot.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateRejected, JobStateCancelled:
		return true
	}
	return false
}

// Job is one owner's end-to-end request to turn a video URL into a knowledge
// entry. Exactly one non-terminal Job may exist per owner at any time; all
// cross-goroutine access goes through the session store's per-owner mutation
// point.
type Job struct {
	ID       string
	Owner    int64
	URL      string
	Platform string
	State    JobState

	Analysis   *VideoAnalysis
	Suggestion *CategorySuggestion
	Selection  *ApprovalSelection
	Content    *AuthoredContent
	Images     []GeneratedImage
	Result     *PersistedLocation

	// TempPath is the downloaded video file; kept through the approval
	// checkpoint so re-analysis does not need another download.
	TempPath string

	QualityFlags []string
	LastError    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewJob(id string, owner int64, url, platform string) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		Owner:     owner,
		URL:       url,
		Platform:  platform,
		State:     JobStateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j *Job) Flag(flag string) {
	j.QualityFlags = append(j.QualityFlags, flag)
}

type SelectionField string

const (
	SelectionCategory    SelectionField = "category"
	SelectionSubcategory SelectionField = "subcategory"
)

// ApprovalSelection accumulates the user's category choices across the
// approval sub-protocol. It is complete only when every field is set, and is
// consumed exactly once by the resumed pipeline.
type ApprovalSelection struct {
	Category    Category
	Subcategory string
	CreatedAt   time.Time
}

func (s *ApprovalSelection) Complete() bool {
	return s != nil && s.Category != "" && s.Subcategory != ""
}

// Supported short-form video platforms.
const (
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
)

var platformPatterns = map[string]*regexp.Regexp{
	PlatformTikTok:    regexp.MustCompile(`^https?://(www\.)?(vm\.)?tiktok\.com/`),
	PlatformInstagram: regexp.MustCompile(`^https?://(www\.)?instagram\.com/(p|reel|reels)/`),
}

// DetectPlatform returns the platform for a submitted URL, or false when the
// URL does not match any supported platform.
func DetectPlatform(url string) (string, bool) {
	for platform, re := range platformPatterns {
		if re.MatchString(url) {
			return platform, true
		}
	}
	return "", false
}
