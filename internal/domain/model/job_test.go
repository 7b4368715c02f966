package model

import "testing"

func TestJobStateTerminal(t *testing.T) {
	terminal := []JobState{JobStateCompleted, JobStateFailed, JobStateRejected, JobStateCancelled}
	for _, st := range terminal {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st)
		}
	}
	active := []JobState{
		JobStateQueued, JobStateDownloading, JobStateAnalyzing, JobStateAwaitingApproval,
		JobStateAuthoring, JobStateEvaluatingImages, JobStateGeneratingImages,
		JobStateAssembling, JobStatePersisting,
	}
	for _, st := range active {
		if st.Terminal() {
			t.Errorf("%s should not be terminal", st)
		}
	}
}

func TestDetectPlatform(t *testing.T) {
	cases := []struct {
		url      string
		platform string
		ok       bool
	}{
		{"https://www.tiktok.com/@user/video/123", PlatformTikTok, true},
		{"https://vm.tiktok.com/ZMabc123/", PlatformTikTok, true},
		{"http://tiktok.com/@user/video/1", PlatformTikTok, true},
		{"https://www.instagram.com/reel/Cabc123/", PlatformInstagram, true},
		{"https://instagram.com/p/Cabc123/", PlatformInstagram, true},
		{"https://www.instagram.com/reels/Cabc123/", PlatformInstagram, true},
		{"https://youtube.com/watch?v=abc", "", false},
		{"https://instagram.com/someuser", "", false},
		{"https://faketiktok.com/@user/video/1", "", false},
		{"plain text", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		platform, ok := DetectPlatform(c.url)
		if ok != c.ok || platform != c.platform {
			t.Errorf("DetectPlatform(%q) = (%q, %v), want (%q, %v)", c.url, platform, ok, c.platform, c.ok)
		}
	}
}

func TestSelectionComplete(t *testing.T) {
	var nilSel *ApprovalSelection
	if nilSel.Complete() {
		t.Error("nil selection must not be complete")
	}
	if (&ApprovalSelection{}).Complete() {
		t.Error("empty selection must not be complete")
	}
	if (&ApprovalSelection{Category: CategoryDevOps}).Complete() {
		t.Error("category alone must not be complete")
	}
	if !(&ApprovalSelection{Category: CategoryDevOps, Subcategory: "Tools"}).Complete() {
		t.Error("full selection should be complete")
	}
}

func TestValidCategoryAndSubcategory(t *testing.T) {
	if !ValidCategory("devops") || !ValidCategory("general") {
		t.Error("known categories should validate")
	}
	if ValidCategory("cooking") || ValidCategory("") {
		t.Error("unknown categories should not validate")
	}
	if !ValidSubcategory("Tips & Tricks") {
		t.Error("known subcategory should validate")
	}
	if ValidSubcategory("tips & tricks") {
		t.Error("subcategory match is exact")
	}
}
