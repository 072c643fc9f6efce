package track

import (
	"testing"

	"github.com/tunecraft/api/internal/model"
)

func TestCorrelatePrimaryID(t *testing.T) {
	job := &model.Job{Kind: model.KindStems, PrimaryID: "job-1", Status: model.JobStatusProcessing}
	ev := &model.ChannelEvent{
		Name:     "stems.progress",
		Category: model.EventProgress,
		Fields:   map[string]interface{}{"taskId": "job-1"},
	}

	outcome := Correlate(job, ev, true)
	if !outcome.Accepted || outcome.Strategy != MatchPrimary {
		t.Fatalf("outcome = %+v, want primary match", outcome)
	}
	if outcome.Key != "job-1" {
		t.Fatalf("key = %q, want job-1", outcome.Key)
	}
}

func TestCorrelateSecondaryID(t *testing.T) {
	// Terminal events sometimes carry only the upstream provider's id.
	job := &model.Job{
		Kind:         model.KindRemix,
		PrimaryID:    "job-1",
		SecondaryIDs: []string{"ext-55"},
		Status:       model.JobStatusProcessing,
	}
	ev := &model.ChannelEvent{
		Name:     "remix.complete",
		Category: model.EventComplete,
		Fields:   map[string]interface{}{"external_id": "ext-55"},
	}

	outcome := Correlate(job, ev, true)
	if !outcome.Accepted || outcome.Strategy != MatchSecondary {
		t.Fatalf("outcome = %+v, want secondary match", outcome)
	}
}

func TestCorrelateUnknownIDRejected(t *testing.T) {
	job := &model.Job{Kind: model.KindStems, PrimaryID: "job-1", Status: model.JobStatusProcessing}
	ev := &model.ChannelEvent{
		Name:     "stems.progress",
		Category: model.EventProgress,
		Fields:   map[string]interface{}{"job_id": "job-2", "progress": float64(50)},
	}

	if outcome := Correlate(job, ev, true); outcome.Accepted {
		t.Fatalf("event for another job accepted: %+v", outcome)
	}
}

func TestCorrelateProvisionalFailure(t *testing.T) {
	// No ids on either side yet, sole active job, failure event: accept.
	job := &model.Job{Kind: model.KindCover, Status: model.JobStatusSubmitting}
	ev := &model.ChannelEvent{
		Name:     "cover.failed",
		Category: model.EventFailure,
		Fields:   map[string]interface{}{"message": "invalid input"},
	}

	outcome := Correlate(job, ev, true)
	if !outcome.Accepted || outcome.Strategy != MatchProvisional {
		t.Fatalf("outcome = %+v, want provisional match", outcome)
	}
}

func TestCorrelateProvisionalRequiresSoleJob(t *testing.T) {
	job := &model.Job{Kind: model.KindCover, Status: model.JobStatusSubmitting}
	ev := &model.ChannelEvent{
		Name:     "cover.failed",
		Category: model.EventFailure,
		Fields:   map[string]interface{}{"message": "invalid input"},
	}

	if outcome := Correlate(job, ev, false); outcome.Accepted {
		t.Fatalf("provisional match without sole-job guarantee: %+v", outcome)
	}
}

func TestCorrelateProvisionalNeverMatchesProgress(t *testing.T) {
	job := &model.Job{Kind: model.KindCover, Status: model.JobStatusSubmitting}
	ev := &model.ChannelEvent{
		Name:     "cover.progress",
		Category: model.EventProgress,
		Fields:   map[string]interface{}{"progress": float64(10)},
	}

	if outcome := Correlate(job, ev, true); outcome.Accepted {
		t.Fatalf("provisional rule applied to a non-failure event: %+v", outcome)
	}
}

func TestCorrelateContentFallback(t *testing.T) {
	// Identifier-less completion whose variant audio urls embed the input
	// reference the job was started with.
	job := &model.Job{
		Kind:             model.KindStems,
		InputFingerprint: "https://cdn.example.com/uploads/track-9.mp3",
		Status:           model.JobStatusProcessing,
	}
	ev := &model.ChannelEvent{
		Name:     "stems.complete",
		Category: model.EventComplete,
		Fields: map[string]interface{}{
			"stems": []interface{}{
				map[string]interface{}{
					"url": "https://cdn.example.com/uploads/track-9.mp3/stems/vocals.mp3",
				},
			},
		},
	}

	outcome := Correlate(job, ev, true)
	if !outcome.Accepted || outcome.Strategy != MatchContent {
		t.Fatalf("outcome = %+v, want content fallback match", outcome)
	}
}

func TestCorrelatePrimaryBeatsContentFallback(t *testing.T) {
	job := &model.Job{
		Kind:             model.KindStems,
		PrimaryID:        "job-1",
		InputFingerprint: "https://cdn.example.com/uploads/a.mp3",
		Status:           model.JobStatusProcessing,
	}
	ev := &model.ChannelEvent{
		Name:     "stems.progress",
		Category: model.EventProgress,
		Fields: map[string]interface{}{
			"job_id": "job-1",
			"url":    "https://cdn.example.com/uploads/a.mp3",
		},
	}

	outcome := Correlate(job, ev, true)
	if outcome.Strategy != MatchPrimary {
		t.Fatalf("strategy = %s, identifiers must win over content heuristics", outcome.Strategy)
	}
}

func TestCorrelateContentFallbackNeedsFingerprint(t *testing.T) {
	job := &model.Job{Kind: model.KindStems, Status: model.JobStatusProcessing}
	ev := &model.ChannelEvent{
		Name:     "stems.complete",
		Category: model.EventComplete,
		Fields:   map[string]interface{}{"url": "https://cdn.example.com/out/x.mp3"},
	}

	if outcome := Correlate(job, ev, true); outcome.Accepted {
		t.Fatalf("matched with no fingerprint recorded: %+v", outcome)
	}
}
