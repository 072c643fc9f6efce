package track

import (
	"strings"
	"testing"
	"time"

	"github.com/tunecraft/api/internal/model"
)

type recordNotifier struct {
	successes []string
	errors    []string
}

func (n *recordNotifier) NotifySuccess(_, message string) {
	n.successes = append(n.successes, message)
}

func (n *recordNotifier) NotifyError(_, message string) {
	n.errors = append(n.errors, message)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// testConfig keeps the real watchdog ticker inert so tests drive checkStall
// directly through the fake clock.
func testConfig() Config {
	return Config{
		WatchdogInterval: time.Hour,
		StallThreshold:   120 * time.Second,
		SubmissionGrace:  30 * time.Second,
	}
}

func newTestTracker(t *testing.T, kind model.JobKind) (*Tracker, *recordNotifier, *fakeClock) {
	t.Helper()
	notifier := &recordNotifier{}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr := New("surface-1", kind, testConfig(), notifier, NewDeduper(nil), WithClock(clock.now))
	return tr, notifier, clock
}

func progressEvent(name, idKey, id string, percent int) *model.ChannelEvent {
	return &model.ChannelEvent{
		Name: name,
		Fields: map[string]interface{}{
			idKey:      id,
			"progress": float64(percent),
		},
	}
}

func TestStemsHappyPath(t *testing.T) {
	tr, notifier, _ := newTestTracker(t, model.KindStems)

	tr.Begin("https://cdn.example.com/uploads/song.mp3")
	if got := tr.Snapshot().Status; got != model.JobStatusSubmitting {
		t.Fatalf("after Begin: status = %s, want submitting", got)
	}

	eta := 90
	tr.SubmissionSucceeded("job-42", []string{"ext-7"}, &eta)
	snap := tr.Snapshot()
	if snap.Status != model.JobStatusQueued {
		t.Fatalf("after submission: status = %s, want queued", snap.Status)
	}
	if snap.ETARemaining == nil || *snap.ETARemaining != 90 {
		t.Fatalf("eta not recorded: %+v", snap.ETARemaining)
	}
	if snap.ETAOriginal == nil || *snap.ETAOriginal != 90 {
		t.Fatalf("original eta not captured: %+v", snap.ETAOriginal)
	}

	if !tr.HandleEvent(progressEvent("stems.progress", "job_id", "job-42", 40)) {
		t.Fatal("progress event for tracked id was rejected")
	}
	snap = tr.Snapshot()
	if snap.Status != model.JobStatusProcessing {
		t.Fatalf("first progress must move queued -> processing, got %s", snap.Status)
	}
	if snap.ProgressPercent != 40 {
		t.Fatalf("progress = %d, want 40", snap.ProgressPercent)
	}

	accepted := tr.HandleEvent(&model.ChannelEvent{
		Name: "stems.complete",
		Fields: map[string]interface{}{
			"job_id": "job-42",
			"stems": []interface{}{
				map[string]interface{}{"url": "https://cdn.example.com/out/vocals.mp3", "name": "Vocals"},
				map[string]interface{}{"url": "https://cdn.example.com/out/drums.mp3", "name": "Drums"},
			},
		},
	})
	if !accepted {
		t.Fatal("completion event was rejected")
	}

	snap = tr.Snapshot()
	if snap.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", snap.Status)
	}
	if snap.ProgressPercent != 100 {
		t.Fatalf("completed progress = %d, want 100", snap.ProgressPercent)
	}
	if len(snap.Results) != 2 || snap.Results[0].DisplayName != "Vocals" || snap.Results[1].DisplayName != "Drums" {
		t.Fatalf("unexpected results: %+v", snap.Results)
	}
	if len(notifier.successes) != 1 {
		t.Fatalf("success notifications = %d, want exactly 1", len(notifier.successes))
	}

	select {
	case <-tr.Terminal():
	default:
		t.Fatal("terminal channel not closed after completion")
	}
}

func TestProgressMonotonicAndCapped(t *testing.T) {
	tr, _, _ := newTestTracker(t, model.KindRemix)
	tr.Begin("")
	tr.SubmissionSucceeded("job-1", nil, nil)

	tr.HandleEvent(progressEvent("remix.progress", "job_id", "job-1", 60))
	tr.HandleEvent(progressEvent("remix.progress", "job_id", "job-1", 35))
	if got := tr.Snapshot().ProgressPercent; got != 60 {
		t.Fatalf("regression applied: progress = %d, want 60", got)
	}

	tr.HandleEvent(progressEvent("remix.progress", "job_id", "job-1", 100))
	if got := tr.Snapshot().ProgressPercent; got != 99 {
		t.Fatalf("progress before completion = %d, want cap at 99", got)
	}
}

func TestTerminalStateWins(t *testing.T) {
	tr, notifier, _ := newTestTracker(t, model.KindCover)
	tr.Begin("")
	tr.SubmissionSucceeded("job-9", nil, nil)

	tr.HandleEvent(&model.ChannelEvent{
		Name: "cover.complete",
		Fields: map[string]interface{}{
			"job_id":    "job-9",
			"audio_url": "https://cdn.example.com/out/cover.mp3",
		},
	})

	// A late failure for the same job must not overwrite the terminal state.
	if tr.HandleEvent(&model.ChannelEvent{
		Name:   "cover.failed",
		Fields: map[string]interface{}{"job_id": "job-9", "message": "late failure"},
	}) {
		t.Fatal("event accepted after terminal state")
	}

	snap := tr.Snapshot()
	if snap.Status != model.JobStatusCompleted {
		t.Fatalf("terminal state overwritten: %s", snap.Status)
	}
	if len(notifier.errors) != 0 {
		t.Fatalf("late failure produced a notification: %v", notifier.errors)
	}
}

func TestEventBeforeSubmissionResponseIsReplayed(t *testing.T) {
	tr, _, _ := newTestTracker(t, model.KindStems)
	tr.Begin("")

	// Events racing the submission response carry ids the tracker does not
	// know yet. Only the newest one is held.
	if tr.HandleEvent(progressEvent("stems.progress", "job_id", "job-42", 10)) {
		t.Fatal("event accepted before identifiers exist")
	}
	if tr.HandleEvent(progressEvent("stems.progress", "job_id", "job-42", 25)) {
		t.Fatal("event accepted before identifiers exist")
	}

	tr.SubmissionSucceeded("job-42", nil, nil)
	snap := tr.Snapshot()
	if snap.Status != model.JobStatusProcessing {
		t.Fatalf("buffered event not replayed: status = %s", snap.Status)
	}
	if snap.ProgressPercent != 25 {
		t.Fatalf("progress = %d, want the latest buffered value 25", snap.ProgressPercent)
	}
}

func TestPendingEventForOtherJobNotReplayed(t *testing.T) {
	tr, _, _ := newTestTracker(t, model.KindStems)
	tr.Begin("")
	tr.HandleEvent(progressEvent("stems.progress", "job_id", "someone-else", 50))

	tr.SubmissionSucceeded("job-42", nil, nil)
	snap := tr.Snapshot()
	if snap.ProgressPercent != 0 {
		t.Fatalf("foreign buffered event applied: progress = %d", snap.ProgressPercent)
	}
	if snap.Status != model.JobStatusQueued {
		t.Fatalf("status = %s, want queued", snap.Status)
	}
}

func TestSubmissionFailed(t *testing.T) {
	tr, notifier, _ := newTestTracker(t, model.KindOneShot)
	tr.Begin("")
	tr.SubmissionFailed("upstream rejected request")

	snap := tr.Snapshot()
	if snap.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "upstream rejected request") {
		t.Fatalf("error message lost: %q", snap.ErrorMessage)
	}
	if len(notifier.errors) != 1 {
		t.Fatalf("error notifications = %d, want 1", len(notifier.errors))
	}

	select {
	case <-tr.Terminal():
	default:
		t.Fatal("terminal channel not closed after submission failure")
	}
}

func TestEmptyCompletionFailsJob(t *testing.T) {
	tr, notifier, _ := newTestTracker(t, model.KindAudioToMIDI)
	tr.Begin("")
	tr.SubmissionSucceeded("job-3", nil, nil)

	// Completion whose variants all lack audio references yields zero
	// results; that must read as failure, never as an empty success.
	tr.HandleEvent(&model.ChannelEvent{
		Name: "midi.complete",
		Fields: map[string]interface{}{
			"job_id": "job-3",
			"tracks": []interface{}{
				map[string]interface{}{"name": "no file here"},
			},
		},
	})

	snap := tr.Snapshot()
	if snap.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if len(snap.Results) != 0 {
		t.Fatalf("results attached to a failed job: %+v", snap.Results)
	}
	if len(notifier.errors) != 1 || len(notifier.successes) != 0 {
		t.Fatalf("notifications = %d success / %d error, want 0/1", len(notifier.successes), len(notifier.errors))
	}
}

func TestBackendFailureMessageSurfaced(t *testing.T) {
	tr, _, _ := newTestTracker(t, model.KindRemix)
	tr.Begin("")
	tr.SubmissionSucceeded("job-5", nil, nil)

	tr.HandleEvent(&model.ChannelEvent{
		Name:   "remix.failed",
		Fields: map[string]interface{}{"job_id": "job-5", "error": "gpu pool exhausted"},
	})

	snap := tr.Snapshot()
	if snap.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "gpu pool exhausted") {
		t.Fatalf("backend message lost: %q", snap.ErrorMessage)
	}
}

func TestCancelIsSilent(t *testing.T) {
	tr, notifier, _ := newTestTracker(t, model.KindStems)
	tr.Begin("")
	tr.SubmissionSucceeded("job-8", nil, nil)

	tr.Cancel()

	snap := tr.Snapshot()
	if snap.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if len(notifier.successes)+len(notifier.errors) != 0 {
		t.Fatal("cancel must not notify")
	}
	select {
	case <-tr.Terminal():
	default:
		t.Fatal("terminal channel not closed after cancel")
	}
}

func TestStallWatchdog(t *testing.T) {
	tr, notifier, clock := newTestTracker(t, model.KindStems)
	tr.Begin("")
	tr.SubmissionSucceeded("job-11", nil, nil)
	tr.HandleEvent(progressEvent("stems.progress", "job_id", "job-11", 10))

	clock.advance(100 * time.Second)
	tr.checkStall()
	if got := tr.Snapshot().Status; got != model.JobStatusProcessing {
		t.Fatalf("stalled below threshold: status = %s", got)
	}

	clock.advance(21 * time.Second)
	tr.checkStall()
	snap := tr.Snapshot()
	if snap.Status != model.JobStatusFailed {
		t.Fatalf("silence past threshold not detected: status = %s", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "no progress") {
		t.Fatalf("unexpected stall message: %q", snap.ErrorMessage)
	}
	if len(notifier.errors) != 1 {
		t.Fatalf("error notifications = %d, want 1", len(notifier.errors))
	}
}

func TestStallGracePeriodBeforeFirstEvent(t *testing.T) {
	tr, _, clock := newTestTracker(t, model.KindStems)
	tr.Begin("")
	tr.SubmissionSucceeded("job-12", nil, nil)

	// Inside the grace window nothing has arrived yet; the watchdog must
	// not count silence against the job.
	clock.advance(20 * time.Second)
	tr.checkStall()
	if got := tr.Snapshot().Status; got != model.JobStatusQueued {
		t.Fatalf("failed inside grace period: status = %s", got)
	}

	// Past the grace window silence is measured from submission time.
	clock.advance(121 * time.Second)
	tr.checkStall()
	if got := tr.Snapshot().Status; got != model.JobStatusFailed {
		t.Fatalf("eventless job never stalled: status = %s", got)
	}
}

func TestProgressEventRefreshesStallBaseline(t *testing.T) {
	tr, _, clock := newTestTracker(t, model.KindStems)
	tr.Begin("")
	tr.SubmissionSucceeded("job-13", nil, nil)
	tr.HandleEvent(progressEvent("stems.progress", "job_id", "job-13", 10))

	clock.advance(110 * time.Second)
	tr.HandleEvent(progressEvent("stems.progress", "job_id", "job-13", 20))

	clock.advance(110 * time.Second)
	tr.checkStall()
	if got := tr.Snapshot().Status; got != model.JobStatusProcessing {
		t.Fatalf("baseline not refreshed by progress event: status = %s", got)
	}
}

func TestFallbackETAShownOnlyWhileProcessing(t *testing.T) {
	tr, _, _ := newTestTracker(t, model.KindOneShot)
	tr.Begin("")
	tr.SubmissionSucceeded("job-14", nil, nil)

	if snap := tr.Snapshot(); snap.ETARemaining != nil {
		t.Fatalf("fallback eta shown while queued: %d", *snap.ETARemaining)
	}

	tr.HandleEvent(&model.ChannelEvent{
		Name:   "oneshot.progress",
		Fields: map[string]interface{}{"job_id": "job-14", "progress": float64(50)},
	})
	snap := tr.Snapshot()
	if snap.ETARemaining == nil {
		t.Fatal("fallback eta missing while processing")
	}
	if *snap.ETARemaining != 15 {
		t.Fatalf("fallback eta = %d, want 15 (30s scaled by remaining 50%%)", *snap.ETARemaining)
	}
}

// reentrantNotifier reads the tracker back while being notified, the way a
// presentation layer that renders from a snapshot would.
type reentrantNotifier struct {
	tr     *Tracker
	status model.JobStatus
}

func (n *reentrantNotifier) NotifySuccess(string, string) {
	n.status = n.tr.Snapshot().Status
}

func (n *reentrantNotifier) NotifyError(string, string) {
	n.status = n.tr.Snapshot().Status
}

func TestNotificationDoesNotHoldTrackerLock(t *testing.T) {
	notifier := &reentrantNotifier{}
	tr := New("surface-1", model.KindStems, testConfig(), notifier, NewDeduper(nil))
	notifier.tr = tr

	tr.Begin("")
	tr.SubmissionSucceeded("job-21", nil, nil)

	done := make(chan struct{})
	go func() {
		tr.HandleEvent(&model.ChannelEvent{
			Name: "stems.complete",
			Fields: map[string]interface{}{
				"job_id": "job-21",
				"url":    "https://cdn.example.com/out.mp3",
			},
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("terminal notification blocked the tracker")
	}
	if notifier.status != model.JobStatusCompleted {
		t.Fatalf("snapshot during notification = %s, want completed", notifier.status)
	}
}

func TestServerETAPreferredOverFallback(t *testing.T) {
	tr, _, _ := newTestTracker(t, model.KindOneShot)
	tr.Begin("")
	tr.SubmissionSucceeded("job-15", nil, nil)

	tr.HandleEvent(&model.ChannelEvent{
		Name:   "oneshot.progress",
		Fields: map[string]interface{}{"job_id": "job-15", "progress": float64(50), "eta": float64(7)},
	})
	snap := tr.Snapshot()
	if snap.ETARemaining == nil || *snap.ETARemaining != 7 {
		t.Fatalf("server eta not preferred: %+v", snap.ETARemaining)
	}
}
