package track

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tunecraft/api/internal/model"
)

// Config tunes the stall watchdog. Defaults match production behavior.
type Config struct {
	WatchdogInterval time.Duration
	StallThreshold   time.Duration
	SubmissionGrace  time.Duration
}

// DefaultConfig returns the production watchdog tuning
func DefaultConfig() Config {
	return Config{
		WatchdogInterval: 10 * time.Second,
		StallThreshold:   120 * time.Second,
		SubmissionGrace:  30 * time.Second,
	}
}

// Observer receives a job snapshot after a state change
type Observer func(surfaceID string, job model.Job)

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the tracker's time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker is the authoritative state machine for one surface's job. All
// mutation goes through validated, correlated events or local
// submission/failure; UI layers render from snapshots only.
type Tracker struct {
	surfaceID string
	spec      KindSpec
	cfg       Config
	now       func() time.Time

	notifier Notifier
	dedupe   *Deduper

	mu         sync.Mutex
	job        model.Job
	queuedAt   time.Time
	pending    *model.ChannelEvent
	dog        *watchdog
	terminalCh chan struct{}
	onUpdate   []Observer
	onTerminal []Observer
}

// New creates a tracker in Idle state for one UI surface
func New(surfaceID string, kind model.JobKind, cfg Config, notifier Notifier, dedupe *Deduper, opts ...Option) *Tracker {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if dedupe == nil {
		dedupe = NewDeduper(nil)
	}
	t := &Tracker{
		surfaceID:  surfaceID,
		spec:       SpecFor(kind),
		cfg:        cfg,
		now:        time.Now,
		notifier:   notifier,
		dedupe:     dedupe,
		terminalCh: make(chan struct{}),
		job: model.Job{
			Kind:   kind,
			Status: model.JobStatusIdle,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Spec returns the kind wiring table for this tracker's job
func (t *Tracker) Spec() KindSpec { return t.spec }

// OnUpdate registers an observer called after every accepted progress event
func (t *Tracker) OnUpdate(fn Observer) {
	t.mu.Lock()
	t.onUpdate = append(t.onUpdate, fn)
	t.mu.Unlock()
}

// OnTerminal registers an observer called once on the terminal transition.
// This replaces ambient cross-component signaling: list views subscribe here.
func (t *Tracker) OnTerminal(fn Observer) {
	t.mu.Lock()
	t.onTerminal = append(t.onTerminal, fn)
	t.mu.Unlock()
}

// Terminal is closed when the job reaches Completed or Failed or is canceled
func (t *Tracker) Terminal() <-chan struct{} { return t.terminalCh }

// Begin moves Idle -> Submitting and records the input fingerprint used for
// content-fallback matching.
func (t *Tracker) Begin(inputFingerprint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Status != model.JobStatusIdle {
		return
	}
	t.job.Status = model.JobStatusSubmitting
	t.job.InputFingerprint = inputFingerprint
	t.job.CreatedAt = t.now()
}

// SubmissionSucceeded moves Submitting -> Queued with the server-issued
// identifiers, starts the watchdog, and replays at most the latest event
// that arrived before the submission response.
func (t *Tracker) SubmissionSucceeded(primaryID string, secondaryIDs []string, etaSeconds *int) {
	t.mu.Lock()
	if t.job.Status != model.JobStatusSubmitting {
		t.mu.Unlock()
		return
	}
	t.job.PrimaryID = primaryID
	t.job.SecondaryIDs = append([]string(nil), secondaryIDs...)
	t.job.Status = model.JobStatusQueued
	t.queuedAt = t.now()
	if etaSeconds != nil {
		t.setETALocked(*etaSeconds)
	}
	t.dog = startWatchdog(t.cfg.WatchdogInterval, t.checkStall)
	replay := t.pending
	t.pending = nil
	t.mu.Unlock()

	if replay != nil {
		t.HandleEvent(replay)
	}
}

// SubmissionFailed moves Submitting -> Failed. No channel was opened and no
// watchdog runs, so no cleanup beyond notification is needed.
func (t *Tracker) SubmissionFailed(reason string) {
	err := &SubmissionError{Reason: reason}
	t.mu.Lock()
	if t.job.Status != model.JobStatusSubmitting {
		t.mu.Unlock()
		return
	}
	publish := t.failLocked(err, "submit:"+t.surfaceID)
	t.mu.Unlock()
	publish()
}

// HandleEvent runs an inbound channel event through correlation and, if
// accepted, applies it to the state machine. Returns whether it was accepted.
func (t *Tracker) HandleEvent(ev *model.ChannelEvent) bool {
	if ev == nil {
		return false
	}
	if ev.Category == "" {
		category, ok := t.spec.Categorize(ev.Name)
		if !ok {
			return false
		}
		ev.Category = category
	}

	t.mu.Lock()
	if t.job.Terminal() || t.job.Status == model.JobStatusIdle {
		// Once terminal, further events for this job are ignored entirely.
		t.mu.Unlock()
		return false
	}

	// One tracker owns one channel, so this job is the only candidate for
	// identifier-less provisional matches on this surface.
	outcome := Correlate(&t.job, ev, true)
	if !outcome.Accepted {
		if t.job.Status == model.JobStatusSubmitting {
			// Ordering race: the event beat the submission response. Hold
			// only the newest one until identifiers exist.
			t.pending = ev
		}
		t.mu.Unlock()
		return false
	}

	t.job.LastEventAt = t.now()
	publish := t.applyLocked(ev, outcome)
	t.mu.Unlock()
	publish()
	return true
}

// Cancel discards the job without notification: channel teardown is the
// caller's job, the backend job may keep running server-side.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	if t.job.Terminal() {
		t.mu.Unlock()
		return
	}
	t.job.Status = model.JobStatusFailed
	t.job.ErrorMessage = "canceled"
	t.stopLocked()
	t.mu.Unlock()
}

// Snapshot returns a copy of the job for rendering. The display-only ETA
// fallback is computed here and never feeds correctness decisions.
func (t *Tracker) Snapshot() model.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := t.job
	job.SecondaryIDs = append([]string(nil), t.job.SecondaryIDs...)
	job.Results = append([]model.Result(nil), t.job.Results...)
	if job.Status == model.JobStatusProcessing && job.ETARemaining == nil && t.spec.FallbackETASeconds > 0 {
		remaining := t.spec.FallbackETASeconds * (100 - job.ProgressPercent) / 100
		job.ETARemaining = &remaining
	}
	return job
}

func (t *Tracker) applyLocked(ev *model.ChannelEvent, outcome MatchOutcome) func() {
	switch ev.Category {
	case model.EventProgress:
		t.applyProgressLocked(ev)
		return t.publishLocked(t.onUpdate)

	case model.EventComplete:
		results := NormalizeResults(t.spec, ev)
		if len(results) == 0 {
			return t.failLocked(&EmptyResultError{}, outcome.Key)
		}
		t.job.Status = model.JobStatusCompleted
		t.job.ProgressPercent = 100
		t.job.Results = results
		t.stopLocked()
		notify := t.notifyFnLocked(outcome.Key, true, fmt.Sprintf("%s ready: %d result(s)", t.spec.Kind.Label(), len(results)))
		publish := t.publishLocked(t.onTerminal)
		return func() {
			notify()
			publish()
		}

	case model.EventFailure:
		return t.failLocked(&BackendFailure{Message: failureMessage(ev)}, outcome.Key)
	}
	return func() {}
}

func (t *Tracker) applyProgressLocked(ev *model.ChannelEvent) {
	if t.job.Status == model.JobStatusQueued {
		t.job.Status = model.JobStatusProcessing
	}

	if p, ok := progressPercent(ev); ok {
		// Monotonic, and never shown as 100 before results are attached.
		if p > 99 {
			p = 99
		}
		if p > t.job.ProgressPercent {
			t.job.ProgressPercent = p
		}
	}

	if eta, ok := etaRemaining(ev); ok {
		t.setETALocked(eta)
	}
	if orig, ok := ev.IntField("originalEta"); ok && t.job.ETAOriginal == nil {
		t.job.ETAOriginal = &orig
	}
}

func (t *Tracker) setETALocked(eta int) {
	t.job.ETARemaining = &eta
	if t.job.ETAOriginal == nil {
		orig := eta
		t.job.ETAOriginal = &orig
	}
}

func (t *Tracker) failLocked(cause error, key string) func() {
	t.job.Status = model.JobStatusFailed
	t.job.ErrorMessage = cause.Error()
	t.stopLocked()
	notify := t.notifyFnLocked(key, false, t.job.ErrorMessage)
	publish := t.publishLocked(t.onTerminal)
	return func() {
		notify()
		publish()
	}
}

// notifyFnLocked records the terminal transition and returns the notification
// step to run after the lock is released: the dedup check-and-set talks to
// redis and must not stall event handling or Snapshot callers.
func (t *Tracker) notifyFnLocked(key string, success bool, message string) func() {
	t.job.NotifiedTerminal = true
	surface := t.surfaceID
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), dedupeTimeout)
		defer cancel()
		if !t.dedupe.FirstNotification(ctx, key) {
			log.Printf("[Track] surface=%s duplicate terminal notification suppressed (key=%s)", surface, key)
			return
		}
		if success {
			t.notifier.NotifySuccess(surface, message)
		} else {
			t.notifier.NotifyError(surface, message)
		}
	}
}

func (t *Tracker) stopLocked() {
	if t.dog != nil {
		t.dog.Stop()
		t.dog = nil
	}
	select {
	case <-t.terminalCh:
	default:
		close(t.terminalCh)
	}
}

// publishLocked captures a snapshot and the observer list while the lock is
// held; the returned func must be invoked after unlocking.
func (t *Tracker) publishLocked(observers []Observer) func() {
	fns := append([]Observer(nil), observers...)
	job := t.job
	surface := t.surfaceID
	return func() {
		for _, fn := range fns {
			fn(surface, job)
		}
	}
}

// checkStall is the watchdog tick: declare the job dead after bounded
// silence the channel itself cannot observe (backend crash, lost webhook).
func (t *Tracker) checkStall() {
	t.mu.Lock()
	if t.job.Status != model.JobStatusQueued && t.job.Status != model.JobStatusProcessing {
		t.mu.Unlock()
		return
	}

	base := t.job.LastEventAt
	if base.IsZero() {
		if t.now().Sub(t.queuedAt) < t.cfg.SubmissionGrace {
			t.mu.Unlock()
			return
		}
		base = t.queuedAt
	}

	silence := t.now().Sub(base)
	if silence <= t.cfg.StallThreshold {
		t.mu.Unlock()
		return
	}

	log.Printf("[Track] surface=%s job=%s stalled after %s", t.surfaceID, t.job.PrimaryID, silence.Round(time.Second))
	publish := t.failLocked(&StallTimeout{Silence: silence}, stallKey(&t.job, t.surfaceID))
	t.mu.Unlock()
	publish()
}

func stallKey(job *model.Job, surfaceID string) string {
	if job.PrimaryID != "" {
		return job.PrimaryID
	}
	return "stall:" + surfaceID
}

func progressPercent(ev *model.ChannelEvent) (int, bool) {
	for _, key := range []string{"progress", "percent", "percentage"} {
		if p, ok := ev.IntField(key); ok {
			return p, true
		}
	}
	return 0, false
}

func etaRemaining(ev *model.ChannelEvent) (int, bool) {
	for _, key := range []string{"etaRemaining", "eta_remaining", "eta"} {
		if eta, ok := ev.IntField(key); ok {
			return eta, true
		}
	}
	return 0, false
}

func failureMessage(ev *model.ChannelEvent) string {
	for _, key := range []string{"message", "error", "reason"} {
		if s, ok := ev.StringField(key); ok {
			return s
		}
	}
	return ""
}
