package service

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/tunecraft/api/internal/channel"
	"github.com/tunecraft/api/internal/client"
	"github.com/tunecraft/api/internal/model"
	"github.com/tunecraft/api/internal/track"
)

// session is one UI surface's active tracking state: exactly one job and
// one push-channel connection at a time.
type session struct {
	surfaceID string
	kind      model.JobKind
	lastReq   *client.SubmitRequest
	tracker   *track.Tracker
	channel   *channel.Manager
}

// ConvertService owns the per-surface tracking sessions. Starting a new
// conversion on a surface invalidates tracking of its previous job; events
// still arriving for the old job are ignored.
type ConvertService struct {
	starter    client.ConversionStarter
	channelCfg channel.Config
	trackCfg   track.Config
	notifier   track.Notifier
	dedupe     *track.Deduper

	mu         sync.Mutex
	sessions   map[string]*session
	onUpdate   []track.Observer
	onTerminal []track.Observer
}

// NewConvertService creates the session registry
func NewConvertService(starter client.ConversionStarter, channelCfg channel.Config, trackCfg track.Config, notifier track.Notifier, dedupe *track.Deduper) *ConvertService {
	return &ConvertService{
		starter:    starter,
		channelCfg: channelCfg,
		trackCfg:   trackCfg,
		notifier:   notifier,
		dedupe:     dedupe,
		sessions:   make(map[string]*session),
	}
}

// OnUpdate registers an observer applied to every future session's tracker
func (s *ConvertService) OnUpdate(fn track.Observer) {
	s.mu.Lock()
	s.onUpdate = append(s.onUpdate, fn)
	s.mu.Unlock()
}

// OnTerminal registers a terminal-transition observer for every future
// session; mounted list views subscribe here instead of global listeners.
func (s *ConvertService) OnTerminal(fn track.Observer) {
	s.mu.Lock()
	s.onTerminal = append(s.onTerminal, fn)
	s.mu.Unlock()
}

// StartConversion submits a job upstream and begins tracking it for the
// surface. The channel is connected before submission so an event that
// beats the submission response is buffered rather than lost.
func (s *ConvertService) StartConversion(ctx context.Context, kind model.JobKind, req *model.ConvertStartRequest) (*model.ConvertStartResponse, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown job kind: %s", kind)
	}
	if err := validateKindInput(kind, req); err != nil {
		return nil, err
	}

	submitReq := &client.SubmitRequest{
		AudioURL:     req.AudioURL,
		Prompt:       req.Prompt,
		Style:        req.Style,
		Instrumental: req.Instrumental,
	}

	sess := s.replaceSession(req.SurfaceID, kind, submitReq)
	return s.run(ctx, sess, req.AudioURL)
}

// Retry constructs a brand-new job from the surface's last request. The old
// job is never resumed.
func (s *ConvertService) Retry(ctx context.Context, surfaceID string) (*model.ConvertStartResponse, error) {
	s.mu.Lock()
	old, ok := s.sessions[surfaceID]
	s.mu.Unlock()
	if !ok || old.lastReq == nil {
		return nil, fmt.Errorf("nothing to retry for surface %s", surfaceID)
	}
	snap := old.tracker.Snapshot()
	if !snap.Terminal() {
		return nil, fmt.Errorf("conversion still in flight")
	}

	sess := s.replaceSession(surfaceID, old.kind, old.lastReq)
	return s.run(ctx, sess, old.lastReq.AudioURL)
}

// Cancel tears down the surface's session without notification. The backend
// job may continue running server-side; that is accepted.
func (s *ConvertService) Cancel(surfaceID string) (*model.ConvertCancelResponse, error) {
	s.mu.Lock()
	sess, ok := s.sessions[surfaceID]
	if ok {
		delete(s.sessions, surfaceID)
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no active conversion for surface %s", surfaceID)
	}

	sess.channel.Disconnect()
	sess.tracker.Cancel()
	log.Printf("[Convert] surface=%s canceled", surfaceID)
	return &model.ConvertCancelResponse{SurfaceID: surfaceID, Canceled: true}, nil
}

// Status returns a render snapshot for the surface's tracked job
func (s *ConvertService) Status(surfaceID string) (*model.ConvertStatusResponse, error) {
	sess, err := s.lookup(surfaceID)
	if err != nil {
		return nil, err
	}
	job := sess.tracker.Snapshot()
	return &model.ConvertStatusResponse{
		SurfaceID:       surfaceID,
		Kind:            job.Kind,
		JobID:           job.PrimaryID,
		Status:          job.Status,
		ProgressPercent: job.ProgressPercent,
		ETARemaining:    job.ETARemaining,
		ErrorMessage:    job.ErrorMessage,
		ResultCount:     len(job.Results),
	}, nil
}

// Results returns the normalized result list of a completed job
func (s *ConvertService) Results(surfaceID string) (*model.ConvertResultsResponse, error) {
	sess, err := s.lookup(surfaceID)
	if err != nil {
		return nil, err
	}
	job := sess.tracker.Snapshot()
	if job.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("conversion not completed")
	}
	return &model.ConvertResultsResponse{
		SurfaceID: surfaceID,
		JobID:     job.PrimaryID,
		Kind:      job.Kind,
		Results:   job.Results,
	}, nil
}

// Close tears down every session, for graceful shutdown
func (s *ConvertService) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.channel.Disconnect()
		sess.tracker.Cancel()
	}
}

func (s *ConvertService) lookup(surfaceID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[surfaceID]
	if !ok {
		return nil, fmt.Errorf("no conversion tracked for surface %s", surfaceID)
	}
	return sess, nil
}

// replaceSession closes any prior session for the surface before creating a
// new one, so two overlapping subscriptions never both deliver events.
func (s *ConvertService) replaceSession(surfaceID string, kind model.JobKind, submitReq *client.SubmitRequest) *session {
	tracker := track.New(surfaceID, kind, s.trackCfg, s.notifier, s.dedupe)

	sess := &session{
		surfaceID: surfaceID,
		kind:      kind,
		lastReq:   submitReq,
		tracker:   tracker,
	}
	sess.channel = channel.NewManager(s.channelCfg, func(ev *model.ChannelEvent) {
		tracker.HandleEvent(ev)
	}, func(state channel.State, err error) {
		// Diagnostics only; connection state never changes job status.
		if err != nil {
			log.Printf("[Convert] surface=%s channel %s: %v", surfaceID, state, err)
		} else {
			log.Printf("[Convert] surface=%s channel %s", surfaceID, state)
		}
	})

	s.mu.Lock()
	prev := s.sessions[surfaceID]
	s.sessions[surfaceID] = sess
	for _, fn := range s.onUpdate {
		tracker.OnUpdate(fn)
	}
	for _, fn := range s.onTerminal {
		tracker.OnTerminal(fn)
	}
	s.mu.Unlock()

	if prev != nil {
		prev.channel.Disconnect()
		prev.tracker.Cancel()
		log.Printf("[Convert] surface=%s previous job invalidated", surfaceID)
	}
	return sess
}

func (s *ConvertService) run(ctx context.Context, sess *session, fingerprint string) (*model.ConvertStartResponse, error) {
	sess.tracker.Begin(fingerprint)

	if err := sess.channel.Connect(sess.tracker.Spec().EventNames()); err != nil {
		// Transport trouble alone must not fail the job; the watchdog will
		// trip if nothing ever arrives.
		log.Printf("[Convert] surface=%s channel connect failed: %v", sess.surfaceID, err)
	}

	resp, err := s.starter.Submit(ctx, sess.kind, sess.lastReq)
	if err != nil {
		sess.tracker.SubmissionFailed(err.Error())
		sess.channel.Disconnect()
		return nil, &track.SubmissionError{Reason: err.Error()}
	}

	var secondary []string
	if resp.ExternalJobID != "" {
		secondary = append(secondary, resp.ExternalJobID)
	}
	sess.tracker.SubmissionSucceeded(resp.JobID, secondary, resp.ETASeconds)

	// Tear the channel down as soon as the job terminates, to stop
	// background traffic and duplicate future deliveries.
	go func(ch *channel.Manager, t *track.Tracker) {
		<-t.Terminal()
		ch.Disconnect()
	}(sess.channel, sess.tracker)

	job := sess.tracker.Snapshot()
	log.Printf("[Convert] surface=%s kind=%s job=%s queued", sess.surfaceID, sess.kind, resp.JobID)
	return &model.ConvertStartResponse{
		SurfaceID:  sess.surfaceID,
		JobID:      resp.JobID,
		Kind:       sess.kind,
		Status:     job.Status,
		ETASeconds: resp.ETASeconds,
		CreatedAt:  job.CreatedAt,
	}, nil
}

func validateKindInput(kind model.JobKind, req *model.ConvertStartRequest) error {
	if kind == model.KindOneShot {
		if req.Prompt == "" {
			return fmt.Errorf("prompt is required for one-shot generation")
		}
		return nil
	}
	if req.AudioURL == "" {
		return fmt.Errorf("audioUrl is required for %s conversion", kind)
	}
	return nil
}

// ActiveSessions reports how many surfaces are currently tracked
func (s *ConvertService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
