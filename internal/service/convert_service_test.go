package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tunecraft/api/internal/channel"
	"github.com/tunecraft/api/internal/client"
	"github.com/tunecraft/api/internal/model"
	"github.com/tunecraft/api/internal/track"
)

type stubStarter struct {
	mu    sync.Mutex
	calls int
	resp  *client.SubmitResponse
	err   error
}

func (s *stubStarter) Submit(_ context.Context, _ model.JobKind, _ *client.SubmitRequest) (*client.SubmitResponse, error) {
	s.mu.Lock()
	s.calls++
	resp, err := s.resp, s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *stubStarter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// pushServer is a minimal scripted push-channel endpoint
type pushServer struct {
	mu    sync.Mutex
	conns []*websocket.Conn
}

func newPushServer(t *testing.T) (*pushServer, string) {
	t.Helper()
	ps := &pushServer{}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Consume the subscribe frame before accepting pushes.
		var frame map[string]interface{}
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		ps.mu.Lock()
		ps.conns = append(ps.conns, conn)
		ps.mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return ps, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (ps *pushServer) push(t *testing.T, payload interface{}) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ps.mu.Lock()
		n := len(ps.conns)
		ps.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.conns) == 0 {
		t.Fatal("no channel connection to push on")
	}
	if err := ps.conns[len(ps.conns)-1].WriteJSON(payload); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func testTrackConfig() track.Config {
	return track.Config{
		WatchdogInterval: time.Hour,
		StallThreshold:   120 * time.Second,
		SubmissionGrace:  30 * time.Second,
	}
}

func newTestService(t *testing.T, starter client.ConversionStarter) (*ConvertService, *pushServer) {
	t.Helper()
	ps, url := newPushServer(t)
	cfg := channel.DefaultConfig(url)
	cfg.ReconnectBackoff = 10 * time.Millisecond
	svc := NewConvertService(starter, cfg, testTrackConfig(), track.NopNotifier{}, track.NewDeduper(nil))
	t.Cleanup(svc.Close)
	return svc, ps
}

func waitStatus(t *testing.T, svc *ConvertService, surfaceID string, want model.JobStatus) *model.ConvertStatusResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last *model.ConvertStatusResponse
	for time.Now().Before(deadline) {
		st, err := svc.Status(surfaceID)
		if err == nil {
			last = st
			if st.Status == want {
				return st
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status never reached %s, last = %+v", want, last)
	return nil
}

func TestStartConversionRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t, &stubStarter{resp: &client.SubmitResponse{Success: true, JobID: "j1"}})

	if _, err := svc.StartConversion(context.Background(), model.JobKind("karaoke"), &model.ConvertStartRequest{SurfaceID: "s1"}); err == nil {
		t.Fatal("unknown kind accepted")
	}
	if _, err := svc.StartConversion(context.Background(), model.KindStems, &model.ConvertStartRequest{SurfaceID: "s1"}); err == nil {
		t.Fatal("stems without audioUrl accepted")
	}
	if _, err := svc.StartConversion(context.Background(), model.KindOneShot, &model.ConvertStartRequest{SurfaceID: "s1"}); err == nil {
		t.Fatal("one-shot without prompt accepted")
	}
	if svc.ActiveSessions() != 0 {
		t.Fatalf("rejected input left sessions behind: %d", svc.ActiveSessions())
	}
}

func TestStartConversionSubmissionFailure(t *testing.T) {
	svc, _ := newTestService(t, &stubStarter{err: errors.New("quota exceeded")})

	_, err := svc.StartConversion(context.Background(), model.KindStems, &model.ConvertStartRequest{
		SurfaceID: "s1",
		AudioURL:  "https://cdn.example.com/in.mp3",
	})
	var subErr *track.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}

	st, err := svc.Status("s1")
	if err != nil {
		t.Fatalf("status after failed submission: %v", err)
	}
	if st.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", st.Status)
	}
	if !strings.Contains(st.ErrorMessage, "quota exceeded") {
		t.Fatalf("error message lost: %q", st.ErrorMessage)
	}
}

func TestConversionCompletesViaChannel(t *testing.T) {
	svc, ps := newTestService(t, &stubStarter{resp: &client.SubmitResponse{Success: true, JobID: "job-77"}})

	resp, err := svc.StartConversion(context.Background(), model.KindStems, &model.ConvertStartRequest{
		SurfaceID: "s1",
		AudioURL:  "https://cdn.example.com/in.mp3",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if resp.JobID != "job-77" || resp.Status != model.JobStatusQueued {
		t.Fatalf("start response = %+v", resp)
	}

	ps.push(t, map[string]interface{}{
		"event": "stems.progress",
		"data":  map[string]interface{}{"job_id": "job-77", "progress": 55},
	})
	st := waitStatus(t, svc, "s1", model.JobStatusProcessing)
	if st.ProgressPercent != 55 {
		t.Fatalf("progress = %d, want 55", st.ProgressPercent)
	}

	ps.push(t, map[string]interface{}{
		"event": "stems.complete",
		"data": map[string]interface{}{
			"job_id": "job-77",
			"stems": []interface{}{
				map[string]interface{}{"url": "https://cdn.example.com/out/vocals.mp3", "name": "Vocals"},
			},
		},
	})
	waitStatus(t, svc, "s1", model.JobStatusCompleted)

	results, err := svc.Results("s1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results.Results) != 1 || results.Results[0].DisplayName != "Vocals" {
		t.Fatalf("results = %+v", results.Results)
	}
}

func TestResultsRequireCompletion(t *testing.T) {
	svc, _ := newTestService(t, &stubStarter{resp: &client.SubmitResponse{Success: true, JobID: "j1"}})

	if _, err := svc.StartConversion(context.Background(), model.KindRemix, &model.ConvertStartRequest{
		SurfaceID: "s1",
		AudioURL:  "https://cdn.example.com/in.mp3",
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.Results("s1"); err == nil {
		t.Fatal("results served before completion")
	}
}

func TestNewConversionInvalidatesPrevious(t *testing.T) {
	svc, _ := newTestService(t, &stubStarter{resp: &client.SubmitResponse{Success: true, JobID: "j1"}})

	req := &model.ConvertStartRequest{SurfaceID: "s1", AudioURL: "https://cdn.example.com/in.mp3"}
	if _, err := svc.StartConversion(context.Background(), model.KindStems, req); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := svc.StartConversion(context.Background(), model.KindStems, req); err != nil {
		t.Fatalf("second start: %v", err)
	}

	if got := svc.ActiveSessions(); got != 1 {
		t.Fatalf("sessions = %d, want the replacement only", got)
	}
}

func TestCancelRemovesSession(t *testing.T) {
	svc, _ := newTestService(t, &stubStarter{resp: &client.SubmitResponse{Success: true, JobID: "j1"}})

	if _, err := svc.StartConversion(context.Background(), model.KindCover, &model.ConvertStartRequest{
		SurfaceID: "s1",
		AudioURL:  "https://cdn.example.com/in.mp3",
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	out, err := svc.Cancel("s1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !out.Canceled {
		t.Fatalf("cancel response = %+v", out)
	}
	if _, err := svc.Status("s1"); err == nil {
		t.Fatal("status still served after cancel")
	}
	if _, err := svc.Cancel("s1"); err == nil {
		t.Fatal("double cancel accepted")
	}
}

func TestRetryRequiresTerminalJob(t *testing.T) {
	svc, _ := newTestService(t, &stubStarter{resp: &client.SubmitResponse{Success: true, JobID: "j1"}})

	if _, err := svc.StartConversion(context.Background(), model.KindStems, &model.ConvertStartRequest{
		SurfaceID: "s1",
		AudioURL:  "https://cdn.example.com/in.mp3",
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.Retry(context.Background(), "s1"); err == nil {
		t.Fatal("retry accepted while the job is in flight")
	}
}

func TestRetryStartsFreshJob(t *testing.T) {
	starter := &stubStarter{err: errors.New("transient upstream outage")}
	svc, _ := newTestService(t, starter)

	_, err := svc.StartConversion(context.Background(), model.KindStems, &model.ConvertStartRequest{
		SurfaceID: "s1",
		AudioURL:  "https://cdn.example.com/in.mp3",
	})
	if err == nil {
		t.Fatal("expected submission failure")
	}

	starter.mu.Lock()
	starter.err = nil
	starter.resp = &client.SubmitResponse{Success: true, JobID: "job-2"}
	starter.mu.Unlock()

	resp, err := svc.Retry(context.Background(), "s1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if resp.JobID != "job-2" || resp.Status != model.JobStatusQueued {
		t.Fatalf("retry response = %+v", resp)
	}
	if starter.callCount() != 2 {
		t.Fatalf("submit calls = %d, want 2", starter.callCount())
	}
}
