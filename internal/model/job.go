package model

import "time"

// Job represents one tracked asynchronous conversion operation
type Job struct {
	Kind             JobKind   `json:"kind"`
	PrimaryID        string    `json:"primaryId"`
	SecondaryIDs     []string  `json:"secondaryIds,omitempty"`
	InputFingerprint string    `json:"-"`
	Status           JobStatus `json:"status"`
	ProgressPercent  int       `json:"progressPercent"`
	ETARemaining     *int      `json:"etaSecondsRemaining,omitempty"`
	ETAOriginal      *int      `json:"etaSecondsOriginal,omitempty"`
	LastEventAt      time.Time `json:"lastEventAt,omitempty"`
	Results          []Result  `json:"results,omitempty"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	NotifiedTerminal bool      `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Result is one normalized output variant of a completed job
type Result struct {
	AudioURL      string `json:"audioUrl"`
	DisplayName   string `json:"displayName"`
	CoverImageURL string `json:"coverImageUrl,omitempty"`
}

// Terminal reports whether the job has reached a final status
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// CorrelationIDs returns every identifier usable to match an inbound event
func (j *Job) CorrelationIDs() []string {
	ids := make([]string, 0, 1+len(j.SecondaryIDs))
	if j.PrimaryID != "" {
		ids = append(ids, j.PrimaryID)
	}
	ids = append(ids, j.SecondaryIDs...)
	return ids
}
