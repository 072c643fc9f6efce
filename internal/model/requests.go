package model

import "time"

// ConvertStartRequest starts a conversion job on a UI surface. AudioURL is
// required for every kind except one-shot, which generates from the prompt
// alone; the kind-specific check lives in the service.
type ConvertStartRequest struct {
	SurfaceID    string `json:"surfaceId" validate:"required,min=1,max=128"`
	AudioURL     string `json:"audioUrl" validate:"omitempty,url"`
	Prompt       string `json:"prompt" validate:"omitempty,max=2000"`
	Style        string `json:"style" validate:"omitempty,max=200"`
	Instrumental bool   `json:"instrumental"`
}

// ConvertStartResponse acknowledges a queued conversion job
type ConvertStartResponse struct {
	SurfaceID  string    `json:"surfaceId"`
	JobID      string    `json:"jobId"`
	Kind       JobKind   `json:"kind"`
	Status     JobStatus `json:"status"`
	ETASeconds *int      `json:"etaSeconds,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ConvertStatusResponse is a snapshot of the tracked job for a surface
type ConvertStatusResponse struct {
	SurfaceID       string    `json:"surfaceId"`
	Kind            JobKind   `json:"kind"`
	JobID           string    `json:"jobId,omitempty"`
	Status          JobStatus `json:"status"`
	ProgressPercent int       `json:"progressPercent"`
	ETARemaining    *int      `json:"etaSecondsRemaining,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	ResultCount     int       `json:"resultCount"`
}

// ConvertResultsResponse carries the normalized results of a completed job
type ConvertResultsResponse struct {
	SurfaceID string   `json:"surfaceId"`
	JobID     string   `json:"jobId"`
	Kind      JobKind  `json:"kind"`
	Results   []Result `json:"results"`
}

// ConvertCancelResponse acknowledges a user-initiated cancel
type ConvertCancelResponse struct {
	SurfaceID string `json:"surfaceId"`
	Canceled  bool   `json:"canceled"`
}

// ArchiveStartRequest queues a "download all" archive build for a surface
type ArchiveStartRequest struct {
	SurfaceID string `json:"surfaceId" validate:"required,min=1,max=128"`
}

// ArchiveStartResponse acknowledges a queued archive build
type ArchiveStartResponse struct {
	ArchiveID string        `json:"archiveId"`
	Status    ArchiveStatus `json:"status"`
}

// ArchiveStatusResponse reports archive build progress and the final URL
type ArchiveStatusResponse struct {
	ArchiveID   string        `json:"archiveId"`
	Status      ArchiveStatus `json:"status"`
	DownloadURL string        `json:"downloadUrl,omitempty"`
	Error       string        `json:"error,omitempty"`
	ExpiresAt   *time.Time    `json:"expiresAt,omitempty"`
}
