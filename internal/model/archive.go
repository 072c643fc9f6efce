package model

import "time"

// ArchiveJob records a background "download all" build
type ArchiveJob struct {
	ID          string        `json:"id"`
	JobID       string        `json:"jobId"`
	Kind        JobKind       `json:"kind"`
	Results     []Result      `json:"results"`
	Status      ArchiveStatus `json:"status"`
	DownloadURL string        `json:"downloadUrl,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}
