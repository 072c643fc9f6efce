package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/tunecraft/api/internal/model"
)

const TaskTypeArchive = "archive:build"

const archiveRetention = 24 * time.Hour

// DownloadService manages "download all" archive builds. Single-result
// downloads go straight to the result URL and never touch this service.
type DownloadService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

// NewDownloadService creates a new download service
func NewDownloadService(redisClient *redis.Client, asynqClient *asynq.Client) *DownloadService {
	return &DownloadService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// StartArchive queues an archive build for a completed conversion
func (s *DownloadService) StartArchive(ctx context.Context, results *model.ConvertResultsResponse) (*model.ArchiveStartResponse, error) {
	if len(results.Results) == 0 {
		return nil, fmt.Errorf("no results to archive")
	}

	archive := &model.ArchiveJob{
		ID:        uuid.New().String(),
		JobID:     results.JobID,
		Kind:      results.Kind,
		Results:   results.Results,
		Status:    model.ArchiveStatusQueued,
		CreatedAt: time.Now(),
	}

	if err := s.saveArchive(ctx, archive); err != nil {
		return nil, fmt.Errorf("failed to save archive job: %w", err)
	}

	task, err := newArchiveTask(archive.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("archive"),
		asynq.MaxRetry(2),
		asynq.Retention(archiveRetention),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.ArchiveStartResponse{
		ArchiveID: archive.ID,
		Status:    archive.Status,
	}, nil
}

// GetArchive reports the status of an archive build
func (s *DownloadService) GetArchive(ctx context.Context, archiveID string) (*model.ArchiveStatusResponse, error) {
	archive, err := s.getArchive(ctx, archiveID)
	if err != nil {
		return nil, err
	}

	resp := &model.ArchiveStatusResponse{
		ArchiveID:   archive.ID,
		Status:      archive.Status,
		DownloadURL: archive.DownloadURL,
		Error:       archive.Error,
	}
	if archive.CompletedAt != nil {
		expires := archive.CompletedAt.Add(archiveRetention)
		resp.ExpiresAt = &expires
	}
	return resp, nil
}

// MarkRunning flags the archive as in progress (called by the worker)
func (s *DownloadService) MarkRunning(ctx context.Context, archiveID string) error {
	return s.update(ctx, archiveID, func(a *model.ArchiveJob) {
		a.Status = model.ArchiveStatusRunning
	})
}

// CompleteArchive records the final download URL (called by the worker)
func (s *DownloadService) CompleteArchive(ctx context.Context, archiveID, downloadURL string) error {
	return s.update(ctx, archiveID, func(a *model.ArchiveJob) {
		a.Status = model.ArchiveStatusSucceeded
		a.DownloadURL = downloadURL
		now := time.Now()
		a.CompletedAt = &now
	})
}

// FailArchive records a build failure (called by the worker)
func (s *DownloadService) FailArchive(ctx context.Context, archiveID, errMsg string) error {
	return s.update(ctx, archiveID, func(a *model.ArchiveJob) {
		a.Status = model.ArchiveStatusFailed
		a.Error = errMsg
		now := time.Now()
		a.CompletedAt = &now
	})
}

// LoadArchive fetches the full archive record (called by the worker)
func (s *DownloadService) LoadArchive(ctx context.Context, archiveID string) (*model.ArchiveJob, error) {
	return s.getArchive(ctx, archiveID)
}

func (s *DownloadService) update(ctx context.Context, archiveID string, mutate func(*model.ArchiveJob)) error {
	archive, err := s.getArchive(ctx, archiveID)
	if err != nil {
		return err
	}
	mutate(archive)
	return s.saveArchive(ctx, archive)
}

func (s *DownloadService) saveArchive(ctx context.Context, archive *model.ArchiveJob) error {
	data, err := json.Marshal(archive)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("archive:%s", archive.ID), data, archiveRetention).Err()
}

func (s *DownloadService) getArchive(ctx context.Context, archiveID string) (*model.ArchiveJob, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("archive:%s", archiveID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("archive not found")
		}
		return nil, err
	}

	var archive model.ArchiveJob
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, err
	}
	return &archive, nil
}

func newArchiveTask(archiveID string) (*asynq.Task, error) {
	data, err := json.Marshal(map[string]string{"archiveId": archiveID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeArchive, data), nil
}
