package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tunecraft/api/internal/client"
	"github.com/tunecraft/api/internal/model"
	"github.com/tunecraft/api/internal/service"
)

// AudioFetcher streams result files for archiving
type AudioFetcher interface {
	FetchAudio(ctx context.Context, url string) (io.ReadCloser, error)
}

// ArchiveWorker builds "download all" archives: it fetches every result
// file, zips them, uploads the zip to storage, and records a presigned URL.
type ArchiveWorker struct {
	downloads *service.DownloadService
	fetcher   AudioFetcher
	storage   client.StorageClient
}

// NewArchiveWorker creates a new archive worker
func NewArchiveWorker(downloads *service.DownloadService, fetcher AudioFetcher, storage client.StorageClient) *ArchiveWorker {
	return &ArchiveWorker{
		downloads: downloads,
		fetcher:   fetcher,
		storage:   storage,
	}
}

// ProcessTask handles one archive build task
func (w *ArchiveWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload struct {
		ArchiveID string `json:"archiveId"`
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	archive, err := w.downloads.LoadArchive(ctx, payload.ArchiveID)
	if err != nil {
		return fmt.Errorf("failed to load archive %s: %w", payload.ArchiveID, err)
	}

	log.Printf("Starting archive build: %s (%d results)", archive.ID, len(archive.Results))

	if w.storage == nil {
		w.fail(ctx, archive.ID, "archive storage not configured")
		return fmt.Errorf("archive storage not configured")
	}

	if err := w.downloads.MarkRunning(ctx, archive.ID); err != nil {
		return err
	}

	zipped, err := w.buildZip(ctx, archive)
	if err != nil {
		w.fail(ctx, archive.ID, err.Error())
		return err
	}

	key := fmt.Sprintf("archives/%s/%s.zip", archive.JobID, archive.ID)
	if _, err := w.storage.Upload(ctx, key, bytes.NewReader(zipped), "application/zip"); err != nil {
		w.fail(ctx, archive.ID, "archive upload failed")
		return err
	}

	url, err := w.storage.GetSignedURL(ctx, key, 24*time.Hour)
	if err != nil {
		w.fail(ctx, archive.ID, "archive link generation failed")
		return err
	}

	if err := w.downloads.CompleteArchive(ctx, archive.ID, url); err != nil {
		return err
	}

	log.Printf("Archive %s completed", archive.ID)
	return nil
}

func (w *ArchiveWorker) buildZip(ctx context.Context, archive *model.ArchiveJob) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for i, result := range archive.Results {
		body, err := w.fetcher.FetchAudio(ctx, result.AudioURL)
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("failed to fetch %q: %w", result.DisplayName, err)
		}

		entry, err := zw.Create(entryName(result, i))
		if err == nil {
			_, err = io.Copy(entry, body)
		}
		body.Close()
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("failed to archive %q: %w", result.DisplayName, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func entryName(result model.Result, ordinal int) string {
	name := strings.TrimSpace(result.DisplayName)
	if name == "" {
		name = fmt.Sprintf("track-%d", ordinal+1)
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		}
		return r
	}, name)

	ext := path.Ext(result.AudioURL)
	if ext == "" || len(ext) > 5 {
		ext = ".mp3"
	}
	return name + ext
}

func (w *ArchiveWorker) fail(ctx context.Context, archiveID, msg string) {
	if err := w.downloads.FailArchive(ctx, archiveID, msg); err != nil {
		log.Printf("Failed to mark archive %s as failed: %v", archiveID, err)
	}
}
