package services

import (
	"context"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/models"
)

// ImageSource returns the bytes behind a result URL.
type ImageSource interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// ResultStorage is the remote bucket results are copied to.
type ResultStorage interface {
	UploadResult(userID, projectID string, data []byte) (string, string, error)
	DeleteProjectFiles(userID, projectID string) error
}

// ArchiveService copies finished generation results to remote storage and
// removes them again when the project is deleted. Both are best effort: a
// failure is logged and never touches the local project.
type ArchiveService struct {
	images  ImageSource
	storage ResultStorage
	log     *logger.Logger
}

func NewArchiveService(images ImageSource, storage ResultStorage, log *logger.Logger) *ArchiveService {
	return &ArchiveService{
		images:  images,
		storage: storage,
		log:     log.With("service", "ArchiveService"),
	}
}

// HandleCompleted archives the result of job. It has the shape of a
// generation completion hook.
func (s *ArchiveService) HandleCompleted(ctx context.Context, job models.JobView) {
	if job.ResultURL == "" {
		return
	}

	data, err := s.images.Get(ctx, job.ResultURL)
	if err != nil {
		s.log.Warn("Failed to fetch result for archive", "job_id", job.JobID, "error", err)
		return
	}

	path, publicURL, err := s.storage.UploadResult(job.UserID, job.JobID, data)
	if err != nil {
		s.log.Warn("Failed to archive result", "job_id", job.JobID, "error", err)
		return
	}
	s.log.Info("Result archived", "job_id", job.JobID, "path", path, "url", publicURL, "bytes", len(data))
}

// HandleDeleted drops the archived files of a deleted project.
func (s *ArchiveService) HandleDeleted(userID, projectID string) {
	if err := s.storage.DeleteProjectFiles(userID, projectID); err != nil {
		s.log.Warn("Failed to delete archived files", "project_id", projectID, "error", err)
	}
}
