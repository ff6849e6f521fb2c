package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/services"
	"github.com/stretchr/testify/assert"
)

type fakeImages struct {
	data map[string][]byte
}

func (f *fakeImages) Get(ctx context.Context, url string) ([]byte, error) {
	data, ok := f.data[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

type fakeStorage struct {
	uploads map[string][]byte
	deleted []string
	err     error
}

func (f *fakeStorage) UploadResult(userID, projectID string, data []byte) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	key := userID + "/" + projectID
	f.uploads[key] = data
	return key, "https://public/" + key, nil
}

func (f *fakeStorage) DeleteProjectFiles(userID, projectID string) error {
	f.deleted = append(f.deleted, userID+"/"+projectID)
	return f.err
}

func TestArchiveService_HandleCompleted(t *testing.T) {
	images := &fakeImages{data: map[string][]byte{"https://cdn/J1.jpg": []byte("jpeg")}}
	storage := &fakeStorage{uploads: map[string][]byte{}}
	svc := services.NewArchiveService(images, storage, logger.NewNop())

	svc.HandleCompleted(context.Background(), models.JobView{JobID: "J1", UserID: "u1", ResultURL: "https://cdn/J1.jpg"})
	assert.Equal(t, []byte("jpeg"), storage.uploads["u1/J1"])

	// Missing image and empty URL are skipped without uploading.
	svc.HandleCompleted(context.Background(), models.JobView{JobID: "J2", UserID: "u1", ResultURL: "https://cdn/J2.jpg"})
	svc.HandleCompleted(context.Background(), models.JobView{JobID: "J3", UserID: "u1"})
	assert.Len(t, storage.uploads, 1)
}

func TestArchiveService_FailuresAreSwallowed(t *testing.T) {
	images := &fakeImages{data: map[string][]byte{"https://cdn/J1.jpg": []byte("jpeg")}}
	storage := &fakeStorage{uploads: map[string][]byte{}, err: errors.New("bucket missing")}
	svc := services.NewArchiveService(images, storage, logger.NewNop())

	assert.NotPanics(t, func() {
		svc.HandleCompleted(context.Background(), models.JobView{JobID: "J1", UserID: "u1", ResultURL: "https://cdn/J1.jpg"})
		svc.HandleDeleted("u1", "J1")
	})
	assert.Empty(t, storage.uploads)
	assert.Equal(t, []string{"u1/J1"}, storage.deleted)
}
