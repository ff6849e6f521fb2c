package supabase

import (
	"bytes"
	"fmt"
	"strings"

	storage "github.com/supabase-community/storage-go"
)

const resultFilename = "result.jpg"

// StorageClient archives generation results in a Supabase Storage bucket.
type StorageClient struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) *StorageClient {
	baseURL := strings.TrimRight(supabaseURL, "/")
	return &StorageClient{
		client:  storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil),
		bucket:  bucket,
		baseURL: baseURL,
	}
}

// ProjectPrefix is the folder holding every file of one project.
func ProjectPrefix(userID, projectID string) string {
	return fmt.Sprintf("users/%s/projects/%s/", userID, projectID)
}

// ResultPath is where the finished image of a project is stored.
func ResultPath(userID, projectID string) string {
	return ProjectPrefix(userID, projectID) + resultFilename
}

// UploadResult stores data as the project's result, replacing any earlier copy.
// It returns the storage path and the public URL.
func (s *StorageClient) UploadResult(userID, projectID string, data []byte) (string, string, error) {
	storagePath := ResultPath(userID, projectID)

	contentType := "image/jpeg"
	upsert := true
	_, err := s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload file: %w", err)
	}
	return storagePath, s.PublicURL(storagePath), nil
}

func (s *StorageClient) PublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, storagePath)
}

// DeleteProjectFiles removes everything stored under the project's folder.
func (s *StorageClient) DeleteProjectFiles(userID, projectID string) error {
	prefix := ProjectPrefix(userID, projectID)

	files, err := s.client.ListFiles(s.bucket, prefix, storage.FileSearchOptions{Limit: 1000})
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	paths := make([]string, len(files))
	for i, file := range files {
		paths[i] = prefix + file.Name
	}
	if _, err := s.client.RemoveFile(s.bucket, paths); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}

func (s *StorageClient) DownloadResult(userID, projectID string) ([]byte, error) {
	data, err := s.client.DownloadFile(s.bucket, ResultPath(userID, projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return data, nil
}
