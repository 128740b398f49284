package services

import (
	"context"
	"fmt"
	"sync"
)

// MockS3Service is an in-memory S3Interface for tests
type MockS3Service struct {
	objects      map[string][]byte
	contentTypes map[string]string
	putErr       error
	presigned    int
	mu           sync.RWMutex
}

// NewMockS3Service creates a new mock S3 service
func NewMockS3Service() *MockS3Service {
	return &MockS3Service{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

// FailUploadsWith makes PutObject return err
func (m *MockS3Service) FailUploadsWith(err error) {
	m.mu.Lock()
	m.putErr = err
	m.mu.Unlock()
}

// PutObject stores content in memory
func (m *MockS3Service) PutObject(_ context.Context, key string, content []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = content
	m.contentTypes[key] = contentType
	return nil
}

// GetPresignedURL returns a fake URL for a stored object
func (m *MockS3Service) GetPresignedURL(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	m.mu.Lock()
	_, exists := m.objects[key]
	m.presigned++
	m.mu.Unlock()

	if !exists {
		return "", fmt.Errorf("file not found in mock S3: %s", key)
	}
	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s?mock=true", key), nil
}

// DeleteFile removes an object
func (m *MockS3Service) DeleteFile(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	delete(m.contentTypes, key)
	m.mu.Unlock()
	return nil
}

// FileExists checks if a file exists in mock storage
func (m *MockS3Service) FileExists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.objects[key]
	return exists
}

// ContentType returns the content type an object was stored with
func (m *MockS3Service) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contentTypes[key]
}

// Count returns the number of stored objects
func (m *MockS3Service) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// PresignCount returns how many presigned URLs were generated
func (m *MockS3Service) PresignCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.presigned
}
