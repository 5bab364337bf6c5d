package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a mock implementation of the BlobStore interface for testing.
type MockBlobStore struct {
	mock.Mock
}

// PutObject is the mock implementation of the PutObject method. The reader is drained
// and its bytes are passed to Called.
func (m *MockBlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	body, _ := io.ReadAll(data)
	args := m.Called(ctx, path, contentType, body)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

// GetObject is the mock implementation of the GetObject method.
func (m *MockBlobStore) GetObject(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1) //nolint:wrapcheck
}
