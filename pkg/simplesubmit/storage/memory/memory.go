package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tendant/simple-submit/pkg/simplesubmit"
	"github.com/tendant/simple-submit/pkg/simplesubmit/objectkey"
)

// Backend is an in-memory implementation of the simplesubmit.ThumbnailStore interface
type Backend struct {
	mu              sync.RWMutex
	objects         map[string][]byte
	objectsMimeType map[string]string
	baseURL         string
	generator       objectkey.Generator
}

// New creates a new in-memory thumbnail store. URLs are baseURL/key.
func New(baseURL string) *Backend {
	return &Backend{
		objects:         make(map[string][]byte),
		objectsMimeType: make(map[string]string),
		baseURL:         baseURL,
		generator:       objectkey.NewRecommendedGenerator(),
	}
}

// Upload stores the file under a generated key
func (b *Backend) Upload(ctx context.Context, file simplesubmit.File, progress simplesubmit.ProgressFunc) (string, error) {
	if file.Reader == nil {
		return "", &simplesubmit.UploadError{Err: errors.New("empty file")}
	}

	data, err := io.ReadAll(file.Reader)
	if err != nil {
		return "", &simplesubmit.UploadError{Err: err}
	}

	key := b.generator.GenerateKey(file.Name)

	b.mu.Lock()
	b.objects[key] = data
	mimeType := file.ContentType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	b.objectsMimeType[key] = mimeType
	b.mu.Unlock()

	if progress != nil {
		progress(1)
	}

	return fmt.Sprintf("%s/%s", b.baseURL, key), nil
}

// Download returns a stored object
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[key]
	if !exists {
		return nil, "", errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), b.objectsMimeType[key], nil
}

// Keys lists the stored object keys
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	return keys
}
