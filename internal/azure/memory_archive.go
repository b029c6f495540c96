package azure

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MemoryArchive is a ReportArchive held in process memory, used in tests
// and local runs without a storage account. Archives are lost on restart.
type MemoryArchive struct {
	Storage map[string][]byte
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryArchive creates an empty MemoryArchive
func NewMemoryArchive(logger *zap.Logger) *MemoryArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryArchive{
		Storage: make(map[string][]byte),
		logger:  logger,
	}
}

// UploadPDF stores a PDF in memory
func (c *MemoryArchive) UploadPDF(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	blobName, err := ReportBlobName(filename)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Storage[blobName] = bytes.Clone(data)
	c.logger.Info("PDF archived in memory",
		zap.String("blob_name", blobName),
		zap.Int("size_bytes", len(data)),
	)

	return blobName, nil
}

// DownloadPDF returns a stored PDF
func (c *MemoryArchive) DownloadPDF(ctx context.Context, blobName string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blobName, err := ReportBlobName(blobName)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	data, exists := c.Storage[blobName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, blobName)
	}

	return bytes.Clone(data), nil
}

// ListBlobs returns all blob names in storage, sorted
func (c *MemoryArchive) ListBlobs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	blobs := make([]string, 0, len(c.Storage))
	for name := range c.Storage {
		blobs = append(blobs, name)
	}
	sort.Strings(blobs)

	return blobs
}
