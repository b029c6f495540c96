package azure

import "context"

// ReportArchive stores rendered report PDFs
type ReportArchive interface {
	UploadPDF(ctx context.Context, filename string, data []byte) (string, error)
	DownloadPDF(ctx context.Context, blobName string) ([]byte, error)
}

// Ensure BlobStorageClient implements ReportArchive interface
var _ ReportArchive = (*BlobStorageClient)(nil)
var _ ReportArchive = (*MemoryArchive)(nil)
