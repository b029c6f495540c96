package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.uber.org/zap"
)

const reportPrefix = "reports/"

// ErrInvalidBlobName is returned for empty names or names escaping the report prefix
var ErrInvalidBlobName = errors.New("invalid blob name")

// ErrBlobNotFound is returned by DownloadPDF when nothing is archived under a name
var ErrBlobNotFound = errors.New("blob not found")

// BlobStorageClient archives report PDFs in an Azure Blob Storage container
type BlobStorageClient struct {
	client        *azblob.Client
	containerName string
	logger        *zap.Logger
}

// NewBlobStorageClient creates a new Azure Blob Storage client
func NewBlobStorageClient(accountName, accountKey, containerName string, logger *zap.Logger) (*BlobStorageClient, error) {
	if accountName == "" || accountKey == "" || containerName == "" {
		return nil, fmt.Errorf("accountName, accountKey, and containerName are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &BlobStorageClient{
		client:        client,
		containerName: containerName,
		logger:        logger,
	}, nil
}

// ReportBlobName maps a filename to its blob name under the report prefix
func ReportBlobName(filename string) (string, error) {
	name := strings.TrimPrefix(filename, reportPrefix)
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidBlobName, filename)
	}
	return path.Join(reportPrefix, name), nil
}

// UploadPDF uploads a PDF file and returns its blob name
func (c *BlobStorageClient) UploadPDF(ctx context.Context, filename string, data []byte) (string, error) {
	blobName, err := ReportBlobName(filename)
	if err != nil {
		return "", err
	}

	c.logger.Info("uploading PDF to blob storage",
		zap.String("blob_name", blobName),
		zap.Int("size_bytes", len(data)),
	)

	blobClient := c.client.ServiceClient().NewContainerClient(c.containerName).NewBlockBlobClient(blobName)

	contentType := "application/pdf"
	_, err = blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		Metadata: map[string]*string{
			"source": toPtr("docmate"),
		},
	})
	if err != nil {
		c.logger.Error("failed to upload PDF",
			zap.String("blob_name", blobName),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to upload PDF: %w", err)
	}

	c.logger.Info("PDF uploaded successfully", zap.String("blob_name", blobName))

	return blobName, nil
}

// DownloadPDF downloads a PDF previously archived by UploadPDF
func (c *BlobStorageClient) DownloadPDF(ctx context.Context, blobName string) ([]byte, error) {
	blobName, err := ReportBlobName(blobName)
	if err != nil {
		return nil, err
	}

	blobClient := c.client.ServiceClient().NewContainerClient(c.containerName).NewBlockBlobClient(blobName)

	downloadResponse, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, c.downloadError(blobName, err)
	}
	defer downloadResponse.Body.Close()

	data, err := io.ReadAll(downloadResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF data: %w", err)
	}

	c.logger.Info("PDF downloaded successfully",
		zap.String("blob_name", blobName),
		zap.Int("size_bytes", len(data)),
	)

	return data, nil
}

// downloadError separates a missing blob from storage failures
func (c *BlobStorageClient) downloadError(blobName string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		c.logger.Warn("archived PDF not found", zap.String("blob_name", blobName))
		return fmt.Errorf("%w: %s", ErrBlobNotFound, blobName)
	}

	c.logger.Error("failed to download PDF",
		zap.String("blob_name", blobName),
		zap.Error(err),
	)
	return fmt.Errorf("failed to download PDF: %w", err)
}

// toPtr is a helper function to convert a value to a pointer
func toPtr(s string) *string {
	return &s
}
