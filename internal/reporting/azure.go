package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/skillissue/mockview/internal/models"
)

// blobUploader is the part of *azblob.Client the exporter uses.
type blobUploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// BlobExporter uploads reports to an Azure Storage container as
// reports/<session id>.json.
type BlobExporter struct {
	client     blobUploader
	accountURL string
	container  string
}

// NewBlobExporter authenticates with cred. A nil cred uses the default
// Azure credential chain.
func NewBlobExporter(accountURL, container string, cred azcore.TokenCredential) (*BlobExporter, error) {
	if accountURL == "" || container == "" {
		return nil, fmt.Errorf("azure export needs an account url and a container")
	}
	if cred == nil {
		c, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("creating azure credential: %w", err)
		}
		cred = c
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}
	return &BlobExporter{client: client, accountURL: accountURL, container: container}, nil
}

// Export uploads the JSON report and returns the blob URL.
func (e *BlobExporter) Export(ctx context.Context, r *models.SessionReport) (string, error) {
	data, err := MarshalReport(r)
	if err != nil {
		return "", err
	}
	name := BlobName(r.SessionID)
	_, err = e.client.UploadBuffer(ctx, e.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr("application/json")},
		Metadata: map[string]*string{
			"complete": to.Ptr(fmt.Sprintf("%t", r.Complete)),
			"role":     to.Ptr(r.Role),
		},
	})
	if err != nil {
		return "", fmt.Errorf("uploading report %s: %w", r.SessionID, err)
	}
	url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(e.accountURL, "/"), e.container, name)
	slog.Debug("Report uploaded", "session", r.SessionID, "url", url)
	return url, nil
}

// BlobName is the blob path of a session's report.
func BlobName(sessionID string) string {
	return "reports/" + sessionID + ".json"
}
