package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/wakti/backend/internal/recording"
)

// BlobStore is the storage capability the uploader needs.
type BlobStore interface {
	Save(ctx context.Context, name string, blob []byte, contentType string) (key, publicURL string, err error)
}

// AssetUploader implements the upload stage against object storage.
type AssetUploader struct {
	store  BlobStore
	prefix string
}

// NewAssetUploader constructs an uploader writing under the key prefix.
func NewAssetUploader(store BlobStore, prefix string) *AssetUploader {
	if prefix == "" {
		prefix = "recordings"
	}
	return &AssetUploader{store: store, prefix: prefix}
}

// Upload stores the merged asset and returns its location.
func (u *AssetUploader) Upload(ctx context.Context, recordingID string, blob []byte, mimeType string) (recording.UploadResult, error) {
	if u.store == nil {
		return recording.UploadResult{}, fmt.Errorf("asset uploader: no blob store configured")
	}

	key := path.Join(u.prefix, recordingID+extensionFor(mimeType))
	storedKey, publicURL, err := u.store.Save(ctx, key, blob, mimeType)
	if err != nil {
		return recording.UploadResult{}, err
	}
	return recording.UploadResult{Path: storedKey, PublicURL: publicURL}, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/mp4", "audio/m4a":
		return ".m4a"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".webm"
	}
}
