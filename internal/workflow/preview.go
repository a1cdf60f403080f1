package workflow

import (
	"context"
	"encoding/base64"
	"errors"

	"kycgate/internal/model"
)

// PreviewEncoder turns a staged file into a displayable representation for
// the UI. It is best-effort only: staging proceeds even when encoding fails,
// and the raw bytes stay authoritative for upload.
type PreviewEncoder interface {
	Encode(ctx context.Context, blob *model.FileBlob) (string, error)
}

// DataURIEncoder renders the image bytes as a base64 data URI suitable for
// inline display.
type DataURIEncoder struct{}

// Encode implements PreviewEncoder.
func (DataURIEncoder) Encode(ctx context.Context, blob *model.FileBlob) (string, error) {
	if len(blob.Bytes) == 0 {
		return "", errors.New("empty image data")
	}
	return "data:" + blob.MimeType + ";base64," + base64.StdEncoding.EncodeToString(blob.Bytes), nil
}
