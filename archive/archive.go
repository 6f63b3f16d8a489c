// Package archive keeps a copy of enrolled stills in Cloudinary.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/Adedunmol/face-kiosk/core"
	"github.com/Adedunmol/face-kiosk/logger"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

var ErrNotConfigured = errors.New("cloudinary url is not configured")

type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(url, folder string) (*Cloudinary, error) {
	if url == "" {
		return nil, ErrNotConfigured
	}

	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cloudinary: %w", err)
	}

	return &Cloudinary{cld: cld, folder: folder}, nil
}

// Archive uploads image and returns its secure URL. id becomes the public ID;
// a random one is used when it is empty.
func (c *Cloudinary) Archive(ctx context.Context, image camera.ImageBlob, id string) (string, error) {
	if image.Empty() {
		return "", camera.ErrCaptureUnavailable
	}
	if err := core.ValidateImage(image.Data); err != nil {
		return "", fmt.Errorf("refusing to archive still: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	res, err := c.cld.Upload.Upload(ctx, image.DataURL(), uploader.UploadParams{
		Folder:   c.folder,
		PublicID: id,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload still: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("failed to upload still: %s", res.Error.Message)
	}

	logger.Info("archived registration still",
		logger.LoggerOptions{Key: "public_id", Data: res.PublicID},
		logger.LoggerOptions{Key: "bytes", Data: res.Bytes},
	)
	return res.SecureURL, nil
}
