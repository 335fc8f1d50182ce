// Package raster loads invoice scans into in-memory images.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	"github.com/disintegration/imaging"

	apperrors "github.com/binito/despesify/internal/errors"
)

// Load opens the image file at path. EXIF orientation is applied so phone
// photos come out upright before any rotation strategy is tried.
func Load(path string) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.ErrImageNotFound, fmt.Errorf("%s: %w", path, err))
		}
		return nil, apperrors.Wrap(apperrors.ErrImageUnreadable, err)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrImageUnreadable, fmt.Errorf("%s: %w", path, err))
	}
	return img, nil
}

// Decode reads an image from raw bytes (uploads)
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrImageUnreadable, errors.New("empty image data"))
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrImageUnreadable, err)
	}
	return img, nil
}
