package utils

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// MaxAvatarSize is the upload limit in bytes.
	MaxAvatarSize = 1000000
	// AvatarDimension is the stored width and height in pixels.
	AvatarDimension = 250
)

// ValidateAvatarUpload checks the declared filename and size before any
// bytes are decoded. Both checks fail closed.
func ValidateAvatarUpload(filename string, size int64) error {
	if size > MaxAvatarSize {
		return fmt.Errorf("file size exceeds maximum of %d bytes", MaxAvatarSize)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png":
		return nil
	default:
		return fmt.Errorf("please upload an image (.jpg, .jpeg or .png)")
	}
}

// NormalizeAvatar decodes an accepted upload, resizes it to exactly
// AvatarDimension x AvatarDimension and re-encodes it as PNG.
func NormalizeAvatar(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	resized := imaging.Resize(img, AvatarDimension, AvatarDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
