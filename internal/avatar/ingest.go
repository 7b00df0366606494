package avatar

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// Stored avatars are normalized to a fixed square.
const avatarSize = 250

var ErrExtensionNotAllowed = errors.New("file extension not allowed")

// Ingestor moves received uploads from a temp directory into the permanent
// avatars directory, resizing them on the way. Stored URLs are relative
// ("avatars/<name>") so the directory can be served statically.
type Ingestor struct {
	tempDir    string
	avatarsDir string
}

func NewIngestor(tempDir, avatarsDir string) *Ingestor {
	return &Ingestor{tempDir: tempDir, avatarsDir: avatarsDir}
}

// TempPath returns a destination inside the temp directory under a
// collision-resistant name: timestamp + random component + original name.
func (i *Ingestor) TempPath(originalName string) string {
	name := fmt.Sprintf("%d_%s_%s", time.Now().UnixNano(), uuid.New().String()[:8], filepath.Base(originalName))
	return filepath.Join(i.tempDir, name)
}

// CheckExtension rejects disallowed upload extensions.
func CheckExtension(filename string) error {
	if strings.EqualFold(filepath.Ext(filename), ".exe") {
		return ErrExtensionNotAllowed
	}
	return nil
}

// Ingest normalizes the image at tempPath to a fixed square and relocates it
// into the avatars directory. The temp file is removed on success. Any
// failure leaves the previous avatar untouched and propagates.
func (i *Ingestor) Ingest(tempPath string) (string, error) {
	img, err := imaging.Open(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to read uploaded image: %w", err)
	}

	resized := imaging.Resize(img, avatarSize, avatarSize, imaging.Lanczos)

	if err := os.MkdirAll(i.avatarsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create avatars directory: %w", err)
	}

	name := filepath.Base(tempPath)
	dest := filepath.Join(i.avatarsDir, name)
	if err := imaging.Save(resized, dest); err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}

	if err := os.Remove(tempPath); err != nil {
		return "", fmt.Errorf("failed to remove temp upload: %w", err)
	}

	return path.Join("avatars", name), nil
}
