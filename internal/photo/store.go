// Package photo stores evidence images on local disk with a JPEG thumbnail.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"caex-inspector-backend/internal/answer"
	"caex-inspector-backend/internal/apperr"
)

const maxPhotoBytes = 10 << 20

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Store writes photos under dir and thumbnails under dir/thumbnails.
type Store struct {
	dir   string
	width int
}

// New creates the directories if needed.
func New(dir string, thumbnailWidth int) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "thumbnails"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo dir %s: %w", dir, err)
	}
	return &Store{dir: dir, width: thumbnailWidth}, nil
}

// Save writes the image under a new unique name and renders its thumbnail.
func (s *Store) Save(r io.Reader, ext string) (answer.StoredFile, error) {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !allowedExt[ext] {
		return answer.StoredFile{}, apperr.Validation("unsupported photo type %q", ext)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxPhotoBytes+1))
	if err != nil {
		return answer.StoredFile{}, fmt.Errorf("failed to read photo: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return answer.StoredFile{}, apperr.Validation("photo exceeds %d MB", maxPhotoBytes>>20)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return answer.StoredFile{}, apperr.Validation("photo is not a valid image")
	}

	name := uuid.NewString()
	f := answer.StoredFile{
		Path:      filepath.Join(s.dir, name+ext),
		Thumbnail: filepath.Join(s.dir, "thumbnails", name+".jpg"),
	}
	if err := os.WriteFile(f.Path, data, 0o644); err != nil {
		return answer.StoredFile{}, fmt.Errorf("failed to write photo: %w", err)
	}

	thumb := imaging.Resize(img, s.width, 0, imaging.Lanczos)
	if err := imaging.Save(thumb, f.Thumbnail, imaging.JPEGQuality(80)); err != nil {
		_ = os.Remove(f.Path)
		return answer.StoredFile{}, fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return f, nil
}

// Remove deletes the given files. Empty and already missing paths are ignored.
func (s *Store) Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
