package imagehost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// Local stores images under a directory and serves them from ServeRoot.
type Local struct {
	serveRoot *url.URL
	root      string
	maxWidth  int
	maxHeight int
	maxBytes  int64
}

type LocalConfig struct {
	ServeRoot *url.URL
	Root      string
	MaxWidth  int
	MaxHeight int
	MaxBytes  int64
}

func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.ServeRoot == nil {
		return nil, errors.New("serve root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create image root: %w", err)
	}

	return &Local{
		serveRoot: cfg.ServeRoot,
		root:      cfg.Root,
		maxWidth:  cfg.MaxWidth,
		maxHeight: cfg.MaxHeight,
		maxBytes:  cfg.MaxBytes,
	}, nil
}

// Upload validates and saves the image under a fresh name.
func (h *Local) Upload(ctx context.Context, name string, img io.Reader) (Asset, error) {
	if h.maxBytes > 0 {
		img = io.LimitReader(img, h.maxBytes+1)
	}

	var buff bytes.Buffer
	tee := io.TeeReader(img, &buff)

	cfg, format, err := image.DecodeConfig(tee)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if (h.maxWidth > 0 && cfg.Width > h.maxWidth) || (h.maxHeight > 0 && cfg.Height > h.maxHeight) {
		return Asset{}, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	publicID := uuid.NewString() + "." + format
	path := filepath.Join(h.root, publicID)

	f, err := os.Create(path)
	if err != nil {
		return Asset{}, fmt.Errorf("create image file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.MultiReader(&buff, img))
	if err != nil {
		_ = os.Remove(path)
		return Asset{}, fmt.Errorf("save image file: %w", err)
	}
	if h.maxBytes > 0 && n > h.maxBytes {
		_ = os.Remove(path)
		return Asset{}, fmt.Errorf("%w: over %d bytes", ErrTooLarge, h.maxBytes)
	}

	return Asset{
		PublicID: publicID,
		URL:      h.serveRoot.JoinPath(publicID).String(),
	}, nil
}

// Delete removes the file and answers like the remote API does.
func (h *Local) Delete(ctx context.Context, publicID string) (DeleteResult, error) {
	res := DeleteResult{Deleted: map[string]string{publicID: StatusNotFound}}

	path, ok := h.path(publicID)
	if !ok {
		return res, nil
	}

	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return DeleteResult{}, fmt.Errorf("remove image file: %w", err)
	}

	res.Deleted[publicID] = StatusDeleted
	return res, nil
}

func (h *Local) Fetch(ctx context.Context, a Asset) ([]byte, error) {
	path, ok := h.path(a.PublicID)
	if !ok {
		return nil, ErrNotFound
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open image file: %w", err)
	}
	defer f.Close()

	return readLimited(f, h.maxBytes)
}

// Handler serves stored files. Mount it under the serve root's path.
func (h *Local) Handler() http.Handler {
	return http.StripPrefix(strings.TrimSuffix(h.serveRoot.Path, "/"), http.FileServer(filesOnly{http.Dir(h.root)}))
}

// filesOnly hides directories so the file server never lists them.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

// path maps a public id to a file inside root, rejecting anything that is
// not a plain file name.
func (h *Local) path(publicID string) (string, bool) {
	if publicID == "" || publicID != filepath.Base(publicID) || strings.HasPrefix(publicID, ".") {
		return "", false
	}
	return filepath.Join(h.root, publicID), true
}
