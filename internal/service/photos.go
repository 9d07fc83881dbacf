package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/Rubix982/django-photo-edit/internal/effects"
	"github.com/Rubix982/django-photo-edit/internal/imagehost"
	"github.com/Rubix982/django-photo-edit/internal/pkg/serr"
	"github.com/Rubix982/django-photo-edit/internal/pkg/session"
	"github.com/Rubix982/django-photo-edit/internal/store"
)

type imageHost interface {
	Upload(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error)
	Delete(ctx context.Context, publicID string) (imagehost.DeleteResult, error)
	Fetch(ctx context.Context, a imagehost.Asset) ([]byte, error)
}

type photoStore interface {
	ListPhotos(ctx context.Context, userID int64) ([]store.Photo, error)
	GetPhoto(ctx context.Context, id int64) (store.Photo, error)
	CreatePhoto(ctx context.Context, r store.CreatePhotoRequest) (int64, error)
	UpdatePhotoImage(ctx context.Context, r store.UpdatePhotoImageRequest) error
	DeletePhoto(ctx context.Context, id int64) error
}

type PhotoLimits struct {
	MaxBytes  int64
	MaxWidth  int
	MaxHeight int
	// MaxEdge is the longest edge sources are scaled to before an effect.
	MaxEdge int
}

// Photos manages a user's photo collection and its edits.
type Photos struct {
	store    photoStore
	host     imageHost
	cache    *renderCache
	observer cacheObserver
	limits   PhotoLimits
}

type PhotosOption func(*Photos) *Photos

func WithPhotoStore(st photoStore) PhotosOption {
	return func(s *Photos) *Photos {
		s.store = st
		return s
	}
}

func WithImageHost(h imageHost) PhotosOption {
	return func(s *Photos) *Photos {
		s.host = h
		return s
	}
}

func WithRenderCache(maxKeys, maxBytes int64) PhotosOption {
	return func(s *Photos) *Photos {
		s.cache = newRenderCache(maxKeys, maxBytes)
		return s
	}
}

func WithCacheObserver(o cacheObserver) PhotosOption {
	return func(s *Photos) *Photos {
		s.observer = o
		return s
	}
}

func WithLimits(l PhotoLimits) PhotosOption {
	return func(s *Photos) *Photos {
		s.limits = l
		return s
	}
}

func NewPhotos(opts ...PhotosOption) *Photos {
	s := &Photos{
		observer: noopObserver{},
		limits: PhotoLimits{
			MaxBytes:  10 << 20,
			MaxWidth:  8000,
			MaxHeight: 8000,
			MaxEdge:   2048,
		},
	}
	for _, opt := range opts {
		s = opt(s)
	}

	if s.store == nil {
		panic("photo store is required")
	}

	if s.host == nil {
		panic("image host is required")
	}

	if s.cache == nil {
		s.cache = newRenderCache(1000, 64<<20)
	}

	return s
}

func (s *Photos) Close() {
	s.cache.close()
}

// List returns the user's photos, newest first.
func (s *Photos) List(ctx context.Context, userID int64) ([]store.Photo, error) {
	photos, err := s.store.ListPhotos(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return photos, nil
}

type UploadRequest struct {
	UserID   int64
	Title    string
	FileName string
	Image    io.Reader
}

// Upload checks the image, hands it to the image host and records it.
func (s *Photos) Upload(ctx context.Context, sess *session.Session, r UploadRequest) (store.Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r.Image, s.limits.MaxBytes+1))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return store.Photo{}, serr.BadRequest(err, "image is larger than %d bytes", s.limits.MaxBytes)
		}
		return store.Photo{}, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > s.limits.MaxBytes {
		return store.Photo{}, serr.BadRequest(nil, "image is larger than %d bytes", s.limits.MaxBytes)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return store.Photo{}, serr.BadRequest(err, "upload a valid image").With("file", r.FileName)
	}
	if cfg.Width > s.limits.MaxWidth || cfg.Height > s.limits.MaxHeight {
		return store.Photo{}, serr.BadRequest(nil, "image dimensions exceed %dx%d", s.limits.MaxWidth, s.limits.MaxHeight).
			With("width", cfg.Width).
			With("height", cfg.Height)
	}
	// every stored photo must stay renderable
	if cfg.Width*cfg.Height > effects.MaxPixels {
		return store.Photo{}, serr.BadRequest(nil, "image has more than %d pixels", effects.MaxPixels).
			With("width", cfg.Width).
			With("height", cfg.Height)
	}

	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = path.Base(r.FileName)
	}

	asset, err := s.host.Upload(ctx, r.FileName, bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, imagehost.ErrTooLarge) || errors.Is(err, imagehost.ErrInvalidImage) {
			return store.Photo{}, serr.BadRequest(err, "upload a valid image").With("file", r.FileName)
		}
		return store.Photo{}, fmt.Errorf("upload image: %w", err)
	}

	id, err := s.store.CreatePhoto(ctx, store.CreatePhotoRequest{
		UserID:   r.UserID,
		Title:    title,
		PublicID: asset.PublicID,
		ImageURL: asset.URL,
	})
	if err != nil {
		s.discard(ctx, asset.PublicID)
		return store.Photo{}, fmt.Errorf("create photo: %w", err)
	}

	sess.AddFlash(session.LevelSuccess, fmt.Sprintf("%q uploaded.", title))

	return store.Photo{
		ID:       id,
		UserID:   r.UserID,
		Title:    title,
		PublicID: asset.PublicID,
		ImageURL: asset.URL,
		Effect:   effects.Default,
	}, nil
}

type EditRequest struct {
	UserID  int64
	PhotoID int64
	Effect  string
}

type EditPage struct {
	Photo   store.Photo
	Effect  effects.Effect
	Effects []effects.Effect
}

// Edit resolves the photo and effect shown on the edit page.
func (s *Photos) Edit(ctx context.Context, r EditRequest) (EditPage, error) {
	p, e, err := s.resolve(ctx, r)
	if err != nil {
		return EditPage{}, err
	}

	return EditPage{
		Photo:   p,
		Effect:  e,
		Effects: effects.All(),
	}, nil
}

// Render returns the photo with the effect applied.
func (s *Photos) Render(ctx context.Context, r EditRequest) (effects.Output, error) {
	p, e, err := s.resolve(ctx, r)
	if err != nil {
		return effects.Output{}, err
	}

	return s.render(ctx, p, e)
}

// SaveEdit replaces the photo's image with its rendered version. The old
// asset is removed from the host on a best-effort basis.
func (s *Photos) SaveEdit(ctx context.Context, sess *session.Session, r EditRequest) (store.Photo, error) {
	p, e, err := s.resolve(ctx, r)
	if err != nil {
		return store.Photo{}, err
	}

	if e.Name == effects.Default {
		sess.AddFlash(session.LevelInfo, fmt.Sprintf("%q left unchanged.", p.Title))
		return p, nil
	}

	out, err := s.render(ctx, p, e)
	if err != nil {
		return store.Photo{}, err
	}

	name := strings.TrimSuffix(path.Base(p.Title), path.Ext(p.Title)) + "_" + e.Name + effects.Extension(out.Format)
	asset, err := s.host.Upload(ctx, name, bytes.NewReader(out.Data))
	if err != nil {
		return store.Photo{}, fmt.Errorf("upload edited image: %w", err)
	}

	err = s.store.UpdatePhotoImage(ctx, store.UpdatePhotoImageRequest{
		ID:       p.ID,
		PublicID: asset.PublicID,
		ImageURL: asset.URL,
		Effect:   e.Name,
	})
	if err != nil {
		s.discard(ctx, asset.PublicID)
		return store.Photo{}, fmt.Errorf("update photo: %w", err)
	}

	s.cache.evict(p.ID, p.PublicID)
	s.discard(ctx, p.PublicID)

	sess.AddFlash(session.LevelSuccess, fmt.Sprintf("%s applied to %q.", e.Label, p.Title))

	p.PublicID = asset.PublicID
	p.ImageURL = asset.URL
	p.Effect = e.Name
	return p, nil
}

type DeleteRequest struct {
	UserID   int64
	PhotoID  int64
	PublicID string
}

// Delete asks the image host to remove the asset and drops the photo only
// when the host confirms it. The outcome is reported as a flash message;
// the returned error is for logging.
func (s *Photos) Delete(ctx context.Context, sess *session.Session, r DeleteRequest) error {
	p, err := s.owned(ctx, r.UserID, r.PhotoID)
	if err != nil {
		sess.AddFlash(session.LevelError, "Photo not found.")
		return err
	}

	if p.PublicID != r.PublicID {
		sess.AddFlash(session.LevelError, "Photo not found.")
		return serr.NotFound(nil, "public id does not match photo").
			With("photo_id", p.ID).
			With("public_id", r.PublicID)
	}

	res, err := s.host.Delete(ctx, r.PublicID)
	if err != nil {
		sess.AddFlash(session.LevelError, fmt.Sprintf("Could not delete %q, try again later.", p.Title))
		return fmt.Errorf("delete asset: %w", err)
	}

	if !res.Succeeded(r.PublicID) {
		sess.AddFlash(session.LevelError, fmt.Sprintf("Could not delete %q.", p.Title))
		return nil
	}

	if err = s.store.DeletePhoto(ctx, p.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		sess.AddFlash(session.LevelError, fmt.Sprintf("Could not delete %q.", p.Title))
		return fmt.Errorf("delete photo: %w", err)
	}

	s.cache.evict(p.ID, p.PublicID)
	sess.AddFlash(session.LevelSuccess, fmt.Sprintf("%q deleted.", p.Title))
	return nil
}

func (s *Photos) resolve(ctx context.Context, r EditRequest) (store.Photo, effects.Effect, error) {
	p, err := s.owned(ctx, r.UserID, r.PhotoID)
	if err != nil {
		return store.Photo{}, effects.Effect{}, err
	}

	e, err := effects.Lookup(r.Effect)
	if err != nil {
		return store.Photo{}, effects.Effect{}, serr.BadRequest(err, "unknown effect %q", r.Effect)
	}

	return p, e, nil
}

// owned loads a photo, hiding photos of other users behind a 404.
func (s *Photos) owned(ctx context.Context, userID, photoID int64) (store.Photo, error) {
	p, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Photo{}, serr.NotFound(err, "photo not found").With("photo_id", photoID)
		}
		return store.Photo{}, fmt.Errorf("get photo: %w", err)
	}

	if p.UserID != userID {
		return store.Photo{}, serr.NotFound(nil, "photo not found").
			With("photo_id", photoID).
			With("user_id", userID)
	}

	return p, nil
}

func (s *Photos) render(ctx context.Context, p store.Photo, e effects.Effect) (effects.Output, error) {
	if out, ok := s.cache.get(p.ID, e.Name, p.PublicID); ok {
		s.observer.CacheHit()
		return out, nil
	}
	s.observer.CacheMiss()

	src, err := s.host.Fetch(ctx, imagehost.Asset{PublicID: p.PublicID, URL: p.ImageURL})
	if err != nil {
		if errors.Is(err, imagehost.ErrNotFound) {
			return effects.Output{}, serr.NotFound(err, "image not found").With("photo_id", p.ID)
		}
		return effects.Output{}, fmt.Errorf("fetch image: %w", err)
	}

	out, err := effects.Render(src, e.Name, s.limits.MaxEdge)
	if err != nil {
		if errors.Is(err, effects.ErrTooLarge) {
			return effects.Output{}, serr.NewServiceError(err, http.StatusUnprocessableEntity, "image is too large to edit").
				With("photo_id", p.ID)
		}
		return effects.Output{}, fmt.Errorf("render %s: %w", e.Name, err)
	}

	s.cache.put(p.ID, e.Name, p.PublicID, out)
	return out, nil
}

// discard removes an asset that is no longer referenced.
func (s *Photos) discard(ctx context.Context, publicID string) {
	res, err := s.host.Delete(ctx, publicID)
	if err != nil || !res.Succeeded(publicID) {
		slog.Warn("failed to delete unused image (ignored)", "public_id", publicID, "error", err)
	}
}
