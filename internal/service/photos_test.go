package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Rubix982/django-photo-edit/internal/imagehost"
	"github.com/Rubix982/django-photo-edit/internal/pkg/httpx"
	"github.com/Rubix982/django-photo-edit/internal/pkg/session"
	"github.com/Rubix982/django-photo-edit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		img.SetNRGBA(x, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader returns a PNG holding only its header, enough for
// image.DecodeConfig to report w x h without allocating the canvas.
func pngHeader(w, h int) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(h))
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

var ownedPhoto = store.Photo{
	ID:       10,
	UserID:   1,
	Title:    "beach.png",
	PublicID: "pub_10",
	ImageURL: "https://res.test/pub_10.png",
	Effect:   "default",
}

func photoStoreWith(p store.Photo) *mockStore {
	return &mockStore{
		getPhotoFunc: func(ctx context.Context, id int64) (store.Photo, error) {
			if id != p.ID {
				return store.Photo{}, store.ErrNotFound
			}
			return p, nil
		},
	}
}

func fetchingHost(t *testing.T) *mockHost {
	data := testPNG(t, 8, 8)
	return &mockHost{
		fetchFunc: func(ctx context.Context, a imagehost.Asset) ([]byte, error) {
			return data, nil
		},
	}
}

func newTestPhotos(st photoStore, host imageHost, opts ...PhotosOption) *Photos {
	base := []PhotosOption{WithPhotoStore(st), WithImageHost(host)}
	return NewPhotos(append(base, opts...)...)
}

func TestPhotos_List(t *testing.T) {
	st := &mockStore{
		listPhotosFunc: func(ctx context.Context, userID int64) ([]store.Photo, error) {
			assert.Equal(t, int64(1), userID)
			return []store.Photo{ownedPhoto}, nil
		},
	}

	photos, err := newTestPhotos(st, &mockHost{}).List(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, []store.Photo{ownedPhoto}, photos)
}

func TestPhotos_Upload(t *testing.T) {
	data := testPNG(t, 20, 10)

	var created store.CreatePhotoRequest
	st := &mockStore{
		createPhotoFunc: func(ctx context.Context, r store.CreatePhotoRequest) (int64, error) {
			created = r
			return 42, nil
		},
	}
	host := &mockHost{
		uploadFunc: func(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error) {
			assert.Equal(t, "cat.png", name)
			b, err := io.ReadAll(img)
			require.NoError(t, err)
			assert.Equal(t, data, b)
			return imagehost.Asset{PublicID: "abc", URL: "https://res.test/abc.png"}, nil
		},
	}

	sess := &session.Session{}
	p, err := newTestPhotos(st, host).Upload(t.Context(), sess, UploadRequest{
		UserID:   1,
		Title:    "  My cat ",
		FileName: "cat.png",
		Image:    bytes.NewReader(data),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "My cat", p.Title)
	assert.Equal(t, store.CreatePhotoRequest{UserID: 1, Title: "My cat", PublicID: "abc", ImageURL: "https://res.test/abc.png"}, created)

	flashes := sess.PopFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, session.LevelSuccess, flashes[0].Level)
}

func TestPhotos_Upload_EmptyTitleUsesFileName(t *testing.T) {
	st := &mockStore{
		createPhotoFunc: func(ctx context.Context, r store.CreatePhotoRequest) (int64, error) {
			assert.Equal(t, "cat.png", r.Title)
			return 1, nil
		},
	}
	host := &mockHost{
		uploadFunc: func(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error) {
			return imagehost.Asset{PublicID: "abc", URL: "u"}, nil
		},
	}

	p, err := newTestPhotos(st, host).Upload(t.Context(), &session.Session{}, UploadRequest{
		UserID:   1,
		FileName: "cat.png",
		Image:    bytes.NewReader(testPNG(t, 2, 2)),
	})
	require.NoError(t, err)
	assert.Equal(t, "cat.png", p.Title)
}

func TestPhotos_Upload_Invalid(t *testing.T) {
	host := &mockHost{
		uploadFunc: func(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error) {
			t.Fatal("invalid images must not be uploaded")
			return imagehost.Asset{}, nil
		},
	}
	srv := newTestPhotos(&mockStore{}, host, WithLimits(PhotoLimits{MaxBytes: 1 << 10, MaxWidth: 50, MaxHeight: 50}))

	tests := map[string][]byte{
		"not an image": []byte("hello"),
		"too wide":     testPNG(t, 100, 10),
		"too big":      append(testPNG(t, 2, 2), make([]byte, 2<<10)...),
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := srv.Upload(t.Context(), &session.Session{}, UploadRequest{
				UserID:   1,
				FileName: "x.png",
				Image:    bytes.NewReader(data),
			})
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, httpx.StatusOf(err))
		})
	}
}

func TestPhotos_Upload_PixelLimit(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		status int
	}{
		{"at the render limit", 5000, 8000, http.StatusOK},
		{"over the render limit", 7000, 6000, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploads := 0
			host := &mockHost{
				uploadFunc: func(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error) {
					uploads++
					return imagehost.Asset{PublicID: "pub", URL: "https://res.test/pub.png"}, nil
				},
			}
			st := &mockStore{
				createPhotoFunc: func(ctx context.Context, r store.CreatePhotoRequest) (int64, error) {
					return 1, nil
				},
			}

			_, err := newTestPhotos(st, host).Upload(t.Context(), &session.Session{}, UploadRequest{
				UserID:   1,
				FileName: "huge.png",
				Image:    bytes.NewReader(pngHeader(tt.w, tt.h)),
			})

			if tt.status == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, 1, uploads)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.status, httpx.StatusOf(err))
			assert.Zero(t, uploads)
		})
	}
}

func TestPhotos_Upload_StoreFailureDiscardsAsset(t *testing.T) {
	st := &mockStore{
		createPhotoFunc: func(ctx context.Context, r store.CreatePhotoRequest) (int64, error) {
			return 0, errors.New("db down")
		},
	}
	var deleted []string
	host := &mockHost{
		uploadFunc: func(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error) {
			return imagehost.Asset{PublicID: "abc", URL: "u"}, nil
		},
		deleteFunc: func(ctx context.Context, publicID string) (imagehost.DeleteResult, error) {
			deleted = append(deleted, publicID)
			return imagehost.DeleteResult{Deleted: map[string]string{publicID: "deleted"}}, nil
		},
	}

	_, err := newTestPhotos(st, host).Upload(t.Context(), &session.Session{}, UploadRequest{
		UserID:   1,
		FileName: "x.png",
		Image:    bytes.NewReader(testPNG(t, 2, 2)),
	})
	require.Error(t, err)
	assert.Equal(t, []string{"abc"}, deleted)
}

func TestPhotos_Edit(t *testing.T) {
	srv := newTestPhotos(photoStoreWith(ownedPhoto), &mockHost{})

	page, err := srv.Edit(t.Context(), EditRequest{UserID: 1, PhotoID: 10, Effect: "sepia"})
	require.NoError(t, err)
	assert.Equal(t, ownedPhoto, page.Photo)
	assert.Equal(t, "sepia", page.Effect.Name)
	assert.Len(t, page.Effects, 18)
}

func TestPhotos_Edit_Errors(t *testing.T) {
	srv := newTestPhotos(photoStoreWith(ownedPhoto), &mockHost{})

	tests := []struct {
		name   string
		req    EditRequest
		status int
	}{
		{"unknown photo", EditRequest{UserID: 1, PhotoID: 99, Effect: "sepia"}, http.StatusNotFound},
		{"other user", EditRequest{UserID: 2, PhotoID: 10, Effect: "sepia"}, http.StatusNotFound},
		{"unknown effect", EditRequest{UserID: 1, PhotoID: 10, Effect: "posterize"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.Edit(t.Context(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.status, httpx.StatusOf(err))
		})
	}
}

func TestPhotos_Render_Cached(t *testing.T) {
	host := fetchingHost(t)
	fetches := 0
	fetch := host.fetchFunc
	host.fetchFunc = func(ctx context.Context, a imagehost.Asset) ([]byte, error) {
		fetches++
		assert.Equal(t, imagehost.Asset{PublicID: "pub_10", URL: "https://res.test/pub_10.png"}, a)
		return fetch(ctx, a)
	}

	obs := &countingObserver{}
	srv := newTestPhotos(photoStoreWith(ownedPhoto), host, WithCacheObserver(obs))
	defer srv.Close()

	req := EditRequest{UserID: 1, PhotoID: 10, Effect: "grayscale"}
	first, err := srv.Render(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, "image/png", first.ContentType)

	second, err := srv.Render(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)

	assert.Equal(t, 1, fetches)
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.misses)
}

func TestPhotos_Render_MissingSource(t *testing.T) {
	host := &mockHost{
		fetchFunc: func(ctx context.Context, a imagehost.Asset) ([]byte, error) {
			return nil, imagehost.ErrNotFound
		},
	}

	_, err := newTestPhotos(photoStoreWith(ownedPhoto), host).Render(t.Context(), EditRequest{UserID: 1, PhotoID: 10, Effect: "blur"})
	assert.Equal(t, http.StatusNotFound, httpx.StatusOf(err))
}

func TestPhotos_Render_TooLarge(t *testing.T) {
	host := &mockHost{
		fetchFunc: func(ctx context.Context, a imagehost.Asset) ([]byte, error) {
			return pngHeader(7000, 6000), nil
		},
	}
	srv := newTestPhotos(photoStoreWith(ownedPhoto), host)
	defer srv.Close()

	_, err := srv.Render(t.Context(), EditRequest{UserID: 1, PhotoID: 10, Effect: "grayscale"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httpx.StatusOf(err))

	_, err = srv.SaveEdit(t.Context(), &session.Session{}, EditRequest{UserID: 1, PhotoID: 10, Effect: "grayscale"})
	assert.Equal(t, http.StatusUnprocessableEntity, httpx.StatusOf(err))
}

func TestPhotos_SaveEdit(t *testing.T) {
	var updated store.UpdatePhotoImageRequest
	st := photoStoreWith(ownedPhoto)
	st.updatePhotoImageFunc = func(ctx context.Context, r store.UpdatePhotoImageRequest) error {
		updated = r
		return nil
	}

	host := fetchingHost(t)
	var deleted []string
	host.uploadFunc = func(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error) {
		assert.Equal(t, "beach_sepia.png", name)
		return imagehost.Asset{PublicID: "pub_11", URL: "https://res.test/pub_11.png"}, nil
	}
	host.deleteFunc = func(ctx context.Context, publicID string) (imagehost.DeleteResult, error) {
		deleted = append(deleted, publicID)
		return imagehost.DeleteResult{Deleted: map[string]string{publicID: "deleted"}}, nil
	}

	sess := &session.Session{}
	p, err := newTestPhotos(st, host).SaveEdit(t.Context(), sess, EditRequest{UserID: 1, PhotoID: 10, Effect: "sepia"})
	require.NoError(t, err)

	assert.Equal(t, store.UpdatePhotoImageRequest{ID: 10, PublicID: "pub_11", ImageURL: "https://res.test/pub_11.png", Effect: "sepia"}, updated)
	assert.Equal(t, "pub_11", p.PublicID)
	assert.Equal(t, []string{"pub_10"}, deleted)

	flashes := sess.PopFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, `Sepia applied to "beach.png".`, flashes[0].Text)
}

func TestPhotos_SaveEdit_OldAssetDeleteIsBestEffort(t *testing.T) {
	st := photoStoreWith(ownedPhoto)
	st.updatePhotoImageFunc = func(ctx context.Context, r store.UpdatePhotoImageRequest) error { return nil }

	host := fetchingHost(t)
	host.uploadFunc = func(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error) {
		return imagehost.Asset{PublicID: "pub_11", URL: "u"}, nil
	}
	host.deleteFunc = func(ctx context.Context, publicID string) (imagehost.DeleteResult, error) {
		return imagehost.DeleteResult{}, errors.New("host unavailable")
	}

	_, err := newTestPhotos(st, host).SaveEdit(t.Context(), &session.Session{}, EditRequest{UserID: 1, PhotoID: 10, Effect: "invert"})
	assert.NoError(t, err)
}

func TestPhotos_SaveEdit_Default(t *testing.T) {
	sess := &session.Session{}
	p, err := newTestPhotos(photoStoreWith(ownedPhoto), &mockHost{}).SaveEdit(t.Context(), sess, EditRequest{UserID: 1, PhotoID: 10, Effect: "default"})
	require.NoError(t, err)
	assert.Equal(t, ownedPhoto, p)
	assert.Equal(t, session.LevelInfo, sess.PopFlashes()[0].Level)
}

func deletingHost(status string, err error) (*mockHost, *[]string) {
	var calls []string
	return &mockHost{
		deleteFunc: func(ctx context.Context, publicID string) (imagehost.DeleteResult, error) {
			calls = append(calls, publicID)
			if err != nil {
				return imagehost.DeleteResult{}, err
			}
			return imagehost.DeleteResult{Deleted: map[string]string{publicID: status}}, nil
		},
	}, &calls
}

func TestPhotos_Delete_Success(t *testing.T) {
	st := photoStoreWith(ownedPhoto)
	var removed int64
	st.deletePhotoFunc = func(ctx context.Context, id int64) error {
		removed = id
		return nil
	}
	host, calls := deletingHost("deleted", nil)

	sess := &session.Session{}
	err := newTestPhotos(st, host).Delete(t.Context(), sess, DeleteRequest{UserID: 1, PhotoID: 10, PublicID: "pub_10"})
	require.NoError(t, err)

	assert.Equal(t, []string{"pub_10"}, *calls)
	assert.Equal(t, int64(10), removed)
	flashes := sess.PopFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, session.LevelSuccess, flashes[0].Level)
}

func TestPhotos_Delete_NotDeletedRemotely(t *testing.T) {
	st := photoStoreWith(ownedPhoto)
	st.deletePhotoFunc = func(ctx context.Context, id int64) error {
		t.Fatal("row must stay when the host did not delete the asset")
		return nil
	}
	host, calls := deletingHost("not_found", nil)

	sess := &session.Session{}
	err := newTestPhotos(st, host).Delete(t.Context(), sess, DeleteRequest{UserID: 1, PhotoID: 10, PublicID: "pub_10"})
	require.NoError(t, err)

	assert.Equal(t, []string{"pub_10"}, *calls)
	flashes := sess.PopFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, session.LevelError, flashes[0].Level)
}

func TestPhotos_Delete_TransportError(t *testing.T) {
	host, calls := deletingHost("", errors.New("timeout"))

	sess := &session.Session{}
	err := newTestPhotos(photoStoreWith(ownedPhoto), host).Delete(t.Context(), sess, DeleteRequest{UserID: 1, PhotoID: 10, PublicID: "pub_10"})
	require.Error(t, err)

	assert.Len(t, *calls, 1)
	assert.True(t, strings.HasPrefix(sess.PopFlashes()[0].Text, "Could not delete"))
}

func TestPhotos_Delete_NotOwned(t *testing.T) {
	host, calls := deletingHost("deleted", nil)
	srv := newTestPhotos(photoStoreWith(ownedPhoto), host)

	for _, req := range []DeleteRequest{
		{UserID: 2, PhotoID: 10, PublicID: "pub_10"},
		{UserID: 1, PhotoID: 10, PublicID: "someone_elses"},
		{UserID: 1, PhotoID: 10, PublicID: "xxyyzz"},
		{UserID: 1, PhotoID: 99, PublicID: "pub_10"},
	} {
		sess := &session.Session{}
		err := srv.Delete(t.Context(), sess, req)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httpx.StatusOf(err))
		assert.Equal(t, session.LevelError, sess.PopFlashes()[0].Level)
	}
	assert.Empty(t, *calls)
}

func TestNewPhotos_MissingDeps(t *testing.T) {
	assert.Panics(t, func() { NewPhotos() })
	assert.Panics(t, func() { NewPhotos(WithPhotoStore(&mockStore{})) })
}
