package service

import (
	"context"
	"io"

	"github.com/Rubix982/django-photo-edit/internal/imagehost"
	"github.com/Rubix982/django-photo-edit/internal/oauth"
	"github.com/Rubix982/django-photo-edit/internal/pkg/session"
	"github.com/Rubix982/django-photo-edit/internal/store"
	"github.com/Rubix982/django-photo-edit/internal/token"
)

type mockStore struct {
	getIdentityFunc           func(ctx context.Context, r store.GetIdentityRequest) (store.Identity, error)
	countIdentitiesFunc       func(ctx context.Context, r store.GetIdentityRequest) (int, error)
	createUserFunc            func(ctx context.Context, r store.CreateUserRequest) (int64, error)
	getUserFunc               func(ctx context.Context, id int64) (store.User, error)
	createIdentityFunc        func(ctx context.Context, r store.CreateIdentityRequest) (int64, error)
	updateIdentityPictureFunc func(ctx context.Context, id int64, picture string) error
	listPhotosFunc            func(ctx context.Context, userID int64) ([]store.Photo, error)
	getPhotoFunc              func(ctx context.Context, id int64) (store.Photo, error)
	createPhotoFunc           func(ctx context.Context, r store.CreatePhotoRequest) (int64, error)
	updatePhotoImageFunc      func(ctx context.Context, r store.UpdatePhotoImageRequest) error
	deletePhotoFunc           func(ctx context.Context, id int64) error
	txCalls                   int
}

func (m *mockStore) GetIdentity(ctx context.Context, r store.GetIdentityRequest) (store.Identity, error) {
	return m.getIdentityFunc(ctx, r)
}

func (m *mockStore) CountIdentities(ctx context.Context, r store.GetIdentityRequest) (int, error) {
	return m.countIdentitiesFunc(ctx, r)
}

func (m *mockStore) CreateUser(ctx context.Context, r store.CreateUserRequest) (int64, error) {
	return m.createUserFunc(ctx, r)
}

func (m *mockStore) GetUser(ctx context.Context, id int64) (store.User, error) {
	return m.getUserFunc(ctx, id)
}

func (m *mockStore) CreateIdentity(ctx context.Context, r store.CreateIdentityRequest) (int64, error) {
	return m.createIdentityFunc(ctx, r)
}

func (m *mockStore) UpdateIdentityPicture(ctx context.Context, id int64, picture string) error {
	return m.updateIdentityPictureFunc(ctx, id, picture)
}

func (m *mockStore) ListPhotos(ctx context.Context, userID int64) ([]store.Photo, error) {
	return m.listPhotosFunc(ctx, userID)
}

func (m *mockStore) GetPhoto(ctx context.Context, id int64) (store.Photo, error) {
	return m.getPhotoFunc(ctx, id)
}

func (m *mockStore) CreatePhoto(ctx context.Context, r store.CreatePhotoRequest) (int64, error) {
	return m.createPhotoFunc(ctx, r)
}

func (m *mockStore) UpdatePhotoImage(ctx context.Context, r store.UpdatePhotoImageRequest) error {
	return m.updatePhotoImageFunc(ctx, r)
}

func (m *mockStore) DeletePhoto(ctx context.Context, id int64) error {
	return m.deletePhotoFunc(ctx, id)
}

func (m *mockStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	m.txCalls++
	return fn(m)
}

type mockAuthenticator struct {
	loginFunc    func(env oauth.Env, provider string) (string, error)
	exchangeFunc func(ctx context.Context, env oauth.Env, provider, code, state string) (oauth.User, error)
}

func (m *mockAuthenticator) LoginURL(env oauth.Env, provider string) (string, error) {
	return m.loginFunc(env, provider)
}

func (m *mockAuthenticator) Exchange(ctx context.Context, env oauth.Env, provider, code, state string) (oauth.User, error) {
	return m.exchangeFunc(ctx, env, provider, code, state)
}

type mockTokenIssuer struct {
	issueFunc func(claims token.UserClaims) (string, error)
}

func (m *mockTokenIssuer) Issue(claims token.UserClaims) (string, error) {
	return m.issueFunc(claims)
}

type mockVerifier struct {
	verifyFunc func(ctx context.Context, accessToken string) (oauth.User, error)
}

func (m *mockVerifier) Verify(ctx context.Context, accessToken string) (oauth.User, error) {
	return m.verifyFunc(ctx, accessToken)
}

type mockSessions struct {
	rotated     int
	invalidated int
}

func (m *mockSessions) Rotate(ctx context.Context, s *session.Session) error {
	m.rotated++
	s.Key = "rotated"
	return nil
}

func (m *mockSessions) Invalidate(ctx context.Context, s *session.Session) error {
	m.invalidated++
	*s = session.Session{}
	return nil
}

type mockHost struct {
	uploadFunc func(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error)
	deleteFunc func(ctx context.Context, publicID string) (imagehost.DeleteResult, error)
	fetchFunc  func(ctx context.Context, a imagehost.Asset) ([]byte, error)
}

func (m *mockHost) Upload(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error) {
	return m.uploadFunc(ctx, name, img)
}

func (m *mockHost) Delete(ctx context.Context, publicID string) (imagehost.DeleteResult, error) {
	return m.deleteFunc(ctx, publicID)
}

func (m *mockHost) Fetch(ctx context.Context, a imagehost.Asset) ([]byte, error) {
	return m.fetchFunc(ctx, a)
}

type countingObserver struct {
	hits, misses int
}

func (o *countingObserver) CacheHit()  { o.hits++ }
func (o *countingObserver) CacheMiss() { o.misses++ }
