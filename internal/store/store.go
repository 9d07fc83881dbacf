package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

type Store interface {
	GetIdentity(ctx context.Context, r GetIdentityRequest) (Identity, error)
	CountIdentities(ctx context.Context, r GetIdentityRequest) (int, error)
	CreateUser(ctx context.Context, r CreateUserRequest) (int64, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateIdentity(ctx context.Context, r CreateIdentityRequest) (int64, error)
	UpdateIdentityPicture(ctx context.Context, id int64, picture string) error
	ListPhotos(ctx context.Context, userID int64) ([]Photo, error)
	GetPhoto(ctx context.Context, id int64) (Photo, error)
	CreatePhoto(ctx context.Context, r CreatePhotoRequest) (int64, error)
	UpdatePhotoImage(ctx context.Context, r UpdatePhotoImageRequest) error
	DeletePhoto(ctx context.Context, id int64) error
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type GetIdentityRequest struct {
	Provider   string
	ExternalID string
}

type CreateUserRequest struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
}

type CreateIdentityRequest struct {
	UserID     int64
	Provider   string
	ExternalID string
	Picture    string
}

type CreatePhotoRequest struct {
	UserID   int64
	Title    string
	PublicID string
	ImageURL string
}

type UpdatePhotoImageRequest struct {
	ID       int64
	PublicID string
	ImageURL string
	Effect   string
}
