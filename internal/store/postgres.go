package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	errUniqueViolation     pq.ErrorCode = "23505"
	errForeignKeyViolation pq.ErrorCode = "23503"
)

// dbtx defines the interface for database and transactions
type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresConfig holds the configuration for connecting to a Postgres database
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.DB,
		sslMode)
}

// PostgresStore implements the Store interface using a Postgres database
type PostgresStore struct {
	db dbtx
}

// NewPostgresDB creates a new Postgres database connection
func NewPostgresDB(cfg PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const identityColumns = `i.id, i.provider, i.external_id, i.picture, i.created_at, i.updated_at,
		        u.id, u.uid, u.username, u.first_name, u.last_name, u.email, u.created_at, u.updated_at`

// GetIdentity retrieves a social identity with its user by provider and external id
func (s *PostgresStore) GetIdentity(ctx context.Context, r GetIdentityRequest) (Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+`
		 FROM social_identities AS i
		 JOIN users AS u ON i.user_id = u.id
		 WHERE i.provider=$1 AND i.external_id=$2`, r.Provider, r.ExternalID)

	var id Identity
	err := row.Scan(
		&id.ID,
		&id.Provider,
		&id.ExternalID,
		&id.Picture,
		&id.CreatedAt,
		&id.UpdatedAt,
		&id.User.ID,
		&id.User.UID,
		&id.User.Username,
		&id.User.FirstName,
		&id.User.LastName,
		&id.User.Email,
		&id.User.CreatedAt,
		&id.User.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return id, ErrNotFound
		}

		return id, fmt.Errorf("scan: %w", err)
	}

	return id, nil
}

// CountIdentities returns how many identities match the provider and external id
func (s *PostgresStore) CountIdentities(ctx context.Context, r GetIdentityRequest) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM social_identities WHERE provider=$1 AND external_id=$2",
		r.Provider, r.ExternalID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}

	return n, nil
}

// CreateUser creates a new user and returns its ID
func (s *PostgresStore) CreateUser(ctx context.Context, r CreateUserRequest) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO users (username, first_name, last_name, email) VALUES ($1, $2, $3, $4) RETURNING id",
		r.Username,
		r.FirstName,
		r.LastName,
		r.Email).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}

	return id, nil
}

// GetUser retrieves a user by ID
func (s *PostgresStore) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, uid, username, first_name, last_name, email, created_at, updated_at FROM users WHERE id=$1", id).Scan(
		&u.ID,
		&u.UID,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.CreatedAt,
		&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, ErrNotFound
		}

		return u, fmt.Errorf("scan: %w", err)
	}

	return u, nil
}

// CreateIdentity links a social identity to a user and returns its ID
func (s *PostgresStore) CreateIdentity(ctx context.Context, r CreateIdentityRequest) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO social_identities (user_id, provider, external_id, picture) VALUES ($1, $2, $3, $4) RETURNING id",
		r.UserID,
		r.Provider,
		r.ExternalID,
		r.Picture).Scan(&id)
	if err != nil {
		if isPqErr(err, errUniqueViolation) {
			return 0, ErrExists
		}
		if isPqErr(err, errForeignKeyViolation) {
			return 0, ErrNotFound
		}

		return 0, fmt.Errorf("insert identity: %w", err)
	}

	return id, nil
}

// UpdateIdentityPicture stores the latest profile picture reported by the provider
func (s *PostgresStore) UpdateIdentityPicture(ctx context.Context, id int64, picture string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE social_identities SET picture=$1, updated_at=now() WHERE id=$2", picture, id)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}

	return requireAffected(res)
}

// ListPhotos returns the user's photos, newest first
func (s *PostgresStore) ListPhotos(ctx context.Context, userID int64) ([]Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, public_id, image_url, effect, created_at, updated_at
		 FROM photos
		 WHERE user_id=$1
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}

	return photos, nil
}

// GetPhoto retrieves a photo by ID
func (s *PostgresStore) GetPhoto(ctx context.Context, id int64) (Photo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, public_id, image_url, effect, created_at, updated_at
		 FROM photos
		 WHERE id=$1`, id)

	p, err := scanPhoto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}

		return p, err
	}

	return p, nil
}

// CreatePhoto inserts a photo and returns its ID
func (s *PostgresStore) CreatePhoto(ctx context.Context, r CreatePhotoRequest) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO photos (user_id, title, public_id, image_url) VALUES ($1, $2, $3, $4) RETURNING id",
		nullID(r.UserID),
		r.Title,
		r.PublicID,
		r.ImageURL).Scan(&id)
	if err != nil {
		if isPqErr(err, errForeignKeyViolation) {
			return 0, ErrNotFound
		}

		return 0, fmt.Errorf("insert photo: %w", err)
	}

	return id, nil
}

// UpdatePhotoImage points a photo at a new hosted image
func (s *PostgresStore) UpdatePhotoImage(ctx context.Context, r UpdatePhotoImageRequest) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE photos SET public_id=$1, image_url=$2, effect=$3, updated_at=now() WHERE id=$4",
		r.PublicID,
		r.ImageURL,
		r.Effect,
		r.ID)
	if err != nil {
		return fmt.Errorf("update photo: %w", err)
	}

	return requireAffected(res)
}

// DeletePhoto removes a photo row
func (s *PostgresStore) DeletePhoto(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM photos WHERE id=$1", id)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}

	return requireAffected(res)
}

// WithTx executes the given function within a database transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return errors.New("already in transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	sx := &PostgresStore{db: tx}
	if err = fn(sx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback: %v after: %w", rbErr, err)
		}

		return fmt.Errorf("transaction: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row scanner) (Photo, error) {
	var (
		p      Photo
		userID sql.NullInt64
	)

	err := row.Scan(
		&p.ID,
		&userID,
		&p.Title,
		&p.PublicID,
		&p.ImageURL,
		&p.Effect,
		&p.CreatedAt,
		&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan photo: %w", err)
	}

	p.UserID = userID.Int64
	return p, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func isPqErr(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	return pqErr.Code == code
}
