package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"electra/internal/models"
)

// ErrUserNotFound represents missing user rows.
var ErrUserNotFound = errors.New("user not found")

// UserRepository handles persistence of user accounts.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository returns repository instance.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, user_name, email, password_hash, phone_number, profile_image_url,
	role, vehicles, created_at, updated_at
`

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	vehicles, err := marshalJSONB(user.Vehicles)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO users (user_name, email, password_hash, phone_number, profile_image_url,
			role, vehicles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		user.UserName,
		user.Email,
		user.PasswordHash,
		user.PhoneNumber,
		user.ProfileImageURL,
		user.Role,
		vehicles,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var (
		u        models.User
		vehicles []byte
	)
	if err := row.Scan(
		&u.ID,
		&u.UserName,
		&u.Email,
		&u.PasswordHash,
		&u.PhoneNumber,
		&u.ProfileImageURL,
		&u.Role,
		&vehicles,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(vehicles, &u.Vehicles); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID fetches one user.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 LIMIT 1`, userColumns)
	return r.getOne(ctx, query, id)
}

// GetByEmail fetches one user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`, userColumns)
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ExistsWithEmail reports whether the email is already registered.
func (r *UserRepository) ExistsWithEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	return exists, err
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
}

// UpdateRole replaces the user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id int64, role string) error {
	return r.exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
}

// UpdateProfileImage replaces the profile image URL.
func (r *UserRepository) UpdateProfileImage(ctx context.Context, id int64, url string) error {
	return r.exec(ctx, `UPDATE users SET profile_image_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
}

// UpdateVehicles replaces the vehicle list.
func (r *UserRepository) UpdateVehicles(ctx context.Context, id int64, vehicles []models.Vehicle) error {
	data, err := marshalJSONB(vehicles)
	if err != nil {
		return err
	}
	return r.exec(ctx, `UPDATE users SET vehicles = $2, updated_at = NOW() WHERE id = $1`, id, data)
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}
