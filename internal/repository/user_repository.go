package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanportal/portal-service/internal/domain"
)

// UserRepository defines persistence access for portal accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByAccount resolves either a username or an email address.
	GetByAccount(ctx context.Context, account string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	ExistsUsername(ctx context.Context, username string) (bool, error)
	ExistsEmail(ctx context.Context, email string) (bool, error)
	// Update persists the mutable profile fields of an existing account.
	Update(ctx context.Context, user *domain.User) error
	// UpdateEmailVerified sets the verified flag. The flag is monotonic;
	// there is intentionally no operation to clear it.
	UpdateEmailVerified(ctx context.Context, id string) error
	MarkDeleted(ctx context.Context, id string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, username, nickname, email, password_hash, email_verified, avatar, role, is_del, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Nickname,
		&user.Email,
		&user.PasswordHash,
		&user.EmailVerified,
		&user.Avatar,
		&user.Role,
		&user.Deleted,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (username, nickname, email, password_hash, avatar, role)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, email_verified, is_del, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		user.Username,
		user.Nickname,
		user.Email,
		user.PasswordHash,
		user.Avatar,
		user.Role,
	).Scan(&user.ID, &user.EmailVerified, &user.Deleted, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1 AND is_del=FALSE`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByAccount(ctx context.Context, account string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE (username=$1 OR email=$1) AND is_del=FALSE`
	return scanUser(r.pool.QueryRow(ctx, query, account))
}

func (r *userRepository) List(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_del=FALSE ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *userRepository) ExistsUsername(ctx context.Context, username string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1 AND is_del=FALSE)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, username).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *userRepository) ExistsEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1 AND is_del=FALSE)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users
        SET username=$2, nickname=$3, email=$4, password_hash=$5, avatar=$6, updated_at=NOW()
        WHERE id=$1 AND is_del=FALSE
        RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.Nickname,
		user.Email,
		user.PasswordHash,
		user.Avatar,
	).Scan(&user.UpdatedAt)
	return err
}

func (r *userRepository) UpdateEmailVerified(ctx context.Context, id string) error {
	const query = `UPDATE users SET email_verified=TRUE, updated_at=NOW() WHERE id=$1 AND is_del=FALSE`

	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) MarkDeleted(ctx context.Context, id string) error {
	const query = `UPDATE users SET is_del=TRUE, updated_at=NOW() WHERE id=$1 AND is_del=FALSE`

	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
