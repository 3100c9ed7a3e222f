package user

import (
	"context"
	"database/sql"
	"errors"

	"duka-be/internal/logger"

	"go.uber.org/zap"
)

// Repository reads the identity store owned by the auth service.
type Repository interface {
	FindByID(ctx context.Context, id string) (User, error)
	FindEmailByID(ctx context.Context, id string) (string, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id string) (User, error) {
	var u User
	err := r.db.QueryRowContext(ctx,
		"SELECT id, email, role FROM users WHERE id = $1",
		id,
	).Scan(&u.ID, &u.Email, &u.Role)

	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("db: failed to load user",
			zap.String("user_id", id),
			zap.Error(err),
		)
		return User{}, err
	}

	return u, nil
}

func (r *repository) FindEmailByID(ctx context.Context, id string) (string, error) {
	u, err := r.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}
