package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/dose-reminder/internal/model"
)

// UserRepo reads the 'users' table.  Profiles are managed elsewhere; the
// engine only needs the preference columns.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var (
		u          model.User
		start, end sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,full_name,timezone,email_enabled,quiet_hours_start,quiet_hours_end,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &u.FullName, &u.Timezone, &u.EmailEnabled, &start, &end, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.QuietHoursStart = nullString(start)
	u.QuietHoursEnd = nullString(end)
	return u, nil
}

// Upsert writes a user row.  Used by seeding and tests.
func (r *UserRepo) Upsert(ctx context.Context, u model.User) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id,email,full_name,timezone,email_enabled,quiet_hours_start,quiet_hours_end,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE email=VALUES(email), full_name=VALUES(full_name), timezone=VALUES(timezone),
		   email_enabled=VALUES(email_enabled), quiet_hours_start=VALUES(quiet_hours_start),
		   quiet_hours_end=VALUES(quiet_hours_end), updated_at=VALUES(updated_at)`,
		u.ID, u.Email, u.FullName, u.Timezone, u.EmailEnabled, u.QuietHoursStart, u.QuietHoursEnd, now, now)
	return err
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
