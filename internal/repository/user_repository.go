package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/convention-desk/internal/model"
)

// UserRepo persists attendees.  Users are created implicitly by intake and
// resolved by email when staff search for a ticket.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// FindOrCreate returns the user with the given email, inserting it first
// when missing.  A concurrent insert of the same email is resolved by
// re-reading the winner.
func (r *UserRepo) FindOrCreate(ctx context.Context, email, fullName, phone string) (model.User, error) {
	email = NormalizeEmail(email)
	u, err := r.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.User{}, err
	}
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, full_name, phone, created_at) VALUES (?,?,?,?)",
		email, strings.TrimSpace(fullName), strings.TrimSpace(phone), now)
	if err != nil {
		if isDuplicate(err) {
			return r.GetByEmail(ctx, email)
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: uint64(id), Email: email, FullName: strings.TrimSpace(fullName), Phone: strings.TrimSpace(phone), CreatedAt: now}, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,full_name,phone,created_at FROM users WHERE email=? LIMIT 1",
		NormalizeEmail(email)).Scan(&u.ID, &u.Email, &u.FullName, &u.Phone, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}
