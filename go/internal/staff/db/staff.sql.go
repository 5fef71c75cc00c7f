package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const countStaff = `-- name: CountStaff :one
SELECT count(*) FROM staff
`

func (q *Queries) CountStaff(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countStaff)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createStaff = `-- name: CreateStaff :one
INSERT INTO staff (username, password_hash, role)
VALUES ($1, $2, $3)
RETURNING id, username, password_hash, role, created_at, last_login_at
`

type CreateStaffParams struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role"`
}

func (q *Queries) CreateStaff(ctx context.Context, arg CreateStaffParams) (Staff, error) {
	row := q.db.QueryRowContext(ctx, createStaff, arg.Username, arg.PasswordHash, arg.Role)
	var i Staff
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.PasswordHash,
		&i.Role,
		&i.CreatedAt,
		&i.LastLoginAt,
	)
	return i, err
}

const getStaff = `-- name: GetStaff :one
SELECT id, username, password_hash, role, created_at, last_login_at FROM staff
WHERE id = $1
`

func (q *Queries) GetStaff(ctx context.Context, id uuid.UUID) (Staff, error) {
	row := q.db.QueryRowContext(ctx, getStaff, id)
	var i Staff
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.PasswordHash,
		&i.Role,
		&i.CreatedAt,
		&i.LastLoginAt,
	)
	return i, err
}

const getStaffByUsername = `-- name: GetStaffByUsername :one
SELECT id, username, password_hash, role, created_at, last_login_at FROM staff
WHERE username = $1
`

func (q *Queries) GetStaffByUsername(ctx context.Context, username string) (Staff, error) {
	row := q.db.QueryRowContext(ctx, getStaffByUsername, username)
	var i Staff
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.PasswordHash,
		&i.Role,
		&i.CreatedAt,
		&i.LastLoginAt,
	)
	return i, err
}

const lockStaff = `-- name: LockStaff :exec
LOCK TABLE staff IN SHARE ROW EXCLUSIVE MODE
`

func (q *Queries) LockStaff(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, lockStaff)
	return err
}

const touchLastLogin = `-- name: TouchLastLogin :exec
UPDATE staff SET last_login_at = $2
WHERE id = $1
`

type TouchLastLoginParams struct {
	ID          uuid.UUID    `json:"id"`
	LastLoginAt sql.NullTime `json:"last_login_at"`
}

func (q *Queries) TouchLastLogin(ctx context.Context, arg TouchLastLoginParams) error {
	_, err := q.db.ExecContext(ctx, touchLastLogin, arg.ID, arg.LastLoginAt)
	return err
}
