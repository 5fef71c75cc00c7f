package staff

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/models"
	"github.com/mcdev12/kiosk/go/internal/sqlutil"
	"github.com/mcdev12/kiosk/go/internal/staff/db"
)

const uniqueViolation = "23505"

// Querier defines what the repository needs from the database layer
type Querier interface {
	CountStaff(ctx context.Context) (int64, error)
	CreateStaff(ctx context.Context, arg db.CreateStaffParams) (db.Staff, error)
	GetStaff(ctx context.Context, id uuid.UUID) (db.Staff, error)
	GetStaffByUsername(ctx context.Context, username string) (db.Staff, error)
	TouchLastLogin(ctx context.Context, arg db.TouchLastLoginParams) error
}

// Repository implements staff data access operations
type Repository struct {
	db      *sql.DB
	queries Querier
}

// NewRepository creates a new staff repository
func NewRepository(database *sql.DB) *Repository {
	return &Repository{
		db:      database,
		queries: db.New(database),
	}
}

// CreateStaff inserts a staff account with an already hashed password
func (r *Repository) CreateStaff(ctx context.Context, username, passwordHash string, role auth.Role) (*models.Staff, error) {
	row, err := r.queries.CreateStaff(ctx, db.CreateStaffParams{
		Username:     username,
		PasswordHash: passwordHash,
		Role:         string(role),
	})
	if err != nil {
		return nil, createError(err)
	}
	return r.dbStaffToModel(row), nil
}

// CreateFirstStaff inserts the bootstrap admin. The table is locked for the
// transaction so only one of several concurrent first registrations wins;
// the others get ErrRegistrationClosed.
func (r *Repository) CreateFirstStaff(ctx context.Context, username, passwordHash string) (*models.Staff, error) {
	var created db.Staff
	err := sqlutil.Run(ctx, r.db, newTxQueries, func(q *db.Queries) error {
		if err := q.LockStaff(ctx); err != nil {
			return fmt.Errorf("failed to lock staff: %w", err)
		}
		n, err := q.CountStaff(ctx)
		if err != nil {
			return fmt.Errorf("failed to count staff: %w", err)
		}
		if n > 0 {
			return ErrRegistrationClosed
		}
		created, err = q.CreateStaff(ctx, db.CreateStaffParams{
			Username:     username,
			PasswordHash: passwordHash,
			Role:         string(auth.RoleAdmin),
		})
		if err != nil {
			return createError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.dbStaffToModel(created), nil
}

// GetStaff retrieves a staff member by ID
func (r *Repository) GetStaff(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	row, err := r.queries.GetStaff(ctx, id)
	if err != nil {
		return nil, r.notFound(err, "failed to get staff")
	}
	return r.dbStaffToModel(row), nil
}

// GetStaffByUsername retrieves a staff member by username
func (r *Repository) GetStaffByUsername(ctx context.Context, username string) (*models.Staff, error) {
	row, err := r.queries.GetStaffByUsername(ctx, username)
	if err != nil {
		return nil, r.notFound(err, "failed to get staff by username")
	}
	return r.dbStaffToModel(row), nil
}

// CountStaff returns how many accounts exist
func (r *Repository) CountStaff(ctx context.Context) (int64, error) {
	n, err := r.queries.CountStaff(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count staff: %w", err)
	}
	return n, nil
}

// TouchLastLogin stamps the last successful login
func (r *Repository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	at = at.UTC()
	if err := r.queries.TouchLastLogin(ctx, db.TouchLastLoginParams{
		ID:          id,
		LastLoginAt: sqlutil.ToSqlTime(&at),
	}); err != nil {
		return fmt.Errorf("failed to touch last login: %w", err)
	}
	return nil
}

func createError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrUsernameTaken
	}
	return fmt.Errorf("failed to create staff: %w", err)
}

func newTxQueries(tx *sql.Tx) *db.Queries {
	return db.New(tx)
}

func (r *Repository) notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// dbStaffToModel converts a database row to the domain model
func (r *Repository) dbStaffToModel(row db.Staff) *models.Staff {
	return &models.Staff{
		ID:           row.ID,
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		Role:         auth.Role(row.Role),
		CreatedAt:    row.CreatedAt,
		LastLoginAt:  sqlutil.FromSqlTime(row.LastLoginAt),
	}
}
