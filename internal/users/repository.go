package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrMissingOpenID rejects upserts without an identity key.
	ErrMissingOpenID        = errors.New("users: openId is required for upsert")
	errMissingConnections   = errors.New("users: connection provider is required")
	noOpLogger              = zap.NewNop()
	timestampColumnsOnWrite = []string{"created_at", "updated_at"}
)

const (
	opRepositoryNew = "users.repository.new"
	opUpsert        = "users.upsert"
	opGet           = "users.get"
)

// RepositoryError carries a stable code alongside the underlying cause.
type RepositoryError struct {
	code string
	err  error
}

func (e *RepositoryError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *RepositoryError) Unwrap() error {
	return e.err
}

func (e *RepositoryError) Code() string {
	return e.code
}

func newRepositoryError(operation, reason string, cause error) error {
	return &RepositoryError{code: operation + "." + reason, err: cause}
}

// ConnectionProvider yields a database handle or an error when none is available.
type ConnectionProvider interface {
	Acquire(ctx context.Context) (*gorm.DB, error)
}

// RepositoryConfig describes the dependencies of the user repository.
type RepositoryConfig struct {
	Connections ConnectionProvider
	// OwnerOpenID receives RoleAdmin when an upsert supplies no role.
	OwnerOpenID string
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Repository upserts and reads users by open id.
type Repository struct {
	connections ConnectionProvider
	ownerOpenID string
	clock       func() time.Time
	logger      *zap.Logger
}

// NewRepository constructs the repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Connections == nil {
		return nil, newRepositoryError(opRepositoryNew, "missing_connections", errMissingConnections)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Repository{
		connections: cfg.Connections,
		ownerOpenID: cfg.OwnerOpenID,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Upsert inserts the user or, when the open id already exists, updates exactly the
// supplied fields. Without a database it logs a warning and does nothing.
func (r *Repository) Upsert(ctx context.Context, input UserInput) error {
	if input.OpenID == "" {
		return newRepositoryError(opUpsert, "missing_open_id", ErrMissingOpenID)
	}

	db, err := r.connections.Acquire(ctx)
	if err != nil {
		r.logger.Warn("cannot upsert user: database not available", zap.Error(err))
		return nil
	}

	now := r.clock().UTC()
	plan := planUpsert(input, r.ownerOpenID, now)

	insertColumns := append(append([]string{}, plan.columns...), timestampColumnsOnWrite...)
	updateColumns := append(append([]string{}, plan.columns...), "updated_at")

	err = db.
		Select(insertColumns).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "open_id"}},
			DoUpdates: clause.AssignmentColumns(updateColumns),
		}).
		Create(&plan.row).
		Error
	if err != nil {
		r.logger.Error("failed to upsert user", zap.String("open_id", input.OpenID), zap.Error(err))
		return newRepositoryError(opUpsert, "write_failed", err)
	}
	return nil
}

// GetByOpenID returns the user with the given open id. Both a missing database and
// a missing row yield (nil, nil).
func (r *Repository) GetByOpenID(ctx context.Context, openID string) (*User, error) {
	db, err := r.connections.Acquire(ctx)
	if err != nil {
		r.logger.Warn("cannot get user: database not available", zap.Error(err))
		return nil, nil
	}

	var found []User
	if err := db.Where("open_id = ?", openID).Limit(1).Find(&found).Error; err != nil {
		r.logger.Error("failed to get user", zap.String("open_id", openID), zap.Error(err))
		return nil, newRepositoryError(opGet, "read_failed", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// upsertPlan is the row to write together with the columns that belong to the
// shared insert/update value set.
type upsertPlan struct {
	row     User
	columns []string
}

func planUpsert(input UserInput, ownerOpenID string, now time.Time) upsertPlan {
	plan := upsertPlan{
		row: User{
			OpenID:       input.OpenID,
			LastSignedIn: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		columns: []string{"open_id", "last_signed_in"},
	}
	if input.LastSignedIn != nil {
		plan.row.LastSignedIn = input.LastSignedIn.UTC()
	}

	if input.Name != nil {
		plan.row.Name = input.Name
		plan.columns = append(plan.columns, "name")
	}
	if input.Email != nil {
		plan.row.Email = input.Email
		plan.columns = append(plan.columns, "email")
	}
	if input.LoginMethod != nil {
		plan.row.LoginMethod = input.LoginMethod
		plan.columns = append(plan.columns, "login_method")
	}

	switch {
	case input.Role != nil:
		plan.row.Role = input.Role
		plan.columns = append(plan.columns, "role")
	case ownerOpenID != "" && input.OpenID == ownerOpenID:
		role := RoleAdmin
		plan.row.Role = &role
		plan.columns = append(plan.columns, "role")
	}

	return plan
}
