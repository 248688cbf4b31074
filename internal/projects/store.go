package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DB is the subset of pgx operations the store needs. Both *pgxpool.Pool and
// pgx.Tx satisfy it, so the caller decides the transaction boundary.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store runs all project and environment-variable operations against a single
// data-access handle.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

type Project struct {
	ID              int64     `json:"-"`
	PublicID        string    `json:"public_id"`
	Name            string    `json:"name"`
	RootDirPath     string    `json:"root_dir_path"`
	GitRepositoryID int64     `json:"git_repository_id"`
	EnvVarSetID     int64     `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type EnvVar struct {
	ID         int64  `json:"-"`
	ExternalID string `json:"id"`
	Name       string `json:"name"`
	Value      string `json:"value"`
}

type CreateProjectArgs struct {
	GitRepositoryID int64
	RootDirPath     string
	Name            string
}

// CreateProject inserts an empty environment-variable set and a project row
// referencing it. The git repository must already exist; a missing one
// surfaces as the storage layer's foreign-key violation.
func (s *Store) CreateProject(ctx context.Context, args CreateProjectArgs) (*Project, error) {
	if args.Name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidInput)
	}

	setID, err := s.createEnvVarSet(ctx)
	if err != nil {
		return nil, err
	}

	// Retrying an insert after a unique violation would poison the caller's
	// transaction, so collisions are screened out before inserting; the unique
	// constraint still backs the residual race.
	for i := 0; i < 5; i++ {
		publicID, err := NewPublicID("appforge")
		if err != nil {
			return nil, err
		}

		var taken bool
		if err := s.db.QueryRow(ctx, `select exists(select 1 from projects where public_id = $1);`, publicID).Scan(&taken); err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		const q = `
insert into projects (public_id, git_repository_id, env_var_set_id, root_dir_path, name)
values ($1, $2, $3, $4, $5)
returning id, public_id, name, root_dir_path, git_repository_id, env_var_set_id, created_at, updated_at;
`
		var p Project
		err = s.db.QueryRow(ctx, q, publicID, args.GitRepositoryID, setID, args.RootDirPath, args.Name).
			Scan(&p.ID, &p.PublicID, &p.Name, &p.RootDirPath, &p.GitRepositoryID, &p.EnvVarSetID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}

	return nil, fmt.Errorf("failed to generate unique project id")
}

func (s *Store) createEnvVarSet(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `insert into env_var_sets default values returning id;`).Scan(&id)
	return id, err
}

// GetByPublicID resolves a project by its public identifier together with the
// variables of its project-level set.
func (s *Store) GetByPublicID(ctx context.Context, publicID string) (*Project, []EnvVar, error) {
	const q = `
select id, public_id, name, root_dir_path, git_repository_id, env_var_set_id, created_at, updated_at
from projects
where public_id = $1 and deleted_at is null;
`
	var p Project
	err := s.db.QueryRow(ctx, q, publicID).
		Scan(&p.ID, &p.PublicID, &p.Name, &p.RootDirPath, &p.GitRepositoryID, &p.EnvVarSetID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: project %q", ErrNotFound, publicID)
		}
		return nil, nil, err
	}

	vars, err := s.envVarsInSet(ctx, p.EnvVarSetID)
	if err != nil {
		return nil, nil, err
	}
	return &p, vars, nil
}

// List returns all non-deleted projects, newest first.
func (s *Store) List(ctx context.Context) ([]Project, error) {
	const q = `
select id, public_id, name, root_dir_path, git_repository_id, env_var_set_id, created_at, updated_at
from projects
where deleted_at is null
order by created_at desc;
`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Project, 0, 16)
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.PublicID, &p.Name, &p.RootDirPath, &p.GitRepositoryID, &p.EnvVarSetID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SoftDelete marks a project as deleted; the maintenance job purges it later.
func (s *Store) SoftDelete(ctx context.Context, publicID string) (bool, error) {
	const q = `
update projects
set deleted_at = now(), updated_at = now()
where public_id = $1 and deleted_at is null;
`
	ct, err := s.db.Exec(ctx, q, publicID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) envVarsInSet(ctx context.Context, setID int64) ([]EnvVar, error) {
	const q = `
select id, external_id, name, value
from env_vars
where env_var_set_id = $1
order by id;
`
	rows, err := s.db.Query(ctx, q, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]EnvVar, 0, 8)
	for rows.Next() {
		var v EnvVar
		if err := rows.Scan(&v.ID, &v.ExternalID, &v.Name, &v.Value); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
