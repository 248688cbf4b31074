package gitrepos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

type GitRepository struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CloneURL  string    `json:"clone_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Repo) Create(ctx context.Context, name, cloneURL string) (*GitRepository, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}

	const q = `
insert into git_repositories (name, clone_url)
values ($1, $2)
returning id, name, clone_url, created_at;
`
	var g GitRepository
	err := r.db.QueryRow(ctx, q, name, cloneURL).
		Scan(&g.ID, &g.Name, &g.CloneURL, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (*GitRepository, error) {
	const q = `
select id, name, clone_url, created_at
from git_repositories
where id = $1;
`
	var g GitRepository
	err := r.db.QueryRow(ctx, q, id).
		Scan(&g.ID, &g.Name, &g.CloneURL, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *Repo) List(ctx context.Context) ([]GitRepository, error) {
	const q = `
select id, name, clone_url, created_at
from git_repositories
order by created_at desc;
`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]GitRepository, 0, 16)
	for rows.Next() {
		var g GitRepository
		if err := rows.Scan(&g.ID, &g.Name, &g.CloneURL, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
