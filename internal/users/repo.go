package users

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

type UpsertUser struct {
	Subject     string
	Email       string
	DisplayName string
}

// EnsureUser upserts a user row keyed by the platform-issued subject and
// returns its numeric id.
func (r *Repo) EnsureUser(ctx context.Context, u UpsertUser) (int64, error) {
	if u.Subject == "" {
		return 0, fmt.Errorf("subject required")
	}

	const q = `
insert into users (subject, email, display_name, updated_at)
values ($1, nullif($2,''), nullif($3,''), now())
on conflict (subject) do update
set
  email = coalesce(excluded.email, users.email),
  display_name = coalesce(excluded.display_name, users.display_name),
  updated_at = now()
returning id;
`
	var id int64
	if err := r.db.QueryRow(ctx, q, u.Subject, u.Email, u.DisplayName).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
