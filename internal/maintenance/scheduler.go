package maintenance

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic cleanup against the database.
type Scheduler struct {
	db        *pgxpool.Pool
	retention time.Duration
	cron      *cron.Cron
}

func NewScheduler(db *pgxpool.Pool, purgeAfterDays int) *Scheduler {
	return &Scheduler{
		db:        db,
		retention: time.Duration(purgeAfterDays) * 24 * time.Hour,
	}
}

// Start schedules the nightly purge (12:00 AM).
func (s *Scheduler) Start() {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("0 0 0 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		n, err := s.PurgeDeletedProjects(ctx)
		if err != nil {
			log.Printf("purge failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("purged %d soft-deleted projects", n)
		}
	})
	if err != nil {
		log.Printf("Failed to create cron job: %v", err)
		return
	}

	log.Println("Cron scheduler started (purging nightly at 12:00AM)")
	c.Start()
	s.cron = c
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// PurgeDeletedProjects hard-deletes projects soft-deleted longer than the
// retention window ago, along with their variable sets, variables, and user
// bindings.
func (s *Scheduler) PurgeDeletedProjects(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	const stale = `
create temporary table stale_projects on commit drop as
select id, env_var_set_id from projects
where deleted_at is not null and deleted_at < $1;
`
	if _, err := tx.Exec(ctx, stale, cutoff); err != nil {
		return 0, fmt.Errorf("collect stale projects: %w", err)
	}

	steps := []string{
		`delete from user_project_bindings b
		 using stale_projects sp where b.project_id = sp.id;`,
		`delete from projects p
		 using stale_projects sp where p.id = sp.id;`,
		// project-level sets, plus user sets orphaned by the binding delete
		`delete from env_var_sets s
		 using stale_projects sp where s.id = sp.env_var_set_id;`,
		`delete from env_var_sets s
		 where not exists (select 1 from projects p where p.env_var_set_id = s.id)
		   and not exists (select 1 from user_project_bindings b where b.env_var_set_id = s.id);`,
	}

	var purged int64
	for i, q := range steps {
		ct, err := tx.Exec(ctx, q)
		if err != nil {
			return 0, fmt.Errorf("purge step %d: %w", i, err)
		}
		if i == 1 {
			purged = ct.RowsAffected()
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return purged, nil
}
