package projects

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge-dev/appforge-backend/internal/gitrepos"
	"github.com/appforge-dev/appforge-backend/internal/storage/postgres"
	"github.com/appforge-dev/appforge-backend/internal/users"
)

// setupDB connects to TEST_DATABASE_URL, ensures the schema, and truncates all
// tables. Tests are skipped when no database is configured.
func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.EnsureSchema(ctx, pool))

	_, err = pool.Exec(ctx, `
truncate user_project_bindings, env_vars, projects, env_var_sets, git_repositories, users
restart identity cascade;`)
	require.NoError(t, err)

	return pool
}

func createTestProject(t *testing.T, pool *pgxpool.Pool) *Project {
	t.Helper()
	ctx := context.Background()

	repo, err := gitrepos.NewRepo(pool).Create(ctx, "demo", "https://example.com/demo.git")
	require.NoError(t, err)

	p, err := NewStore(pool).CreateProject(ctx, CreateProjectArgs{
		GitRepositoryID: repo.ID,
		RootDirPath:     "/srv/demo",
		Name:            "demo",
	})
	require.NoError(t, err)
	return p
}

func TestCreateProject(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	p := createTestProject(t, pool)
	assert.Regexp(t, `^appforge-\d{5}-\d{4}$`, p.PublicID)
	assert.NotZero(t, p.ID)
	assert.NotZero(t, p.EnvVarSetID)

	// the owned set starts empty
	got, vars, err := NewStore(pool).GetByPublicID(ctx, p.PublicID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Empty(t, vars)
}

func TestReconcileUnknownProject(t *testing.T) {
	pool := setupDB(t)

	err := NewStore(pool).UpdateEnvironmentVariables(context.Background(), UpdateEnvVarsArgs{
		ProjectPublicID: "appforge-00000-0000",
		Scope:           ScopeProject,
		Create:          []EnvVarCreate{{Name: "FOO", Value: "1"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcileLifecycle(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	store := NewStore(pool)

	p := createTestProject(t, pool)

	// create FOO=1
	err := store.UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		ProjectPublicID: p.PublicID,
		Scope:           ScopeProject,
		Create:          []EnvVarCreate{{Name: "FOO", Value: "1"}},
	})
	require.NoError(t, err)

	_, vars, err := store.GetByPublicID(ctx, p.PublicID)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, "FOO", vars[0].Name)
	assert.Equal(t, "1", vars[0].Value)
	assert.NotEmpty(t, vars[0].ExternalID)

	extID := vars[0].ExternalID

	// delete it
	err = store.UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		ProjectPublicID: p.PublicID,
		Scope:           ScopeProject,
		Delete:          []string{extID},
	})
	require.NoError(t, err)

	_, vars, err = store.GetByPublicID(ctx, p.PublicID)
	require.NoError(t, err)
	assert.Empty(t, vars)

	// deleting it again fails: the id no longer resolves
	err = store.UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		ProjectPublicID: p.PublicID,
		Scope:           ScopeProject,
		Delete:          []string{extID},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReconcileRenameAndRevalue(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	store := NewStore(pool)

	p := createTestProject(t, pool)

	require.NoError(t, store.UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		ProjectPublicID: p.PublicID,
		Scope:           ScopeProject,
		Create:          []EnvVarCreate{{Name: "FOO", Value: "1"}},
	}))

	_, vars, err := store.GetByPublicID(ctx, p.PublicID)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	extID := vars[0].ExternalID

	// one entry supplying both fields renames and re-values
	require.NoError(t, store.UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		ProjectPublicID: p.PublicID,
		Scope:           ScopeProject,
		Update:          []EnvVarUpdate{{ExternalID: extID, Name: strp("BAR"), Value: strp("2")}},
	}))

	_, vars, err = store.GetByPublicID(ctx, p.PublicID)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, "BAR", vars[0].Name)
	assert.Equal(t, "2", vars[0].Value)
	assert.Equal(t, extID, vars[0].ExternalID)
}

func TestReconcileValidationLeavesSetUntouched(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	store := NewStore(pool)

	p := createTestProject(t, pool)

	// one valid and one invalid name: nothing is applied
	err := store.UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		ProjectPublicID: p.PublicID,
		Scope:           ScopeProject,
		Create: []EnvVarCreate{
			{Name: "GOOD", Value: "1"},
			{Name: "1BAD", Value: "2"},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, vars, err := store.GetByPublicID(ctx, p.PublicID)
	require.NoError(t, err)
	assert.Empty(t, vars)

	// unknown delete id alongside a valid create: same outcome
	err = store.UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		ProjectPublicID: p.PublicID,
		Scope:           ScopeProject,
		Delete:          []string{"no-such-id"},
		Create:          []EnvVarCreate{{Name: "GOOD", Value: "1"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, vars, err = store.GetByPublicID(ctx, p.PublicID)
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestUserScopeIsolation(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	store := NewStore(pool)
	userRepo := users.NewRepo(pool)

	p := createTestProject(t, pool)

	alice, err := userRepo.EnsureUser(ctx, users.UpsertUser{Subject: "alice"})
	require.NoError(t, err)
	bob, err := userRepo.EnsureUser(ctx, users.UpsertUser{Subject: "bob"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		UserID:          alice,
		ProjectPublicID: p.PublicID,
		Scope:           ScopeUser,
		Create:          []EnvVarCreate{{Name: "TOKEN", Value: "alice-secret"}},
	}))

	aliceVars, err := store.EnvVarsForScope(ctx, alice, p.PublicID, ScopeUser)
	require.NoError(t, err)
	require.Len(t, aliceVars, 1)

	bobVars, err := store.EnvVarsForScope(ctx, bob, p.PublicID, ScopeUser)
	require.NoError(t, err)
	assert.Empty(t, bobVars)

	projectVars, err := store.EnvVarsForScope(ctx, alice, p.PublicID, ScopeProject)
	require.NoError(t, err)
	assert.Empty(t, projectVars)
}

func TestUserScopeGetOrCreateIsStable(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	store := NewStore(pool)
	userRepo := users.NewRepo(pool)

	p := createTestProject(t, pool)

	alice, err := userRepo.EnsureUser(ctx, users.UpsertUser{Subject: "alice"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		UserID:          alice,
		ProjectPublicID: p.PublicID,
		Scope:           ScopeUser,
		Create:          []EnvVarCreate{{Name: "TOKEN", Value: "v1"}},
	}))

	vars, err := store.EnvVarsForScope(ctx, alice, p.PublicID, ScopeUser)
	require.NoError(t, err)
	require.Len(t, vars, 1)

	// the second call lands on the same set: the var is updatable by id
	require.NoError(t, store.UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		UserID:          alice,
		ProjectPublicID: p.PublicID,
		Scope:           ScopeUser,
		Update:          []EnvVarUpdate{{ExternalID: vars[0].ExternalID, Value: strp("v2")}},
	}))

	vars, err = store.EnvVarsForScope(ctx, alice, p.PublicID, ScopeUser)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, "v2", vars[0].Value)
}

func TestUnknownScopeRejected(t *testing.T) {
	pool := setupDB(t)

	p := createTestProject(t, pool)

	err := NewStore(pool).UpdateEnvironmentVariables(context.Background(), UpdateEnvVarsArgs{
		ProjectPublicID: p.PublicID,
		Scope:           EnvVarScope("team"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
