package projects

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EnvVarScope selects which variable set an operation works on: the project's
// own set, or the per-user set attached to the caller's project binding.
type EnvVarScope string

const (
	ScopeProject EnvVarScope = "project"
	ScopeUser    EnvVarScope = "user"
)

// envVarNameRe is the POSIX environment-variable identifier grammar.
var envVarNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type EnvVarCreate struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EnvVarUpdate changes only the fields that are supplied. An entry with
// neither field is a no-op, though its external id must still resolve.
type EnvVarUpdate struct {
	ExternalID string  `json:"id"`
	Name       *string `json:"name,omitempty"`
	Value      *string `json:"value,omitempty"`
}

type UpdateEnvVarsArgs struct {
	UserID          int64
	ProjectPublicID string
	Delete          []string
	Create          []EnvVarCreate
	Update          []EnvVarUpdate
	Scope           EnvVarScope
}

// fieldChange is one single-column update keyed by internal row id.
type fieldChange struct {
	id  int64
	val string
}

// UpdateEnvironmentVariables reconciles the variable set selected by
// args.Scope against the given delete/create/update lists. All resolution and
// validation happens before any mutation, so a failing call leaves the set
// untouched; atomicity of the mutations themselves is the caller's transaction
// boundary (pass a pgx.Tx as the store's handle).
func (s *Store) UpdateEnvironmentVariables(ctx context.Context, args UpdateEnvVarsArgs) error {
	project, projectVars, err := s.GetByPublicID(ctx, args.ProjectPublicID)
	if err != nil {
		return err
	}

	var setID int64
	var vars []EnvVar
	switch args.Scope {
	case ScopeUser:
		setID, err = s.ensureUserEnvVarSet(ctx, args.UserID, project.ID)
		if err != nil {
			return err
		}
		vars, err = s.envVarsInSet(ctx, setID)
		if err != nil {
			return err
		}
	case ScopeProject:
		setID = project.EnvVarSetID
		vars = projectVars
	default:
		return fmt.Errorf("%w: unknown env var scope %q", ErrInvalidInput, args.Scope)
	}

	byExternalID := make(map[string]EnvVar, len(vars))
	for _, v := range vars {
		byExternalID[v.ExternalID] = v
	}

	deleteIDs := make([]int64, 0, len(args.Delete))
	inDelete := make(map[string]bool, len(args.Delete))
	for _, extID := range args.Delete {
		v, ok := byExternalID[extID]
		if !ok {
			return fmt.Errorf("%w: variable with id %q not found", ErrInvalidInput, extID)
		}
		deleteIDs = append(deleteIDs, v.ID)
		inDelete[extID] = true
	}

	renames, revalues, err := partitionUpdates(args.Update, byExternalID, inDelete)
	if err != nil {
		return err
	}

	for _, rn := range renames {
		if err := validateEnvVarName(rn.val); err != nil {
			return err
		}
	}
	for _, cr := range args.Create {
		if err := validateEnvVarName(cr.Name); err != nil {
			return err
		}
	}

	batch := &pgx.Batch{}
	if len(deleteIDs) > 0 {
		batch.Queue(`delete from env_vars where id = any($1);`, deleteIDs)
	}
	for _, rn := range renames {
		batch.Queue(`update env_vars set name = $2 where id = $1;`, rn.id, rn.val)
	}
	for _, rv := range revalues {
		batch.Queue(`update env_vars set value = $2 where id = $1;`, rv.id, rv.val)
	}
	for _, cr := range args.Create {
		batch.Queue(
			`insert into env_vars (external_id, name, value, env_var_set_id) values ($1, $2, $3, $4);`,
			uuid.NewString(), cr.Name, cr.Value, setID,
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.db.SendBatch(ctx, batch).Close()
}

// EnvVarsForScope lists the variables of the selected set. At user scope the
// binding (and its empty set) is created on first access.
func (s *Store) EnvVarsForScope(ctx context.Context, userID int64, projectPublicID string, scope EnvVarScope) ([]EnvVar, error) {
	project, projectVars, err := s.GetByPublicID(ctx, projectPublicID)
	if err != nil {
		return nil, err
	}

	switch scope {
	case ScopeUser:
		setID, err := s.ensureUserEnvVarSet(ctx, userID, project.ID)
		if err != nil {
			return nil, err
		}
		return s.envVarsInSet(ctx, setID)
	case ScopeProject:
		return projectVars, nil
	default:
		return nil, fmt.Errorf("%w: unknown env var scope %q", ErrInvalidInput, scope)
	}
}

// partitionUpdates splits update entries into rename and re-value changes
// keyed by internal id. An entry supplying both fields lands in both lists;
// one supplying neither is dropped. Ids must resolve and must not also be
// scheduled for deletion.
func partitionUpdates(updates []EnvVarUpdate, byExternalID map[string]EnvVar, inDelete map[string]bool) (renames, revalues []fieldChange, err error) {
	for _, u := range updates {
		v, ok := byExternalID[u.ExternalID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: variable with id %q not found", ErrInvalidInput, u.ExternalID)
		}
		if inDelete[u.ExternalID] {
			return nil, nil, fmt.Errorf("%w: variable with id %q appears in both delete and update", ErrInvalidInput, u.ExternalID)
		}
		if u.Name != nil {
			renames = append(renames, fieldChange{id: v.ID, val: *u.Name})
		}
		if u.Value != nil {
			revalues = append(revalues, fieldChange{id: v.ID, val: *u.Value})
		}
	}
	return renames, revalues, nil
}

func validateEnvVarName(name string) error {
	if !envVarNameRe.MatchString(name) {
		return fmt.Errorf("%w: invalid environment variable name %q, must match %s", ErrInvalidInput, name, envVarNameRe.String())
	}
	return nil
}

// ensureUserEnvVarSet returns the env var set bound to (userID, projectID),
// creating the binding and an empty set on first access. The claim is a single
// upsert keyed on the unique pair, so two concurrent first accesses converge
// on one set; the loser's freshly created set is removed.
func (s *Store) ensureUserEnvVarSet(ctx context.Context, userID, projectID int64) (int64, error) {
	const sel = `
select env_var_set_id from user_project_bindings
where user_id = $1 and project_id = $2;
`
	var setID int64
	err := s.db.QueryRow(ctx, sel, userID, projectID).Scan(&setID)
	if err == nil {
		return setID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	newSetID, err := s.createEnvVarSet(ctx)
	if err != nil {
		return 0, err
	}

	const upsert = `
insert into user_project_bindings (user_id, project_id, env_var_set_id)
values ($1, $2, $3)
on conflict (user_id, project_id) do update set project_id = excluded.project_id
returning env_var_set_id;
`
	if err := s.db.QueryRow(ctx, upsert, userID, projectID, newSetID).Scan(&setID); err != nil {
		return 0, err
	}
	if setID != newSetID {
		// lost the race; drop the orphan set
		if _, err := s.db.Exec(ctx, `delete from env_var_sets where id = $1;`, newSetID); err != nil {
			return 0, err
		}
	}
	return setID, nil
}
