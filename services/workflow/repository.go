package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL implementation of the Storage port. The graph
// fields are stored as JSONB so a definition round-trips unchanged.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InitSchema creates the workflows table if it does not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflows (
			id          UUID PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			active      BOOLEAN NOT NULL DEFAULT FALSE,
			nodes       JSONB NOT NULL DEFAULT '[]',
			connections JSONB NOT NULL DEFAULT '{}',
			settings    JSONB,
			static_data JSONB,
			tags        JSONB NOT NULL DEFAULT '[]',
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (r *Repository) Save(ctx context.Context, wf *Workflow) error {
	nodesJSON, err := json.Marshal(wf.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	connectionsJSON, err := json.Marshal(wf.Connections)
	if err != nil {
		return fmt.Errorf("marshal connections: %w", err)
	}
	settingsJSON, err := marshalNullable(wf.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	staticDataJSON, err := marshalNullable(wf.StaticData)
	if err != nil {
		return fmt.Errorf("marshal static data: %w", err)
	}
	tags := wf.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflows (id, name, description, active, nodes, connections, settings, static_data, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name        = EXCLUDED.name,
			description = EXCLUDED.description,
			active      = EXCLUDED.active,
			nodes       = EXCLUDED.nodes,
			connections = EXCLUDED.connections,
			settings    = EXCLUDED.settings,
			static_data = EXCLUDED.static_data,
			tags        = EXCLUDED.tags,
			updated_at  = EXCLUDED.updated_at
	`, wf.ID, wf.Name, wf.Description, wf.Active, nodesJSON, connectionsJSON, settingsJSON, staticDataJSON, tagsJSON, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

const workflowColumns = `id, name, description, active, nodes, connections, settings, static_data, tags, created_at, updated_at`

// Load retrieves a workflow by id. Returns nil, nil when not found.
func (r *Repository) Load(ctx context.Context, id string) (*Workflow, error) {
	row := r.db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	wf, err := scanWorkflow(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	return wf, nil
}

func (r *Repository) LoadAll(ctx context.Context) ([]*Workflow, error) {
	rows, err := r.db.Query(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load workflows: %w", err)
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete workflow: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) Search(ctx context.Context, query string) ([]*Workflow, error) {
	pattern := "%" + query + "%"
	rows, err := r.db.Query(ctx, `
		SELECT `+workflowColumns+` FROM workflows
		WHERE name ILIKE $1
		   OR description ILIKE $1
		   OR EXISTS (
				SELECT 1 FROM jsonb_array_elements_text(tags) AS tag
				WHERE tag ILIKE $1
		   )
		ORDER BY created_at
	`, pattern)
	if err != nil {
		return nil, fmt.Errorf("search workflows: %w", err)
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

func collectWorkflows(rows pgx.Rows) ([]*Workflow, error) {
	var out []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return out, nil
}

func scanWorkflow(row pgx.Row) (*Workflow, error) {
	var wf Workflow
	var nodesJSON, connectionsJSON, tagsJSON []byte
	var settingsJSON, staticDataJSON []byte

	err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.Active,
		&nodesJSON, &connectionsJSON, &settingsJSON, &staticDataJSON, &tagsJSON,
		&wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(connectionsJSON, &wf.Connections); err != nil {
		return nil, fmt.Errorf("unmarshal connections: %w", err)
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &wf.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	if len(staticDataJSON) > 0 {
		if err := json.Unmarshal(staticDataJSON, &wf.StaticData); err != nil {
			return nil, fmt.Errorf("unmarshal static data: %w", err)
		}
	}
	if err := json.Unmarshal(tagsJSON, &wf.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return &wf, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case *Settings:
		if val == nil {
			return nil, nil
		}
	case map[string]any:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
