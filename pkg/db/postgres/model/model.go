package model

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	pgerrors "github.com/opst/modelflow/pkg/db/postgres/errors"
	kpool "github.com/opst/modelflow/pkg/db/postgres/pool"
	"github.com/opst/modelflow/pkg/domain/model"
	"github.com/opst/modelflow/pkg/domain/workflow"
	xe "github.com/opst/modelflow/pkg/errors"
)

type modelPG struct {
	pool kpool.Pool
}

var _ model.Interface = &modelPG{}

func New(pool kpool.Pool) model.Interface {
	return &modelPG{pool: pool}
}

func (m *modelPG) Create(ctx context.Context, md model.Model) error {
	return Insert(ctx, m.pool, md)
}

// Insert a model record with conn.
//
// # Returns
//
// - error: domain.ErrConflict when a model with the same id exists.
func Insert(ctx context.Context, conn kpool.Queryer, md model.Model) error {
	spec, err := json.Marshal(md.Spec)
	if err != nil {
		return xe.Wrap(err)
	}

	if _, err := conn.Exec(
		ctx,
		`
		insert into "model" ("model_id", "name", "status", "spec", "endpoint", "failure_reason")
		values ($1, $2, $3, $4, $5, $6)
		`,
		md.Id, md.Name, md.Status.String(), spec, md.Endpoint, md.FailureReason,
	); err != nil {
		return pgerrors.AsConflict(err, "model", md.Id)
	}
	return nil
}

const selectModel = `
	select
		"model_id", "name", "status", "spec", "endpoint", "failure_reason", "updated_at"
	from "model"
`

func scanModel(row pgx.Row) (model.Model, error) {
	var md model.Model
	var status string
	var spec []byte
	if err := row.Scan(
		&md.Id, &md.Name, &status, &spec, &md.Endpoint, &md.FailureReason, &md.UpdatedAt,
	); err != nil {
		return model.Model{}, err
	}

	st, err := model.AsStatus(status)
	if err != nil {
		return model.Model{}, err
	}
	md.Status = st
	if err := json.Unmarshal(spec, &md.Spec); err != nil {
		return model.Model{}, err
	}
	return md, nil
}

func (m *modelPG) Get(ctx context.Context, modelId string) (model.Model, error) {
	md, err := scanModel(m.pool.QueryRow(ctx, selectModel+`where "model_id" = $1`, modelId))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Model{}, pgerrors.Missing{Table: "model", Identity: modelId}
		}
		return model.Model{}, err
	}
	return md, nil
}

func (m *modelPG) List(ctx context.Context) ([]model.Model, error) {
	rows, err := m.pool.Query(ctx, selectModel+`order by "model_id"`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	models := []model.Model{}
	for rows.Next() {
		md, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, md)
	}
	return models, rows.Err()
}

// update runs a single row update and reports missing when nothing is updated.
func (m *modelPG) update(ctx context.Context, modelId string, sql string, args ...any) error {
	ctag, err := m.pool.Exec(ctx, sql, append([]any{modelId}, args...)...)
	if err != nil {
		return err
	}
	if ctag.RowsAffected() == 0 {
		return pgerrors.Missing{Table: "model", Identity: modelId}
	}
	return nil
}

func (m *modelPG) SetStatus(ctx context.Context, modelId string, status model.Status, reason string) error {
	if status != model.Failed {
		reason = ""
	}
	return m.update(
		ctx, modelId,
		`
		update "model"
		set "status" = $2, "failure_reason" = $3, "updated_at" = now()
		where "model_id" = $1
		`,
		status.String(), reason,
	)
}

func (m *modelPG) SetEndpoint(ctx context.Context, modelId string, endpoint string) error {
	return m.update(
		ctx, modelId,
		`
		update "model"
		set "endpoint" = $2, "updated_at" = now()
		where "model_id" = $1
		`,
		endpoint,
	)
}

func (m *modelPG) SetCapacity(ctx context.Context, modelId string, capacity model.Capacity) error {
	c, err := json.Marshal(capacity)
	if err != nil {
		return xe.Wrap(err)
	}
	return m.update(
		ctx, modelId,
		`
		update "model"
		set "spec" = jsonb_set("spec", '{capacity}', $2::jsonb), "updated_at" = now()
		where "model_id" = $1
		`,
		c,
	)
}

func (m *modelPG) Delete(ctx context.Context, modelId string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// locking the model blocks admissions of new instances until the end.
	var running bool
	if err := tx.QueryRow(
		ctx,
		`
		select exists (
			select 1 from "workflow_instance"
			where "model_id" = $1 and "status" = $2
		)
		from "model"
		where "model_id" = $1
		for update
		`,
		modelId, string(workflow.Running),
	).Scan(&running); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pgerrors.Missing{Table: "model", Identity: modelId}
		}
		return err
	}
	if running {
		return pgerrors.NewConflict(
			"model", modelId, errors.New("it has a running workflow instance"),
		)
	}

	if _, err := tx.Exec(ctx, `delete from "model" where "model_id" = $1`, modelId); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
