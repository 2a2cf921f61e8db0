package instance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	pgerrors "github.com/opst/modelflow/pkg/db/postgres/errors"
	kpgmodel "github.com/opst/modelflow/pkg/db/postgres/model"
	kpool "github.com/opst/modelflow/pkg/db/postgres/pool"
	"github.com/opst/modelflow/pkg/domain/instance"
	"github.com/opst/modelflow/pkg/domain/model"
	"github.com/opst/modelflow/pkg/domain/workflow"
	xe "github.com/opst/modelflow/pkg/errors"
)

type instancePG struct {
	pool  kpool.Pool
	newId func() (uuid.UUID, error)
	lease time.Duration
}

// DefaultLease is how long a picked instance is kept from others.
const DefaultLease = 10 * time.Minute

var _ instance.Interface = &instancePG{}

type Option func(*instancePG) *instancePG

// WithLease sets how long a picked instance is kept from others.
//
// It should be longer than the longest step of workflows.
func WithLease(d time.Duration) Option {
	return func(i *instancePG) *instancePG {
		if 0 < d {
			i.lease = d
		}
		return i
	}
}

// WithIdGenerator replaces how instance ids are generated.
func WithIdGenerator(newId func() (uuid.UUID, error)) Option {
	return func(i *instancePG) *instancePG {
		i.newId = newId
		return i
	}
}

func New(pool kpool.Pool, options ...Option) instance.Interface {
	// ids of version 7 are ordered by time, so cursors visit older instances first.
	i := &instancePG{pool: pool, newId: uuid.NewV7, lease: DefaultLease}
	for _, opt := range options {
		i = opt(i)
	}
	return i
}

var selectInstance = selectFrom("workflow_instance")

func scanInstance(row pgx.Row) (instance.Instance, error) {
	var i instance.Instance
	var wf, status string
	var wctx []byte
	if err := row.Scan(
		&i.Id, &wf, &i.ModelId, &i.State, &wctx, &status,
		&i.SuspendUntil, &i.CreatedAt, &i.UpdatedAt,
	); err != nil {
		return instance.Instance{}, err
	}

	st, err := workflow.AsStatus(status)
	if err != nil {
		return instance.Instance{}, err
	}
	i.Status = st
	i.Workflow = workflow.Name(wf)
	if err := json.Unmarshal(wctx, &i.Context); err != nil {
		return instance.Instance{}, err
	}
	return i, nil
}

func (m *instancePG) Admit(ctx context.Context, n instance.New) (instance.Instance, error) {
	return m.admit(ctx, m.pool, n)
}

func (m *instancePG) AdmitNewModel(ctx context.Context, md model.Model, n instance.New) (instance.Instance, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return instance.Instance{}, err
	}
	defer tx.Rollback(ctx)

	if err := kpgmodel.Insert(ctx, tx, md); err != nil {
		return instance.Instance{}, err
	}
	i, err := m.admit(ctx, tx, n)
	if err != nil {
		return instance.Instance{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return instance.Instance{}, err
	}
	return i, nil
}

func (m *instancePG) admit(ctx context.Context, conn kpool.Queryer, n instance.New) (instance.Instance, error) {
	id, err := m.newId()
	if err != nil {
		return instance.Instance{}, xe.Wrap(err)
	}
	wctx, err := json.Marshal(n.Context)
	if err != nil {
		return instance.Instance{}, xe.Wrap(err)
	}

	i, err := scanInstance(conn.QueryRow(
		ctx,
		`
		with "new" as (
			insert into "workflow_instance"
				("instance_id", "workflow", "model_id", "state", "context", "status")
			values ($1, $2, $3, $4, $5, $6)
			returning *
		)
		`+selectFrom("new"),
		id.String(), string(n.Workflow), n.ModelId, n.State, wctx, string(workflow.Running),
	))
	if err != nil {
		return instance.Instance{}, pgerrors.AsConflict(err, "workflow_instance", n.ModelId)
	}
	return i, nil
}

// selectFrom is selectInstance from another relation with the same columns.
func selectFrom(relation string) string {
	return `
	select
		"instance_id"::text, "workflow", "model_id", "state", "context", "status",
		"suspend_until", "created_at", "updated_at"
	from "` + relation + `"
	`
}

func (m *instancePG) Get(ctx context.Context, instanceId string) (instance.Instance, error) {
	if _, err := uuid.Parse(instanceId); err != nil {
		return instance.Instance{}, pgerrors.Missing{Table: "workflow_instance", Identity: instanceId}
	}

	i, err := scanInstance(m.pool.QueryRow(ctx, selectInstance+`where "instance_id" = $1`, instanceId))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return instance.Instance{}, pgerrors.Missing{Table: "workflow_instance", Identity: instanceId}
		}
		return instance.Instance{}, err
	}
	return i, nil
}

func (m *instancePG) Find(ctx context.Context, modelId string) ([]instance.Instance, error) {
	rows, err := m.pool.Query(
		ctx,
		selectInstance+`where "model_id" = $1 order by "created_at" desc, "instance_id" desc`,
		modelId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	instances := []instance.Instance{}
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, i)
	}
	return instances, rows.Err()
}

func (m *instancePG) PickAndStep(
	ctx context.Context,
	cursor instance.Cursor,
	task func(instance.Instance) (instance.Step, error),
) (instance.Cursor, bool, error) {
	lease := uuid.New()

	workflows := make([]string, len(cursor.Workflows))
	for n, w := range cursor.Workflows {
		workflows[n] = string(w)
	}

	picked, err := scanInstance(m.pool.QueryRow(
		ctx,
		`
		with "picked" as (
			select "instance_id" from "workflow_instance"
			where
				"status" = $1
				and "suspend_until" <= now()
				and (cardinality($2::varchar[]) = 0 or "workflow" = any($2::varchar[]))
			order by "instance_id"::text <= $3, "instance_id"
			limit 1
			for no key update skip locked
		),
		"leased" as (
			update "workflow_instance"
			set
				"lease" = $4,
				"suspend_until" = now() + $5 * interval '1 millisecond'
			where "instance_id" in (select "instance_id" from "picked")
			returning *
		)
		`+selectFrom("leased"),
		string(workflow.Running), workflows, cursor.Head,
		lease.String(), m.lease.Milliseconds(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cursor, false, nil
		}
		return cursor, false, err
	}

	// cursor is moved!
	cursor = instance.Cursor{Head: picked.Id, Workflows: cursor.Workflows}

	step, err := task(picked)
	if err != nil {
		// make it due again, so that the state is re-entered in a later cycle.
		if _, rerr := m.pool.Exec(
			context.WithoutCancel(ctx),
			`
			update "workflow_instance"
			set "lease" = null, "suspend_until" = now()
			where "instance_id" = $1 and "lease" = $2
			`,
			picked.Id, lease.String(),
		); rerr != nil {
			return cursor, false, errors.Join(err, rerr)
		}
		return cursor, false, err
	}

	wctx, err := json.Marshal(step.Context)
	if err != nil {
		return cursor, false, xe.Wrap(err)
	}
	ctag, err := m.pool.Exec(
		ctx,
		`
		update "workflow_instance"
		set
			"state" = $3,
			"context" = $4,
			"status" = $5,
			"suspend_until" = now() + $6 * interval '1 millisecond',
			"lease" = null,
			"updated_at" = now()
		where "instance_id" = $1 and "lease" = $2
		`,
		picked.Id, lease.String(), step.State, wctx, string(step.Status),
		max(step.Wait, 0).Milliseconds(),
	)
	if err != nil {
		return cursor, false, err
	}
	if ctag.RowsAffected() == 0 {
		return cursor, false, instance.ErrLeaseExpired
	}
	return cursor, true, nil
}
