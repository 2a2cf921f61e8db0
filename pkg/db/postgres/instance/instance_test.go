package instance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	kpginstance "github.com/opst/modelflow/pkg/db/postgres/instance"
	kpgmodel "github.com/opst/modelflow/pkg/db/postgres/model"
	"github.com/opst/modelflow/pkg/db/postgres/pool/testenv"
	"github.com/opst/modelflow/pkg/domain"
	"github.com/opst/modelflow/pkg/domain/instance"
	"github.com/opst/modelflow/pkg/domain/model"
	"github.com/opst/modelflow/pkg/domain/workflow"
	"github.com/opst/modelflow/pkg/utils/try"
)

func TestInstance(t *testing.T) {
	ctx := context.Background()
	pool := testenv.GetPool(ctx, t)
	models := kpgmodel.New(pool)
	testee := kpginstance.New(pool)

	for _, id := range []string{"model-1", "model-2"} {
		if err := models.Create(ctx, model.Model{Id: id, Name: id, Status: model.Creating}); err != nil {
			t.Fatal(err)
		}
	}

	first := try.To(testee.Admit(ctx, instance.New{
		Workflow: "create-model", ModelId: "model-1", State: "Start",
		Context: workflow.NewContext("model-1").WithFlag(workflow.FieldCreateInfra, true),
	})).OrFatal(t)

	t.Run("admitted instance is running", func(t *testing.T) {
		actual := try.To(testee.Get(ctx, first.Id)).OrFatal(t)
		if actual.Status != workflow.Running || actual.State != "Start" || actual.Workflow != "create-model" {
			t.Errorf("unexpected instance: %+v", actual)
		}
		if !actual.Context.Flag(workflow.FieldCreateInfra) {
			t.Errorf("context is lost: %+v", actual.Context)
		}
	})

	t.Run("a model can not have two running instances", func(t *testing.T) {
		_, err := testee.Admit(ctx, instance.New{
			Workflow: "update-model", ModelId: "model-1", State: "Start",
			Context: workflow.NewContext("model-1"),
		})
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing instance", func(t *testing.T) {
		if _, err := testee.Get(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, domain.ErrMissing) {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := testee.Get(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrMissing) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("PickAndStep saves the step and suspends the instance", func(t *testing.T) {
		cursor, ok, err := testee.PickAndStep(
			ctx, instance.Cursor{},
			func(i instance.Instance) (instance.Step, error) {
				if i.Id != first.Id {
					t.Errorf("unexpected instance is picked: %+v", i)
				}
				return instance.Step{
					State: "Poll", Context: i.Context.Stepped(), Status: workflow.Running, Wait: time.Hour,
				}, nil
			},
		)
		if err != nil || !ok {
			t.Fatalf("ok, err = %v, %v", ok, err)
		}
		if cursor.Head != first.Id {
			t.Errorf("cursor: %+v", cursor)
		}

		actual := try.To(testee.Get(ctx, first.Id)).OrFatal(t)
		if actual.State != "Poll" || actual.Context.Version() != 1 {
			t.Errorf("unexpected instance: %+v", actual)
		}
		if !actual.SuspendUntil.After(time.Now().Add(50 * time.Minute)) {
			t.Errorf("not suspended: %s", actual.SuspendUntil)
		}

		// suspended instance is not picked.
		_, ok, err = testee.PickAndStep(ctx, cursor, func(i instance.Instance) (instance.Step, error) {
			t.Errorf("suspended instance is picked: %+v", i)
			return instance.Step{}, nil
		})
		if err != nil || ok {
			t.Errorf("ok, err = %v, %v", ok, err)
		}
	})

	t.Run("task error does not change the instance", func(t *testing.T) {
		second := try.To(testee.Admit(ctx, instance.New{
			Workflow: "create-model", ModelId: "model-2", State: "Start",
			Context: workflow.NewContext("model-2"),
		})).OrFatal(t)

		expected := errors.New("fake error")
		_, ok, err := testee.PickAndStep(ctx, instance.Cursor{}, func(instance.Instance) (instance.Step, error) {
			return instance.Step{}, expected
		})
		if !errors.Is(err, expected) || ok {
			t.Errorf("ok, err = %v, %v", ok, err)
		}

		actual := try.To(testee.Get(ctx, second.Id)).OrFatal(t)
		if actual.State != "Start" || actual.Status != workflow.Running {
			t.Errorf("unexpected instance: %+v", actual)
		}

		// terminal instance releases the model.
		_, ok, err = testee.PickAndStep(ctx, instance.Cursor{}, func(i instance.Instance) (instance.Step, error) {
			return instance.Step{State: "Done", Context: i.Context, Status: workflow.Succeeded}, nil
		})
		if err != nil || !ok {
			t.Fatalf("ok, err = %v, %v", ok, err)
		}
		if _, err := testee.Admit(ctx, instance.New{
			Workflow: "update-model", ModelId: "model-2", State: "Start",
			Context: workflow.NewContext("model-2"),
		}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}

		found := try.To(testee.Find(ctx, "model-2")).OrFatal(t)
		if len(found) != 2 || found[1].Id != second.Id {
			t.Errorf("unexpected instances: %+v", found)
		}
	})
}

func TestInstance_AdmitNewModel(t *testing.T) {
	ctx := context.Background()
	pool := testenv.GetPool(ctx, t)
	models := kpgmodel.New(pool)
	testee := kpginstance.New(pool)

	newModel := func(id string) model.Model {
		return model.Model{Id: id, Name: id, Status: model.Creating}
	}
	start := func(id string) instance.New {
		return instance.New{
			Workflow: "create-model", ModelId: id, State: "Start",
			Context: workflow.NewContext(id),
		}
	}

	t.Run("it creates the model with a running instance", func(t *testing.T) {
		inst := try.To(testee.AdmitNewModel(ctx, newModel("model-1"), start("model-1"))).OrFatal(t)
		if inst.Status != workflow.Running || inst.ModelId != "model-1" {
			t.Errorf("unexpected instance: %+v", inst)
		}
		if _, err := models.Get(ctx, "model-1"); err != nil {
			t.Errorf("model is not created: %v", err)
		}
	})

	t.Run("an existing model conflicts", func(t *testing.T) {
		_, err := testee.AdmitNewModel(ctx, newModel("model-1"), start("model-1"))
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("when the instance is not admitted, the model is not created", func(t *testing.T) {
		// the instance refers another model which does not exist.
		if _, err := testee.AdmitNewModel(ctx, newModel("model-2"), start("model-x")); err == nil {
			t.Fatal("it should fail")
		}
		if _, err := models.Get(ctx, "model-2"); !errors.Is(err, domain.ErrMissing) {
			t.Errorf("model is left: %v", err)
		}
	})
}

func TestInstance_Lease(t *testing.T) {
	ctx := context.Background()
	pool := testenv.GetPool(ctx, t)
	models := kpgmodel.New(pool)

	if err := models.Create(ctx, model.Model{Id: "model-1", Name: "model-1", Status: model.Creating}); err != nil {
		t.Fatal(err)
	}
	admitted := try.To(kpginstance.New(pool).Admit(ctx, instance.New{
		Workflow: "create-model", ModelId: "model-1", State: "Start",
		Context: workflow.NewContext("model-1"),
	})).OrFatal(t)

	t.Run("a leased instance is not picked by others while the task runs", func(t *testing.T) {
		testee := kpginstance.New(pool)
		other := kpginstance.New(pool)

		_, ok, err := testee.PickAndStep(ctx, instance.Cursor{}, func(i instance.Instance) (instance.Step, error) {
			_, picked, err := other.PickAndStep(ctx, instance.Cursor{}, func(i instance.Instance) (instance.Step, error) {
				t.Errorf("leased instance is picked: %+v", i)
				return instance.Step{}, nil
			})
			if err != nil || picked {
				t.Errorf("picked, err = %v, %v", picked, err)
			}
			return instance.Step{State: "Next", Context: i.Context.Stepped(), Status: workflow.Running}, nil
		})
		if err != nil || !ok {
			t.Fatalf("ok, err = %v, %v", ok, err)
		}
		if actual := try.To(kpginstance.New(pool).Get(ctx, admitted.Id)).OrFatal(t); actual.State != "Next" {
			t.Errorf("unexpected instance: %+v", actual)
		}
	})

	t.Run("a step over the expired lease is discarded", func(t *testing.T) {
		testee := kpginstance.New(pool, kpginstance.WithLease(time.Millisecond))
		other := kpginstance.New(pool)

		_, ok, err := testee.PickAndStep(ctx, instance.Cursor{}, func(i instance.Instance) (instance.Step, error) {
			time.Sleep(50 * time.Millisecond)
			_, picked, err := other.PickAndStep(ctx, instance.Cursor{}, func(i instance.Instance) (instance.Step, error) {
				return instance.Step{State: "ByOther", Context: i.Context.Stepped(), Status: workflow.Running}, nil
			})
			if err != nil || !picked {
				t.Errorf("picked, err = %v, %v", picked, err)
			}
			return instance.Step{State: "ByExpired", Context: i.Context.Stepped(), Status: workflow.Running}, nil
		})
		if !errors.Is(err, instance.ErrLeaseExpired) || ok {
			t.Errorf("ok, err = %v, %v", ok, err)
		}
		if actual := try.To(kpginstance.New(pool).Get(ctx, admitted.Id)).OrFatal(t); actual.State != "ByOther" {
			t.Errorf("unexpected instance: %+v", actual)
		}
	})
}
