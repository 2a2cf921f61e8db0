package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/modelflow/pkg/api/types/errors"
	apimodels "github.com/opst/modelflow/pkg/api/types/models"
	"github.com/opst/modelflow/pkg/domain"
	"github.com/opst/modelflow/pkg/domain/instance"
	"github.com/opst/modelflow/pkg/domain/model"
	"github.com/opst/modelflow/pkg/domain/workflow"
	"github.com/opst/modelflow/pkg/workflows/createmodel"
	"github.com/opst/modelflow/pkg/workflows/updatemodel"
)

const reasonInFlight = "another workflow is in flight for the model"

var reModelId = regexp.MustCompile(`^[a-zA-Z0-9]([-._a-zA-Z0-9]{0,61}[a-zA-Z0-9])?$`)

func decodeJSON(c echo.Context, out any) error {
	req := c.Request()
	ctyp := strings.ToLower(req.Header.Get("Content-Type"))
	if !strings.HasPrefix(ctyp, "application/json") {
		return apierr.BadRequest(
			"unexpected content type. it should be application/json", nil,
		)
	}
	if err := json.NewDecoder(req.Body).Decode(out); err != nil {
		return apierr.BadRequest("can not understand the requested json", err)
	}
	return nil
}

func validateCreate(req apimodels.CreateRequest) error {
	if !reModelId.MatchString(req.ModelId) {
		return fmt.Errorf(
			`"modelId" should be 1-63 characters of alphanumerics, "-", "_" or ".", starting and ending with an alphanumeric: %q`,
			req.ModelId,
		)
	}
	if req.ModelName == "" {
		return errors.New(`"modelName" is required`)
	}
	if err := req.Capacity.Domain().Validate(); err != nil {
		return err
	}

	if req.CreateInfra {
		if req.Image == "" {
			return errors.New(`"image" is required when "createInfra" is true`)
		}
		if req.Port < 1 || 65535 < req.Port {
			return fmt.Errorf(`"port" should be in [1, 65535]: %d`, req.Port)
		}
		return nil
	}

	if req.Endpoint == "" {
		return errors.New(`"endpoint" is required when "createInfra" is false`)
	}
	if u, err := url.Parse(req.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf(`"endpoint" should be an absolute URL: %q`, req.Endpoint)
	}
	return nil
}

// CreateModelHandler registers a new model and starts the create-model workflow for it.
func CreateModelHandler(models model.Interface, instances instance.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		req := apimodels.CreateRequest{}
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		if err := validateCreate(req); err != nil {
			return apierr.BadRequest(err.Error(), nil)
		}

		md := model.Model{
			Id:     req.ModelId,
			Name:   req.ModelName,
			Status: model.Creating,
			Spec: model.Spec{
				Image:    req.Image,
				Port:     req.Port,
				Env:      req.Env,
				Capacity: req.Capacity.Domain(),
			},
		}
		// the model is not left without its workflow.
		inst, err := instances.AdmitNewModel(ctx, md, instance.New{
			Workflow: createmodel.Name,
			ModelId:  md.Id,
			State:    createmodel.SetCreating,
			Context: createmodel.Start(md.Id, createmodel.Request{
				CreateInfra: req.CreateInfra,
				Endpoint:    req.Endpoint,
			}),
		})
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return apierr.BadRequest(
					fmt.Sprintf("model %s already exists", req.ModelId), err,
				)
			}
			return apierr.InternalServerError(err)
		}

		created, err := models.Get(ctx, md.Id)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		return c.JSON(http.StatusAccepted, apimodels.Accepted{
			Model:    apimodels.ComposeDetail(created),
			Workflow: apimodels.ComposeWorkflow(inst),
		})
	}
}

func ListModelsHandler(models model.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		mds, err := models.List(c.Request().Context())
		if err != nil {
			return apierr.InternalServerError(err)
		}

		resp := make([]apimodels.Detail, 0, len(mds))
		for _, md := range mds {
			resp = append(resp, apimodels.ComposeDetail(md))
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func GetModelHandler(models model.Interface, paramModelId string) echo.HandlerFunc {
	return func(c echo.Context) error {
		md, err := models.Get(c.Request().Context(), c.Param(paramModelId))
		if err != nil {
			return apierr.FromStore(err, "")
		}
		return c.JSON(http.StatusOK, apimodels.ComposeDetail(md))
	}
}

// UpdateModelHandler starts the update-model workflow changing capacity of the model.
//
// Active models can be updated. Models being updated can be updated again
// only when no workflows are in flight for them, for example, after a halted update.
func UpdateModelHandler(models model.Interface, instances instance.Interface, paramModelId string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		modelId := c.Param(paramModelId)

		md, err := models.Get(ctx, modelId)
		if err != nil {
			return apierr.FromStore(err, "")
		}

		req := apimodels.UpdateRequest{}
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		capacity := req.Capacity.Domain()
		if err := capacity.Validate(); err != nil {
			return apierr.BadRequest(err.Error(), nil)
		}

		if md.Status != model.Active && md.Status != model.Updating {
			return apierr.Conflict(
				fmt.Sprintf("model %s is %s", modelId, md.Status),
				apierr.WithAdvice("only active models can be updated"),
			)
		}

		inst, err := instances.Admit(ctx, instance.New{
			Workflow: updatemodel.Name,
			ModelId:  modelId,
			State:    updatemodel.JobIntake,
			Context:  updatemodel.Start(modelId, updatemodel.Request{Capacity: capacity}),
		})
		if err != nil {
			return apierr.FromStore(err, reasonInFlight)
		}

		return c.JSON(http.StatusAccepted, apimodels.Accepted{
			Model:    apimodels.ComposeDetail(md),
			Workflow: apimodels.ComposeWorkflow(inst),
		})
	}
}

// Deregistrar removes models from the routing layer.
type Deregistrar interface {
	Deregister(ctx context.Context, modelId string) error
}

// DeleteModelHandler removes the model from the routing layer, and deletes it
// with its workflow instances.
//
// Models can not be deleted while a workflow is in flight for them.
func DeleteModelHandler(
	models model.Interface, instances instance.Interface, router Deregistrar, paramModelId string,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		modelId := c.Param(paramModelId)

		if _, err := models.Get(ctx, modelId); err != nil {
			return apierr.FromStore(err, "")
		}

		insts, err := instances.Find(ctx, modelId)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		if slices.ContainsFunc(insts, func(i instance.Instance) bool { return i.Status == workflow.Running }) {
			return apierr.Conflict(reasonInFlight, apierr.WithAdvice("retry after the workflow ends"))
		}

		if err := router.Deregister(ctx, modelId); err != nil {
			return apierr.NewErrorMessage(
				http.StatusBadGateway, "routing layer does not deregister the model",
				apierr.WithAdvice("retry later"), apierr.WithError(err),
			)
		}

		// a workflow admitted since then is caught here.
		if err := models.Delete(ctx, modelId); err != nil {
			return apierr.FromStore(err, reasonInFlight)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
