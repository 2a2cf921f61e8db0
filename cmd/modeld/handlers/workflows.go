package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/modelflow/pkg/api/types/errors"
	apimodels "github.com/opst/modelflow/pkg/api/types/models"
	"github.com/opst/modelflow/pkg/domain/instance"
)

func GetWorkflowHandler(instances instance.Interface, paramInstanceId string) echo.HandlerFunc {
	return func(c echo.Context) error {
		inst, err := instances.Get(c.Request().Context(), c.Param(paramInstanceId))
		if err != nil {
			return apierr.FromStore(err, "")
		}
		return c.JSON(http.StatusOK, apimodels.ComposeWorkflow(inst))
	}
}

// FindWorkflowsHandler lists workflows of a model, newest first.
func FindWorkflowsHandler(instances instance.Interface, paramModelId string) echo.HandlerFunc {
	return func(c echo.Context) error {
		found, err := instances.Find(c.Request().Context(), c.Param(paramModelId))
		if err != nil {
			return apierr.InternalServerError(err)
		}

		resp := make([]apimodels.Workflow, 0, len(found))
		for _, inst := range found {
			resp = append(resp, apimodels.ComposeWorkflow(inst))
		}
		return c.JSON(http.StatusOK, resp)
	}
}
