package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clawcart/clawcart/internal/checkout"
	"github.com/clawcart/clawcart/internal/models"
)

// FlowHandler exposes the learned checkout flows for inspection and reset.
type FlowHandler struct {
	store *checkout.FlowStore
}

func NewFlowHandler(store *checkout.FlowStore) *FlowHandler {
	return &FlowHandler{store: store}
}

type flowView struct {
	*models.CheckoutFlow
	Health      string  `json:"health"`
	SuccessRate float64 `json:"success_rate"`
	StepCount   int     `json:"step_count"`
}

func (h *FlowHandler) view(flow *models.CheckoutFlow) flowView {
	return flowView{
		CheckoutFlow: flow,
		Health:       h.store.Health(flow),
		SuccessRate:  flow.SuccessRate(),
		StepCount:    len(flow.Steps),
	}
}

func (h *FlowHandler) List(c echo.Context) error {
	flows, err := h.store.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list flows")
	}

	views := make([]flowView, 0, len(flows))
	for i := range flows {
		views = append(views, h.view(&flows[i]))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"flows": views,
	})
}

func (h *FlowHandler) Get(c echo.Context) error {
	flow, err := h.store.ForDomain(c.Request().Context(), c.Param("domain"))
	if err != nil {
		if errors.Is(err, checkout.ErrFlowNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no learned flow for domain")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load flow")
	}
	return c.JSON(http.StatusOK, h.view(flow))
}

// Delete drops a flow so the next purchase on the domain learns it fresh.
func (h *FlowHandler) Delete(c echo.Context) error {
	err := h.store.Delete(c.Request().Context(), c.Param("domain"))
	if err != nil {
		if errors.Is(err, checkout.ErrFlowNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no learned flow for domain")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete flow")
	}
	return c.NoContent(http.StatusNoContent)
}
