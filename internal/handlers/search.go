package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/clawcart/clawcart/internal/activities"
	"github.com/clawcart/clawcart/internal/models"
	"github.com/clawcart/clawcart/internal/search"
	"github.com/clawcart/clawcart/internal/workflows"
)

type SearchHandler struct {
	db             *gorm.DB
	sessions       *search.SessionStore
	temporalClient client.Client
	taskQueue      string
}

func NewSearchHandler(db *gorm.DB, sessions *search.SessionStore, temporalClient client.Client, taskQueue string) *SearchHandler {
	return &SearchHandler{
		db:             db,
		sessions:       sessions,
		temporalClient: temporalClient,
		taskQueue:      taskQueue,
	}
}

type SearchRequest struct {
	UserID  string         `json:"user_id"`
	Query   string         `json:"query"`
	Filters search.Filters `json:"filters"`
	Limit   int            `json:"limit,omitempty"`
}

// Search runs synchronously from the caller's point of view but executes
// as a workflow on the search queue, so a worker crash mid-query retries
// instead of dropping the request.
func (h *SearchHandler) Search(c echo.Context) error {
	ctx := c.Request().Context()

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" || req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and query are required")
	}

	var user models.User
	if err := h.db.WithContext(ctx).Where("user_id = ?", req.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown user")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load user")
	}

	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("search-%s-%s", req.UserID, uuid.New().String()[:8]),
		TaskQueue: h.taskQueue,
	}
	run, err := h.temporalClient.ExecuteWorkflow(ctx, opts, workflows.SearchWorkflow, activities.SearchInput{
		UserID:  req.UserID,
		Text:    req.Query,
		Filters: req.Filters,
		Country: user.Address.Country,
		Limit:   req.Limit,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start search: "+err.Error())
	}

	var out activities.SearchOutput
	if err := run.Get(ctx, &out); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "search failed: "+err.Error())
	}

	return c.JSON(http.StatusOK, out)
}

// Session returns a previous search's snapshot so a client can re-inspect
// candidates before buying one by index.
func (h *SearchHandler) Session(c echo.Context) error {
	sess, err := h.sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, search.ErrSessionExpired) {
			return echo.NewHTTPError(http.StatusGone, "search session expired")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
	}
	return c.JSON(http.StatusOK, sess)
}
