package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clawcart/clawcart/internal/notifications"
)

type NotificationHandler struct {
	store *notifications.Store
}

func NewNotificationHandler(store *notifications.Store) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// Recent serves the user's newest events from the in-process ring; clients
// poll it after submitting a purchase.
func (h *NotificationHandler) Recent(c echo.Context) error {
	userID := c.Param("user_id")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": h.store.Recent(userID, limit),
	})
}
