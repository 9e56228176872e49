package activities

import (
	"context"
)

// SendNotification delivers one event to the user's ring and history. Kept
// as an activity so workflow code never touches the store directly.
func (a *Activities) SendNotification(ctx context.Context, input NotifyInput) error {
	a.notifications.Notify(ctx, input.UserID, input.OrderID, input.Type, input.Message)
	return nil
}
