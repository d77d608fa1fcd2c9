package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Mazart23/pet-book/internal/domain"
)

type deleteNotificationRequest struct {
	NotificationID   string                  `json:"notification_id"`
	NotificationType domain.NotificationType `json:"notification_type"`
}

// Notifications returns a newest-first page of the caller's notifications.
func (c *Client) Notifications(ctx context.Context, token, lastTimestamp string, quantity int) ([]domain.Notification, error) {
	var notifications []domain.Notification
	q := pageQuery("quantity", quantity, lastTimestamp)
	if err := c.do(ctx, http.MethodGet, "/notification/", token, q, nil, &notifications); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// DeleteNotification dismisses a notification.
func (c *Client) DeleteNotification(ctx context.Context, token string, n domain.Notification) error {
	body := deleteNotificationRequest{NotificationID: n.ID, NotificationType: n.Type}
	if err := c.do(ctx, http.MethodDelete, "/notification/", token, nil, body, nil); err != nil {
		return fmt.Errorf("delete notification %s: %w", n.ID, err)
	}
	return nil
}
