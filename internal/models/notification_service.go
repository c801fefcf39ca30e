package models

import "context"

// NotificationService delivers operator alerts.
type NotificationService interface {
	SendAlert(ctx context.Context, alert *Alert)
}
