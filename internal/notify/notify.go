// Package notify delivers local and push notifications for approaching and
// arrived buses. Delivery backends are pluggable; the core only builds
// payloads and hands them to a Dispatcher.
package notify

import (
	"context"
)

// Category is the fixed notification category identifier used by the
// platform notification UI for all bus alerts.
const Category = "BUS_ALERT"

// Notification is one rider-visible notification.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`

	// Category is the platform category identifier; always Category.
	Category string `json:"category"`

	// Critical requests critical-alert delivery (audible even in silent
	// mode). Set for waiting-alert fires.
	Critical bool `json:"critical"`

	// ThreadID groups related notifications (one thread per trip or alert).
	ThreadID string `json:"threadId,omitempty"`
}

// New builds a notification with the fixed category.
func New(title, body string) Notification {
	return Notification{Title: title, Body: body, Category: Category}
}

// Dispatcher delivers notifications to the platform.
type Dispatcher interface {
	Deliver(ctx context.Context, n Notification) error
}
