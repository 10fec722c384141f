package models

import "time"

type NotificationPriority string

const (
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

type NotificationStatus string

const (
	NotificationStatusPending     NotificationStatus = "pending"
	NotificationStatusDispatching NotificationStatus = "dispatching"
	NotificationStatusDispatched  NotificationStatus = "dispatched"
)

// DefaultCategory is applied when a notification carries no category.
const DefaultCategory = "general"

type Notification struct {
	ID           string                 `json:"id"`
	Title        string                 `json:"title"`
	Body         string                 `json:"body"`
	Category     string                 `json:"category"`
	Priority     NotificationPriority   `json:"priority"`
	TargetGroups []string               `json:"target_groups"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	Status       NotificationStatus     `json:"status"`
	CreatedBy    string                 `json:"created_by"`
	SentCount    int                    `json:"sent_count"`
	FailedCount  int                    `json:"failed_count"`
	CreatedAt    time.Time              `json:"created_at"`
	DispatchedAt *time.Time             `json:"dispatched_at,omitempty"`
	ReadAt       *time.Time             `json:"read_at,omitempty"`
}
