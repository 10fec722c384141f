package models

import "time"

type ReceiptStatus string

const (
	ReceiptStatusPending   ReceiptStatus = "pending"
	ReceiptStatusDelivered ReceiptStatus = "delivered"
	ReceiptStatusFailed    ReceiptStatus = "failed"
)

// PushReceipt tracks one provider ticket from submission until the delivery
// outcome is known. Records are never deleted; settled records form the
// delivery audit trail.
type PushReceipt struct {
	ID             string        `json:"id"`
	NotificationID string        `json:"notification_id"`
	ReceiptID      string        `json:"receipt_id"`
	Token          string        `json:"token"`
	Status         ReceiptStatus `json:"status"`
	Error          *string       `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
