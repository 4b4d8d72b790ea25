package models

import "time"

// NotificationType enumerates emitted workflow events.
type NotificationType string

const (
	NotificationApprovalNeeded  NotificationType = "APPROVAL_NEEDED"
	NotificationRequestApproved NotificationType = "REQUEST_APPROVED"
	NotificationRequestRejected NotificationType = "REQUEST_REJECTED"
)

// Notification is an append-only workflow event addressed to one user.
// Payload references the transaction / passenger / approval request involved.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipientId"`
	Type        NotificationType `db:"type" json:"type"`
	Payload     []byte           `db:"payload" json:"payload"`
	Read        bool             `db:"read" json:"read"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
}

// NotificationFilter constrains listing queries.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
	Offset      int
}
