package dto

import "github.com/voemax/passenger-api/internal/models"

// DecideApprovalRequest captures the seller decision and optional note.
type DecideApprovalRequest struct {
	Action models.ApprovalAction `json:"action"`
	Note   string                `json:"note"`
}

// DecideApprovalResult reports the terminal state reached by the decision.
// AutoRejected is set when an approved ADD_PASSENGER was rejected by the
// capacity re-check instead of the seller.
type DecideApprovalResult struct {
	Status       models.ApprovalStatus  `json:"status"`
	AutoRejected bool                   `json:"autoRejected,omitempty"`
	Request      *models.ApprovalRequest `json:"request"`
}

// ApprovalQuery mirrors supported listing filters.
type ApprovalQuery struct {
	Status        []models.ApprovalStatus
	Type          models.ApprovalType
	TransactionID string
	Limit         int
	Offset        int
}
