package models

import "time"

// ApprovalType discriminates the two kinds of queued mutations.
type ApprovalType string

const (
	ApprovalTypeEditPassenger ApprovalType = "EDIT_PASSENGER"
	ApprovalTypeAddPassenger  ApprovalType = "ADD_PASSENGER"
)

// ApprovalStatus captures the request state machine. PENDING transitions to a
// terminal state exactly once; terminal rows are immutable.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// ApprovalAction is a seller decision verb.
type ApprovalAction string

const (
	ApprovalActionApprove ApprovalAction = "APPROVE"
	ApprovalActionReject  ApprovalAction = "REJECT"
)

// ApprovalRequest is a queued, seller-decidable passenger mutation. Changes
// holds the ChangeRecord slice for EDIT_PASSENGER; NewPassengerData holds the
// proposed traveller for ADD_PASSENGER. Both are stored as raw JSON for the
// audit trail.
type ApprovalRequest struct {
	ID                string         `db:"id" json:"id"`
	TransactionID     string         `db:"transaction_id" json:"transactionId"`
	BuyerID           string         `db:"buyer_id" json:"buyerId"`
	SellerID          string         `db:"seller_id" json:"sellerId"`
	Type              ApprovalType   `db:"type" json:"type"`
	TargetPassengerID *string        `db:"target_passenger_id" json:"targetPassengerId,omitempty"`
	Changes           []byte         `db:"changes" json:"changes,omitempty"`
	NewPassengerData  []byte         `db:"new_passenger_data" json:"newPassengerData,omitempty"`
	Reason            string         `db:"reason" json:"reason"`
	Status            ApprovalStatus `db:"status" json:"status"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	DecidedAt         *time.Time     `db:"decided_at" json:"decidedAt,omitempty"`
	DecidedBy         *string        `db:"decided_by" json:"decidedBy,omitempty"`
	DecisionNote      *string        `db:"decision_note" json:"decisionNote,omitempty"`
}

// ApprovalFilter constrains listing queries.
type ApprovalFilter struct {
	Status        []ApprovalStatus
	Type          ApprovalType
	TransactionID string
	SellerID      string
	BuyerID       string
	Limit         int
	Offset        int
}
