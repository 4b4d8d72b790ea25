package models

import "time"

// TransactionStatus enumerates purchase lifecycle states.
type TransactionStatus string

const (
	TransactionStatusActive    TransactionStatus = "ACTIVE"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// Transaction represents a completed purchase of a mileage offer. CreatedAt
// anchors the free-edit window; everything except Status is immutable after
// creation.
type Transaction struct {
	ID            string            `db:"id" json:"id"`
	OfferID       string            `db:"offer_id" json:"offerId"`
	BuyerID       string            `db:"buyer_id" json:"buyerId"`
	SellerID      string            `db:"seller_id" json:"sellerId"`
	MilesQuantity int64             `db:"miles_quantity" json:"milesQuantity"`
	Status        TransactionStatus `db:"status" json:"status"`
	CreatedAt     time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updatedAt"`
}
