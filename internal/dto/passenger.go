package dto

import "github.com/voemax/passenger-api/internal/models"

// SubmitEditRequest is the payload for a passenger data edit. Fields carries
// only the attributes the buyer wants changed; Reason is mandatory once the
// free-edit window has closed.
type SubmitEditRequest struct {
	Fields models.PassengerFields `json:"fields"`
	Reason string                 `json:"reason"`
}

// SubmitEditResult reports whether the edit applied immediately or was queued.
type SubmitEditResult struct {
	Applied           bool                  `json:"applied"`
	ApprovalRequestID *string               `json:"approvalRequestId,omitempty"`
	Passenger         *models.Passenger     `json:"passenger,omitempty"`
	Changes           []models.ChangeRecord `json:"changes,omitempty"`
}

// NewPassengerData is a proposed traveller for an add request.
type NewPassengerData struct {
	FullName  string `json:"fullName" validate:"required,min=3"`
	CPF       string `json:"cpf" validate:"required,cpf"`
	BirthDate string `json:"birthDate" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	FareType  string `json:"fareType" validate:"required,faretype"`
}

// SubmitNewPassengersRequest is the payload for adding travellers to a
// transaction. The batch is rejected atomically when it would exceed the
// passenger ceiling.
type SubmitNewPassengersRequest struct {
	Passengers []NewPassengerData `json:"passengers" validate:"required,min=1,dive"`
	Reason     string             `json:"reason"`
}

// SubmitNewPassengersResult reports per-batch outcome: travellers created
// inside the free window plus approval requests queued outside it.
type SubmitNewPassengersResult struct {
	AppliedCount             int                `json:"appliedCount"`
	Applied                  []models.Passenger `json:"applied,omitempty"`
	QueuedApprovalRequestIDs []string           `json:"queuedApprovalRequestIds,omitempty"`
}
