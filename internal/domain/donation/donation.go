package donation

import (
	"errors"
	"time"
)

// Status is the donation lifecycle state. CREATED is the only
// non-terminal state: a gateway notification moves it to SUCCESS or
// FAILED (or leaves it CREATED while the payment is still pending).
type Status string

const (
	StatusCreated Status = "CREATED"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

var (
	ErrNotFound = errors.New("donation not found")
)

// Terminal reports whether the status can no longer change. SUCCESS
// and FAILED are immutable; a replayed gateway notification must not
// rewrite them.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Amount is stored in minor currency units (cents) to keep money out
// of floating point. The donation ID doubles as the PayHere order id.
type Donation struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	Amount           int64     `json:"amount"`
	Status           Status    `json:"status"`
	Gateway          string    `json:"gateway"`
	GatewayOrderID   string    `json:"gatewayOrderId"`
	GatewayPaymentID string    `json:"gatewayPaymentId"`
	GatewaySignature string    `json:"gatewaySignature"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// GatewayResult is what a verified (or signature-failed) notification
// wants to persist onto a donation.
type GatewayResult struct {
	Status    Status
	OrderID   string
	PaymentID string
	Signature string
}
