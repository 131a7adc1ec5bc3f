// Package payhere implements the PayHere merchant parameter signing
// scheme and the checkout parameter bundle handed to the browser.
package payhere

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/kavinduw/donorhub/internal/domain/donation"
)

const (
	Gateway  = "PAYHERE"
	Currency = "LKR"
)

type Signer struct {
	merchantID string
	// md5(merchantSecret) uppercased, precomputed once. The secret
	// itself is never concatenated into outgoing material.
	innerHash string
}

func NewSigner(merchantID, merchantSecret string) *Signer {
	sum := md5.Sum([]byte(merchantSecret))

	return &Signer{
		merchantID: merchantID,
		innerHash:  strings.ToUpper(hex.EncodeToString(sum[:])),
	}
}

func (s *Signer) MerchantID() string {
	return s.merchantID
}

// Sign computes the order signature:
// MD5(merchantID + orderID + amountFormatted + currency + MD5(secret)),
// uppercase hex. The gateway recomputes the same digest on its side,
// so any formatting drift (decimal places, case) breaks verification.
func (s *Signer) Sign(orderID, amountFormatted, currency string) string {
	sum := md5.Sum([]byte(s.merchantID + orderID + amountFormatted + currency + s.innerHash))

	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Verify checks a gateway-reported signature. The reported amount is
// reformatted to exactly two decimals before hashing, mirroring what
// the gateway signs.
func (s *Signer) Verify(orderID, reportedAmount, currency, reportedSig string) bool {
	amt, err := FormatReported(reportedAmount)
	if err != nil {
		return false
	}

	return s.Sign(orderID, amt, currency) == reportedSig
}

// ToMinorUnits converts a major-unit amount to cents, rounding to the
// nearest cent.
func ToMinorUnits(major float64) int64 {
	return int64(math.Round(major * 100))
}

// FormatAmount renders minor units with exactly two decimal places,
// e.g. 50000 -> "500.00".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// FormatReported normalizes the gateway's amount string ("500.00",
// "500", "500.0") to two decimals.
func FormatReported(reported string) (string, error) {
	var f float64

	_, err := fmt.Sscanf(strings.TrimSpace(reported), "%f", &f)
	if err != nil {
		return "", fmt.Errorf("parse reported amount %q: %w", reported, err)
	}

	return fmt.Sprintf("%.2f", f), nil
}

// MapStatusCode maps PayHere's numeric status code to a donation
// status. 2 = success, 0 = still pending; everything else (cancelled,
// failed, chargeback) lands on FAILED.
func MapStatusCode(code string) donation.Status {
	switch code {
	case "2":
		return donation.StatusSuccess
	case "0":
		return donation.StatusCreated
	default:
		return donation.StatusFailed
	}
}

// CheckoutParams is the form the browser posts to the PayHere
// checkout page.
type CheckoutParams struct {
	MerchantID string `json:"merchant_id"`
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	NotifyURL  string `json:"notify_url"`
	OrderID    string `json:"order_id"`
	Items      string `json:"items"`
	Currency   string `json:"currency"`
	Amount     string `json:"amount"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Hash       string `json:"hash"`
	Sandbox    bool   `json:"sandbox"`
}

// Checkout builds the signed parameter bundle for a freshly created
// donation. baseURL is the externally reachable origin of this
// service.
func (s *Signer) Checkout(orderID string, amountMinor int64, donorName, donorEmail, baseURL string, sandbox bool) CheckoutParams {
	amount := FormatAmount(amountMinor)
	first, last := SplitName(donorName)

	return CheckoutParams{
		MerchantID: s.merchantID,
		ReturnURL:  baseURL + "/donations/success",
		CancelURL:  baseURL + "/donations/cancel",
		NotifyURL:  baseURL + "/donations/notify",
		OrderID:    orderID,
		Items:      "Donation",
		Currency:   Currency,
		Amount:     amount,
		FirstName:  first,
		LastName:   last,
		Email:      donorEmail,
		Hash:       s.Sign(orderID, amount, Currency),
		Sandbox:    sandbox,
	}
}

// SplitName splits a display name into the first/last fields PayHere
// expects. An empty name falls back to "Donor".
func SplitName(name string) (first, last string) {
	fields := strings.Fields(name)

	if len(fields) == 0 {
		return "Donor", ""
	}

	return fields[0], strings.Join(fields[1:], " ")
}
