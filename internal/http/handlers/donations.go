package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavinduw/donorhub/internal/config"
	"github.com/kavinduw/donorhub/internal/domain/donation"
	"github.com/kavinduw/donorhub/internal/domain/user"
	"github.com/kavinduw/donorhub/internal/http/middlewares"
	"github.com/kavinduw/donorhub/internal/observability"
	"github.com/kavinduw/donorhub/internal/payhere"
	"github.com/kavinduw/donorhub/internal/repo/postgres"
)

type DonationStore interface {
	Create(ctx context.Context, userID string, amount int64, gateway string) (donation.Donation, error)
	GetByID(ctx context.Context, id string) (donation.Donation, error)
	ApplyGatewayResult(ctx context.Context, id string, res donation.GatewayResult) (donation.Donation, bool, error)
	ListByUser(ctx context.Context, userID string) ([]donation.Donation, error)
	StatsForUser(ctx context.Context, userID string) (postgres.UserStats, error)
}

type UserGetter interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// ReplayChecker short-circuits gateway retries of notifications that
// were already applied.
type ReplayChecker interface {
	Seen(ctx context.Context, orderID, statusCode, signature string) bool
	Mark(ctx context.Context, orderID, statusCode, signature string)
}

type DonationsHandler struct {
	donations DonationStore
	users     UserGetter
	signer    *payhere.Signer
	replay    ReplayChecker
	prom      *observability.Prom
	log       *slog.Logger
	cfg       config.Config
}

func NewDonationsHandler(donations DonationStore, users UserGetter, signer *payhere.Signer, replay ReplayChecker, prom *observability.Prom, log *slog.Logger, cfg config.Config) *DonationsHandler {
	return &DonationsHandler{
		donations: donations,
		users:     users,
		signer:    signer,
		replay:    replay,
		prom:      prom,
		log:       log,
		cfg:       cfg,
	}
}

type CreateDonationRequest struct {
	// Major currency units (LKR); converted to cents for storage.
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// Create persists a CREATED donation and hands back the signed
// PayHere checkout bundle for the browser to post.
func (h *DonationsHandler) Create(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req CreateDonationRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	donor, err := h.users.GetByID(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not create donation")
		return
	}

	d, err := h.donations.Create(cctx, userID, payhere.ToMinorUnits(req.Amount), payhere.Gateway)
	if err != nil {
		RespondInternal(ctx, "Could not create donation")
		return
	}

	params := h.signer.Checkout(d.ID, d.Amount, donor.Name, donor.Email, h.cfg.BaseURL, h.cfg.PayHereSandbox)

	ctx.JSON(http.StatusCreated, gin.H{
		"donationId":  d.ID,
		"paymentData": params,
	})
}

// NotifyRequest is PayHere's server-to-server notification, posted
// form-encoded without authentication.
type NotifyRequest struct {
	MerchantID     string `form:"merchant_id"`
	OrderID        string `form:"order_id"`
	PayhereAmount  string `form:"payhere_amount"`
	PayhereCurrency string `form:"payhere_currency"`
	StatusCode     string `form:"status_code"`
	MD5Sig         string `form:"md5sig"`
	PaymentID      string `form:"payment_id"`
	Method         string `form:"method"`
	StatusMessage  string `form:"status_message"`
}

func (h *DonationsHandler) observeNotify(outcome string, start time.Time) {
	if h.prom != nil {
		h.prom.ObserveNotify(outcome, time.Since(start))
	}
}

// Notify consumes the gateway's asynchronous payment result. The
// gateway retries on non-2xx, so every path that has settled the
// donation must acknowledge with 200.
func (h *DonationsHandler) Notify(ctx *gin.Context) {
	start := time.Now()

	var req NotifyRequest

	if err := ctx.ShouldBind(&req); err != nil {
		h.observeNotify("error", start)
		RespondBadRequest(ctx, "Invalid notification payload", nil)
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "payhere notification received",
		"order_id", req.OrderID,
		"status_code", req.StatusCode,
		"payment_id", req.PaymentID,
		"status_message", req.StatusMessage,
	)

	if req.MerchantID != h.signer.MerchantID() {
		h.observeNotify("bad_merchant", start)
		RespondBadRequest(ctx, "Invalid merchant", nil)
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	// byte-identical retry of an already-applied notification
	if h.replay != nil && h.replay.Seen(cctx, req.OrderID, req.StatusCode, req.MD5Sig) {
		h.observeNotify("replayed", start)
		ctx.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	d, err := h.donations.GetByID(cctx, req.OrderID)
	if err != nil {
		if errors.Is(err, donation.ErrNotFound) {
			h.observeNotify("unknown_order", start)
			RespondNotFound(ctx, "Donation not found")
			return
		}
		h.observeNotify("error", start)
		RespondInternal(ctx, "Could not process notification")
		return
	}

	if !h.signer.Verify(req.OrderID, req.PayhereAmount, req.PayhereCurrency, req.MD5Sig) {
		// A forged or tampered callback never applies a success; the
		// donation is parked FAILED with whatever the gateway sent, so
		// the mismatch is visible in the record.
		_, _, err := h.donations.ApplyGatewayResult(cctx, d.ID, donation.GatewayResult{
			Status:    donation.StatusFailed,
			OrderID:   req.OrderID,
			PaymentID: req.PaymentID,
			Signature: req.MD5Sig,
		})

		if err != nil {
			h.log.ErrorContext(ctx.Request.Context(), "could not mark donation failed", "order_id", req.OrderID, "err", err)
		}

		h.observeNotify("bad_signature", start)
		RespondBadRequest(ctx, "Invalid signature", nil)
		return
	}

	status := payhere.MapStatusCode(req.StatusCode)

	updated, applied, err := h.donations.ApplyGatewayResult(cctx, d.ID, donation.GatewayResult{
		Status:    status,
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.MD5Sig,
	})

	if err != nil {
		h.observeNotify("error", start)
		RespondInternal(ctx, "Could not process notification")
		return
	}

	switch {
	case !applied:
		// donation already settled; acknowledge so the gateway stops
		h.observeNotify("replayed", start)
	case status == donation.StatusCreated:
		h.observeNotify("pending", start)
	default:
		h.observeNotify("applied", start)
	}

	if applied && h.replay != nil {
		h.replay.Mark(cctx, req.OrderID, req.StatusCode, req.MD5Sig)
	}

	h.log.InfoContext(ctx.Request.Context(), "donation updated",
		"order_id", req.OrderID, "status", string(updated.Status), "applied", applied)

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

type donationResponse struct {
	ID               string    `json:"id"`
	Amount           float64   `json:"amount"` // major units
	Status           string    `json:"status"`
	Gateway          string    `json:"gateway"`
	GatewayOrderID   string    `json:"gatewayOrderId"`
	GatewayPaymentID string    `json:"gatewayPaymentId"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toDonationResponse(d donation.Donation) donationResponse {
	return donationResponse{
		ID:               d.ID,
		Amount:           float64(d.Amount) / 100,
		Status:           string(d.Status),
		Gateway:          d.Gateway,
		GatewayOrderID:   d.GatewayOrderID,
		GatewayPaymentID: d.GatewayPaymentID,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// History returns the caller's donations, newest first, with summary
// stats.
func (h *DonationsHandler) History(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	donations, err := h.donations.ListByUser(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not fetch donations")
		return
	}

	stats, err := h.donations.StatsForUser(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not fetch donations")
		return
	}

	out := make([]donationResponse, 0, len(donations))
	for _, d := range donations {
		out = append(out, toDonationResponse(d))
	}

	ctx.JSON(http.StatusOK, gin.H{
		"donations": out,
		"stats": gin.H{
			"totalDonations":      stats.TotalDonations,
			"successfulDonations": stats.SuccessfulDonations,
			"totalAmountDonated":  float64(stats.SuccessfulAmount) / 100,
		},
	})
}
