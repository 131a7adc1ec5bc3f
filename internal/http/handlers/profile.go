package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavinduw/donorhub/internal/config"
	"github.com/kavinduw/donorhub/internal/http/middlewares"
	"github.com/kavinduw/donorhub/internal/repo/postgres"
)

type DonationStatser interface {
	StatsForUser(ctx context.Context, userID string) (postgres.UserStats, error)
}

type ProfileHandler struct {
	users     UserGetter
	donations DonationStatser
}

func NewProfileHandler(users UserGetter, donations DonationStatser) *ProfileHandler {
	return &ProfileHandler{users: users, donations: donations}
}

// Get returns the caller's profile with donation totals.
func (h *ProfileHandler) Get(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not fetch profile")
		return
	}

	stats, err := h.donations.StatsForUser(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not fetch profile")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"role":      u.Role,
		"createdAt": u.CreatedAt,
		"stats": gin.H{
			"totalDonations":      stats.TotalDonations,
			"successfulDonations": stats.SuccessfulDonations,
			"totalAmountDonated":  float64(stats.SuccessfulAmount) / 100,
		},
	})
}
