package handlers

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavinduw/donorhub/internal/cache"
	"github.com/kavinduw/donorhub/internal/config"
	"github.com/kavinduw/donorhub/internal/domain/user"
	"github.com/kavinduw/donorhub/internal/repo/postgres"
)

const topDonorsLimit = 5

type DonationReporter interface {
	GlobalStats(ctx context.Context) (postgres.GlobalStats, error)
	TopDonors(ctx context.Context, limit int) ([]postgres.TopDonor, error)
	ListAllWithDonor(ctx context.Context) ([]postgres.DonationWithDonor, error)
}

type MemberCounter interface {
	CountByRole(ctx context.Context, role user.Role) (int, error)
}

// StatsHandler serves the admin dashboard reads. Aggregates go
// through a short TTL cache; the dashboard polls and tolerates
// staleness.
type StatsHandler struct {
	donations DonationReporter
	users     MemberCounter
	cache     *cache.Cache
}

func NewStatsHandler(donations DonationReporter, users MemberCounter, c *cache.Cache) *StatsHandler {
	return &StatsHandler{
		donations: donations,
		users:     users,
		cache:     c,
	}
}

func (h *StatsHandler) cached(key string, fn func() (any, error)) (any, error) {
	if h.cache != nil {
		if v, ok := h.cache.Get(key); ok {
			return v, nil
		}
	}

	v, err := fn()
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		h.cache.Set(key, v)
	}

	return v, nil
}

// DonationStats returns the aggregate donation dashboard (admin or
// owner).
func (h *StatsHandler) DonationStats(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	payload, err := h.cached("stats.donations", func() (any, error) {
		stats, err := h.donations.GlobalStats(cctx)
		if err != nil {
			return nil, err
		}

		top, err := h.donations.TopDonors(cctx, topDonorsLimit)
		if err != nil {
			return nil, err
		}

		topDonors := make([]gin.H, 0, len(top))
		for _, t := range top {
			topDonors = append(topDonors, gin.H{
				"user": gin.H{
					"id":    t.UserID,
					"name":  t.Name,
					"email": t.Email,
				},
				"totalAmount":   float64(t.TotalAmount) / 100,
				"donationCount": t.DonationCount,
			})
		}

		byStatus := make(map[string]int, len(stats.ByStatus))
		for s, n := range stats.ByStatus {
			byStatus[string(s)] = n
		}

		successRate := 0.0
		if stats.TotalDonations > 0 {
			rate := float64(stats.SuccessfulDonations) / float64(stats.TotalDonations) * 100
			// two decimals, matching the dashboard display
			successRate = math.Round(rate*100) / 100
		}

		return gin.H{
			"totalDonations":       stats.TotalDonations,
			"totalAmountCollected": float64(stats.TotalAmount) / 100,
			"successfulDonations":  stats.SuccessfulDonations,
			"successfulAmount":     float64(stats.SuccessfulAmount) / 100,
			"successRate":          successRate,
			"byStatus":             byStatus,
			"topDonors":            topDonors,
		}, nil
	})

	if err != nil {
		RespondInternal(ctx, "Could not fetch donation stats")
		return
	}

	ctx.JSON(http.StatusOK, payload)
}

// AllDonations returns every donation with donor details (admin or
// owner).
func (h *StatsHandler) AllDonations(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	rows, err := h.donations.ListAllWithDonor(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not fetch donations")
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		d := toDonationResponse(row.Donation)
		out = append(out, gin.H{
			"id":               d.ID,
			"amount":           d.Amount,
			"status":           d.Status,
			"gateway":          d.Gateway,
			"gatewayOrderId":   d.GatewayOrderID,
			"gatewayPaymentId": d.GatewayPaymentID,
			"createdAt":        d.CreatedAt,
			"updatedAt":        d.UpdatedAt,
			"user": gin.H{
				"id":    row.DonorID,
				"name":  row.DonorName,
				"email": row.DonorEmail,
			},
		})
	}

	ctx.JSON(http.StatusOK, gin.H{
		"total":     len(out),
		"donations": out,
	})
}

// RegistrationStats returns the member headcount (admin or owner).
func (h *StatsHandler) RegistrationStats(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	payload, err := h.cached("stats.registrations", func() (any, error) {
		total, err := h.users.CountByRole(cctx, user.RoleMember)
		if err != nil {
			return nil, err
		}
		return gin.H{"total": total}, nil
	})

	if err != nil {
		RespondInternal(ctx, "Could not fetch registration stats")
		return
	}

	ctx.JSON(http.StatusOK, payload)
}
