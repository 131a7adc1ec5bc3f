package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavinduw/donorhub/internal/config"
	"github.com/kavinduw/donorhub/internal/repo/postgres"
)

type MemberLister interface {
	ListMembersWithDonations(ctx context.Context) ([]postgres.MemberOverview, error)
}

type MembersHandler struct {
	users MemberLister
}

func NewMembersHandler(users MemberLister) *MembersHandler {
	return &MembersHandler{users: users}
}

type memberResponse struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	CreatedAt           time.Time `json:"createdAt"`
	TotalDonations      int       `json:"totalDonations"`
	SuccessfulDonations int       `json:"successfulDonations"`
	TotalAmount         float64   `json:"totalAmount"` // major units
}

// List returns every member with their donation aggregates (admin or
// owner).
func (h *MembersHandler) List(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	members, err := h.users.ListMembersWithDonations(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not list members")
		return
	}

	out := make([]memberResponse, 0, len(members))

	for _, m := range members {
		out = append(out, memberResponse{
			ID:                  m.User.ID,
			Name:                m.User.Name,
			Email:               m.User.Email,
			CreatedAt:           m.User.CreatedAt,
			TotalDonations:      m.TotalDonations,
			SuccessfulDonations: m.SuccessfulDonations,
			TotalAmount:         float64(m.TotalAmount) / 100,
		})
	}

	ctx.JSON(http.StatusOK, gin.H{
		"total":   len(out),
		"members": out,
	})
}
