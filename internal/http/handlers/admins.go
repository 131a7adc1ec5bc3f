package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavinduw/donorhub/internal/config"
	"github.com/kavinduw/donorhub/internal/domain/user"
	"github.com/kavinduw/donorhub/internal/repo/postgres"
	"github.com/kavinduw/donorhub/internal/security"
)

// how many times we re-draw a colliding email suffix before giving up
const maxEmailAttempts = 10

type AdminStore interface {
	Create(ctx context.Context, email, passwordHash, name string, role user.Role) (user.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	ListByRole(ctx context.Context, role user.Role) ([]user.User, error)
	DeleteAdmin(ctx context.Context, id string) error
}

type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

type AdminsHandler struct {
	users    AdminStore
	sessions SessionRevoker
	log      *slog.Logger
	cfg      config.Config
}

func NewAdminsHandler(users AdminStore, sessions SessionRevoker, log *slog.Logger, cfg config.Config) *AdminsHandler {
	return &AdminsHandler{
		users:    users,
		sessions: sessions,
		log:      log,
		cfg:      cfg,
	}
}

// List returns all admin accounts (owner only).
func (h *AdminsHandler) List(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	admins, err := h.users.ListByRole(cctx, user.RoleAdmin)
	if err != nil {
		RespondInternal(ctx, "Could not list admins")
		return
	}

	out := make([]userResponse, 0, len(admins))
	for _, a := range admins {
		out = append(out, sanitizeUser(a))
	}

	ctx.JSON(http.StatusOK, gin.H{
		"total":  len(out),
		"admins": out,
	})
}

type CreateAdminRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create provisions an ADMIN with generated credentials. The
// plaintext password appears in this response and nowhere else.
func (h *AdminsHandler) Create(ctx *gin.Context) {
	var req CreateAdminRequest

	if !BindJSON(ctx, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)

	if name == "" {
		RespondBadRequest(ctx, "Valid name is required", nil)
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	plainPassword, err := security.GeneratePassword()
	if err != nil {
		RespondInternal(ctx, "Could not create admin")
		return
	}

	hash, err := security.HashPassword(plainPassword)
	if err != nil {
		RespondInternal(ctx, "Could not create admin")
		return
	}

	admin, err := h.createWithUniqueEmail(cctx, name, hash)
	if err != nil {
		RespondInternal(ctx, "Could not create admin")
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "admin created", "admin_id", admin.ID, "email", admin.Email)

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "Admin created successfully",
		"admin": gin.H{
			"id":       admin.ID,
			"name":     admin.Name,
			"email":    admin.Email,
			"password": plainPassword, // shown only once
			"role":     admin.Role,
		},
	})
}

// createWithUniqueEmail draws email candidates until one sticks. The
// existence check is advisory; the insert can still lose a race, in
// which case the unique violation comes back as ErrEmailAlreadyUsed
// and we draw again.
func (h *AdminsHandler) createWithUniqueEmail(ctx context.Context, name, passwordHash string) (user.User, error) {
	for attempt := 0; attempt < maxEmailAttempts; attempt++ {
		email, err := security.EmailCandidate(name, h.cfg.AdminEmailDomain)
		if err != nil {
			return user.User{}, err
		}

		exists, err := h.users.EmailExists(ctx, email)
		if err != nil {
			return user.User{}, err
		}

		if exists {
			continue
		}

		u, err := h.users.Create(ctx, email, passwordHash, name, user.RoleAdmin)

		if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
			continue
		}

		return u, err
	}

	return user.User{}, errors.New("could not find a free admin email")
}

// Delete removes an admin account and kills its live sessions (owner
// only).
func (h *AdminsHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	if id == "" {
		RespondBadRequest(ctx, "Admin ID is required", nil)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.users.DeleteAdmin(cctx, id)

	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrUserNotFound):
			RespondNotFound(ctx, "Admin not found")
		case errors.Is(err, postgres.ErrNotAnAdmin):
			RespondBadRequest(ctx, "User is not an admin", nil)
		default:
			RespondInternal(ctx, "Could not delete admin")
		}
		return
	}

	if h.sessions != nil {
		if err := h.sessions.RevokeAllForUser(cctx, id); err != nil {
			h.log.WarnContext(ctx.Request.Context(), "could not revoke admin sessions", "admin_id", id, "err", err)
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Admin deleted successfully",
		"adminId": id,
	})
}
