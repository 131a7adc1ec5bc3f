package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kavinduw/donorhub/internal/auth"
	"github.com/kavinduw/donorhub/internal/domain/user"
	"github.com/kavinduw/donorhub/internal/http/handlers"
	"github.com/kavinduw/donorhub/internal/repo/postgres"
	"github.com/kavinduw/donorhub/internal/security"
)

type fakeUserReader struct {
	getByEmailFn func(ctx context.Context, email string) (user.User, error)
}

func (f *fakeUserReader) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return user.User{}, postgres.ErrUserNotFound
}

type fakeUserWriter struct {
	createFn func(ctx context.Context, email, passwordHash, name string, role user.Role) (user.User, error)
}

func (f *fakeUserWriter) Create(ctx context.Context, email, passwordHash, name string, role user.Role) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, email, passwordHash, name, role)
	}
	return user.User{ID: uuid.NewString(), Email: email, Name: name, Role: role}, nil
}

type fakeSessionStore struct {
	stored    []postgres.RefreshTokenRow
	rotateErr error
	rotatedID string
	revokedID string
}

func (f *fakeSessionStore) Store(_ context.Context, row postgres.RefreshTokenRow) error {
	f.stored = append(f.stored, row)
	return nil
}

func (f *fakeSessionStore) Rotate(_ context.Context, oldID, presentedHash string, next postgres.RefreshTokenRow) error {
	if f.rotateErr != nil {
		return f.rotateErr
	}
	f.rotatedID = oldID
	f.stored = append(f.stored, next)
	return nil
}

func (f *fakeSessionStore) Revoke(_ context.Context, id string) error {
	f.revokedID = id
	return nil
}

func testJWT() *auth.Manager {
	return auth.NewManager("test-secret", 15*time.Minute, 7*24*time.Hour)
}

func authRouter(h *handlers.AuthHandler) *gin.Engine {
	r := gin.New()
	grp := r.Group("/auth")
	grp.POST("/register", h.Register)
	grp.POST("/login", h.Login)
	grp.POST("/refresh", h.Refresh)
	grp.POST("/logout", h.Logout)
	return r
}

func TestRegister(t *testing.T) {
	t.Run("creates a member", func(t *testing.T) {
		var created *user.User

		writer := &fakeUserWriter{
			createFn: func(_ context.Context, email, passwordHash, name string, role user.Role) (user.User, error) {
				if err := security.CheckPassword(passwordHash, "hunter22"); err != nil {
					t.Fatal("stored hash does not verify against the submitted password")
				}
				u := user.User{ID: "u1", Email: email, Name: name, Role: role, CreatedAt: time.Now().UTC()}
				created = &u
				return u, nil
			},
		}

		h := handlers.NewAuthHandler(&fakeUserReader{}, writer, testJWT(), &fakeSessionStore{}, testConfig())
		r := authRouter(h)

		w := postJSON(r, "/auth/register", `{"name":"Amal Perera","email":"Amal@Example.com","password":"hunter22"}`, "")

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
		}
		if created == nil {
			t.Fatal("user was not created")
		}
		if created.Email != "amal@example.com" {
			t.Fatalf("email = %s, want lowercased", created.Email)
		}
		if created.Role != user.RoleMember {
			t.Fatalf("role = %s, want MEMBER", created.Role)
		}
		// registration does not start a session
		if cookies := w.Result().Cookies(); len(cookies) != 0 {
			t.Fatalf("unexpected cookies %v", cookies)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		writer := &fakeUserWriter{
			createFn: func(context.Context, string, string, string, user.Role) (user.User, error) {
				return user.User{}, postgres.ErrEmailAlreadyUsed
			},
		}

		h := handlers.NewAuthHandler(&fakeUserReader{}, writer, testJWT(), &fakeSessionStore{}, testConfig())
		r := authRouter(h)

		w := postJSON(r, "/auth/register", `{"name":"Amal Perera","email":"amal@example.com","password":"hunter22"}`, "")

		if w.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", w.Code)
		}
	})

	t.Run("validation", func(t *testing.T) {
		h := handlers.NewAuthHandler(&fakeUserReader{}, &fakeUserWriter{
			createFn: func(context.Context, string, string, string, user.Role) (user.User, error) {
				t.Fatal("invalid payloads must not reach the writer")
				return user.User{}, nil
			},
		}, testJWT(), &fakeSessionStore{}, testConfig())
		r := authRouter(h)

		bodies := []string{
			`{"email":"amal@example.com","password":"hunter22"}`,
			`{"name":"Amal","email":"not-an-email","password":"hunter22"}`,
			`{"name":"Amal","email":"amal@example.com","password":"short"}`,
			`not json`,
		}

		for _, body := range bodies {
			w := postJSON(r, "/auth/register", body, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("body %s: status = %d, want 400", body, w.Code)
			}
		}
	})
}

func TestLogin(t *testing.T) {
	hash, err := security.HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}

	member := user.User{
		ID: "u1", Name: "Amal Perera", Email: "amal@example.com",
		Role: user.RoleMember, PasswordHash: hash, CreatedAt: time.Now().UTC(),
	}

	reader := &fakeUserReader{
		getByEmailFn: func(_ context.Context, email string) (user.User, error) {
			if email != "amal@example.com" {
				return user.User{}, postgres.ErrUserNotFound
			}
			return member, nil
		},
	}

	t.Run("success", func(t *testing.T) {
		sessions := &fakeSessionStore{}
		jwtMgr := testJWT()
		h := handlers.NewAuthHandler(reader, &fakeUserWriter{}, jwtMgr, sessions, testConfig())
		r := authRouter(h)

		w := postJSON(r, "/auth/login", `{"email":"Amal@example.com","password":"hunter22"}`, "")

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
		}

		var resp struct {
			AccessToken string `json:"accessToken"`
			User        struct {
				Email string `json:"email"`
			} `json:"user"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}

		claims, err := jwtMgr.VerifyAccessToken(resp.AccessToken)
		if err != nil {
			t.Fatalf("returned access token does not verify: %v", err)
		}
		if claims.UserID != "u1" || claims.Role != "MEMBER" {
			t.Fatalf("claims = %+v", claims)
		}

		if strings.Contains(w.Body.String(), hash) {
			t.Fatal("password hash leaked in response")
		}

		if len(sessions.stored) != 1 {
			t.Fatalf("sessions stored = %d, want 1", len(sessions.stored))
		}
		if sessions.stored[0].UserID != "u1" {
			t.Fatalf("session user = %s", sessions.stored[0].UserID)
		}

		var refresh, access *http.Cookie
		for _, c := range w.Result().Cookies() {
			switch c.Name {
			case "refresh_token":
				refresh = c
			case "access_token":
				access = c
			}
		}
		if refresh == nil || refresh.Path != "/auth" || !refresh.HttpOnly {
			t.Fatalf("refresh cookie: %+v", refresh)
		}
		if access == nil || access.Path != "/" || !access.HttpOnly {
			t.Fatalf("access cookie: %+v", access)
		}
		// stored hash must match the issued refresh cookie
		if sessions.stored[0].TokenHash != jwtMgr.HashRefreshToken(refresh.Value) {
			t.Fatal("stored session hash does not match the refresh cookie")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		h := handlers.NewAuthHandler(reader, &fakeUserWriter{}, testJWT(), &fakeSessionStore{}, testConfig())
		r := authRouter(h)

		w := postJSON(r, "/auth/login", `{"email":"amal@example.com","password":"wrong-pass"}`, "")

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		h := handlers.NewAuthHandler(reader, &fakeUserWriter{}, testJWT(), &fakeSessionStore{}, testConfig())
		r := authRouter(h)

		w := postJSON(r, "/auth/login", `{"email":"nobody@example.com","password":"hunter22"}`, "")

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})
}

func TestRefresh(t *testing.T) {
	jwtMgr := testJWT()

	issueRefresh := func(t *testing.T) (raw, jti string) {
		t.Helper()
		raw, jti, _, err := jwtMgr.GenerateRefreshToken("u1", "amal@example.com", user.RoleMember)
		if err != nil {
			t.Fatal(err)
		}
		return raw, jti
	}

	t.Run("rotates the session", func(t *testing.T) {
		raw, jti := issueRefresh(t)

		sessions := &fakeSessionStore{}
		h := handlers.NewAuthHandler(&fakeUserReader{}, &fakeUserWriter{}, jwtMgr, sessions, testConfig())
		r := authRouter(h)

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: "refresh_token", Value: raw})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
		}
		if sessions.rotatedID != jti {
			t.Fatalf("rotated id = %s, want %s", sessions.rotatedID, jti)
		}
		if len(sessions.stored) != 1 || sessions.stored[0].ID == jti {
			t.Fatal("replacement session was not stored under a new id")
		}

		var resp struct {
			AccessToken string `json:"accessToken"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if _, err := jwtMgr.VerifyAccessToken(resp.AccessToken); err != nil {
			t.Fatalf("new access token does not verify: %v", err)
		}
	})

	t.Run("store error mapping", func(t *testing.T) {
		tests := []struct {
			name       string
			rotateErr  error
			wantStatus int
			wantCode   string
		}{
			{"expired", postgres.ErrRefreshTokenExpired, http.StatusUnauthorized, "expired_refresh"},
			{"not found", postgres.ErrRefreshTokenNotFound, http.StatusUnauthorized, "invalid_refresh"},
			{"hash mismatch", postgres.ErrRefreshTokenInvalid, http.StatusUnauthorized, "invalid_refresh"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				raw, _ := issueRefresh(t)

				h := handlers.NewAuthHandler(&fakeUserReader{}, &fakeUserWriter{}, jwtMgr, &fakeSessionStore{rotateErr: tt.rotateErr}, testConfig())
				r := authRouter(h)

				req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
				req.AddCookie(&http.Cookie{Name: "refresh_token", Value: raw})
				w := httptest.NewRecorder()
				r.ServeHTTP(w, req)

				if w.Code != tt.wantStatus {
					t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
				}
				if !strings.Contains(w.Body.String(), tt.wantCode) {
					t.Fatalf("body %s missing code %s", w.Body.String(), tt.wantCode)
				}
			})
		}
	})

	t.Run("missing cookie", func(t *testing.T) {
		h := handlers.NewAuthHandler(&fakeUserReader{}, &fakeUserWriter{}, jwtMgr, &fakeSessionStore{}, testConfig())
		r := authRouter(h)

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})

	t.Run("access token rejected as refresh", func(t *testing.T) {
		access, err := jwtMgr.GenerateAccessToken("u1", "amal@example.com", user.RoleMember)
		if err != nil {
			t.Fatal(err)
		}

		h := handlers.NewAuthHandler(&fakeUserReader{}, &fakeUserWriter{}, jwtMgr, &fakeSessionStore{}, testConfig())
		r := authRouter(h)

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: "refresh_token", Value: access})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})
}

func TestLogout(t *testing.T) {
	jwtMgr := testJWT()

	raw, jti, _, err := jwtMgr.GenerateRefreshToken("u1", "amal@example.com", user.RoleMember)
	if err != nil {
		t.Fatal(err)
	}

	sessions := &fakeSessionStore{}
	h := handlers.NewAuthHandler(&fakeUserReader{}, &fakeUserWriter{}, jwtMgr, sessions, testConfig())
	r := authRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: raw})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if sessions.revokedID != jti {
		t.Fatalf("revoked id = %s, want %s", sessions.revokedID, jti)
	}

	for _, c := range w.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			t.Fatalf("cookie %s not cleared: %+v", c.Name, c)
		}
	}
}
