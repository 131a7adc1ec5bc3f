package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kavinduw/donorhub/internal/domain/user"
	"github.com/kavinduw/donorhub/internal/observability"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailAlreadyUsed = errors.New("email already used")
	ErrNotAnAdmin       = errors.New("user is not an admin")
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const userColumns = `id, email, password_hash, name, role, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	var role string

	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}

	u.Role, err = user.ParseRole(role)
	if err != nil {
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := r.observe("users.get_by_email", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, ErrUserNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := r.observe("users.get_by_id", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, ErrUserNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool

	err := r.observe("users.email_exists", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	})

	return exists, err
}

func (r *UsersRepo) Create(ctx context.Context, email, passwordHash, name string, role user.Role) (user.User, error) {
	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.observe("users.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			u.ID, u.Email, u.PasswordHash, u.Name, u.Role.String(), u.CreatedAt, u.UpdatedAt,
		)
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return user.User{}, ErrEmailAlreadyUsed
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) ListByRole(ctx context.Context, role user.Role) (users []user.User, err error) {
	var rows pgx.Rows

	err = r.observe("users.list_by_role", func() error {
		var e error
		rows, e = r.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY created_at DESC`,
			role.String(),
		)
		return e
	})

	if err != nil {
		return
	}

	defer rows.Close()

	users = make([]user.User, 0)

	for rows.Next() {
		u, e := scanUser(rows)
		if e != nil {
			err = e
			return
		}
		users = append(users, u)
	}

	err = rows.Err()
	return
}

func (r *UsersRepo) CountByRole(ctx context.Context, role user.Role) (int, error) {
	var total int
	err := r.observe("users.count_by_role", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM users WHERE role = $1`, role.String()).Scan(&total)
	})
	return total, err
}

// DeleteAdmin removes an ADMIN account. Deleting a MEMBER or the
// OWNER through this path is refused.
func (r *UsersRepo) DeleteAdmin(ctx context.Context, id string) error {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if u.Role != user.RoleAdmin {
		return ErrNotAnAdmin
	}

	var tag pgconn.CommandTag

	err = r.observe("users.delete_admin", func() error {
		var e error
		tag, e = r.pool.Exec(ctx,
			`DELETE FROM users WHERE id = $1 AND role = $2`, id, user.RoleAdmin.String())
		return e
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// MemberOverview is a member row enriched with donation aggregates
// for the admin dashboard.
type MemberOverview struct {
	User                user.User
	TotalDonations      int
	SuccessfulDonations int
	// Successful amount in minor units.
	TotalAmount int64
}

func (r *UsersRepo) ListMembersWithDonations(ctx context.Context) (members []MemberOverview, err error) {
	var rows pgx.Rows

	err = r.observe("users.list_members_with_donations", func() error {
		var e error
		rows, e = r.pool.Query(ctx, `
			SELECT u.id, u.email, u.password_hash, u.name, u.role, u.created_at, u.updated_at,
				COUNT(d.id) AS total,
				COUNT(d.id) FILTER (WHERE d.status = 'SUCCESS') AS successful,
				COALESCE(SUM(d.amount) FILTER (WHERE d.status = 'SUCCESS'), 0) AS amount
			FROM users u
			LEFT JOIN donations d ON d.user_id = u.id
			WHERE u.role = $1
			GROUP BY u.id
			ORDER BY u.created_at DESC
		`, user.RoleMember.String())
		return e
	})

	if err != nil {
		return
	}

	defer rows.Close()

	members = make([]MemberOverview, 0)

	for rows.Next() {
		var m MemberOverview
		var role string

		e := rows.Scan(
			&m.User.ID, &m.User.Email, &m.User.PasswordHash, &m.User.Name, &role,
			&m.User.CreatedAt, &m.User.UpdatedAt,
			&m.TotalDonations, &m.SuccessfulDonations, &m.TotalAmount,
		)
		if e != nil {
			err = e
			return
		}

		m.User.Role, e = user.ParseRole(role)
		if e != nil {
			err = e
			return
		}

		members = append(members, m)
	}

	err = rows.Err()
	return
}
