package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kavinduw/donorhub/internal/domain/donation"
	"github.com/kavinduw/donorhub/internal/observability"
)

type DonationsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewDonationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *DonationsRepo {
	return &DonationsRepo{pool: pool, prom: prom}
}

func (r *DonationsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const donationColumns = `id, user_id, amount, status, gateway,
	COALESCE(gateway_order_id, ''), COALESCE(gateway_payment_id, ''), COALESCE(gateway_signature, ''),
	created_at, updated_at`

func scanDonation(row pgx.Row) (donation.Donation, error) {
	var d donation.Donation
	var status string

	err := row.Scan(
		&d.ID, &d.UserID, &d.Amount, &status, &d.Gateway,
		&d.GatewayOrderID, &d.GatewayPaymentID, &d.GatewaySignature,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return donation.Donation{}, err
	}

	d.Status = donation.Status(status)
	return d, nil
}

// Create inserts a CREATED-status donation. amount is in minor units.
func (r *DonationsRepo) Create(ctx context.Context, userID string, amount int64, gateway string) (donation.Donation, error) {
	now := time.Now().UTC()

	d := donation.Donation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Status:    donation.StatusCreated,
		Gateway:   gateway,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.observe("donations.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO donations (id, user_id, amount, status, gateway, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			d.ID, d.UserID, d.Amount, string(d.Status), d.Gateway, d.CreatedAt, d.UpdatedAt,
		)
		return e
	})

	if err != nil {
		return donation.Donation{}, err
	}

	return d, nil
}

func (r *DonationsRepo) GetByID(ctx context.Context, id string) (donation.Donation, error) {
	var d donation.Donation

	err := r.observe("donations.get_by_id", func() error {
		var e error
		d, e = scanDonation(r.pool.QueryRow(ctx,
			`SELECT `+donationColumns+` FROM donations WHERE id = $1`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return donation.Donation{}, donation.ErrNotFound
		}
		return donation.Donation{}, err
	}

	return d, nil
}

// ApplyGatewayResult persists the outcome of a gateway notification.
// The row is locked for the duration of the transaction so two
// concurrent callbacks for the same order serialize. Terminal states
// never change: the current row comes back with applied=false and the
// caller decides how to acknowledge.
func (r *DonationsRepo) ApplyGatewayResult(ctx context.Context, id string, res donation.GatewayResult) (d donation.Donation, applied bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() { _ = tx.Rollback(ctx) }()

	err = r.observe("donations.apply_gateway_result.lock", func() error {
		var e error
		d, e = scanDonation(tx.QueryRow(ctx,
			`SELECT `+donationColumns+` FROM donations WHERE id = $1 FOR UPDATE`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = donation.ErrNotFound
		}
		return
	}

	if d.Status.Terminal() {
		// replayed or late notification; keep the settled state
		err = tx.Commit(ctx)
		return
	}

	now := time.Now().UTC()

	err = r.observe("donations.apply_gateway_result.update", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE donations
			SET status = $2, gateway_order_id = $3, gateway_payment_id = $4, gateway_signature = $5, updated_at = $6
			WHERE id = $1
		`, id, string(res.Status), res.OrderID, res.PaymentID, res.Signature, now)
		return e
	})

	if err != nil {
		return
	}

	err = tx.Commit(ctx)
	if err != nil {
		return
	}

	d.Status = res.Status
	d.GatewayOrderID = res.OrderID
	d.GatewayPaymentID = res.PaymentID
	d.GatewaySignature = res.Signature
	d.UpdatedAt = now
	applied = true
	return
}

func (r *DonationsRepo) ListByUser(ctx context.Context, userID string) (donations []donation.Donation, err error) {
	var rows pgx.Rows

	err = r.observe("donations.list_by_user", func() error {
		var e error
		rows, e = r.pool.Query(ctx,
			`SELECT `+donationColumns+` FROM donations WHERE user_id = $1 ORDER BY created_at DESC`,
			userID,
		)
		return e
	})

	if err != nil {
		return
	}

	defer rows.Close()

	donations = make([]donation.Donation, 0)

	for rows.Next() {
		d, e := scanDonation(rows)
		if e != nil {
			err = e
			return
		}
		donations = append(donations, d)
	}

	err = rows.Err()
	return
}

// DonationWithDonor joins a donation with the owning user for the
// admin donation list.
type DonationWithDonor struct {
	Donation   donation.Donation
	DonorID    string
	DonorName  string
	DonorEmail string
}

func (r *DonationsRepo) ListAllWithDonor(ctx context.Context) (out []DonationWithDonor, err error) {
	var rows pgx.Rows

	err = r.observe("donations.list_all_with_donor", func() error {
		var e error
		rows, e = r.pool.Query(ctx, `
			SELECT d.id, d.user_id, d.amount, d.status, d.gateway,
				COALESCE(d.gateway_order_id, ''), COALESCE(d.gateway_payment_id, ''), COALESCE(d.gateway_signature, ''),
				d.created_at, d.updated_at,
				u.id, u.name, u.email
			FROM donations d
			JOIN users u ON u.id = d.user_id
			ORDER BY d.created_at DESC
		`)
		return e
	})

	if err != nil {
		return
	}

	defer rows.Close()

	out = make([]DonationWithDonor, 0)

	for rows.Next() {
		var row DonationWithDonor
		var status string

		e := rows.Scan(
			&row.Donation.ID, &row.Donation.UserID, &row.Donation.Amount, &status, &row.Donation.Gateway,
			&row.Donation.GatewayOrderID, &row.Donation.GatewayPaymentID, &row.Donation.GatewaySignature,
			&row.Donation.CreatedAt, &row.Donation.UpdatedAt,
			&row.DonorID, &row.DonorName, &row.DonorEmail,
		)
		if e != nil {
			err = e
			return
		}

		row.Donation.Status = donation.Status(status)
		out = append(out, row)
	}

	err = rows.Err()
	return
}

// UserStats aggregates one user's donations for the profile and
// history endpoints. Amounts in minor units.
type UserStats struct {
	TotalDonations      int
	SuccessfulDonations int
	SuccessfulAmount    int64
}

func (r *DonationsRepo) StatsForUser(ctx context.Context, userID string) (UserStats, error) {
	var s UserStats

	err := r.observe("donations.stats_for_user", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT COUNT(*),
				COUNT(*) FILTER (WHERE status = 'SUCCESS'),
				COALESCE(SUM(amount) FILTER (WHERE status = 'SUCCESS'), 0)
			FROM donations
			WHERE user_id = $1
		`, userID).Scan(&s.TotalDonations, &s.SuccessfulDonations, &s.SuccessfulAmount)
	})

	return s, err
}

// GlobalStats aggregates all donations for the admin dashboard.
// Amounts in minor units.
type GlobalStats struct {
	TotalDonations      int
	TotalAmount         int64
	SuccessfulDonations int
	SuccessfulAmount    int64
	ByStatus            map[donation.Status]int
}

func (r *DonationsRepo) GlobalStats(ctx context.Context) (GlobalStats, error) {
	s := GlobalStats{ByStatus: make(map[donation.Status]int)}

	err := r.observe("donations.global_stats", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT COUNT(*),
				COALESCE(SUM(amount), 0),
				COUNT(*) FILTER (WHERE status = 'SUCCESS'),
				COALESCE(SUM(amount) FILTER (WHERE status = 'SUCCESS'), 0)
			FROM donations
		`).Scan(&s.TotalDonations, &s.TotalAmount, &s.SuccessfulDonations, &s.SuccessfulAmount)
	})

	if err != nil {
		return GlobalStats{}, err
	}

	var rows pgx.Rows

	err = r.observe("donations.global_stats.by_status", func() error {
		var e error
		rows, e = r.pool.Query(ctx, `SELECT status, COUNT(*) FROM donations GROUP BY status`)
		return e
	})

	if err != nil {
		return GlobalStats{}, err
	}

	defer rows.Close()

	for rows.Next() {
		var status string
		var count int

		if e := rows.Scan(&status, &count); e != nil {
			return GlobalStats{}, e
		}
		s.ByStatus[donation.Status(status)] = count
	}

	if e := rows.Err(); e != nil {
		return GlobalStats{}, e
	}

	return s, nil
}

// TopDonor is one row of the "top donors" dashboard widget.
type TopDonor struct {
	UserID string
	Name   string
	Email  string
	// Successful amount in minor units.
	TotalAmount   int64
	DonationCount int
}

func (r *DonationsRepo) TopDonors(ctx context.Context, limit int) (out []TopDonor, err error) {
	var rows pgx.Rows

	err = r.observe("donations.top_donors", func() error {
		var e error
		rows, e = r.pool.Query(ctx, `
			SELECT u.id, u.name, u.email, SUM(d.amount) AS total, COUNT(d.id)
			FROM donations d
			JOIN users u ON u.id = d.user_id
			WHERE d.status = 'SUCCESS'
			GROUP BY u.id
			ORDER BY total DESC
			LIMIT $1
		`, limit)
		return e
	})

	if err != nil {
		return
	}

	defer rows.Close()

	out = make([]TopDonor, 0, limit)

	for rows.Next() {
		var t TopDonor

		if e := rows.Scan(&t.UserID, &t.Name, &t.Email, &t.TotalAmount, &t.DonationCount); e != nil {
			err = e
			return
		}
		out = append(out, t)
	}

	err = rows.Err()
	return
}
