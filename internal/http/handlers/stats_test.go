package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavinduw/donorhub/internal/cache"
	"github.com/kavinduw/donorhub/internal/domain/donation"
	"github.com/kavinduw/donorhub/internal/domain/user"
	"github.com/kavinduw/donorhub/internal/http/handlers"
	"github.com/kavinduw/donorhub/internal/repo/postgres"
)

type fakeReporter struct {
	globalCalls int
	globalFn    func(ctx context.Context) (postgres.GlobalStats, error)
	topFn       func(ctx context.Context, limit int) ([]postgres.TopDonor, error)
	listAllFn   func(ctx context.Context) ([]postgres.DonationWithDonor, error)
}

func (f *fakeReporter) GlobalStats(ctx context.Context) (postgres.GlobalStats, error) {
	f.globalCalls++
	if f.globalFn != nil {
		return f.globalFn(ctx)
	}
	return postgres.GlobalStats{ByStatus: map[donation.Status]int{}}, nil
}

func (f *fakeReporter) TopDonors(ctx context.Context, limit int) ([]postgres.TopDonor, error) {
	if f.topFn != nil {
		return f.topFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeReporter) ListAllWithDonor(ctx context.Context) ([]postgres.DonationWithDonor, error) {
	if f.listAllFn != nil {
		return f.listAllFn(ctx)
	}
	return nil, nil
}

type fakeCounter struct {
	countFn func(ctx context.Context, role user.Role) (int, error)
}

func (f *fakeCounter) CountByRole(ctx context.Context, role user.Role) (int, error) {
	if f.countFn != nil {
		return f.countFn(ctx, role)
	}
	return 0, nil
}

func statsRouter(h *handlers.StatsHandler) *gin.Engine {
	r := gin.New()
	r.GET("/donations/stats", h.DonationStats)
	r.GET("/admins/donations", h.AllDonations)
	r.GET("/stats/registrations", h.RegistrationStats)
	return r
}

func TestDonationStats(t *testing.T) {
	reporter := &fakeReporter{
		globalFn: func(context.Context) (postgres.GlobalStats, error) {
			return postgres.GlobalStats{
				TotalDonations:      3,
				TotalAmount:         125050,
				SuccessfulDonations: 2,
				SuccessfulAmount:    100000,
				ByStatus: map[donation.Status]int{
					donation.StatusSuccess: 2,
					donation.StatusFailed:  1,
				},
			}, nil
		},
		topFn: func(_ context.Context, limit int) ([]postgres.TopDonor, error) {
			if limit != 5 {
				t.Fatalf("top donor limit = %d, want 5", limit)
			}
			return []postgres.TopDonor{
				{UserID: "u1", Name: "Amal Perera", Email: "amal@example.com", TotalAmount: 75000, DonationCount: 2},
			}, nil
		},
	}

	h := handlers.NewStatsHandler(reporter, &fakeCounter{}, nil)
	r := statsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/donations/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		TotalDonations       int             `json:"totalDonations"`
		TotalAmountCollected float64         `json:"totalAmountCollected"`
		SuccessRate          float64         `json:"successRate"`
		ByStatus             map[string]int  `json:"byStatus"`
		TopDonors            []struct {
			TotalAmount float64 `json:"totalAmount"`
		} `json:"topDonors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.TotalDonations != 3 {
		t.Fatalf("totalDonations = %d", resp.TotalDonations)
	}
	if resp.TotalAmountCollected != 1250.50 {
		t.Fatalf("totalAmountCollected = %v, want 1250.50", resp.TotalAmountCollected)
	}
	if resp.SuccessRate != 66.67 {
		t.Fatalf("successRate = %v, want 66.67", resp.SuccessRate)
	}
	if resp.ByStatus["SUCCESS"] != 2 || resp.ByStatus["FAILED"] != 1 {
		t.Fatalf("byStatus = %v", resp.ByStatus)
	}
	if len(resp.TopDonors) != 1 || resp.TopDonors[0].TotalAmount != 750 {
		t.Fatalf("topDonors = %+v", resp.TopDonors)
	}
}

func TestDonationStatsCaching(t *testing.T) {
	reporter := &fakeReporter{}
	h := handlers.NewStatsHandler(reporter, &fakeCounter{}, cache.New(time.Minute))
	r := statsRouter(h)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/donations/stats", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}

	if reporter.globalCalls != 1 {
		t.Fatalf("repo hit %d times, want the cache to absorb repeats", reporter.globalCalls)
	}
}

func TestRegistrationStats(t *testing.T) {
	counter := &fakeCounter{
		countFn: func(_ context.Context, role user.Role) (int, error) {
			if role != user.RoleMember {
				t.Fatalf("counted role %s, want MEMBER", role)
			}
			return 42, nil
		},
	}

	h := handlers.NewStatsHandler(&fakeReporter{}, counter, nil)
	r := statsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/stats/registrations", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 42 {
		t.Fatalf("total = %d, want 42", resp.Total)
	}
}

func TestAllDonations(t *testing.T) {
	now := time.Now().UTC()

	reporter := &fakeReporter{
		listAllFn: func(context.Context) ([]postgres.DonationWithDonor, error) {
			return []postgres.DonationWithDonor{
				{
					Donation: donation.Donation{
						ID: "d1", UserID: "u1", Amount: 50000,
						Status: donation.StatusSuccess, Gateway: "PAYHERE",
						CreatedAt: now, UpdatedAt: now,
					},
					DonorID:    "u1",
					DonorName:  "Amal Perera",
					DonorEmail: "amal@example.com",
				},
			}, nil
		},
	}

	h := handlers.NewStatsHandler(reporter, &fakeCounter{}, nil)
	r := statsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/admins/donations", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Total     int `json:"total"`
		Donations []struct {
			Amount float64 `json:"amount"`
			User   struct {
				Email string `json:"email"`
			} `json:"user"`
		} `json:"donations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	if resp.Total != 1 || len(resp.Donations) != 1 {
		t.Fatalf("unexpected payload %+v", resp)
	}
	if resp.Donations[0].Amount != 500 || resp.Donations[0].User.Email != "amal@example.com" {
		t.Fatalf("row = %+v", resp.Donations[0])
	}
}
