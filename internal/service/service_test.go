package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/lombard-system/internal/cache"
	"github.com/mmeshcher/lombard-system/internal/model"
	"github.com/mmeshcher/lombard-system/internal/rates"
)

type stubRepo struct {
	createDueDate time.Time
	createResp    *model.Loan
	createErr     error

	loans    []model.Loan
	loansErr error

	loan    *model.Loan
	loanErr error

	closeResp *model.Loan
	closeErr  error

	markedOverdue int64
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateLoan(ctx context.Context, shopID int64, req model.ValidatedLoanRequest, dueDate time.Time) (*model.Loan, error) {
	s.createDueDate = dueDate
	return s.createResp, s.createErr
}

func (s *stubRepo) GetLoansByShop(ctx context.Context, shopID int64, status string) ([]model.Loan, error) {
	return s.loans, s.loansErr
}

func (s *stubRepo) GetLoanByID(ctx context.Context, shopID, loanID int64) (*model.Loan, error) {
	return s.loan, s.loanErr
}

func (s *stubRepo) GetLoansByCustomer(ctx context.Context, shopID, customerID int64) ([]model.Loan, error) {
	return s.loans, s.loansErr
}

func (s *stubRepo) GetOverdueLoans(ctx context.Context, shopID int64, now time.Time) ([]model.Loan, error) {
	return s.loans, s.loansErr
}

func (s *stubRepo) CloseLoan(ctx context.Context, shopID, loanID int64, closedAt time.Time) (*model.Loan, error) {
	return s.closeResp, s.closeErr
}

func (s *stubRepo) MarkOverdueLoans(ctx context.Context, now time.Time) (int64, error) {
	return s.markedOverdue, nil
}

func TestCreateLoan_ComputesDueDate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		createResp: &model.Loan{ID: 1},
	}
	svc := NewService(repo, nil, nil)

	req := model.ValidatedLoanRequest{
		TenureMonths: 6,
		StartDate:    start,
	}

	_, err := svc.CreateLoan(context.Background(), 42, req)
	if err != nil {
		t.Fatalf("CreateLoan error: %v", err)
	}

	want := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if !repo.createDueDate.Equal(want) {
		t.Fatalf("due date = %v, want %v", repo.createDueDate, want)
	}
}

func TestGetLoans_UnknownStatus(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	_, err := svc.GetLoans(context.Background(), 42, "WEIRD")
	if !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestGetLoans_ValidStatusPassThrough(t *testing.T) {
	repo := &stubRepo{
		loans: []model.Loan{{ID: 1, Status: model.LoanStatusActive}},
	}
	svc := NewService(repo, nil, nil)

	loans, err := svc.GetLoans(context.Background(), 42, "ACTIVE")
	if err != nil {
		t.Fatalf("GetLoans error: %v", err)
	}
	if len(loans) != 1 || loans[0].ID != 1 {
		t.Fatalf("unexpected loans: %+v", loans)
	}
}

func TestAccruedInterest_SimpleInterest(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	loan := model.Loan{
		PrincipalAmount:     decimal.RequireFromString("40000"),
		InterestRatePercent: decimal.RequireFromString("12"),
		StartDate:           start,
	}

	// 365 дней под 12% годовых — ровно 4800
	got := AccruedInterest(loan, start.AddDate(1, 0, 0))
	want := decimal.RequireFromString("4800")
	if !got.Equal(want) {
		t.Fatalf("interest = %s, want %s", got, want)
	}
}

func TestAccruedInterest_BeforeStart(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loan := model.Loan{
		PrincipalAmount:     decimal.RequireFromString("40000"),
		InterestRatePercent: decimal.RequireFromString("12"),
		StartDate:           start,
	}

	got := AccruedInterest(loan, start.AddDate(0, 0, -10))
	if !got.Equal(decimal.Zero) {
		t.Fatalf("interest = %s, want 0", got)
	}
}

func TestAccruedInterest_StopsAtClose(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closedAt := start.AddDate(1, 0, 0)
	loan := model.Loan{
		PrincipalAmount:     decimal.RequireFromString("40000"),
		InterestRatePercent: decimal.RequireFromString("12"),
		StartDate:           start,
		ClosedAt:            &closedAt,
	}

	afterClose := AccruedInterest(loan, closedAt.AddDate(1, 0, 0))
	atClose := AccruedInterest(loan, closedAt)
	if !afterClose.Equal(atClose) {
		t.Fatalf("interest after close = %s, want %s", afterClose, atClose)
	}
}

func TestTotalDue(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	loan := model.Loan{
		PrincipalAmount:     decimal.RequireFromString("40000"),
		InterestRatePercent: decimal.RequireFromString("12"),
		StartDate:           start,
	}

	got := TotalDue(loan, start.AddDate(1, 0, 0))
	want := decimal.RequireFromString("44800")
	if !got.Equal(want) {
		t.Fatalf("total due = %s, want %s", got, want)
	}
}

func TestCurrentGoldRate_CacheHit(t *testing.T) {
	rate := model.GoldRate{
		PerGram:   decimal.RequireFromString("5500.5"),
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	raw, err := json.Marshal(rate)
	if err != nil {
		t.Fatalf("marshal rate: %v", err)
	}

	rateCache := cache.NewMemoryCache()
	if err := rateCache.Set(goldRateCacheKey, string(raw), 0); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	// клиент котировок nil: попадание в кэш не должно его трогать
	svc := NewService(&stubRepo{}, nil, rateCache)

	got, err := svc.CurrentGoldRate(context.Background())
	if err != nil {
		t.Fatalf("CurrentGoldRate error: %v", err)
	}
	if !got.PerGram.Equal(rate.PerGram) {
		t.Fatalf("rate = %s, want %s", got.PerGram, rate.PerGram)
	}
}

func TestCurrentGoldRate_FetchesAndCaches(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rate_per_gram":"6100.25","updated_at":"2024-06-01T12:00:00Z"}`))
	}))
	defer ts.Close()

	rateCache := cache.NewMemoryCache()
	svc := NewService(&stubRepo{}, rates.NewClient(ts.URL), rateCache)

	got, err := svc.CurrentGoldRate(context.Background())
	if err != nil {
		t.Fatalf("CurrentGoldRate error: %v", err)
	}
	if !got.PerGram.Equal(decimal.RequireFromString("6100.25")) {
		t.Fatalf("unexpected rate: %s", got.PerGram)
	}

	if _, ok := rateCache.Get(goldRateCacheKey); !ok {
		t.Fatalf("rate was not cached")
	}
}

func TestStartOverdueSweeps_NilRepo(t *testing.T) {
	svc := &Service{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		svc.StartOverdueSweeps(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("StartOverdueSweeps did not return without repo")
	}
}
