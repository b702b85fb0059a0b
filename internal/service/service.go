// Package service реализует бизнес-логику сервиса ломбарда.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/lombard-system/internal/cache"
	"github.com/mmeshcher/lombard-system/internal/model"
	"github.com/mmeshcher/lombard-system/internal/rates"
)

// ErrUnknownStatus возвращается при фильтрации займов по неизвестному статусу.
var ErrUnknownStatus = errors.New("unknown loan status")

// ErrRateUnavailable возвращается, когда источник котировок не дал ответа.
var ErrRateUnavailable = errors.New("gold rate unavailable")

const (
	goldRateCacheKey = "gold_rate"
	goldRateCacheTTL = 5 * time.Minute
	overdueSweepTick = 1 * time.Minute
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateLoan(ctx context.Context, shopID int64, req model.ValidatedLoanRequest, dueDate time.Time) (*model.Loan, error)
	GetLoansByShop(ctx context.Context, shopID int64, status string) ([]model.Loan, error)
	GetLoanByID(ctx context.Context, shopID, loanID int64) (*model.Loan, error)
	GetLoansByCustomer(ctx context.Context, shopID, customerID int64) ([]model.Loan, error)
	GetOverdueLoans(ctx context.Context, shopID int64, now time.Time) ([]model.Loan, error)
	CloseLoan(ctx context.Context, shopID, loanID int64, closedAt time.Time) (*model.Loan, error)
	MarkOverdueLoans(ctx context.Context, now time.Time) (int64, error)
}

// Service содержит бизнес-логику сервиса ломбарда.
type Service struct {
	repo        Repository
	ratesClient *rates.Client
	rateCache   cache.RateCache
}

// NewService создаёт новый сервис с указанным репозиторием, клиентом котировок и кэшем.
func NewService(repo Repository, ratesClient *rates.Client, rateCache cache.RateCache) *Service {
	return &Service{
		repo:        repo,
		ratesClient: ratesClient,
		rateCache:   rateCache,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateLoan выдаёт займ по проверенной заявке. Срок возврата — дата начала
// плюс длительность займа в месяцах.
func (s *Service) CreateLoan(ctx context.Context, shopID int64, req model.ValidatedLoanRequest) (*model.Loan, error) {
	dueDate := req.StartDate.AddDate(0, int(req.TenureMonths), 0)
	return s.repo.CreateLoan(ctx, shopID, req, dueDate)
}

// GetLoans возвращает займы магазина, при необходимости фильтруя по статусу.
func (s *Service) GetLoans(ctx context.Context, shopID int64, status string) ([]model.Loan, error) {
	if status != "" && !model.ValidStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatus, status)
	}
	return s.repo.GetLoansByShop(ctx, shopID, status)
}

// GetLoanByID возвращает займ магазина по идентификатору.
func (s *Service) GetLoanByID(ctx context.Context, shopID, loanID int64) (*model.Loan, error) {
	return s.repo.GetLoanByID(ctx, shopID, loanID)
}

// GetLoansByCustomer возвращает займы одного клиента магазина.
func (s *Service) GetLoansByCustomer(ctx context.Context, shopID, customerID int64) ([]model.Loan, error) {
	return s.repo.GetLoansByCustomer(ctx, shopID, customerID)
}

// GetOverdueLoans возвращает просроченные займы магазина.
func (s *Service) GetOverdueLoans(ctx context.Context, shopID int64) ([]model.Loan, error) {
	return s.repo.GetOverdueLoans(ctx, shopID, time.Now())
}

// CloseLoan закрывает займ магазина; повторное закрытие — доменная ошибка.
func (s *Service) CloseLoan(ctx context.Context, shopID, loanID int64) (*model.Loan, error) {
	return s.repo.CloseLoan(ctx, shopID, loanID, time.Now())
}

// AccruedInterest возвращает простые проценты, набежавшие к указанному моменту.
// После закрытия займа проценты не начисляются.
func AccruedInterest(l model.Loan, asOf time.Time) decimal.Decimal {
	if l.ClosedAt != nil && asOf.After(*l.ClosedAt) {
		asOf = *l.ClosedAt
	}
	if !asOf.After(l.StartDate) {
		return decimal.Zero
	}

	days := int64(asOf.Sub(l.StartDate).Hours() / 24)

	// годовая ставка, простые проценты: P * R/100 * дни/365
	return l.PrincipalAmount.
		Mul(l.InterestRatePercent).
		Mul(decimal.NewFromInt(days)).
		Div(decimal.NewFromInt(36500)).
		Round(2)
}

// TotalDue возвращает сумму к погашению: тело займа плюс набежавшие проценты.
func TotalDue(l model.Loan, asOf time.Time) decimal.Decimal {
	return l.PrincipalAmount.Add(AccruedInterest(l, asOf))
}

// CurrentGoldRate возвращает текущую котировку золота, используя кэш и
// обращаясь к внешнему источнику при промахе.
func (s *Service) CurrentGoldRate(ctx context.Context) (*model.GoldRate, error) {
	if s.rateCache != nil {
		if cached, ok := s.rateCache.Get(goldRateCacheKey); ok {
			var rate model.GoldRate
			if err := json.Unmarshal([]byte(cached), &rate); err == nil {
				return &rate, nil
			}
		}
	}

	rate, statusCode, _, err := s.ratesClient.GetGoldRate(ctx)
	if err != nil {
		return nil, err
	}
	if rate == nil || statusCode != http.StatusOK {
		return nil, ErrRateUnavailable
	}

	if s.rateCache != nil {
		if raw, err := json.Marshal(rate); err == nil {
			_ = s.rateCache.Set(goldRateCacheKey, string(raw), goldRateCacheTTL)
		}
	}

	return rate, nil
}

// StartOverdueSweeps запускает фоновый процесс, помечающий займы с истёкшим
// сроком как просроченные.
func (s *Service) StartOverdueSweeps(ctx context.Context) {
	if s.repo == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(overdueSweepTick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.repo.MarkOverdueLoans(ctx, time.Now())
			}
		}
	}()
}
