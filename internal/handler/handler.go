// Package handler содержит HTTP-обработчики API сервиса ломбарда.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/lombard-system/internal/middleware"
	"github.com/mmeshcher/lombard-system/internal/model"
	"github.com/mmeshcher/lombard-system/internal/normalize"
	"github.com/mmeshcher/lombard-system/internal/repository"
	"github.com/mmeshcher/lombard-system/internal/service"
	"github.com/mmeshcher/lombard-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateLoan(ctx context.Context, shopID int64, req model.ValidatedLoanRequest) (*model.Loan, error)
	GetLoans(ctx context.Context, shopID int64, status string) ([]model.Loan, error)
	GetLoanByID(ctx context.Context, shopID, loanID int64) (*model.Loan, error)
	GetLoansByCustomer(ctx context.Context, shopID, customerID int64) ([]model.Loan, error)
	GetOverdueLoans(ctx context.Context, shopID int64) ([]model.Loan, error)
	CloseLoan(ctx context.Context, shopID, loanID int64) (*model.Loan, error)
	CurrentGoldRate(ctx context.Context) (*model.GoldRate, error)
}

// Handler реализует HTTP-обработчики API сервиса ломбарда.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type validationErrorResponse struct {
	Error   string                 `json:"error"`
	Details []validation.Violation `json:"details"`
}

type loanResponse struct {
	ID                  int64           `json:"id"`
	CustomerID          int64           `json:"customer_id"`
	OrnamentType        string          `json:"ornament_type"`
	GrossWeightGrams    decimal.Decimal `json:"gross_weight_grams"`
	StoneWeightGrams    decimal.Decimal `json:"stone_weight_grams"`
	NetWeightGrams      decimal.Decimal `json:"net_weight_grams"`
	Purity              string          `json:"purity"`
	GoldRatePerGram     decimal.Decimal `json:"gold_rate_per_gram"`
	PrincipalAmount     decimal.Decimal `json:"principal_amount"`
	InterestRatePercent decimal.Decimal `json:"interest_rate_percent"`
	TenureMonths        int64           `json:"tenure_months"`
	StartDate           string          `json:"start_date"`
	DueDate             string          `json:"due_date"`
	Status              string          `json:"status"`
	InterestAccrued     decimal.Decimal `json:"interest_accrued"`
	TotalDue            decimal.Decimal `json:"total_due"`
	ClosedAt            *string         `json:"closed_at,omitempty"`
	CreatedAt           string          `json:"created_at"`
}

func newLoanResponse(l model.Loan, now time.Time) loanResponse {
	resp := loanResponse{
		ID:                  l.ID,
		CustomerID:          l.CustomerID,
		OrnamentType:        l.OrnamentType,
		GrossWeightGrams:    l.GrossWeightGrams,
		StoneWeightGrams:    l.StoneWeightGrams,
		NetWeightGrams:      l.NetWeightGrams(),
		Purity:              l.Purity,
		GoldRatePerGram:     l.GoldRatePerGram,
		PrincipalAmount:     l.PrincipalAmount,
		InterestRatePercent: l.InterestRatePercent,
		TenureMonths:        l.TenureMonths,
		StartDate:           l.StartDate.Format(time.RFC3339),
		DueDate:             l.DueDate.Format(time.RFC3339),
		Status:              string(l.Status),
		InterestAccrued:     service.AccruedInterest(l, now),
		TotalDue:            service.TotalDue(l, now),
		CreatedAt:           l.CreatedAt.Format(time.RFC3339),
	}
	if l.ClosedAt != nil {
		closedAt := l.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &closedAt
	}
	return resp
}

func newLoanListResponse(loans []model.Loan, now time.Time) []loanResponse {
	resp := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		resp = append(resp, newLoanResponse(l, now))
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}

// CreateLoan принимает заявку на займ в произвольном клиентском формате,
// нормализует и валидирует её и передаёт доменному сервису.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	shopID, ok := middleware.GetShopIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	draft := normalize.Normalize(raw)

	validated, violations := validation.Validate(draft, time.Now())
	if len(violations) > 0 {
		writeJSON(w, http.StatusBadRequest, validationErrorResponse{
			Error:   "Validation failed",
			Details: violations,
		})
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), shopID, *validated)
	if err != nil {
		h.logger.Error("create loan error", zap.Error(err), zap.Int64("shopID", shopID))
		writeError(w, http.StatusBadRequest, "failed to create loan")
		return
	}

	writeJSON(w, http.StatusCreated, newLoanResponse(*loan, time.Now()))
}

// GetLoans возвращает займы магазина, при необходимости фильтруя по статусу.
func (h *Handler) GetLoans(w http.ResponseWriter, r *http.Request) {
	shopID, ok := middleware.GetShopIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	status := r.URL.Query().Get("status")

	loans, err := h.service.GetLoans(r.Context(), shopID, status)
	if err != nil {
		if errors.Is(err, service.ErrUnknownStatus) {
			writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		h.logger.Error("get loans error", zap.Error(err), zap.Int64("shopID", shopID))
		writeError(w, http.StatusInternalServerError, "failed to fetch loans")
		return
	}

	writeJSON(w, http.StatusOK, newLoanListResponse(loans, time.Now()))
}

// GetLoan возвращает займ магазина по идентификатору.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	shopID, ok := middleware.GetShopIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	loanID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	loan, err := h.service.GetLoanByID(r.Context(), shopID, loanID)
	if err != nil {
		if errors.Is(err, repository.ErrLoanNotFound) {
			writeError(w, http.StatusNotFound, "Loan not found")
			return
		}
		h.logger.Error("get loan error", zap.Error(err), zap.Int64("loanID", loanID))
		writeError(w, http.StatusInternalServerError, "failed to fetch loan")
		return
	}

	writeJSON(w, http.StatusOK, newLoanResponse(*loan, time.Now()))
}

// GetCustomerLoans возвращает займы одного клиента магазина.
func (h *Handler) GetCustomerLoans(w http.ResponseWriter, r *http.Request) {
	shopID, ok := middleware.GetShopIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	loans, err := h.service.GetLoansByCustomer(r.Context(), shopID, customerID)
	if err != nil {
		h.logger.Error("get customer loans error", zap.Error(err), zap.Int64("customerID", customerID))
		writeError(w, http.StatusInternalServerError, "failed to fetch customer loans")
		return
	}

	writeJSON(w, http.StatusOK, newLoanListResponse(loans, time.Now()))
}

// GetOverdueLoans возвращает просроченные займы магазина.
func (h *Handler) GetOverdueLoans(w http.ResponseWriter, r *http.Request) {
	shopID, ok := middleware.GetShopIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	loans, err := h.service.GetOverdueLoans(r.Context(), shopID)
	if err != nil {
		h.logger.Error("get overdue loans error", zap.Error(err), zap.Int64("shopID", shopID))
		writeError(w, http.StatusInternalServerError, "failed to fetch overdue loans")
		return
	}

	writeJSON(w, http.StatusOK, newLoanListResponse(loans, time.Now()))
}

// CloseLoan закрывает займ магазина.
func (h *Handler) CloseLoan(w http.ResponseWriter, r *http.Request) {
	shopID, ok := middleware.GetShopIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	loanID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	loan, err := h.service.CloseLoan(r.Context(), shopID, loanID)
	if err != nil {
		if errors.Is(err, repository.ErrLoanNotFound) {
			writeError(w, http.StatusNotFound, "Loan not found")
			return
		}
		if errors.Is(err, repository.ErrLoanAlreadyClosed) {
			writeError(w, http.StatusBadRequest, "loan already closed")
			return
		}
		h.logger.Error("close loan error", zap.Error(err), zap.Int64("loanID", loanID))
		writeError(w, http.StatusBadRequest, "failed to close loan")
		return
	}

	writeJSON(w, http.StatusOK, newLoanResponse(*loan, time.Now()))
}

// GetGoldRate возвращает текущую котировку золота.
func (h *Handler) GetGoldRate(w http.ResponseWriter, r *http.Request) {
	_, ok := middleware.GetShopIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	rate, err := h.service.CurrentGoldRate(r.Context())
	if err != nil {
		h.logger.Error("get gold rate error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch gold rate")
		return
	}

	writeJSON(w, http.StatusOK, rate)
}
