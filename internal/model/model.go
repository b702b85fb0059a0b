// Package model содержит доменные сущности сервиса ломбарда.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus описывает статус залогового займа.
type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "ACTIVE"
	LoanStatusOverdue LoanStatus = "OVERDUE"
	LoanStatusClosed  LoanStatus = "CLOSED"
)

// ValidStatus сообщает, является ли строка известным статусом займа.
func ValidStatus(s string) bool {
	switch LoanStatus(s) {
	case LoanStatusActive, LoanStatusOverdue, LoanStatusClosed:
		return true
	}
	return false
}

// ValidatedLoanRequest — проверенная заявка на займ. Только это представление
// принимается доменным сервисом; оно создаётся валидатором и нигде не хранится.
type ValidatedLoanRequest struct {
	CustomerID          int64
	OrnamentType        string
	GrossWeightGrams    decimal.Decimal
	StoneWeightGrams    decimal.Decimal
	Purity              string
	GoldRatePerGram     decimal.Decimal
	PrincipalAmount     decimal.Decimal
	InterestRatePercent decimal.Decimal
	TenureMonths        int64
	StartDate           time.Time
}

// Loan описывает выданный залоговый займ.
type Loan struct {
	ID                  int64
	ShopID              int64
	CustomerID          int64
	OrnamentType        string
	GrossWeightGrams    decimal.Decimal
	StoneWeightGrams    decimal.Decimal
	Purity              string
	GoldRatePerGram     decimal.Decimal
	PrincipalAmount     decimal.Decimal
	InterestRatePercent decimal.Decimal
	TenureMonths        int64
	StartDate           time.Time
	DueDate             time.Time
	Status              LoanStatus
	ClosedAt            *time.Time
	CreatedAt           time.Time
}

// NetWeightGrams возвращает чистый вес металла: полный вес минус вес камней.
func (l Loan) NetWeightGrams() decimal.Decimal {
	return l.GrossWeightGrams.Sub(l.StoneWeightGrams)
}

// GoldRate содержит рыночную стоимость грамма золота на момент обновления.
type GoldRate struct {
	PerGram   decimal.Decimal `json:"rate_per_gram"`
	UpdatedAt time.Time       `json:"updated_at"`
}
