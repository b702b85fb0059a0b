// Package validation содержит проверку бизнес-ограничений канонического
// черновика заявки на займ.
package validation

import (
	"time"

	"github.com/mmeshcher/lombard-system/internal/model"
	"github.com/mmeshcher/lombard-system/internal/normalize"
)

// Violation описывает нарушение ограничения для одного канонического поля.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// startDateFutureTolerance — допустимое опережение даты начала займа
// относительно текущего момента.
const startDateFutureTolerance = 24 * time.Hour

// допустимые пробы металла
var validPurities = []string{"24K", "22K", "20K", "18K"}

// Validate проверяет черновик и возвращает либо проверенную заявку, либо
// полный список нарушений. Проверки не прерываются на первой ошибке:
// вызывающая сторона получает все нарушения за один запрос. Ошибки
// нормализации (отсутствующие и некорректные значения) попадают в тот же
// список, что и нарушения бизнес-правил.
func Validate(d normalize.Draft, now time.Time) (*model.ValidatedLoanRequest, []Violation) {
	var violations []Violation

	addState := func(field string, state normalize.State, typeReason string) bool {
		switch state {
		case normalize.Missing:
			violations = append(violations, Violation{Field: field, Reason: "is required"})
			return false
		case normalize.Invalid:
			violations = append(violations, Violation{Field: field, Reason: typeReason})
			return false
		}
		return true
	}
	add := func(field, reason string) {
		violations = append(violations, Violation{Field: field, Reason: reason})
	}

	if addState("customer_id", d.CustomerID.State, "must be an integer") {
		if d.CustomerID.Value <= 0 {
			add("customer_id", "must be a positive integer")
		}
	}

	addState("ornament_type", d.OrnamentType.State, "must be a non-empty string")

	if addState("gross_weight_grams", d.GrossWeightGrams.State, "must be a number") {
		if !d.GrossWeightGrams.Value.IsPositive() {
			add("gross_weight_grams", "must be greater than zero")
		}
	}

	if addState("stone_weight_grams", d.StoneWeightGrams.State, "must be a number") {
		if d.StoneWeightGrams.Value.IsNegative() {
			add("stone_weight_grams", "must not be negative")
		} else if d.GrossWeightGrams.State == normalize.Resolved &&
			d.StoneWeightGrams.Value.GreaterThan(d.GrossWeightGrams.Value) {
			add("stone_weight_grams", "must not exceed gross_weight_grams")
		}
	}

	if addState("purity", d.Purity.State, "must be a non-empty string") {
		if !isValidPurity(d.Purity.Value) {
			add("purity", "must be one of 24K, 22K, 20K, 18K")
		}
	}

	if addState("gold_rate_per_gram", d.GoldRatePerGram.State, "must be a number") {
		if !d.GoldRatePerGram.Value.IsPositive() {
			add("gold_rate_per_gram", "must be greater than zero")
		}
	}

	if addState("principal_amount", d.PrincipalAmount.State, "must be a number") {
		if !d.PrincipalAmount.Value.IsPositive() {
			add("principal_amount", "must be greater than zero")
		}
	}

	if addState("interest_rate_percent", d.InterestRatePercent.State, "must be a number") {
		if d.InterestRatePercent.Value.IsNegative() {
			add("interest_rate_percent", "must not be negative")
		}
	}

	if addState("tenure_months", d.TenureMonths.State, "must be an integer") {
		if d.TenureMonths.Value <= 0 {
			add("tenure_months", "must be a positive integer")
		}
	}

	var startDate time.Time
	if addState("start_date", d.StartDate.State, "must be a valid date") {
		t, err := time.Parse(time.RFC3339, d.StartDate.Value)
		if err != nil {
			add("start_date", "must be a valid date")
		} else if t.After(now.Add(startDateFutureTolerance)) {
			add("start_date", "must not be in the future")
		} else {
			startDate = t
		}
	}

	if len(violations) > 0 {
		return nil, violations
	}

	return &model.ValidatedLoanRequest{
		CustomerID:          d.CustomerID.Value,
		OrnamentType:        d.OrnamentType.Value,
		GrossWeightGrams:    d.GrossWeightGrams.Value,
		StoneWeightGrams:    d.StoneWeightGrams.Value,
		Purity:              d.Purity.Value,
		GoldRatePerGram:     d.GoldRatePerGram.Value,
		PrincipalAmount:     d.PrincipalAmount.Value,
		InterestRatePercent: d.InterestRatePercent.Value,
		TenureMonths:        d.TenureMonths.Value,
		StartDate:           startDate,
	}, nil
}

func isValidPurity(p string) bool {
	for _, v := range validPurities {
		if p == v {
			return true
		}
	}
	return false
}
