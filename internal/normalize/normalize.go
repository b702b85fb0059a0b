// Package normalize приводит разнородные клиентские payload'ы заявки на займ
// к единому каноническому виду до любых бизнес-проверок.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// State описывает результат разрешения одного канонического поля.
type State int

const (
	// Resolved — ключ найден и значение приведено к целевому типу.
	Resolved State = iota
	// Missing — ни один из ключей поля в payload'е не встретился.
	Missing
	// Invalid — значение найдено, но не приводится к целевому типу.
	Invalid
)

// IntField — целочисленное поле черновика с состоянием разрешения.
type IntField struct {
	Value int64
	State State
}

// DecimalField — десятичное поле черновика с состоянием разрешения.
type DecimalField struct {
	Value decimal.Decimal
	State State
}

// StringField — строковое поле черновика с состоянием разрешения.
type StringField struct {
	Value string
	State State
}

// Draft — канонический черновик заявки на займ: все поля разрешены,
// отсутствуют или помечены как некорректные, но ещё не проверены валидатором.
type Draft struct {
	CustomerID          IntField
	OrnamentType        StringField
	GrossWeightGrams    DecimalField
	StoneWeightGrams    DecimalField
	Purity              StringField
	GoldRatePerGram     DecimalField
	PrincipalAmount     DecimalField
	InterestRatePercent DecimalField
	TenureMonths        IntField
	StartDate           StringField // RFC3339 после нормализации
}

// fieldKeys задаёт порядок поиска ключей для каждого канонического поля:
// сначала каноническое имя, затем устаревшие варианты. Новое соглашение
// об именовании — это новая строка в таблице, а не новый код.
var fieldKeys = map[string][]string{
	"customer_id":           {"customer_id", "customerId"},
	"ornament_type":         {"ornament_type", "ornamentType"},
	"gross_weight_grams":    {"gross_weight_grams", "grossWeight"},
	"stone_weight_grams":    {"stone_weight_grams", "stoneWeight"},
	"purity":                {"purity"},
	"gold_rate_per_gram":    {"gold_rate_per_gram", "goldRate"},
	"principal_amount":      {"principal_amount", "loanAmount"},
	"interest_rate_percent": {"interest_rate_percent", "interestRate"},
	"tenure_months":         {"tenure_months", "tenure"},
	"start_date":            {"start_date", "startDate"},
}

// допустимые форматы входной даты; на выходе всегда RFC3339 в UTC
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Normalize приводит сырой payload к каноническому черновику. Функция чистая:
// не имеет побочных эффектов и детерминирована относительно входа.
func Normalize(raw map[string]any) Draft {
	return Draft{
		CustomerID:          intField(raw, "customer_id"),
		OrnamentType:        stringField(raw, "ornament_type"),
		GrossWeightGrams:    decimalField(raw, "gross_weight_grams"),
		StoneWeightGrams:    stoneWeight(raw),
		Purity:              stringField(raw, "purity"),
		GoldRatePerGram:     decimalField(raw, "gold_rate_per_gram"),
		PrincipalAmount:     decimalField(raw, "principal_amount"),
		InterestRatePercent: decimalField(raw, "interest_rate_percent"),
		TenureMonths:        intField(raw, "tenure_months"),
		StartDate:           dateField(raw, "start_date"),
	}
}

// lookup ищет значение поля по таблице ключей, первый найденный выигрывает.
func lookup(raw map[string]any, field string) (any, bool) {
	for _, key := range fieldKeys[field] {
		if v, ok := raw[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func intField(raw map[string]any, field string) IntField {
	v, ok := lookup(raw, field)
	if !ok {
		return IntField{State: Missing}
	}
	n, err := coerceInt(v)
	if err != nil {
		return IntField{State: Invalid}
	}
	return IntField{Value: n, State: Resolved}
}

func decimalField(raw map[string]any, field string) DecimalField {
	v, ok := lookup(raw, field)
	if !ok {
		return DecimalField{State: Missing}
	}
	d, err := coerceDecimal(v)
	if err != nil {
		return DecimalField{State: Invalid}
	}
	return DecimalField{Value: d, State: Resolved}
}

// stoneWeight — единственное поле с умолчанием: отсутствие трактуется как ноль.
func stoneWeight(raw map[string]any) DecimalField {
	f := decimalField(raw, "stone_weight_grams")
	if f.State == Missing {
		return DecimalField{Value: decimal.Zero, State: Resolved}
	}
	return f
}

func stringField(raw map[string]any, field string) StringField {
	v, ok := lookup(raw, field)
	if !ok {
		return StringField{State: Missing}
	}
	s, isStr := v.(string)
	s = strings.TrimSpace(s)
	if !isStr || s == "" {
		return StringField{State: Invalid}
	}
	return StringField{Value: s, State: Resolved}
}

func dateField(raw map[string]any, field string) StringField {
	v, ok := lookup(raw, field)
	if !ok {
		return StringField{State: Missing}
	}
	s, isStr := v.(string)
	if !isStr {
		return StringField{State: Invalid}
	}
	t, err := parseDate(strings.TrimSpace(s))
	if err != nil {
		return StringField{State: Invalid}
	}
	return StringField{Value: t.UTC().Format(time.RFC3339), State: Resolved}
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// coerceInt принимает json.Number и строки, отклоняя дробные значения.
func coerceInt(v any) (int64, error) {
	switch val := v.(type) {
	case string:
		return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	case interface{ Int64() (int64, error) }: // json.Number
		return val.Int64()
	default:
		return 0, strconv.ErrSyntax
	}
}

// coerceDecimal принимает json.Number и строки; decimal.NewFromString
// гарантирует конечное число, NaN и мусор дают ошибку.
func coerceDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(val))
	case interface{ String() string }: // json.Number
		return decimal.NewFromString(val.String())
	default:
		return decimal.Decimal{}, strconv.ErrSyntax
	}
}
