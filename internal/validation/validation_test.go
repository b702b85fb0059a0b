package validation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/lombard-system/internal/normalize"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func legacyPayload() map[string]any {
	return map[string]any{
		"customerId":   json.Number("7"),
		"ornamentType": "necklace",
		"grossWeight":  "10.5",
		"stoneWeight":  "0.5",
		"purity":       "22K",
		"goldRate":     "5500",
		"loanAmount":   "40000",
		"interestRate": "12",
		"tenure":       "6",
		"startDate":    "2024-01-01",
	}
}

func TestValidate_ValidLegacyPayload(t *testing.T) {
	validated, violations := Validate(normalize.Normalize(legacyPayload()), testNow)

	require.Empty(t, violations)
	require.NotNil(t, validated)

	assert.Equal(t, int64(7), validated.CustomerID)
	assert.Equal(t, "necklace", validated.OrnamentType)
	assert.True(t, validated.GrossWeightGrams.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, validated.StoneWeightGrams.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, "22K", validated.Purity)
	assert.True(t, validated.PrincipalAmount.Equal(decimal.RequireFromString("40000")))
	assert.Equal(t, int64(6), validated.TenureMonths)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), validated.StartDate)
}

func violationFields(violations []Violation) []string {
	fields := make([]string, 0, len(violations))
	for _, v := range violations {
		fields = append(fields, v.Field)
	}
	return fields
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	payload := legacyPayload()
	payload["loanAmount"] = "-40000"
	delete(payload, "purity")

	validated, violations := Validate(normalize.Normalize(payload), testNow)

	require.Nil(t, validated)
	require.Len(t, violations, 2)
	assert.Contains(t, violationFields(violations), "principal_amount")
	assert.Contains(t, violationFields(violations), "purity")
}

func TestValidate_MissingGoldRate(t *testing.T) {
	payload := legacyPayload()
	delete(payload, "goldRate")

	validated, violations := Validate(normalize.Normalize(payload), testNow)

	require.Nil(t, validated)
	require.Len(t, violations, 1)
	assert.Equal(t, "gold_rate_per_gram", violations[0].Field)
	assert.Equal(t, "is required", violations[0].Reason)
}

func TestValidate_StoneExceedsGross(t *testing.T) {
	// нарушение должно фиксироваться независимо от кодировки значений
	for _, payload := range []map[string]any{
		{"grossWeight": "10", "stoneWeight": "12"},
		{"grossWeight": json.Number("10"), "stoneWeight": json.Number("12")},
	} {
		p := legacyPayload()
		p["grossWeight"] = payload["grossWeight"]
		p["stoneWeight"] = payload["stoneWeight"]

		validated, violations := Validate(normalize.Normalize(p), testNow)

		require.Nil(t, validated)
		require.Len(t, violations, 1)
		assert.Equal(t, "stone_weight_grams", violations[0].Field)
		assert.Equal(t, "must not exceed gross_weight_grams", violations[0].Reason)
	}
}

func TestValidate_InvalidValueIsNotSwallowed(t *testing.T) {
	payload := legacyPayload()
	payload["goldRate"] = "oops"

	validated, violations := Validate(normalize.Normalize(payload), testNow)

	require.Nil(t, validated)
	require.Len(t, violations, 1)
	assert.Equal(t, "gold_rate_per_gram", violations[0].Field)
	assert.Equal(t, "must be a number", violations[0].Reason)
}

func TestValidate_UnknownPurity(t *testing.T) {
	payload := legacyPayload()
	payload["purity"] = "23K"

	_, violations := Validate(normalize.Normalize(payload), testNow)

	require.Len(t, violations, 1)
	assert.Equal(t, "purity", violations[0].Field)
}

func TestValidate_StartDateTolerance(t *testing.T) {
	payload := legacyPayload()
	payload["startDate"] = testNow.Add(12 * time.Hour).Format(time.RFC3339)

	_, violations := Validate(normalize.Normalize(payload), testNow)
	assert.Empty(t, violations)

	payload["startDate"] = testNow.Add(48 * time.Hour).Format(time.RFC3339)

	_, violations = Validate(normalize.Normalize(payload), testNow)
	require.Len(t, violations, 1)
	assert.Equal(t, "start_date", violations[0].Field)
	assert.Equal(t, "must not be in the future", violations[0].Reason)
}

func TestValidate_NonPositiveValues(t *testing.T) {
	payload := legacyPayload()
	payload["customerId"] = json.Number("0")
	payload["tenure"] = "-1"
	payload["interestRate"] = "-0.5"

	_, violations := Validate(normalize.Normalize(payload), testNow)

	fields := violationFields(violations)
	require.Len(t, violations, 3)
	assert.Contains(t, fields, "customer_id")
	assert.Contains(t, fields, "tenure_months")
	assert.Contains(t, fields, "interest_rate_percent")
}

// повторная валидация уже проверенной заявки ничего не меняет
func TestValidate_Idempotent(t *testing.T) {
	validated, violations := Validate(normalize.Normalize(legacyPayload()), testNow)
	require.Empty(t, violations)

	roundTrip := map[string]any{
		"customer_id":           json.Number("7"),
		"ornament_type":         validated.OrnamentType,
		"gross_weight_grams":    validated.GrossWeightGrams.String(),
		"stone_weight_grams":    validated.StoneWeightGrams.String(),
		"purity":                validated.Purity,
		"gold_rate_per_gram":    validated.GoldRatePerGram.String(),
		"principal_amount":      validated.PrincipalAmount.String(),
		"interest_rate_percent": validated.InterestRatePercent.String(),
		"tenure_months":         json.Number("6"),
		"start_date":            validated.StartDate.Format(time.RFC3339),
	}

	again, violations := Validate(normalize.Normalize(roundTrip), testNow)
	require.Empty(t, violations)
	require.NotNil(t, again)
	assert.Equal(t, *validated, *again)
}

func TestValidate_CrossFieldCheckSkippedWhenGrossMissing(t *testing.T) {
	payload := legacyPayload()
	delete(payload, "grossWeight")

	_, violations := Validate(normalize.Normalize(payload), testNow)

	require.Len(t, violations, 1)
	assert.Equal(t, "gross_weight_grams", violations[0].Field)
}
