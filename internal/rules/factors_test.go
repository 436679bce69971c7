package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufund-loan-api/internal/models"
)

func intPtr(v int) *int                                       { return &v }
func floatPtr(v float64) *float64                             { return &v }
func citizenPtr(v models.CitizenshipStatus) *models.CitizenshipStatus { return &v }
func programPtr(v models.ProgramStatus) *models.ProgramStatus { return &v }

func TestEvaluateCreditScoreBands(t *testing.T) {
	approved := EvaluateCreditScore(intPtr(720))
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, 1.0, approved.Score)
	assert.Empty(t, approved.Reason)

	denied := EvaluateCreditScore(intPtr(550))
	assert.Equal(t, StatusDenied, denied.Status)
	assert.Equal(t, 0.0, denied.Score)
	assert.Equal(t, models.ReasonCreditScore, denied.Reason)

	mid := EvaluateCreditScore(intPtr(630))
	assert.Equal(t, StatusConsideration, mid.Status)
	assert.InDelta(t, 0.5, mid.Score, 0.001)
	assert.Empty(t, mid.Reason)
}

func TestEvaluateCreditScoreMissing(t *testing.T) {
	result := EvaluateCreditScore(nil)
	assert.Equal(t, StatusConsideration, result.Status)
	assert.Equal(t, 0.5, result.Score)
}

func TestEvaluateDebtToIncomeInverted(t *testing.T) {
	assert.Equal(t, StatusApproved, EvaluateDebtToIncome(floatPtr(0.25)).Status)
	assert.Equal(t, StatusDenied, EvaluateDebtToIncome(floatPtr(0.60)).Status)

	mid := EvaluateDebtToIncome(floatPtr(0.455))
	assert.Equal(t, StatusConsideration, mid.Status)
	assert.InDelta(t, 0.5, mid.Score, 0.001)
}

func TestWeightedFactorMonotonicity(t *testing.T) {
	prev := -1.0
	for score := 500; score <= 800; score += 10 {
		result := EvaluateCreditScore(intPtr(score))
		require.GreaterOrEqual(t, result.Score, prev, "credit score %d", score)
		prev = result.Score
	}

	prev = -1.0
	for ratio := 0.70; ratio >= 0.10; ratio -= 0.01 {
		result := EvaluateDebtToIncome(floatPtr(ratio))
		require.GreaterOrEqual(t, result.Score, prev, "dti %f", ratio)
		prev = result.Score
	}

	prev = -1.0
	for months := 0; months <= 48; months++ {
		result := EvaluateEmployment(intPtr(months))
		require.GreaterOrEqual(t, result.Score, prev, "employment %d", months)
		prev = result.Score
	}

	prev = -1.0
	for ratio := 0.60; ratio >= 0.10; ratio -= 0.01 {
		result := EvaluateHousingRatio(floatPtr(ratio))
		require.GreaterOrEqual(t, result.Score, prev, "housing %f", ratio)
		prev = result.Score
	}
}

func TestEvaluateIncomeToLoan(t *testing.T) {
	ok := EvaluateIncomeToLoan(floatPtr(80000), floatPtr(20000))
	assert.Equal(t, StatusApproved, ok.Status)

	short := EvaluateIncomeToLoan(floatPtr(30000), floatPtr(20000))
	assert.Equal(t, StatusDenied, short.Status)
	assert.Equal(t, models.ReasonIncomeInsufficient, short.Reason)

	// Non-positive request is trivially approved, no ratio check.
	assert.Equal(t, StatusApproved, EvaluateIncomeToLoan(nil, floatPtr(0)).Status)

	assert.Equal(t, StatusConsideration, EvaluateIncomeToLoan(nil, floatPtr(20000)).Status)
	assert.Equal(t, StatusConsideration, EvaluateIncomeToLoan(floatPtr(30000), nil).Status)
}

func TestEvaluateCitizenshipGate(t *testing.T) {
	for _, status := range []models.CitizenshipStatus{
		models.CitizenshipUSCitizen,
		models.CitizenshipPermanentResident,
		models.CitizenshipEligibleNonCitizen,
	} {
		assert.Equal(t, StatusApproved, EvaluateCitizenship(citizenPtr(status)).Status, string(status))
	}

	denied := EvaluateCitizenship(citizenPtr(models.CitizenshipIneligible))
	assert.Equal(t, StatusDenied, denied.Status)
	assert.Equal(t, models.ReasonCitizenshipStatus, denied.Reason)

	assert.Equal(t, StatusConsideration, EvaluateCitizenship(nil).Status)
}

func TestEvaluateProgramGate(t *testing.T) {
	assert.Equal(t, StatusApproved, EvaluateProgram(programPtr(models.ProgramStatusActive)).Status)

	denied := EvaluateProgram(programPtr(models.ProgramStatusInactive))
	assert.Equal(t, StatusDenied, denied.Status)
	assert.Equal(t, models.ReasonProgramEligibility, denied.Reason)

	assert.Equal(t, StatusConsideration, EvaluateProgram(nil).Status)
}
