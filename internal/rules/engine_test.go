package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufund-loan-api/internal/models"
)

func strongInput() Input {
	return Input{
		CreditScore:       intPtr(750),
		DebtToIncomeRatio: floatPtr(0.25),
		EmploymentMonths:  intPtr(36),
		HousingRatio:      floatPtr(0.20),
		AnnualIncome:      floatPtr(80000),
		RequestedAmount:   floatPtr(20000),
		Citizenship:       citizenPtr(models.CitizenshipUSCitizen),
		ProgramStatus:     programPtr(models.ProgramStatusActive),
	}
}

func TestWeightSumInvariant(t *testing.T) {
	assert.InDelta(t, 1.0, WeightCreditScore+WeightDebtToIncome+WeightEmployment+WeightHousing, 1e-9)
}

func TestEvaluateAutoApproveScenario(t *testing.T) {
	engine := NewEngine()
	result := engine.Evaluate(strongInput())

	assert.Equal(t, models.DecisionApprove, result.Decision)
	assert.Empty(t, result.Reasons)
	assert.GreaterOrEqual(t, result.Score, ApproveBand)
	assert.Contains(t, result.Stipulations, models.StipulationEnrollmentAgreement)
	assert.Contains(t, result.Stipulations, models.StipulationProofOfIncome)
}

func TestEvaluateAutoDenyOnCredit(t *testing.T) {
	engine := NewEngine()
	in := strongInput()
	in.CreditScore = intPtr(550)

	result := engine.Evaluate(in)
	assert.Equal(t, models.DecisionDeny, result.Decision)
	assert.Contains(t, result.Reasons, models.ReasonCreditScore)
	assert.Empty(t, result.Stipulations)
	assert.Equal(t, 0.0, result.Score)
}

func TestEvaluateBorderlineRevise(t *testing.T) {
	engine := NewEngine()
	in := strongInput()
	in.CreditScore = intPtr(640)
	in.DebtToIncomeRatio = floatPtr(0.45)
	in.EmploymentMonths = intPtr(15)
	in.HousingRatio = floatPtr(0.35)

	result := engine.Evaluate(in)
	assert.Equal(t, models.DecisionRevise, result.Decision)
	assert.GreaterOrEqual(t, result.Score, DenyBand)
	assert.Less(t, result.Score, ApproveBand)
	assert.NotEmpty(t, result.Stipulations)
	// Consideration-band credit adds an identity proof on top of the base list.
	assert.Contains(t, result.Stipulations, models.StipulationProofOfIdentity)
}

func TestEvaluateIncomeInsufficientDespiteGoodCredit(t *testing.T) {
	engine := NewEngine()
	in := strongInput()
	in.AnnualIncome = floatPtr(30000)

	result := engine.Evaluate(in)
	assert.Equal(t, models.DecisionDeny, result.Decision)
	assert.Contains(t, result.Reasons, models.ReasonIncomeInsufficient)
}

func TestEvaluateShortCircuitOverridesStrongFactors(t *testing.T) {
	engine := NewEngine()
	for name, mutate := range map[string]func(*Input){
		"citizenship": func(in *Input) { in.Citizenship = citizenPtr(models.CitizenshipIneligible) },
		"program":     func(in *Input) { in.ProgramStatus = programPtr(models.ProgramStatusDiscontinued) },
		"employment":  func(in *Input) { in.EmploymentMonths = intPtr(3) },
		"housing":     func(in *Input) { in.HousingRatio = floatPtr(0.60) },
		"dti":         func(in *Input) { in.DebtToIncomeRatio = floatPtr(0.70) },
	} {
		in := strongInput()
		mutate(&in)
		result := engine.Evaluate(in)
		require.Equal(t, models.DecisionDeny, result.Decision, name)
		require.NotEmpty(t, result.Reasons, name)
	}
}

func TestEvaluateMissingDataNeverDenies(t *testing.T) {
	engine := NewEngine()
	result := engine.Evaluate(Input{})

	// All weighted factors score 0.5 -> weighted 0.5 -> revise band.
	assert.Equal(t, models.DecisionRevise, result.Decision)
	assert.Empty(t, result.Reasons)
	assert.InDelta(t, 0.5, result.Score, 1e-9)
	assert.NotEmpty(t, result.Stipulations)
}

func TestEvaluateIdempotent(t *testing.T) {
	engine := NewEngine()
	in := strongInput()
	in.CreditScore = intPtr(640)

	first := engine.Evaluate(in)
	second := engine.Evaluate(in)
	assert.Equal(t, first, second)
}

func TestStipulationDerivationDeduplicates(t *testing.T) {
	factors := FactorSet{
		CreditScore:  FactorResult{Status: StatusConsideration, Score: 0.5},
		DebtToIncome: FactorResult{Status: StatusConsideration, Score: 0.5},
		Employment:   FactorResult{Status: StatusConsideration, Score: 0.5},
	}
	stipulations := deriveStipulations(models.DecisionRevise, factors)

	seen := make(map[models.StipulationType]int)
	for _, s := range stipulations {
		seen[s]++
	}
	for s, count := range seen {
		assert.Equal(t, 1, count, string(s))
	}
	// DTI consideration maps to proof of income, already in the revise base.
	assert.Contains(t, stipulations, models.StipulationProofOfIncome)
	assert.Contains(t, stipulations, models.StipulationProofOfIdentity)
	assert.Contains(t, stipulations, models.StipulationAdditionalDocuments)
}

func TestCollectReasonsDeduplicates(t *testing.T) {
	factors := FactorSet{
		CreditScore:  FactorResult{Status: StatusDenied, Reason: models.ReasonCreditScore},
		DebtToIncome: FactorResult{Status: StatusDenied, Reason: models.ReasonDebtToIncome},
		Employment:   FactorResult{Status: StatusDenied, Reason: models.ReasonCreditScore},
	}
	reasons := collectReasons(factors)
	assert.ElementsMatch(t, []models.ReasonCode{models.ReasonCreditScore, models.ReasonDebtToIncome}, reasons)
}

func TestAutoDecisionApproveFastPath(t *testing.T) {
	engine := NewEngine()
	result := engine.AutoDecision(strongInput())

	require.NotNil(t, result)
	assert.Equal(t, models.DecisionApprove, result.Decision)
	assert.Empty(t, result.Reasons)
}

func TestAutoDecisionDenyFastPath(t *testing.T) {
	engine := NewEngine()
	in := strongInput()
	in.CreditScore = intPtr(560)

	result := engine.AutoDecision(in)
	require.NotNil(t, result)
	assert.Equal(t, models.DecisionDeny, result.Decision)
	assert.Contains(t, result.Reasons, models.ReasonCreditScore)
}

func TestAutoDecisionDefersBorderline(t *testing.T) {
	engine := NewEngine()
	in := strongInput()
	in.CreditScore = intPtr(640)

	assert.Nil(t, engine.AutoDecision(in))
}

func TestAutoDecisionDefersOnMissingEmployment(t *testing.T) {
	engine := NewEngine()
	in := strongInput()
	in.EmploymentMonths = nil

	assert.Nil(t, engine.AutoDecision(in))
}

func TestAutoDecisionDefersWhenGateVetoes(t *testing.T) {
	engine := NewEngine()
	in := strongInput()
	in.ProgramStatus = programPtr(models.ProgramStatusInactive)

	assert.Nil(t, engine.AutoDecision(in))
}

func TestRiskScoreScale(t *testing.T) {
	engine := NewEngine()
	assert.InDelta(t, 100, engine.RiskScore(strongInput()), 1e-9)
	assert.InDelta(t, 50, engine.RiskScore(Input{}), 1e-9)
}

func TestNewInputDerivesHousingRatio(t *testing.T) {
	app := &models.ApplicationDetail{
		LoanApplication: models.LoanApplication{RequestedAmount: 20000},
		Borrower: models.BorrowerProfile{
			MonthlyIncome:     floatPtr(5000),
			MonthlyHousingPay: floatPtr(1000),
		},
		Program: &models.Program{Status: models.ProgramStatusActive},
	}
	credit := &models.CreditInformation{CreditScore: intPtr(700), DebtToIncomeRatio: floatPtr(0.3)}

	in := NewInput(app, credit)
	require.NotNil(t, in.HousingRatio)
	assert.InDelta(t, 0.2, *in.HousingRatio, 1e-9)
	assert.Equal(t, 700, *in.CreditScore)
	assert.Equal(t, models.ProgramStatusActive, *in.ProgramStatus)

	// Zero income leaves the ratio underivable.
	app.Borrower.MonthlyIncome = floatPtr(0)
	assert.Nil(t, NewInput(app, credit).HousingRatio)
}
