package rules

import (
	"github.com/noah-isme/edufund-loan-api/internal/models"
)

// FactorStatus classifies a single applicant attribute.
type FactorStatus string

const (
	StatusApproved      FactorStatus = "APPROVED"
	StatusDenied        FactorStatus = "DENIED"
	StatusConsideration FactorStatus = "CONSIDERATION"
)

// FactorResult is the outcome of one factor evaluation. Score is normalized
// to [0,1] for the weighted factors; Reason is set only on denial.
type FactorResult struct {
	Status FactorStatus      `json:"status"`
	Score  float64           `json:"score"`
	Reason models.ReasonCode `json:"reason,omitempty"`
}

// Fixed underwriting thresholds. Factors marked lower-is-better invert the
// comparison: DTI and housing ratio.
const (
	CreditScoreApproveAt = 680
	CreditScoreDenyAt    = 580

	DebtToIncomeApproveAt = 0.36
	DebtToIncomeDenyAt    = 0.55

	EmploymentMonthsApproveAt = 24
	EmploymentMonthsDenyAt    = 6

	HousingRatioApproveAt = 0.28
	HousingRatioDenyAt    = 0.45

	// MinIncomeToLoanRatio is the annual-income-to-requested-amount floor.
	MinIncomeToLoanRatio = 2.0
)

// missing is the neutral result for absent inputs: incomplete data routes an
// applicant toward manual review, never toward denial.
func missing() FactorResult {
	return FactorResult{Status: StatusConsideration, Score: 0.5}
}

// gradeHigherBetter scores a factor where larger values are stronger.
func gradeHigherBetter(value, approveAt, denyAt float64, reason models.ReasonCode) FactorResult {
	if value >= approveAt {
		return FactorResult{Status: StatusApproved, Score: 1}
	}
	if value <= denyAt {
		return FactorResult{Status: StatusDenied, Score: 0, Reason: reason}
	}
	span := approveAt - denyAt
	if span <= 0 {
		return FactorResult{Status: StatusConsideration, Score: 0.5}
	}
	return FactorResult{Status: StatusConsideration, Score: (value - denyAt) / span}
}

// gradeLowerBetter scores a factor where smaller values are stronger.
func gradeLowerBetter(value, approveAt, denyAt float64, reason models.ReasonCode) FactorResult {
	if value <= approveAt {
		return FactorResult{Status: StatusApproved, Score: 1}
	}
	if value >= denyAt {
		return FactorResult{Status: StatusDenied, Score: 0, Reason: reason}
	}
	span := denyAt - approveAt
	if span <= 0 {
		return FactorResult{Status: StatusConsideration, Score: 0.5}
	}
	return FactorResult{Status: StatusConsideration, Score: (denyAt - value) / span}
}

// EvaluateCreditScore scores the borrower's bureau credit score.
func EvaluateCreditScore(score *int) FactorResult {
	if score == nil {
		return missing()
	}
	return gradeHigherBetter(float64(*score), CreditScoreApproveAt, CreditScoreDenyAt, models.ReasonCreditScore)
}

// EvaluateDebtToIncome scores the debt-to-income ratio.
func EvaluateDebtToIncome(ratio *float64) FactorResult {
	if ratio == nil {
		return missing()
	}
	return gradeLowerBetter(*ratio, DebtToIncomeApproveAt, DebtToIncomeDenyAt, models.ReasonDebtToIncome)
}

// EvaluateEmployment scores months of continuous employment.
func EvaluateEmployment(months *int) FactorResult {
	if months == nil {
		return missing()
	}
	return gradeHigherBetter(float64(*months), EmploymentMonthsApproveAt, EmploymentMonthsDenyAt, models.ReasonEmploymentHistory)
}

// EvaluateHousingRatio scores the housing-payment-to-income ratio.
func EvaluateHousingRatio(ratio *float64) FactorResult {
	if ratio == nil {
		return missing()
	}
	return gradeLowerBetter(*ratio, HousingRatioApproveAt, HousingRatioDenyAt, models.ReasonHousingPayment)
}

// EvaluateIncomeToLoan is a binary gate on annual income versus the
// requested amount. A non-positive request is trivially approved.
func EvaluateIncomeToLoan(annualIncome, requestedAmount *float64) FactorResult {
	if requestedAmount != nil && *requestedAmount <= 0 {
		return FactorResult{Status: StatusApproved, Score: 1}
	}
	if annualIncome == nil || requestedAmount == nil {
		return missing()
	}
	if *annualIncome / *requestedAmount >= MinIncomeToLoanRatio {
		return FactorResult{Status: StatusApproved, Score: 1}
	}
	return FactorResult{Status: StatusDenied, Score: 0, Reason: models.ReasonIncomeInsufficient}
}

// EvaluateCitizenship is a binary gate on citizenship eligibility.
func EvaluateCitizenship(status *models.CitizenshipStatus) FactorResult {
	if status == nil {
		return missing()
	}
	switch *status {
	case models.CitizenshipUSCitizen, models.CitizenshipPermanentResident, models.CitizenshipEligibleNonCitizen:
		return FactorResult{Status: StatusApproved, Score: 1}
	default:
		return FactorResult{Status: StatusDenied, Score: 0, Reason: models.ReasonCitizenshipStatus}
	}
}

// EvaluateProgram is a binary gate on the financed program's status.
func EvaluateProgram(status *models.ProgramStatus) FactorResult {
	if status == nil {
		return missing()
	}
	if *status == models.ProgramStatusActive {
		return FactorResult{Status: StatusApproved, Score: 1}
	}
	return FactorResult{Status: StatusDenied, Score: 0, Reason: models.ReasonProgramEligibility}
}
