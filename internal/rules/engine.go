package rules

import (
	"github.com/noah-isme/edufund-loan-api/internal/models"
)

// Weights for the blended risk score. They must sum to 1.0.
const (
	WeightCreditScore  = 0.35
	WeightDebtToIncome = 0.30
	WeightEmployment   = 0.20
	WeightHousing      = 0.15
)

// Decision bands applied to the weighted score when no factor hard-denies.
const (
	ApproveBand = 0.70
	DenyBand    = 0.40
)

// Input carries everything the engine needs, already loaded. Every field is
// optional: a nil value degrades the factor to consideration instead of
// failing the evaluation.
type Input struct {
	CreditScore       *int
	DebtToIncomeRatio *float64
	EmploymentMonths  *int
	HousingRatio      *float64
	AnnualIncome      *float64
	RequestedAmount   *float64
	Citizenship       *models.CitizenshipStatus
	ProgramStatus     *models.ProgramStatus
}

// NewInput derives an engine input from the application detail and the
// primary borrower's credit record. Either argument's optional fields may be
// absent; the housing ratio is only derivable when both the housing payment
// and a positive monthly income are present.
func NewInput(app *models.ApplicationDetail, credit *models.CreditInformation) Input {
	in := Input{}
	if app != nil {
		amount := app.RequestedAmount
		in.RequestedAmount = &amount
		in.AnnualIncome = app.Borrower.AnnualIncome
		in.EmploymentMonths = app.Borrower.EmploymentMonths
		in.Citizenship = app.Borrower.CitizenshipStatus
		if app.Program != nil {
			status := app.Program.Status
			in.ProgramStatus = &status
		}
		if app.Borrower.MonthlyHousingPay != nil && app.Borrower.MonthlyIncome != nil && *app.Borrower.MonthlyIncome > 0 {
			ratio := *app.Borrower.MonthlyHousingPay / *app.Borrower.MonthlyIncome
			in.HousingRatio = &ratio
		}
	}
	if credit != nil {
		in.CreditScore = credit.CreditScore
		in.DebtToIncomeRatio = credit.DebtToIncomeRatio
	}
	return in
}

// FactorSet holds the result of every factor evaluation.
type FactorSet struct {
	CreditScore  FactorResult `json:"credit_score"`
	DebtToIncome FactorResult `json:"debt_to_income"`
	Employment   FactorResult `json:"employment"`
	Housing      FactorResult `json:"housing"`
	IncomeToLoan FactorResult `json:"income_to_loan"`
	Citizenship  FactorResult `json:"citizenship"`
	Program      FactorResult `json:"program"`
}

// All returns every factor result in a fixed order.
func (f FactorSet) All() []FactorResult {
	return []FactorResult{f.CreditScore, f.DebtToIncome, f.Employment, f.Housing, f.IncomeToLoan, f.Citizenship, f.Program}
}

// Evaluation is the engine's complete output for one application.
type Evaluation struct {
	Decision     models.DecisionKind      `json:"decision"`
	Reasons      []models.ReasonCode      `json:"reasons"`
	Stipulations []models.StipulationType `json:"stipulations"`
	Factors      FactorSet                `json:"factors"`
	Score        float64                  `json:"score"`
}

// Engine is the underwriting rule engine. It is stateless and safe for
// concurrent use.
type Engine struct{}

// NewEngine constructs the engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs the full multi-factor evaluation. Any hard-denied factor
// short-circuits to denial before weighted scoring: zero-tolerance gates such
// as citizenship must deny regardless of otherwise strong financials.
func (e *Engine) Evaluate(in Input) Evaluation {
	factors := evaluateFactors(in)

	if anyDenied(factors) {
		return Evaluation{
			Decision:     models.DecisionDeny,
			Reasons:      collectReasons(factors),
			Stipulations: []models.StipulationType{},
			Factors:      factors,
			Score:        0,
		}
	}

	score := weightedScore(factors)
	decision := bandDecision(score)

	return Evaluation{
		Decision:     decision,
		Reasons:      collectReasons(factors),
		Stipulations: deriveStipulations(decision, factors),
		Factors:      factors,
		Score:        score,
	}
}

// AutoDecision is the fast path for profiles that unambiguously clear or
// fail the baseline criteria. It returns nil when the profile is borderline
// or when employment data is missing, deferring to the full evaluation.
func (e *Engine) AutoDecision(in Input) *Evaluation {
	if in.CreditScore != nil && in.DebtToIncomeRatio != nil {
		if float64(*in.CreditScore) <= CreditScoreDenyAt || *in.DebtToIncomeRatio >= DebtToIncomeDenyAt {
			factors := evaluateFactors(in)
			return &Evaluation{
				Decision:     models.DecisionDeny,
				Reasons:      collectReasons(factors),
				Stipulations: []models.StipulationType{},
				Factors:      factors,
				Score:        0,
			}
		}
		if in.EmploymentMonths == nil {
			return nil
		}
		if float64(*in.CreditScore) >= CreditScoreApproveAt &&
			*in.DebtToIncomeRatio <= DebtToIncomeApproveAt &&
			float64(*in.EmploymentMonths) >= EmploymentMonthsApproveAt {
			factors := evaluateFactors(in)
			if anyDenied(factors) {
				// A gate factor vetoes the approval bar; defer to the
				// full evaluation so its short-circuit applies.
				return nil
			}
			return &Evaluation{
				Decision:     models.DecisionApprove,
				Reasons:      []models.ReasonCode{},
				Stipulations: deriveStipulations(models.DecisionApprove, factors),
				Factors:      factors,
				Score:        weightedScore(factors),
			}
		}
	}
	return nil
}

// RiskScore returns the blended factor score on a 0-100 scale for queue
// prioritization and reporting. It plays no part in decisioning.
func (e *Engine) RiskScore(in Input) float64 {
	return weightedScore(evaluateFactors(in)) * 100
}

func evaluateFactors(in Input) FactorSet {
	return FactorSet{
		CreditScore:  EvaluateCreditScore(in.CreditScore),
		DebtToIncome: EvaluateDebtToIncome(in.DebtToIncomeRatio),
		Employment:   EvaluateEmployment(in.EmploymentMonths),
		Housing:      EvaluateHousingRatio(in.HousingRatio),
		IncomeToLoan: EvaluateIncomeToLoan(in.AnnualIncome, in.RequestedAmount),
		Citizenship:  EvaluateCitizenship(in.Citizenship),
		Program:      EvaluateProgram(in.ProgramStatus),
	}
}

func anyDenied(factors FactorSet) bool {
	for _, result := range factors.All() {
		if result.Status == StatusDenied {
			return true
		}
	}
	return false
}

// weightedScore blends the four scored factors with the fixed weights.
func weightedScore(factors FactorSet) float64 {
	return factors.CreditScore.Score*WeightCreditScore +
		factors.DebtToIncome.Score*WeightDebtToIncome +
		factors.Employment.Score*WeightEmployment +
		factors.Housing.Score*WeightHousing
}

func bandDecision(score float64) models.DecisionKind {
	switch {
	case score >= ApproveBand:
		return models.DecisionApprove
	case score < DenyBand:
		return models.DecisionDeny
	default:
		return models.DecisionRevise
	}
}

// baseStipulations is the fixed decision→stipulation table.
var baseStipulations = map[models.DecisionKind][]models.StipulationType{
	models.DecisionApprove: {models.StipulationEnrollmentAgreement, models.StipulationProofOfIncome},
	models.DecisionRevise:  {models.StipulationProofOfIncome, models.StipulationAdditionalDocuments},
	models.DecisionDeny:    {},
}

// deriveStipulations appends one extra requirement per consideration-status
// factor (credit, DTI, employment) to the base list, deduplicated.
func deriveStipulations(decision models.DecisionKind, factors FactorSet) []models.StipulationType {
	stipulations := append([]models.StipulationType{}, baseStipulations[decision]...)
	seen := make(map[models.StipulationType]bool, len(stipulations)+3)
	for _, s := range stipulations {
		seen[s] = true
	}
	add := func(s models.StipulationType) {
		if !seen[s] {
			stipulations = append(stipulations, s)
			seen[s] = true
		}
	}
	if factors.CreditScore.Status == StatusConsideration {
		add(models.StipulationProofOfIdentity)
	}
	if factors.DebtToIncome.Status == StatusConsideration {
		add(models.StipulationProofOfIncome)
	}
	if factors.Employment.Status == StatusConsideration {
		add(models.StipulationAdditionalDocuments)
	}
	return stipulations
}

// collectReasons gathers the deduplicated reason codes from every factor
// that set one. Only denial-producing factors carry a reason.
func collectReasons(factors FactorSet) []models.ReasonCode {
	reasons := []models.ReasonCode{}
	seen := make(map[models.ReasonCode]bool)
	for _, result := range factors.All() {
		if result.Reason == "" || seen[result.Reason] {
			continue
		}
		reasons = append(reasons, result.Reason)
		seen[result.Reason] = true
	}
	return reasons
}
