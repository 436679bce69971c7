package models

import "time"

// DecisionKind is the closed set of underwriting outcomes.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "APPROVE"
	DecisionDeny    DecisionKind = "DENY"
	DecisionRevise  DecisionKind = "REVISE"
)

// ReasonCode identifies why a factor pushed the decision toward denial.
type ReasonCode string

const (
	ReasonCreditScore          ReasonCode = "CREDIT_SCORE"
	ReasonDebtToIncome         ReasonCode = "DEBT_TO_INCOME"
	ReasonEmploymentHistory    ReasonCode = "EMPLOYMENT_HISTORY"
	ReasonHousingPayment       ReasonCode = "HOUSING_PAYMENT"
	ReasonIncomeInsufficient   ReasonCode = "INCOME_INSUFFICIENT"
	ReasonCitizenshipStatus    ReasonCode = "CITIZENSHIP_STATUS"
	ReasonProgramEligibility   ReasonCode = "PROGRAM_ELIGIBILITY"
	ReasonDocumentationIssues  ReasonCode = "DOCUMENTATION_ISSUES"
	ReasonIdentityVerification ReasonCode = "IDENTITY_VERIFICATION"
	ReasonOther                ReasonCode = "OTHER"
)

var reasonDescriptions = map[ReasonCode]string{
	ReasonCreditScore:          "credit score below program requirements",
	ReasonDebtToIncome:         "debt-to-income ratio exceeds allowed maximum",
	ReasonEmploymentHistory:    "insufficient employment history",
	ReasonHousingPayment:       "housing payment ratio exceeds allowed maximum",
	ReasonIncomeInsufficient:   "income insufficient for requested loan amount",
	ReasonCitizenshipStatus:    "citizenship status not eligible for the program",
	ReasonProgramEligibility:   "program is not eligible for financing",
	ReasonDocumentationIssues:  "submitted documentation is incomplete or inconsistent",
	ReasonIdentityVerification: "identity could not be verified",
	ReasonOther:                "see underwriter comments",
}

// Description returns the default human-readable text for the code.
func (c ReasonCode) Description() string {
	if desc, ok := reasonDescriptions[c]; ok {
		return desc
	}
	return reasonDescriptions[ReasonOther]
}

// UnderwritingDecision is the persisted outcome for an application (1:1).
// Approval terms are only meaningful when Decision == APPROVE.
type UnderwritingDecision struct {
	ID             string           `db:"id" json:"id"`
	ApplicationID  string           `db:"application_id" json:"application_id"`
	UnderwriterID  string           `db:"underwriter_id" json:"underwriter_id"`
	Decision       DecisionKind     `db:"decision" json:"decision"`
	DecisionDate   time.Time        `db:"decision_date" json:"decision_date"`
	Comments       string           `db:"comments" json:"comments,omitempty"`
	ApprovedAmount *float64         `db:"approved_amount" json:"approved_amount,omitempty"`
	InterestRate   *float64         `db:"interest_rate" json:"interest_rate,omitempty"`
	TermMonths     *int             `db:"term_months" json:"term_months,omitempty"`
	WeightedScore  *float64         `db:"weighted_score" json:"weighted_score,omitempty"`
	Reasons        []DecisionReason `json:"reasons,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// DecisionReason is a machine-readable reason attached to a decision.
type DecisionReason struct {
	ID          string     `db:"id" json:"id"`
	DecisionID  string     `db:"decision_id" json:"decision_id"`
	ReasonCode  ReasonCode `db:"reason_code" json:"reason_code"`
	Description string     `db:"description" json:"description"`
	IsPrimary   bool       `db:"is_primary" json:"is_primary"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// decisionStatusMap is the fixed decision→application-status table. An
// unknown kind is a configuration bug, so lookups must not default silently.
var decisionStatusMap = map[DecisionKind]ApplicationStatus{
	DecisionApprove: ApplicationStatusApproved,
	DecisionDeny:    ApplicationStatusDenied,
	DecisionRevise:  ApplicationStatusRevisionRequested,
}

// StatusForDecision maps a decision kind to the resulting application status.
func StatusForDecision(kind DecisionKind) (ApplicationStatus, bool) {
	status, ok := decisionStatusMap[kind]
	return status, ok
}
