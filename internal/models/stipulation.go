package models

import "time"

// StipulationType enumerates follow-up documentation requirements.
type StipulationType string

const (
	StipulationEnrollmentAgreement StipulationType = "ENROLLMENT_AGREEMENT"
	StipulationProofOfIncome       StipulationType = "PROOF_OF_INCOME"
	StipulationProofOfIdentity     StipulationType = "PROOF_OF_IDENTITY"
	StipulationProofOfResidence    StipulationType = "PROOF_OF_RESIDENCE"
	StipulationAdditionalDocuments StipulationType = "ADDITIONAL_DOCUMENTATION"
)

// StipulationStatus tracks a stipulation toward satisfaction.
type StipulationStatus string

const (
	StipulationStatusPending   StipulationStatus = "PENDING"
	StipulationStatusSatisfied StipulationStatus = "SATISFIED"
	StipulationStatusWaived    StipulationStatus = "WAIVED"
	StipulationStatusExpired   StipulationStatus = "EXPIRED"
)

// Stipulation is a condition the borrower must clear before funding.
// SatisfiedAt and SatisfiedBy are both nil or both set.
type Stipulation struct {
	ID             string            `db:"id" json:"id"`
	ApplicationID  string            `db:"application_id" json:"application_id"`
	Type           StipulationType   `db:"stipulation_type" json:"stipulation_type"`
	Description    string            `db:"description" json:"description"`
	RequiredByDate time.Time         `db:"required_by_date" json:"required_by_date"`
	Status         StipulationStatus `db:"status" json:"status"`
	CreatedBy      string            `db:"created_by" json:"created_by"`
	SatisfiedBy    *string           `db:"satisfied_by" json:"satisfied_by,omitempty"`
	SatisfiedAt    *time.Time        `db:"satisfied_at" json:"satisfied_at,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// IsOverdue reports whether the stipulation is past due and still open.
func (s *Stipulation) IsOverdue(now time.Time) bool {
	if s.Status == StipulationStatusSatisfied || s.Status == StipulationStatusWaived {
		return false
	}
	return s.RequiredByDate.Before(now)
}

// Resolved reports whether the stipulation no longer blocks funding.
func (s *Stipulation) Resolved() bool {
	return s.Status == StipulationStatusSatisfied || s.Status == StipulationStatusWaived
}

// StipulationFilter captures listing criteria.
type StipulationFilter struct {
	ApplicationID string
	Status        StipulationStatus
	Type          StipulationType
	Overdue       *bool
}
