package models

import "time"

// ApplicationStatus represents the lifecycle state of a loan application.
type ApplicationStatus string

const (
	ApplicationStatusDraft             ApplicationStatus = "DRAFT"
	ApplicationStatusSubmitted         ApplicationStatus = "SUBMITTED"
	ApplicationStatusInReview          ApplicationStatus = "IN_REVIEW"
	ApplicationStatusApproved          ApplicationStatus = "APPROVED"
	ApplicationStatusDenied            ApplicationStatus = "DENIED"
	ApplicationStatusRevisionRequested ApplicationStatus = "REVISION_REQUESTED"
	ApplicationStatusAccepted          ApplicationStatus = "ACCEPTED"
	ApplicationStatusQCReview          ApplicationStatus = "QC_REVIEW"
	ApplicationStatusReadyToFund       ApplicationStatus = "READY_TO_FUND"
	ApplicationStatusFunded            ApplicationStatus = "FUNDED"
	ApplicationStatusCancelled         ApplicationStatus = "CANCELLED"
	ApplicationStatusWithdrawn         ApplicationStatus = "WITHDRAWN"
)

// CitizenshipStatus enumerates borrower citizenship categories.
type CitizenshipStatus string

const (
	CitizenshipUSCitizen          CitizenshipStatus = "US_CITIZEN"
	CitizenshipPermanentResident  CitizenshipStatus = "PERMANENT_RESIDENT"
	CitizenshipEligibleNonCitizen CitizenshipStatus = "ELIGIBLE_NON_CITIZEN"
	CitizenshipIneligible         CitizenshipStatus = "INELIGIBLE"
	CitizenshipOther              CitizenshipStatus = "OTHER"
)

// ProgramStatus enumerates enrollment program states.
type ProgramStatus string

const (
	ProgramStatusActive       ProgramStatus = "ACTIVE"
	ProgramStatusInactive     ProgramStatus = "INACTIVE"
	ProgramStatusDiscontinued ProgramStatus = "DISCONTINUED"
)

// Program describes the school program an application finances.
type Program struct {
	ID       string        `db:"id" json:"id"`
	SchoolID string        `db:"school_id" json:"school_id"`
	Name     string        `db:"name" json:"name"`
	Status   ProgramStatus `db:"status" json:"status"`
}

// BorrowerProfile carries the underwriting-relevant borrower attributes.
// Optional fields are pointers: a missing value routes the factor to
// consideration instead of failing the evaluation.
type BorrowerProfile struct {
	ID                   string             `db:"id" json:"id"`
	FullName             string             `db:"full_name" json:"full_name"`
	CitizenshipStatus    *CitizenshipStatus `db:"citizenship_status" json:"citizenship_status,omitempty"`
	AnnualIncome         *float64           `db:"annual_income" json:"annual_income,omitempty"`
	MonthlyIncome        *float64           `db:"monthly_income" json:"monthly_income,omitempty"`
	MonthlyHousingPay    *float64           `db:"monthly_housing_payment" json:"monthly_housing_payment,omitempty"`
	EmploymentMonths     *int               `db:"employment_months" json:"employment_months,omitempty"`
	EmployerName         *string            `db:"employer_name" json:"employer_name,omitempty"`
	EmploymentVerifiedAt *time.Time         `db:"employment_verified_at" json:"employment_verified_at,omitempty"`
}

// LoanApplication is the application under review. The underwriting core
// reads it and only ever writes back the status field.
type LoanApplication struct {
	ID              string            `db:"id" json:"id"`
	BorrowerID      string            `db:"borrower_id" json:"borrower_id"`
	CoBorrowerID    *string           `db:"co_borrower_id" json:"co_borrower_id,omitempty"`
	SchoolID        string            `db:"school_id" json:"school_id"`
	ProgramID       *string           `db:"program_id" json:"program_id,omitempty"`
	RequestedAmount float64           `db:"requested_amount" json:"requested_amount"`
	Status          ApplicationStatus `db:"status" json:"status"`
	SubmittedAt     *time.Time        `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationDetail joins the application with its borrower and program.
type ApplicationDetail struct {
	LoanApplication
	Borrower BorrowerProfile `json:"borrower"`
	Program  *Program        `json:"program,omitempty"`
}
