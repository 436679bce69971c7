package models

import "time"

// CreditInformation is a bureau snapshot for one application + borrower pair.
// Records are created by the credit-pull workflow and read-only here.
type CreditInformation struct {
	ID                string    `db:"id" json:"id"`
	ApplicationID     string    `db:"application_id" json:"application_id"`
	BorrowerID        string    `db:"borrower_id" json:"borrower_id"`
	IsCoBorrower      bool      `db:"is_co_borrower" json:"is_co_borrower"`
	CreditScore       *int      `db:"credit_score" json:"credit_score,omitempty"`
	DebtToIncomeRatio *float64  `db:"debt_to_income_ratio" json:"debt_to_income_ratio,omitempty"`
	MonthlyDebt       *float64  `db:"monthly_debt" json:"monthly_debt,omitempty"`
	ReportReference   string    `db:"report_reference" json:"report_reference"`
	ReportPath        string    `db:"report_path" json:"-"`
	ReportDate        time.Time `db:"report_date" json:"report_date"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
