package program

import "time"

// Kind distinguishes repayable loans from grants.
type Kind string

const (
	KindLoan  Kind = "loan"
	KindGrant Kind = "grant"
)

// Program is a loan or grant program cooperatives can enroll in. Amounts are
// in cents; InterestRate is in basis points per annum.
type Program struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Kind         Kind      `json:"kind"`
	MaxAmount    int64     `json:"max_amount"`
	InterestRate int       `json:"interest_rate"`
	TermMonths   int       `json:"term_months"`
	GraceMonths  int       `json:"grace_months"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
