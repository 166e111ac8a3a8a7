package coopprogram

import "time"

// Status is the lifecycle state of an enrollment.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusReleased   Status = "released"
	StatusDelinquent Status = "delinquent"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusArchived   Status = "archived"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusCancelled},
	StatusApproved:   {StatusReleased, StatusCompleted, StatusCancelled},
	StatusReleased:   {StatusDelinquent, StatusCompleted},
	StatusDelinquent: {StatusReleased, StatusCompleted},
	StatusCompleted:  {StatusArchived},
	StatusCancelled:  {StatusArchived},
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active reports whether the enrollment has money outstanding.
func (s Status) Active() bool {
	return s == StatusReleased || s == StatusDelinquent
}

// CoopProgram associates a cooperative with a program instance. Amount is in
// cents, InterestRate in basis points per annum.
type CoopProgram struct {
	ID            string     `json:"id"`
	CooperativeID string     `json:"cooperative_id"`
	ProgramID     string     `json:"program_id"`
	ReferenceNo   string     `json:"reference_no"`
	Project       string     `json:"project,omitempty"`
	Amount        int64      `json:"amount"`
	InterestRate  int        `json:"interest_rate"`
	TermMonths    int        `json:"term_months"`
	GraceMonths   int        `json:"grace_months"`
	Status        Status     `json:"status"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Filter narrows listings. Zero values match everything.
type Filter struct {
	CooperativeID string
	ProgramID     string
	Statuses      []Status
}
