package amortization

import "time"

// Status of a single installment.
type Status string

const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Installment is one due entry of an amortization schedule. All amounts are
// in cents. Balance is the principal still outstanding after this
// installment's principal is paid.
type Installment struct {
	ID            string     `json:"id"`
	CoopProgramID string     `json:"coop_program_id"`
	Sequence      int        `json:"sequence"`
	DueDate       time.Time  `json:"due_date"`
	Principal     int64      `json:"principal"`
	Interest      int64      `json:"interest"`
	Penalty       int64      `json:"penalty"`
	AmountPaid    int64      `json:"amount_paid"`
	Balance       int64      `json:"balance"`
	Status        Status     `json:"status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AmountDue is the total owed for the installment including penalty.
func (i Installment) AmountDue() int64 { return i.Principal + i.Interest + i.Penalty }

// Outstanding is what remains unpaid on the installment.
func (i Installment) Outstanding() int64 {
	if o := i.AmountDue() - i.AmountPaid; o > 0 {
		return o
	}
	return 0
}

// Settled reports whether nothing remains to be paid.
func (i Installment) Settled() bool { return i.Status == StatusPaid }

// Summary aggregates a schedule.
type Summary struct {
	CoopProgramID string       `json:"coop_program_id"`
	Installments  int          `json:"installments"`
	TotalDue      int64        `json:"total_due"`
	TotalPaid     int64        `json:"total_paid"`
	Outstanding   int64        `json:"outstanding"`
	OverdueCount  int          `json:"overdue_count"`
	NextDue       *Installment `json:"next_due,omitempty"`
}

// Payment is the result of applying money to a schedule.
type Payment struct {
	CoopProgramID string        `json:"coop_program_id"`
	Amount        int64         `json:"amount"`
	PaidAt        time.Time     `json:"paid_at"`
	Applied       []Installment `json:"applied"`
	Completed     bool          `json:"completed"`
}
