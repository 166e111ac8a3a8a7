package amortization

import (
	"time"

	domain "github.com/coopfund/backoffice/internal/app/domain/amortization"
)

// Terms are the loan parameters a schedule is generated from. Principal is in
// cents and RateBP in basis points per annum.
type Terms struct {
	Principal   int64
	RateBP      int
	TermMonths  int
	GraceMonths int
	ReleasedAt  time.Time
}

// Generate builds an equal-principal schedule. Each installment carries
// principal/term with the rounding remainder on the last one, plus a month of
// interest on the balance outstanding before it. The first installment falls
// due one month after release plus the grace period.
func Generate(t Terms) []domain.Installment {
	if t.TermMonths <= 0 || t.Principal <= 0 {
		return nil
	}
	n := int64(t.TermMonths)
	base := t.Principal / n
	remainder := t.Principal - base*n
	release := dateOnly(t.ReleasedAt)

	items := make([]domain.Installment, 0, t.TermMonths)
	balance := t.Principal
	for i := 1; i <= t.TermMonths; i++ {
		principal := base
		if i == t.TermMonths {
			principal += remainder
		}
		interest := monthlyInterest(balance, t.RateBP)
		balance -= principal
		items = append(items, domain.Installment{
			Sequence:  i,
			DueDate:   AddMonths(release, t.GraceMonths+i),
			Principal: principal,
			Interest:  interest,
			Balance:   balance,
			Status:    domain.StatusPending,
		})
	}
	return items
}

// monthlyInterest is balance * rate / 12, rounded half up to the cent.
func monthlyInterest(balance int64, rateBP int) int64 {
	if rateBP <= 0 || balance <= 0 {
		return 0
	}
	return (balance*int64(rateBP) + 60000) / 120000
}

// AddMonths moves t forward by months, clamping to the last day of the target
// month (Jan 31 + 1 month is Feb 28 or 29).
func AddMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
