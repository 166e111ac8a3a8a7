package amortization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEqualPrincipal(t *testing.T) {
	release := time.Date(2024, 1, 31, 15, 4, 0, 0, time.UTC)
	items := Generate(Terms{Principal: 100000, RateBP: 1200, TermMonths: 3, ReleasedAt: release})
	require.Len(t, items, 3)

	assert.Equal(t, []int64{33333, 33333, 33334}, []int64{items[0].Principal, items[1].Principal, items[2].Principal})
	assert.Equal(t, []int64{1000, 667, 333}, []int64{items[0].Interest, items[1].Interest, items[2].Interest})
	assert.Equal(t, []int64{66667, 33334, 0}, []int64{items[0].Balance, items[1].Balance, items[2].Balance})

	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), items[0].DueDate)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), items[1].DueDate)
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), items[2].DueDate)

	var total int64
	for i, item := range items {
		assert.Equal(t, i+1, item.Sequence)
		total += item.Principal
	}
	assert.Equal(t, int64(100000), total)
}

func TestGenerateGraceAndZeroRate(t *testing.T) {
	release := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	items := Generate(Terms{Principal: 1200, TermMonths: 12, GraceMonths: 2, ReleasedAt: release})
	require.Len(t, items, 12)
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), items[0].DueDate)
	for _, item := range items {
		assert.Zero(t, item.Interest)
		assert.Equal(t, int64(100), item.Principal)
	}

	assert.Nil(t, Generate(Terms{Principal: 100, TermMonths: 0}))
	assert.Nil(t, Generate(Terms{Principal: 0, TermMonths: 6}))
}

func TestAddMonths(t *testing.T) {
	cases := []struct {
		in     time.Time
		months int
		want   time.Time
	}{
		{time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC), 3, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AddMonths(tc.in, tc.months))
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "1234.56", FormatCents(123456))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "-1.00", FormatCents(-100))
}
