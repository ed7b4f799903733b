package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateIntrastate(t *testing.T) {
	cases := []struct {
		name                  string
		base, rate            string
		cgst, sgst, total     string
	}{
		{"standard 18", "1000.00", "18", "90.00", "90.00", "1180.00"},
		{"rate 12", "499.50", "12", "29.97", "29.97", "559.44"},
		{"rounding per half", "100.05", "5", "2.50", "2.50", "105.05"},
		{"zero rate", "250.00", "0", "0.00", "0.00", "250.00"},
		{"zero base", "0", "18", "0.00", "0.00", "0.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Calculate(dec(tc.base), dec(tc.rate), false)
			require.True(t, got.CGSTAmount.Equal(dec(tc.cgst)), "cgst %s", got.CGSTAmount)
			require.True(t, got.SGSTAmount.Equal(dec(tc.sgst)), "sgst %s", got.SGSTAmount)
			require.True(t, got.IGSTAmount.IsZero())
			require.True(t, got.TotalTax.Equal(got.CGSTAmount.Add(got.SGSTAmount)))
			require.True(t, got.TotalAmount.Equal(dec(tc.total)), "total %s", got.TotalAmount)
			require.True(t, got.CGSTRate.Equal(dec(tc.rate).Div(decimal.NewFromInt(2))))
		})
	}
}

func TestCalculateInterstate(t *testing.T) {
	got := Calculate(dec("1000.00"), dec("18"), true)
	require.True(t, got.IGSTAmount.Equal(dec("180.00")))
	require.True(t, got.CGSTAmount.IsZero())
	require.True(t, got.SGSTAmount.IsZero())
	require.True(t, got.IGSTRate.Equal(dec("18")))
	require.True(t, got.TotalAmount.Equal(dec("1180.00")))
}

func TestIntrastateMatchesInterstateWithinRounding(t *testing.T) {
	// CGST+SGST must equal IGST for the same base and rate within one
	// cent per rounded component.
	tolerance := dec("0.02")
	bases := []string{"1.00", "9.99", "123.45", "1000.00", "33333.33"}
	rates := []string{"5", "12", "18", "28"}
	for _, b := range bases {
		for _, r := range rates {
			intra := Calculate(dec(b), dec(r), false)
			inter := Calculate(dec(b), dec(r), true)
			diff := intra.TotalTax.Sub(inter.TotalTax).Abs()
			require.True(t, diff.LessThanOrEqual(tolerance), "base=%s rate=%s diff=%s", b, r, diff)
		}
	}
}

func TestIsInterstateSupply(t *testing.T) {
	require.False(t, IsInterstateSupply("27", "27"))
	require.True(t, IsInterstateSupply("27", "29"))
	require.False(t, IsInterstateSupply("", "29"))
	require.False(t, IsInterstateSupply("27", ""))
	require.False(t, IsInterstateSupply(" 27 ", "27"))
}
