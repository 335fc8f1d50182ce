package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binito/despesify/internal/models"
)

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func vatLine(base, amount string) models.VatLine {
	l := models.VatLine{}
	if base != "" {
		l.TaxBase = d(base)
	}
	if amount != "" {
		l.TaxAmount = d(amount)
	}
	return l
}

func assertAmount(t *testing.T, want string, got *decimal.Decimal, field string) {
	t.Helper()
	if !assert.NotNil(t, got, field) {
		return
	}
	assert.True(t, decimal.RequireFromString(want).Equal(*got), "%s: want %s, got %s", field, want, got)
}

func TestReconcile(t *testing.T) {
	lines := []models.VatLine{vatLine("100.00", "23.00")}

	tests := []struct {
		name         string
		n, o         *decimal.Decimal
		lines        []models.VatLine
		wantTotal    string
		wantWithheld string
		wantMatch    string
	}{
		{name: "N carries the VAT", n: d("23.00"), o: d("0"), lines: lines, wantTotal: "123.00", wantWithheld: "0", wantMatch: MatchN},
		{name: "O carries the VAT", n: d("0"), o: d("23.00"), lines: lines, wantTotal: "123.00", wantWithheld: "0", wantMatch: MatchO},
		{name: "withholding in O", n: d("23.00"), o: d("11.50"), lines: lines, wantTotal: "123.00", wantWithheld: "11.50", wantMatch: MatchN},
		{name: "withholding in N", n: d("11.50"), o: d("23.00"), lines: lines, wantTotal: "123.00", wantWithheld: "11.50", wantMatch: MatchO},
		{name: "within tolerance", n: d("23.01"), o: nil, lines: lines, wantTotal: "123.00", wantWithheld: "0", wantMatch: MatchN},
		{name: "absent sibling is zero", n: nil, o: d("23.00"), lines: lines, wantTotal: "123.00", wantWithheld: "0", wantMatch: MatchO},
		{name: "neither matches", n: d("123.00"), o: d("5"), lines: lines, wantTotal: "123.00", wantWithheld: "0", wantMatch: MatchNone},
		{name: "no lines picks closest", n: d("0"), o: d("50.00"), lines: nil, wantTotal: "0", wantWithheld: "50.00", wantMatch: MatchClosest},
		{name: "zero base picks closest", n: d("4.00"), o: d("9.00"), lines: []models.VatLine{vatLine("0", "5.00")}, wantTotal: "4.00", wantWithheld: "9.00", wantMatch: MatchClosest},
	}

	r := NewTaxReconciler(0.01)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Reconcile(tt.n, tt.o, tt.lines)
			assert.Equal(t, tt.wantMatch, got.Match)
			assertAmount(t, tt.wantTotal, got.TotalAmount, "total")
			assertAmount(t, tt.wantWithheld, got.WithheldTax, "withheld")
		})
	}
}

func TestReconcile_MismatchKeepsCandidates(t *testing.T) {
	got := NewTaxReconciler(0.01).Reconcile(d("123.00"), d("5"), []models.VatLine{vatLine("100.00", "23.00")})

	assertAmount(t, "123.00", got.CandidateN, "candidate N")
	assertAmount(t, "5", got.CandidateO, "candidate O")
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, "vat_total_mismatch", got.Warnings[0].Code)
}

func TestReconcile_ComputedSums(t *testing.T) {
	lines := []models.VatLine{
		vatLine("100.00", "23.00"),
		vatLine("50.00", "6.50"),
		vatLine("", "1.00"),
		vatLine("10.005", ""),
	}
	got := NewTaxReconciler(0.01).Reconcile(d("30.50"), nil, lines)

	assert.True(t, decimal.RequireFromString("160.005").Equal(got.Computed.TotalBase))
	assert.True(t, decimal.RequireFromString("30.50").Equal(got.Computed.TotalVat))
	assert.True(t, decimal.RequireFromString("190.51").Equal(got.Computed.Total))
	assertAmount(t, "190.51", got.TotalAmount, "total")
	assert.Equal(t, MatchN, got.Match)
}

func TestReconcile_NoCandidates(t *testing.T) {
	got := NewTaxReconciler(0.01).Reconcile(nil, nil, nil)
	assert.Nil(t, got.TotalAmount)
	assert.Nil(t, got.WithheldTax)
	assert.True(t, got.Computed.Total.IsZero())
}

func TestReconciliation_Apply(t *testing.T) {
	rc := NewTaxReconciler(0.01).Reconcile(d("1"), d("2"), []models.VatLine{vatLine("100", "23")})

	var rec models.InvoiceRecord
	rc.Apply(&rec)
	assertAmount(t, "123", rec.TotalAmount, "total")
	assertAmount(t, "0", rec.WithheldTax, "withheld")
	assert.True(t, decimal.NewFromInt(100).Equal(rec.TotalBaseComputed))
	assert.True(t, decimal.NewFromInt(23).Equal(rec.TotalVatComputed))
	assertAmount(t, "1", rec.CandidateN, "candidate N")
}
