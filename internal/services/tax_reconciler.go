package services

import (
	"github.com/shopspring/decimal"

	"github.com/binito/despesify/internal/models"
)

// Which candidate field matched the computed VAT total
const (
	MatchN       = "N"
	MatchO       = "O"
	MatchNone    = "none"
	MatchClosest = "closest" // no usable VAT lines, total chosen by distance
)

// ValidationWarning represents a non-critical issue found while reconciling
type ValidationWarning struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ComputedValues holds the sums over the VAT lines
type ComputedValues struct {
	TotalBase decimal.Decimal `json:"total_base"`
	TotalVat  decimal.Decimal `json:"total_vat"`
	Total     decimal.Decimal `json:"total"`
}

// Reconciliation is the outcome of resolving the N/O fields
type Reconciliation struct {
	TotalAmount *decimal.Decimal
	WithheldTax *decimal.Decimal
	Computed    ComputedValues
	Match       string

	// Raw candidates, kept only when neither matched the VAT sum
	CandidateN *decimal.Decimal
	CandidateO *decimal.Decimal

	Warnings []ValidationWarning
}

// TaxReconciler decides which of the N/O payload fields is the document
// total and which is withheld tax, using the VAT lines as ground truth.
type TaxReconciler struct {
	tolerance decimal.Decimal // absolute, in euros
}

// NewTaxReconciler creates a reconciler with the given absolute tolerance
func NewTaxReconciler(tolerance float64) *TaxReconciler {
	if tolerance < 0 {
		tolerance = 0
	}
	return &TaxReconciler{tolerance: decimal.NewFromFloat(tolerance)}
}

// Reconcile resolves the totals. It never fails; an arithmetic mismatch is
// reported through Match and Warnings.
func (r *TaxReconciler) Reconcile(n, o *decimal.Decimal, lines []models.VatLine) *Reconciliation {
	totalBase, totalVat := sumLines(lines)
	computed := ComputedValues{
		TotalBase: totalBase,
		TotalVat:  totalVat,
		Total:     totalBase.Add(totalVat).Round(2),
	}
	result := &Reconciliation{Computed: computed}

	if len(lines) > 0 && totalBase.IsPositive() {
		total := computed.Total
		result.TotalAmount = &total

		switch {
		case r.matches(n, totalVat):
			result.Match = MatchN
			result.WithheldTax = orZero(o)
		case r.matches(o, totalVat):
			result.Match = MatchO
			result.WithheldTax = orZero(n)
		default:
			result.Match = MatchNone
			result.WithheldTax = orZero(nil)
			result.CandidateN = n
			result.CandidateO = o
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "withheld_tax",
				Code:    "vat_total_mismatch",
				Message: "neither N nor O matches the VAT total " + totalVat.StringFixed(2),
			})
		}
		return result
	}

	// No usable VAT lines: the candidate closer to the computed total wins
	result.Match = MatchClosest
	result.TotalAmount, result.WithheldTax = closest(n, o, computed.Total)
	if len(lines) == 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "vat_lines",
			Code:    "no_vat_lines",
			Message: "payload has no VAT lines",
		})
	}
	return result
}

// Apply copies the reconciled values onto rec
func (r *Reconciliation) Apply(rec *models.InvoiceRecord) {
	rec.TotalAmount = r.TotalAmount
	rec.WithheldTax = r.WithheldTax
	rec.TotalBaseComputed = r.Computed.TotalBase
	rec.TotalVatComputed = r.Computed.TotalVat
	rec.CandidateN = r.CandidateN
	rec.CandidateO = r.CandidateO
}

func (r *TaxReconciler) matches(candidate *decimal.Decimal, want decimal.Decimal) bool {
	if candidate == nil {
		return false
	}
	return candidate.Sub(want).Abs().LessThanOrEqual(r.tolerance)
}

func sumLines(lines []models.VatLine) (base, vat decimal.Decimal) {
	for _, l := range lines {
		if l.TaxBase != nil {
			base = base.Add(*l.TaxBase)
		}
		if l.TaxAmount != nil {
			vat = vat.Add(*l.TaxAmount)
		}
	}
	return base, vat
}

// closest returns (total, withheld). Ties go to N; an absent candidate is
// never chosen as the total.
func closest(n, o *decimal.Decimal, target decimal.Decimal) (*decimal.Decimal, *decimal.Decimal) {
	switch {
	case n == nil && o == nil:
		return nil, nil
	case o == nil:
		return n, nil
	case n == nil:
		return o, nil
	}
	if o.Sub(target).Abs().LessThan(n.Sub(target).Abs()) {
		return o, n
	}
	return n, o
}

func orZero(d *decimal.Decimal) *decimal.Decimal {
	if d != nil {
		return d
	}
	zero := decimal.Zero
	return &zero
}
