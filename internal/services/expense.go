package services

import (
	"time"

	"github.com/binito/despesify/internal/models"
)

const defaultExpenseDescription = "Fatura"

// BuildExpense pre-fills an expense from a decoded invoice. Amounts are the
// VAT line sums; company may be nil when the issuer is unknown.
func BuildExpense(rec *models.InvoiceRecord, company *models.Company, today time.Time) *models.ExpenseSummary {
	exp := &models.ExpenseSummary{
		Description: defaultExpenseDescription,
		Date:        today.Format("2006-01-02"),
		TaxBase:     rec.TotalBaseComputed,
		VatValue:    rec.TotalVatComputed,
		Amount:      rec.TotalBaseComputed.Add(rec.TotalVatComputed),
	}
	if rec.IssueDate != nil && *rec.IssueDate != "" {
		exp.Date = *rec.IssueDate
	}
	if company != nil {
		if company.Name != "" {
			exp.Description = company.Name
		}
		exp.CategoryID = company.CategoryID
	}
	exp.DocumentNumber = deref(rec.DocumentNumber)
	exp.IssuerTaxID = deref(rec.IssuerTaxID)
	exp.AcquirerTaxID = deref(rec.AcquirerTaxID)
	exp.ATCUD = deref(rec.UniqueDocumentCode)
	return exp
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
