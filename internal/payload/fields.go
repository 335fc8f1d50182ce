package payload

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/binito/despesify/internal/models"
)

// FieldKey is the closed set of payload keys the mapper understands
type FieldKey int

const (
	KeyUnknown FieldKey = iota
	KeyIssuerTaxID
	KeyAcquirerTaxID
	KeyAcquirerCountry
	KeyDocumentType
	KeyDocumentStatus
	KeyIssueDate
	KeyDocumentNumber
	KeyUniqueDocumentCode
	KeyVat // I<n>
	KeyCandidateN
	KeyCandidateO
	KeyHash
	KeyCertificateNumber
	KeyOtherInfo
)

var singleKeys = map[string]FieldKey{
	"A": KeyIssuerTaxID,
	"B": KeyAcquirerTaxID,
	"C": KeyAcquirerCountry,
	"D": KeyDocumentType,
	"E": KeyDocumentStatus,
	"F": KeyIssueDate,
	"G": KeyDocumentNumber,
	"H": KeyUniqueDocumentCode,
	"N": KeyCandidateN,
	"O": KeyCandidateO,
	"P": KeyHash,
	"Q": KeyCertificateNumber,
	"R": KeyOtherInfo,
}

// ParseKey classifies a raw key. For KeyVat the second result is the
// numeric index n of I<n>; a key starting with I whose suffix is not an
// integer is KeyUnknown.
func ParseKey(raw string) (FieldKey, int) {
	if k, ok := singleKeys[raw]; ok {
		return k, 0
	}
	if suffix, ok := strings.CutPrefix(raw, "I"); ok {
		n, err := strconv.Atoi(suffix)
		if err == nil && n > 0 {
			return KeyVat, n
		}
	}
	return KeyUnknown, 0
}

const (
	payloadDateLayout = "20060102"
	isoDateLayout     = "2006-01-02"
)

// Fields is the mapper output: the record with every directly mapped field
// and its VAT lines set, plus the N/O values still awaiting reconciliation.
type Fields struct {
	Record     models.InvoiceRecord
	CandidateN *decimal.Decimal
	CandidateO *decimal.Decimal
}

// Mapper assigns tokens to invoice fields
type Mapper struct {
	rates RateTable
}

// NewMapper creates a mapper that labels derived VAT rates using rates
func NewMapper(rates RateTable) *Mapper {
	return &Mapper{rates: rates}
}

// Map consumes tokens in order. Values that fail numeric coercion leave
// their field absent; an unparsable date is kept as the raw string.
func (m *Mapper) Map(tokens []Token) Fields {
	var f Fields
	vat := newVatLineSet()

	for _, tok := range tokens {
		key, n := ParseKey(tok.Key)
		value := tok.Value

		switch key {
		case KeyIssuerTaxID:
			f.Record.IssuerTaxID = &value
		case KeyAcquirerTaxID:
			f.Record.AcquirerTaxID = &value
		case KeyAcquirerCountry:
			f.Record.AcquirerCountry = &value
		case KeyDocumentType:
			f.Record.DocumentType = &value
		case KeyDocumentStatus:
			f.Record.DocumentStatus = &value
		case KeyIssueDate:
			date := parseDate(value)
			f.Record.IssueDate = &date
		case KeyDocumentNumber:
			f.Record.DocumentNumber = &value
		case KeyUniqueDocumentCode:
			f.Record.UniqueDocumentCode = &value
		case KeyHash:
			f.Record.Hash = &value
		case KeyCertificateNumber:
			f.Record.CertificateNumber = &value
		case KeyOtherInfo:
			f.Record.OtherInfo = &value
		case KeyCandidateN:
			f.CandidateN = parseAmount(value)
		case KeyCandidateO:
			f.CandidateO = parseAmount(value)
		case KeyVat:
			m.mapVat(vat, n, value)
		}
	}

	f.Record.VatLines = vat.finalize(m.rates)
	return f
}

func (m *Mapper) mapVat(vat *vatLineSet, n int, value string) {
	amount := parseAmount(value)
	if amount == nil {
		// I1 is usually the country code
		return
	}
	if n == 1 {
		vat.put(vatSlot{line: 1, field: vatBase}, *amount)
		return
	}
	if slot, ok := slotFor(n); ok {
		vat.put(slot, *amount)
	}
}

func parseAmount(s string) *decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

func parseDate(s string) string {
	t, err := time.Parse(payloadDateLayout, s)
	if err != nil {
		return s
	}
	return t.Format(isoDateLayout)
}
