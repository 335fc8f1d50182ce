package models

import (
	"github.com/shopspring/decimal"
)

// InvoiceRecord is the data decoded from the QR code of an AT invoice
type InvoiceRecord struct {
	// Emitente / adquirente
	IssuerTaxID     *string `json:"issuer_tax_id"`    // A: NIF do emitente
	AcquirerTaxID   *string `json:"acquirer_tax_id"`  // B: NIF do adquirente
	AcquirerCountry *string `json:"acquirer_country"` // C: país do adquirente

	// Documento
	DocumentType       *string `json:"document_type"`        // D: FT, FS, FR, NC...
	DocumentStatus     *string `json:"document_status"`      // E: N, A, F...
	IssueDate          *string `json:"issue_date"`           // F: YYYY-MM-DD, or raw when unparsable
	DocumentNumber     *string `json:"document_number"`      // G
	UniqueDocumentCode *string `json:"unique_document_code"` // H: ATCUD

	// Resumo IVA
	VatLines []VatLine `json:"vat_lines"`

	// Totais
	TotalAmount *decimal.Decimal `json:"total_amount"`
	WithheldTax *decimal.Decimal `json:"withheld_tax"`

	// Assinatura
	Hash              *string `json:"hash"`               // P
	CertificateNumber *string `json:"certificate_number"` // Q
	OtherInfo         *string `json:"other_info"`         // R

	RawPayload string `json:"raw_payload"`

	// Diagnostics
	TotalBaseComputed decimal.Decimal  `json:"total_base_computed"`
	TotalVatComputed  decimal.Decimal  `json:"total_vat_computed"`
	CandidateN        *decimal.Decimal `json:"candidate_n,omitempty"` // set only when N/O could not be reconciled
	CandidateO        *decimal.Decimal `json:"candidate_o,omitempty"`
}

// VatLine is one rate bracket of the invoice VAT summary
type VatLine struct {
	TaxBase     *decimal.Decimal `json:"tax_base"`
	TaxAmount   *decimal.Decimal `json:"tax_amount"`
	RateCode    *string          `json:"rate_code"`
	RatePercent *float64         `json:"rate_percent"`
}

// ErrorRecord is produced instead of an InvoiceRecord when decoding cannot proceed
type ErrorRecord struct {
	Error      string  `json:"error"`
	RawPayload *string `json:"raw_payload,omitempty"`
}

// DecodeResult holds exactly one of Invoice or Error
type DecodeResult struct {
	Invoice *InvoiceRecord
	Error   *ErrorRecord

	// Match tells which of N/O matched the VAT total; empty for errors
	Match string
}

// OK reports whether the result carries an invoice
func (r DecodeResult) OK() bool {
	return r.Invoice != nil
}

// Value returns whichever record is set, for serialization
func (r DecodeResult) Value() interface{} {
	if r.Invoice != nil {
		return r.Invoice
	}
	return r.Error
}

// ExpenseSummary is the shape the expense form is pre-filled with
type ExpenseSummary struct {
	Description    string          `json:"description"`
	Date           string          `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	VatValue       decimal.Decimal `json:"vat_value"`
	TaxBase        decimal.Decimal `json:"base_tributavel"`
	DocumentNumber string          `json:"numero_documento,omitempty"`
	IssuerTaxID    string          `json:"nif_emitente,omitempty"`
	AcquirerTaxID  string          `json:"nif_adquirente,omitempty"`
	ATCUD          string          `json:"atcud,omitempty"`
	CategoryID     *int            `json:"category_id"`
}

// ProcessResponse represents the output of the qr-reader endpoint
type ProcessResponse struct {
	Success bool            `json:"success"`
	QRData  interface{}     `json:"qr_data,omitempty"`
	Expense *ExpenseSummary `json:"expense,omitempty"`
	Error   string          `json:"error,omitempty"`

	// Processing metadata
	Strategy      string  `json:"strategy,omitempty"` // detection attempt that succeeded
	SavedID       string  `json:"id,omitempty"`       // persisted invoice id
	TotalDuration float64 `json:"totalDuration"`      // seconds
}
