package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/binito/despesify/internal/models"
)

const notAvailable = "N/A"

// FormatInvoice renders a decode result for people reading a terminal
func FormatInvoice(res models.DecodeResult) string {
	if !res.OK() {
		raw := notAvailable
		if res.Error.RawPayload != nil {
			raw = *res.Error.RawPayload
		}
		return fmt.Sprintf("ERRO: %s\nDados brutos: %s", res.Error.Error, raw)
	}

	rec := res.Invoice
	rule := strings.Repeat("=", 60)
	thin := strings.Repeat("-", 60)

	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	line(rule)
	line("DADOS DA FATURA (QR Code AT)")
	line(rule)
	line("NIF Emitente: %s", text(rec.IssuerTaxID))
	line("NIF Adquirente: %s", text(rec.AcquirerTaxID))
	line("País Adquirente: %s", text(rec.AcquirerCountry))
	line("Tipo de Documento: %s", text(rec.DocumentType))
	line("Estado: %s", text(rec.DocumentStatus))
	line("Data de Emissão: %s", text(rec.IssueDate))
	line("Número do Documento: %s", text(rec.DocumentNumber))
	line("ATCUD: %s", text(rec.UniqueDocumentCode))
	line(thin)
	line("RESUMO IVA:")
	for i, v := range rec.VatLines {
		line("  Linha %d:", i+1)
		line("    Base Tributável: %s€", money(v.TaxBase))
		line("    Valor IVA: %s€", money(v.TaxAmount))
		line("    Taxa: %s (%s%%)", text(v.RateCode), percent(v.RatePercent))
	}
	line(thin)
	line("VALOR TOTAL: %s€", money(rec.TotalAmount))
	line("Retenção: %s€", money(rec.WithheldTax))
	if rec.CandidateN != nil || rec.CandidateO != nil {
		line("  (N=%s, O=%s não coincidem com o IVA calculado %s)",
			money(rec.CandidateN), money(rec.CandidateO), rec.TotalVatComputed.StringFixed(2))
	}
	line(thin)
	line("Hash: %s", text(rec.Hash))
	line("Certificado Nº: %s", text(rec.CertificateNumber))
	b.WriteString(rule)
	return b.String()
}

func text(s *string) string {
	if s == nil {
		return notAvailable
	}
	return *s
}

func money(d *decimal.Decimal) string {
	if d == nil {
		return notAvailable
	}
	return d.StringFixed(2)
}

func percent(p *float64) string {
	if p == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
