package services

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binito/despesify/internal/models"
)

func TestBuildExpense(t *testing.T) {
	res := newDecoder().Decode(scenarioPayload)
	require.True(t, res.OK())

	cat := 7
	exp := BuildExpense(res.Invoice, &models.Company{Name: "Mercearia", CategoryID: &cat}, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, "Mercearia", exp.Description)
	assert.Equal(t, "2024-01-15", exp.Date)
	assert.True(t, decimal.RequireFromString("123").Equal(exp.Amount))
	assert.True(t, decimal.RequireFromString("23").Equal(exp.VatValue))
	assert.True(t, decimal.RequireFromString("100").Equal(exp.TaxBase))
	assert.Equal(t, "FT 1/123", exp.DocumentNumber)
	assert.Equal(t, "123456789", exp.IssuerTaxID)
	assert.Equal(t, "ABC123", exp.ATCUD)
	assert.Equal(t, &cat, exp.CategoryID)
}

func TestBuildExpense_Defaults(t *testing.T) {
	exp := BuildExpense(&models.InvoiceRecord{}, nil, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "Fatura", exp.Description)
	assert.Equal(t, "2025-03-01", exp.Date)
	assert.True(t, exp.Amount.IsZero())
	assert.Nil(t, exp.CategoryID)
}

func TestFormatInvoice(t *testing.T) {
	report := FormatInvoice(newDecoder().Decode(scenarioPayload))

	assert.Contains(t, report, "NIF Emitente: 123456789")
	assert.Contains(t, report, "Data de Emissão: 2024-01-15")
	assert.Contains(t, report, "Linha 1:")
	assert.Contains(t, report, "Base Tributável: 100.00€")
	assert.Contains(t, report, "Taxa: NOR (23%)")
	assert.Contains(t, report, "VALOR TOTAL: 123.00€")
	assert.NotContains(t, report, "não coincidem")
	assert.True(t, strings.HasSuffix(report, strings.Repeat("=", 60)))
}

func TestFormatInvoice_Error(t *testing.T) {
	report := FormatInvoice(newDecoder().Decode("garbage"))
	assert.Equal(t, "ERRO: payload contains no key:value fields\nDados brutos: garbage", report)
}
