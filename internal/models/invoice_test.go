package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportLeavesDecimalEncodingAlone(t *testing.T) {
	assert.False(t, decimal.MarshalJSONWithoutQuotes)

	base := decimal.RequireFromString("100")
	out, err := json.Marshal(VatLine{TaxBase: &base})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"tax_base":"100"`)
}

func TestDecodeResult_Value(t *testing.T) {
	ok := DecodeResult{Invoice: &InvoiceRecord{RawPayload: "A:1"}}
	assert.True(t, ok.OK())
	assert.Same(t, ok.Invoice, ok.Value())

	failed := DecodeResult{Error: &ErrorRecord{Error: "bad"}}
	assert.False(t, failed.OK())
	assert.Same(t, failed.Error, failed.Value())
}
