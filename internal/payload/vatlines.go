package payload

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/binito/despesify/internal/models"
)

type vatField int

const (
	vatBase vatField = iota
	vatAmount
)

// vatSlot is where an I<n> value lands: the 1-based line and which amount.
type vatSlot struct {
	line  int
	field vatField
}

// conventionA numbers VAT data in groups of four after the country code
// at I1: base at 3+4k, amount at 4+4k for line k+1.
func conventionA(n int) (vatSlot, bool) {
	if n < 3 {
		return vatSlot{}, false
	}
	switch (n - 3) % 4 {
	case 0:
		return vatSlot{line: (n-3)/4 + 1, field: vatBase}, true
	case 1:
		return vatSlot{line: (n-4)/4 + 1, field: vatAmount}, true
	}
	return vatSlot{}, false
}

// conventionB numbers VAT data in consecutive pairs from I5: base at 5+2k,
// amount at 6+2k for line k+1.
func conventionB(n int) (vatSlot, bool) {
	if n < 5 {
		return vatSlot{}, false
	}
	if n%2 == 1 {
		return vatSlot{line: (n-5)/2 + 1, field: vatBase}, true
	}
	return vatSlot{line: (n-6)/2 + 1, field: vatAmount}, true
}

// slotFor picks the convention for index n >= 2. I3/I4 can only be
// convention A; everything from I5 on is read as convention B.
func slotFor(n int) (vatSlot, bool) {
	switch {
	case n == 3 || n == 4:
		return conventionA(n)
	case n >= 5:
		return conventionB(n)
	}
	return vatSlot{}, false
}

type vatLineBuilder struct {
	base   *decimal.Decimal
	amount *decimal.Decimal
}

func (b *vatLineBuilder) set(field vatField, v decimal.Decimal) {
	if field == vatBase {
		b.base = &v
		return
	}
	b.amount = &v
}

// vatLineSet accumulates VAT values keyed by line index
type vatLineSet struct {
	lines map[int]*vatLineBuilder
}

func newVatLineSet() *vatLineSet {
	return &vatLineSet{lines: make(map[int]*vatLineBuilder)}
}

func (s *vatLineSet) put(slot vatSlot, v decimal.Decimal) {
	b, ok := s.lines[slot.line]
	if !ok {
		b = &vatLineBuilder{}
		s.lines[slot.line] = b
	}
	b.set(slot.field, v)
}

// finalize returns the lines in ascending index order with rates derived.
func (s *vatLineSet) finalize(rates RateTable) []models.VatLine {
	indexes := make([]int, 0, len(s.lines))
	for idx := range s.lines {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	lines := make([]models.VatLine, 0, len(indexes))
	for _, idx := range indexes {
		lines = append(lines, s.lines[idx].build(rates))
	}
	return lines
}

func (b *vatLineBuilder) build(rates RateTable) models.VatLine {
	line := models.VatLine{
		TaxBase:   b.base,
		TaxAmount: b.amount,
	}
	if b.base == nil || b.amount == nil {
		return line
	}

	switch {
	case b.base.IsPositive():
		pct := b.amount.Div(*b.base).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		line.RatePercent = &pct
		if code, ok := rates.CodeFor(pct); ok {
			line.RateCode = &code
		}
	case b.base.IsZero() && b.amount.IsZero():
		pct := 0.0
		code := ExemptCode
		line.RatePercent = &pct
		line.RateCode = &code
	}
	return line
}
