package payload

import "sort"

// ExemptCode labels a VAT line with zero base and zero tax
const ExemptCode = "ISE"

// RateTable maps AT VAT rate codes to their percentage. It is immutable
// once built.
type RateTable struct {
	rates map[string]int
	codes []string // sorted, for deterministic reverse lookup
}

// NewRateTable copies rates into a new table
func NewRateTable(rates map[string]int) RateTable {
	t := RateTable{
		rates: make(map[string]int, len(rates)),
		codes: make([]string, 0, len(rates)),
	}
	for code, pct := range rates {
		t.rates[code] = pct
		t.codes = append(t.codes, code)
	}
	sort.Strings(t.codes)
	return t
}

// DefaultRateTable returns the mainland Portugal rates
func DefaultRateTable() RateTable {
	return NewRateTable(map[string]int{
		"NOR": 23, // normal
		"INT": 13, // intermédia
		"RED": 6,  // reduzida
		"ISE": 0,  // isento
		"OUT": 0,
	})
}

// CodeFor returns the code whose non-zero rate equals percent exactly
func (t RateTable) CodeFor(percent float64) (string, bool) {
	if percent == 0 {
		return "", false
	}
	for _, code := range t.codes {
		if float64(t.rates[code]) == percent {
			return code, true
		}
	}
	return "", false
}
