// Package payload turns the text of an AT invoice QR code into invoice fields.
//
// The payload is a sequence of key:value segments separated by '*':
//
//	A:123456789*B:999999990*C:PT*D:FT*...*I3:100.00*I4:23.00*N:23.00*O:0*...
package payload

import "strings"

const (
	segmentSeparator = "*"
	keySeparator     = ":"
)

// Token is one key:value segment of the payload
type Token struct {
	Key   string
	Value string
}

// Tokenize splits payload into tokens in segment order. Each segment is split
// on its first colon; segments without one are dropped.
func Tokenize(payload string) []Token {
	segments := strings.Split(payload, segmentSeparator)
	tokens := make([]Token, 0, len(segments))
	for _, seg := range segments {
		key, value, ok := strings.Cut(seg, keySeparator)
		if !ok {
			continue
		}
		tokens = append(tokens, Token{Key: key, Value: value})
	}
	return tokens
}
