package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// Vendors report the same physical tag in different encodings: UHF
// readers emit the raw EPC as hex, some LF/HF desktop readers print the
// card number in decimal. The constructors below collapse both into one
// canonical form: uppercase hex, no separators, even digit count.

// TagFromHex canonicalizes a vendor-reported hex tag string. Separators
// (spaces, colons, dashes) are tolerated; the result is uppercase hex
// padded to an even number of digits.
func TagFromHex(raw string) (string, error) {
	cleaned := strings.ToUpper(strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '-':
			return -1
		}
		return r
	}, strings.TrimSpace(raw)))

	if cleaned == "" {
		return "", fmt.Errorf("empty tag")
	}
	for _, r := range cleaned {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return "", fmt.Errorf("tag %q is not hex", raw)
		}
	}
	if len(cleaned)%2 != 0 {
		cleaned = "0" + cleaned
	}
	return cleaned, nil
}

// TagFromDecimal canonicalizes a vendor-reported decimal card number
// into the same hex form TagFromHex produces for the equivalent EPC.
func TagFromDecimal(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return "", fmt.Errorf("empty tag")
	}
	n, ok := new(big.Int).SetString(cleaned, 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("tag %q is not a decimal card number", raw)
	}
	hex := strings.ToUpper(n.Text(16))
	if len(hex)%2 != 0 {
		hex = "0" + hex
	}
	return hex, nil
}
