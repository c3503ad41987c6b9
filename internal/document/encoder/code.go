package encoder

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Crockford base32 symbols, plus the five extra check symbols for mod 37.
const (
	crockford    = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	checkSymbols = crockford + "*~$=U"
	codeDigits   = 10
)

var codeReplacer = strings.NewReplacer(
	"-", "", " ", "",
	"I", "1", "L", "1",
	"O", "0",
)

// NewVerificationCode returns ten random Crockford symbols and a check
// symbol, formatted as XXXXX-XXXXX-C.
func NewVerificationCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(crockford)))
	for range codeDigits {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("verification code: %w", err)
		}
		b.WriteByte(crockford[n.Int64()])
	}
	body := b.String()
	return FormatCode(body + string(checkSymbol(body))), nil
}

// NormalizeCode upper-cases, drops separators and maps the ambiguous letters
// I, L and O onto 1 and 0 as Crockford decoding does.
func NormalizeCode(s string) string {
	return codeReplacer.Replace(strings.ToUpper(strings.TrimSpace(s)))
}

// ValidCode reports whether s (in any accepted spelling) has a correct check symbol.
func ValidCode(s string) bool {
	n := NormalizeCode(s)
	if len(n) != codeDigits+1 {
		return false
	}
	body := n[:codeDigits]
	for i := range len(body) {
		if strings.IndexByte(crockford, body[i]) < 0 {
			return false
		}
	}
	return n[codeDigits] == checkSymbol(body)
}

// FormatCode groups a normalized code as XXXXX-XXXXX-C. Input that is not
// eleven symbols long is returned normalized but ungrouped.
func FormatCode(s string) string {
	n := NormalizeCode(s)
	if len(n) != codeDigits+1 {
		return n
	}
	return n[:5] + "-" + n[5:10] + "-" + n[10:]
}

func checkSymbol(body string) byte {
	var v uint64
	for i := range len(body) {
		v = v*32 + uint64(strings.IndexByte(crockford, body[i]))
	}
	return checkSymbols[v%37]
}
