package access

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// KeyGenerator returns candidate key strings; uniqueness is enforced by
// the store.
type KeyGenerator func() (string, error)

// DigitKeys produces prefix followed by n random decimal digits.
func DigitKeys(prefix string, n int) KeyGenerator {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	return func() (string, error) {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		digits := v.String()
		return prefix + strings.Repeat("0", n-len(digits)) + digits, nil
	}
}
