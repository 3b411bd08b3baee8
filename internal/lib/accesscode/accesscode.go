package accesscode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const codeLength = 6

// Generate returns a 6-digit verification code, each digit drawn
// uniformly from crypto/rand. Codes are not unique across calls;
// lookups are always scoped by account id and code together.
func Generate() (string, error) {
	const op = "accesscode.Generate"

	code := make([]byte, codeLength)

	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		code[i] = byte('0' + n.Int64())
	}

	return string(code), nil
}
