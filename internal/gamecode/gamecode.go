// Package gamecode hands out the short codes players type to join a game.
package gamecode

import (
	"crypto/rand"
	"math/big"
)

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length of every game code.
const Length = 6

// CodeChecker is the lookup a generated code is verified against before
// being handed out.
type CodeChecker interface {
	SessionCodeExists(code string) bool
}

// Generate returns a fresh 6-character uppercase alphanumeric code that is
// not currently in use. Collisions just regenerate; with 36^6 codes the
// expected retry count is effectively zero.
func Generate(chk CodeChecker) (string, error) {
	for {
		code, err := random()
		if err != nil {
			return "", err
		}
		if !chk.SessionCodeExists(code) {
			return code, nil
		}
	}
}

func random() (string, error) {
	code := make([]byte, Length)
	for i := 0; i < Length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
