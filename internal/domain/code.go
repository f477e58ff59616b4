package domain

import (
	"crypto/rand"
	"math/big"
)

// Session codes avoid visually ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const CodeLength = 6

// NewSessionCode generates a short human-typable session code. Uniqueness is
// enforced by the store on insert; callers retry on collision.
func NewSessionCode() string {
	buf := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the platform source is broken
			panic(err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}
