package game

import (
	"crypto/rand"
	"math/big"
)

// newSessionID generates a short join code, e.g. "K7WQ2N".
func newSessionID() string {
	chars := []byte(sessionIDChars)
	code := make([]byte, sessionIDLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		code[i] = chars[n.Int64()]
	}
	return string(code)
}
