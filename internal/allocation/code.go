package allocation

import (
	"context"
	"crypto/rand"
	"math/big"
)

// codeAlphabet omits I, L and O so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ0123456789"

const (
	codeLength      = 6
	maxCodeAttempts = 10
)

// NewReservationCode returns a random six character join code.
func NewReservationCode() (string, error) {
	b := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// uniqueCode draws codes until one is not yet used by any reservation.
// It gives up after maxCodeAttempts draws instead of reusing a taken
// code; the unique index on reservations.code would reject it anyway.
func (e *Engine) uniqueCode(ctx context.Context, tx Tx) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := e.newCode()
		if err != nil {
			return "", err
		}
		taken, err := tx.Reservations().CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", reject(CodeCodeGenerationFailed, "could not generate a unique reservation code")
}
