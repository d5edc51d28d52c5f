package challenge

import (
	"crypto/sha256"
	"math/bits"
	"strconv"
)

// MaxDifficulty bounds the number of leading zero bits a challenge may demand.
const MaxDifficulty = 32

// LeadingZeroBits counts the leading zero bits of sha256(salt + ":" + nonce).
func LeadingZeroBits(salt, nonce string) int {
	sum := sha256.Sum256([]byte(salt + ":" + nonce))

	n := 0
	for _, b := range sum {
		if b != 0 {
			return n + bits.LeadingZeros8(b)
		}
		n += 8
	}
	return n
}

// Solve searches decimal nonces until one meets difficulty. It is what a
// client does in the browser; the server only uses it in tests and tooling.
func Solve(salt string, difficulty int) string {
	for i := uint64(0); ; i++ {
		nonce := strconv.FormatUint(i, 10)
		if LeadingZeroBits(salt, nonce) >= difficulty {
			return nonce
		}
	}
}
