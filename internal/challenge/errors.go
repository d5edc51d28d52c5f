package challenge

import "errors"

var (
	ErrInvalidSecret     = errors.New("challenge: secret must be 16 to 64 bytes")
	ErrInvalidDifficulty = errors.New("challenge: difficulty out of range")
	ErrNilReplayStore    = errors.New("challenge: replay store is required")

	ErrMalformed         = errors.New("challenge: malformed solution")
	ErrInvalidSignature  = errors.New("challenge: invalid signature")
	ErrExpired           = errors.New("challenge: expired")
	ErrInsufficientWork  = errors.New("challenge: proof of work does not meet difficulty")
	ErrAlreadyRedeemed   = errors.New("challenge: already redeemed")
	ErrReplayUnavailable = errors.New("challenge: replay store unavailable")
)
