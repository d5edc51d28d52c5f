package challenge

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/dmitrymomot/starter/core/logger"
)

const (
	DefaultDifficulty = 16
	DefaultTTL        = 5 * time.Minute

	// maxNonceLength caps the nonce a client may submit.
	maxNonceLength = 64
	saltBytes      = 16
)

// Challenge is a signed proof-of-work puzzle.
type Challenge struct {
	ID         string `json:"id"`
	Salt       string `json:"salt"`
	Difficulty int    `json:"difficulty"`
	ExpiresAt  int64  `json:"expires_at"`
	Signature  string `json:"signature"`
}

// Solution is a challenge echoed back with the nonce that solves it.
type Solution struct {
	Challenge
	Nonce string `json:"nonce"`
}

// Service issues and redeems challenges.
type Service struct {
	key        []byte
	difficulty int
	ttl        time.Duration
	replay     ReplayStore
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDifficulty sets the leading zero bits required of new challenges.
func WithDifficulty(d int) Option {
	return func(s *Service) {
		s.difficulty = d
	}
}

// WithTTL sets how long an issued challenge stays redeemable.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for redemption outcomes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service signing with secret.
func NewService(secret []byte, replay ReplayStore, opts ...Option) (*Service, error) {
	if len(secret) < 16 || len(secret) > blake2b.Size {
		return nil, ErrInvalidSecret
	}
	if replay == nil {
		return nil, ErrNilReplayStore
	}

	s := &Service{
		key:        append([]byte(nil), secret...),
		difficulty: DefaultDifficulty,
		ttl:        DefaultTTL,
		replay:     replay,
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.difficulty < 1 || s.difficulty > MaxDifficulty {
		return nil, ErrInvalidDifficulty
	}

	return s, nil
}

// Issue creates a new signed challenge.
func (s *Service) Issue() (Challenge, error) {
	salt := make([]byte, saltBytes)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return Challenge{}, fmt.Errorf("challenge: generate salt: %w", err)
	}

	ch := Challenge{
		ID:         uuid.NewString(),
		Salt:       hex.EncodeToString(salt),
		Difficulty: s.difficulty,
		ExpiresAt:  s.now().Add(s.ttl).Unix(),
	}
	ch.Signature = s.sign(ch)
	return ch, nil
}

// Redeem verifies a solution. Checks run in order: signature, expiry, proof
// of work, then single use. Only the last one touches the replay store.
func (s *Service) Redeem(ctx context.Context, sol Solution) error {
	if err := validateShape(sol); err != nil {
		return err
	}

	if !s.verify(sol.Challenge) {
		return s.reject(ctx, sol, ErrInvalidSignature)
	}

	now := s.now()
	expiresAt := time.Unix(sol.ExpiresAt, 0)
	if !now.Before(expiresAt) {
		return s.reject(ctx, sol, ErrExpired)
	}

	if LeadingZeroBits(sol.Salt, sol.Nonce) < sol.Difficulty {
		return s.reject(ctx, sol, ErrInsufficientWork)
	}

	first, err := s.replay.MarkUsed(ctx, sol.ID, expiresAt.Sub(now))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReplayUnavailable, err)
	}
	if !first {
		return s.reject(ctx, sol, ErrAlreadyRedeemed)
	}

	s.logger.DebugContext(ctx, "challenge redeemed",
		logger.Component("challenge"),
		logger.Key("challenge_id", sol.ID),
	)
	return nil
}

func (s *Service) reject(ctx context.Context, sol Solution, err error) error {
	s.logger.InfoContext(ctx, "challenge rejected",
		logger.Component("challenge"),
		logger.Key("challenge_id", sol.ID),
		logger.Error(err),
	)
	return err
}

func validateShape(sol Solution) error {
	switch {
	case sol.ID == "", sol.Salt == "", sol.Signature == "":
		return ErrMalformed
	case sol.Nonce == "", len(sol.Nonce) > maxNonceLength:
		return ErrMalformed
	case sol.Difficulty < 1, sol.Difficulty > MaxDifficulty:
		return ErrMalformed
	case sol.ExpiresAt <= 0:
		return ErrMalformed
	}
	return nil
}

// sign computes a keyed BLAKE2b-256 MAC over the challenge fields. Each
// variable-length field is length-prefixed so distinct tuples never collide.
func (s *Service) sign(ch Challenge) string {
	h, err := blake2b.New256(s.key)
	if err != nil {
		// The key length is checked in NewService.
		panic(err)
	}

	var buf [8]byte
	for _, field := range []string{ch.ID, ch.Salt} {
		binary.BigEndian.PutUint64(buf[:], uint64(len(field)))
		h.Write(buf[:])
		h.Write([]byte(field))
	}
	binary.BigEndian.PutUint64(buf[:], uint64(ch.Difficulty))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(ch.ExpiresAt))
	h.Write(buf[:])

	return hex.EncodeToString(h.Sum(nil))
}

func (s *Service) verify(ch Challenge) bool {
	want := s.sign(ch)
	return subtle.ConstantTimeCompare([]byte(want), []byte(ch.Signature)) == 1
}
