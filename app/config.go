package app

import (
	"time"

	"github.com/dmitrymomot/starter/core/server"
	"github.com/dmitrymomot/starter/integration/database/redis"
)

// Config is the service configuration, loaded from the environment.
type Config struct {
	Server server.Config
	Redis  redis.Config

	AppName   string `env:"APP_NAME" envDefault:"starter"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	MaxBodySize int64 `env:"MAX_BODY_SIZE" envDefault:"4194304"`

	RateLimitPolicyFile      string        `env:"RATE_LIMIT_POLICY_FILE"`
	RateLimitMaxKeys         int           `env:"RATE_LIMIT_MAX_KEYS" envDefault:"100000"`
	RateLimitCleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"1m"`
	RateLimitFailClosed      bool          `env:"RATE_LIMIT_FAIL_CLOSED" envDefault:"false"`
	// RateLimitTrustProxy keys clients by forwarding headers on every request.
	RateLimitTrustProxy bool `env:"RATE_LIMIT_TRUST_PROXY" envDefault:"false"`
	// RateLimitTrustedProxies is a comma separated list of CIDRs or addresses
	// whose forwarding headers are honored.
	RateLimitTrustedProxies string `env:"RATE_LIMIT_TRUSTED_PROXIES"`

	ChallengeSecret     string        `env:"CHALLENGE_SECRET"`
	ChallengeDifficulty int           `env:"CHALLENGE_DIFFICULTY" envDefault:"16"`
	ChallengeTTL        time.Duration `env:"CHALLENGE_TTL" envDefault:"5m"`
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}
