// Package config provides type-safe environment variable loading with caching
// using Go generics. Each configuration type is loaded once and cached for
// subsequent calls.
//
// The package loads a .env file on first use (joho/godotenv) and parses
// environment variables into struct fields with caarlos0/env.
//
//	type Config struct {
//		MaxBodySize int64         `env:"MAX_BODY_SIZE" envDefault:"1048576"`
//		ChallengeTTL time.Duration `env:"CHALLENGE_TTL" envDefault:"2m"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
// Different types are cached independently, so nested component configs
// (server.Config, redis.Config) can also be loaded on their own.
package config
