package ratelimiter

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Matcher reports whether a rule applies to a request path.
type Matcher func(path string) bool

// Rule is one fixed-window quota with an optional lockout after it is exceeded.
type Rule struct {
	// Name identifies the rule. Unique within a Limiter.
	Name string
	// Match selects the request paths the rule applies to.
	Match Matcher
	// Window is the length of one counting window.
	Window time.Duration
	// Max is the number of requests admitted per key within a window.
	Max int
	// Penalty is the extra lockout applied once Max is exceeded.
	Penalty time.Duration
}

// Validate checks the rule invariants.
func (r Rule) Validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	case strings.Contains(r.Name, "|"):
		return fmt.Errorf("%w: %s: name must not contain '|'", ErrInvalidRule, r.Name)
	case r.Match == nil:
		return fmt.Errorf("%w: %s: matcher is required", ErrInvalidRule, r.Name)
	case r.Window <= 0:
		return fmt.Errorf("%w: %s: window must be positive, got %s", ErrInvalidRule, r.Name, r.Window)
	case r.Max < 1:
		return fmt.Errorf("%w: %s: max must be at least 1, got %d", ErrInvalidRule, r.Name, r.Max)
	case r.Penalty < 0:
		return fmt.Errorf("%w: %s: penalty must not be negative, got %s", ErrInvalidRule, r.Name, r.Penalty)
	}
	return nil
}

// bucketKey joins identity and rule name. The separator keeps
// ("a|b", "c") and ("a", "b|c") apart because rule names are validated
// to never contain it.
func bucketKey(identity, rule string) string {
	return identity + "|" + rule
}

// MatchAll matches every path.
func MatchAll(string) bool { return true }

// PathPrefix matches paths starting with any of the given prefixes.
func PathPrefix(prefixes ...string) Matcher {
	prefixes = append([]string(nil), prefixes...)
	return func(path string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}
}

// ExactPaths matches only the listed paths.
func ExactPaths(paths ...string) Matcher {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(path string) bool {
		_, ok := set[path]
		return ok
	}
}

// PathRegexp compiles expr once and matches paths against it.
func PathRegexp(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidRule, expr, err)
	}
	return re.MatchString, nil
}

// MustPathRegexp is like PathRegexp but panics on an invalid expression.
func MustPathRegexp(expr string) Matcher {
	m, err := PathRegexp(expr)
	if err != nil {
		panic(err)
	}
	return m
}
