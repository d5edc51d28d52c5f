package ratelimiter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the file form of a rule set: one Action per rate-limited endpoint.
type Policy struct {
	Actions []Action `yaml:"actions"`
}

// Action configures one rule. Exactly one of Paths, Prefixes or Pattern selects
// the request paths it applies to.
type Action struct {
	Name     string        `yaml:"name"`
	Paths    []string      `yaml:"paths,omitempty"`
	Prefixes []string      `yaml:"prefixes,omitempty"`
	Pattern  string        `yaml:"pattern,omitempty"`
	Window   time.Duration `yaml:"window"`
	Max      int           `yaml:"max"`
	Penalty  time.Duration `yaml:"penalty,omitempty"`
}

// Rule names used by DefaultPolicy.
const (
	ActionChallengeIssue  = "challenge-issue"
	ActionChallengeRedeem = "challenge-redeem"
)

// DefaultPolicy protects the challenge endpoints.
func DefaultPolicy() Policy {
	return Policy{Actions: []Action{
		{
			Name:    ActionChallengeIssue,
			Paths:   []string{"/api/challenge"},
			Window:  time.Minute,
			Max:     10,
			Penalty: 5 * time.Minute,
		},
		{
			Name:    ActionChallengeRedeem,
			Paths:   []string{"/api/challenge/redeem"},
			Window:  time.Minute,
			Max:     20,
			Penalty: 5 * time.Minute,
		},
	}}
}

// LoadPolicy decodes a YAML policy. Unknown fields are rejected.
func LoadPolicy(r io.Reader) (Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Policy
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return Policy{}, fmt.Errorf("%w: empty document", ErrInvalidPolicy)
		}
		return Policy{}, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	if _, err := p.Rules(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicyFile reads a YAML policy from path.
func LoadPolicyFile(path string) (Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, fmt.Errorf("open rate limit policy: %w", err)
	}
	defer f.Close()

	return LoadPolicy(f)
}

// Rules builds the ordered rule list.
func (p Policy) Rules() ([]Rule, error) {
	rules := make([]Rule, 0, len(p.Actions))
	for _, a := range p.Actions {
		m, err := a.matcher()
		if err != nil {
			return nil, err
		}

		r := Rule{
			Name:    a.Name,
			Match:   m,
			Window:  a.Window,
			Max:     a.Max,
			Penalty: a.Penalty,
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (a Action) matcher() (Matcher, error) {
	set := 0
	if len(a.Paths) > 0 {
		set++
	}
	if len(a.Prefixes) > 0 {
		set++
	}
	if a.Pattern != "" {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: action %q needs exactly one of paths, prefixes or pattern", ErrInvalidPolicy, a.Name)
	}

	switch {
	case len(a.Paths) > 0:
		return ExactPaths(a.Paths...), nil
	case len(a.Prefixes) > 0:
		return PathPrefix(a.Prefixes...), nil
	default:
		m, err := PathRegexp(a.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: action %q: %w", ErrInvalidPolicy, a.Name, err)
		}
		return m, nil
	}
}
