package gatekeeper

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/client"
)

// Spec describes one configured rule.
type Spec struct {
	Type     string
	Settings map[string]any
}

// Chain evaluates rules in order. The first rule that does not abstain decides.
type Chain struct {
	rules        []Rule
	defaultAllow bool
}

// NewChain creates an empty chain.
func NewChain(defaultAllow bool) *Chain {
	return &Chain{
		rules:        make([]Rule, 0),
		defaultAllow: defaultAllow,
	}
}

// Build creates a chain from rule specs using the registered factories.
func Build(defaultAllow bool, specs []Spec) (*Chain, error) {
	c := NewChain(defaultAllow)
	for i, spec := range specs {
		factory, ok := registry[spec.Type]
		if !ok {
			return nil, errors.Newf("unknown gatekeeper rule type at index %d: %s", i, spec.Type)
		}
		r := factory()
		if err := r.ValidateConfig(spec.Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for gatekeeper rule %s", spec.Type)
		}
		c.Add(r)
	}
	return c, nil
}

// Add adds a rule to the chain.
func (c *Chain) Add(r Rule) {
	c.rules = append(c.rules, r)
}

// Rules returns all rules in the chain.
func (c *Chain) Rules() []Rule {
	return c.rules
}

// IsAllowed reports whether the identity may browse the real hierarchy.
// ErrRefused means the connection must not be accepted at all.
func (c *Chain) IsAllowed(ctx context.Context, identity client.Identity) (bool, error) {
	for _, r := range c.rules {
		switch v := r.Check(ctx, identity); v {
		case Allow:
			zlog.Debug().Msgf("gatekeeper: rule=%s verdict=%s identity=%s", r.Name(), v, identity)
			return true, nil
		case Deny:
			zlog.Debug().Msgf("gatekeeper: rule=%s verdict=%s identity=%s", r.Name(), v, identity)
			return false, nil
		case Refuse:
			zlog.Info().Msgf("gatekeeper: rule=%s refused identity=%s", r.Name(), identity)
			return false, errors.Wrapf(ErrRefused, "rule %s", r.Name())
		}
	}
	return c.defaultAllow, nil
}
