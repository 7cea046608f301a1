// Package gatekeeper decides which clients may browse the media catalog.
package gatekeeper

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/mediad/internal/domain/client"
)

// ErrRefused is returned when a rule refuses the connection outright.
var ErrRefused = errors.New("connection refused by gatekeeper")

// Verdict is the outcome of a single rule.
type Verdict int

const (
	// Abstain leaves the decision to the next rule.
	Abstain Verdict = iota
	// Allow grants the real browse root.
	Allow
	// Deny hands out the empty browse root.
	Deny
	// Refuse rejects the connection.
	Refuse
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case Abstain:
		return "ABSTAIN"
	case Allow:
		return "ALLOW"
	case Deny:
		return "DENY"
	case Refuse:
		return "REFUSE"
	default:
		return "UNKNOWN"
	}
}

// Rule is the interface for identity rules.
type Rule interface {
	// Name returns the rule name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ValidateConfig decodes and validates the rule settings.
	ValidateConfig(settings map[string]any) error
	// Check evaluates the identity.
	Check(ctx context.Context, identity client.Identity) Verdict
}

// registry holds registered rule factories.
var registry = make(map[string]func() Rule)

// Register registers a rule factory.
func Register(name string, factory func() Rule) {
	registry[name] = factory
}

// GetRegistered returns all registered rule factories.
func GetRegistered() map[string]func() Rule {
	return registry
}

// decodeSettings decodes rule settings into out, applies defaults and validates.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
