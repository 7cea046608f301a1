package gatekeeper

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/client"
)

// UIDRangeConfig represents the configuration for UIDRangeRule.
type UIDRangeConfig struct {
	MinUID int `mapstructure:"min_uid" validate:"gte=0"`
	MaxUID int `mapstructure:"max_uid" default:"65535" validate:"gte=0"`
}

// UIDRangeRule allows identities whose uid lies inside [min_uid, max_uid].
type UIDRangeRule struct {
	config *UIDRangeConfig
}

// NewUIDRangeRule creates a new uid range rule.
func NewUIDRangeRule(minUID, maxUID int) *UIDRangeRule {
	return &UIDRangeRule{config: &UIDRangeConfig{MinUID: minUID, MaxUID: maxUID}}
}

func (r *UIDRangeRule) Name() string {
	return "uid_range"
}

func (r *UIDRangeRule) Description() string {
	return "Allows clients whose uid is within the configured range"
}

func (r *UIDRangeRule) ValidateConfig(settings map[string]any) error {
	var config UIDRangeConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	if config.MinUID > config.MaxUID {
		return errors.New("min_uid cannot be greater than max_uid")
	}
	r.config = &config
	zlog.Info().Msgf("uid range rule config: %+v", config)
	return nil
}

func (r *UIDRangeRule) Check(_ context.Context, identity client.Identity) Verdict {
	if r.config == nil {
		return Abstain
	}
	if identity.UID >= r.config.MinUID && identity.UID <= r.config.MaxUID {
		return Allow
	}
	return Abstain
}

func init() {
	Register("uid_range", func() Rule {
		return &UIDRangeRule{}
	})
}
