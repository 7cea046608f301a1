package gatekeeper

import (
	"context"
	"slices"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/client"
)

// PackageListConfig represents the configuration for the package list rules.
type PackageListConfig struct {
	Packages []string `mapstructure:"packages" validate:"required,min=1,dive,required"`
}

// PackageListRule allows (or denies) identities whose package is listed.
type PackageListRule struct {
	name    string
	verdict Verdict
	config  *PackageListConfig
}

// NewPackageAllowlistRule creates a rule that allows listed packages.
func NewPackageAllowlistRule(packages ...string) *PackageListRule {
	return &PackageListRule{name: "package_allowlist", verdict: Allow, config: &PackageListConfig{Packages: packages}}
}

// NewPackageDenylistRule creates a rule that denies listed packages.
func NewPackageDenylistRule(packages ...string) *PackageListRule {
	return &PackageListRule{name: "package_denylist", verdict: Deny, config: &PackageListConfig{Packages: packages}}
}

func (r *PackageListRule) Name() string {
	return r.name
}

func (r *PackageListRule) Description() string {
	if r.verdict == Allow {
		return "Allows clients whose package is listed"
	}
	return "Denies clients whose package is listed"
}

func (r *PackageListRule) ValidateConfig(settings map[string]any) error {
	var config PackageListConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	r.config = &config
	zlog.Info().Msgf("%s rule config: %+v", r.name, config)
	return nil
}

func (r *PackageListRule) Check(_ context.Context, identity client.Identity) Verdict {
	if r.config == nil || identity.IsAnonymous() {
		return Abstain
	}
	if slices.Contains(r.config.Packages, identity.Package) {
		return r.verdict
	}
	return Abstain
}

func init() {
	Register("package_allowlist", func() Rule {
		return &PackageListRule{name: "package_allowlist", verdict: Allow}
	})
	Register("package_denylist", func() Rule {
		return &PackageListRule{name: "package_denylist", verdict: Deny}
	})
}
