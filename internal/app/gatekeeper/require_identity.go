package gatekeeper

import (
	"context"

	"github.com/osa030/mediad/internal/domain/client"
)

// RequireIdentityRule refuses connections that present no package.
type RequireIdentityRule struct{}

func (r *RequireIdentityRule) Name() string {
	return "require_identity"
}

func (r *RequireIdentityRule) Description() string {
	return "Refuses clients that do not identify themselves"
}

func (r *RequireIdentityRule) ValidateConfig(_ map[string]any) error {
	return nil
}

func (r *RequireIdentityRule) Check(_ context.Context, identity client.Identity) Verdict {
	if identity.IsAnonymous() {
		return Refuse
	}
	return Abstain
}

func init() {
	Register("require_identity", func() Rule {
		return &RequireIdentityRule{}
	})
}
