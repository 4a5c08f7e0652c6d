package auth

import (
	"fmt"

	"github.com/courier-chat/courier/internal/config"
	"github.com/courier-chat/courier/internal/store"
)

// NewProvider creates an auth Provider based on configuration.
func NewProvider(cfg config.AuthConfig, s store.Store) (Provider, error) {
	switch cfg.Provider {
	case "", "builtin":
		return NewService(s, cfg), nil
	case "oidc":
		return NewOIDCProvider(cfg.OIDCIssuer, s)
	default:
		return nil, fmt.Errorf("unknown auth provider: %q", cfg.Provider)
	}
}
