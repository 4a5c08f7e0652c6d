package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/courier-chat/courier/internal/store"
)

// OIDCProvider validates tokens issued by an external OIDC identity provider
// using its published JWKS. Accounts are provisioned on first sight so that
// externally authenticated users can send and receive messages.
type OIDCProvider struct {
	issuer string
	jwks   keyfunc.Keyfunc
	store  store.Store
}

// NewOIDCProvider creates an OIDCProvider that fetches JWKS from the issuer.
func NewOIDCProvider(issuer string, s store.Store) (*OIDCProvider, error) {
	if issuer == "" {
		return nil, fmt.Errorf("oidc issuer URL is required")
	}

	jwksURL := issuer + "/.well-known/jwks.json"
	jwks, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURL, err)
	}

	return &OIDCProvider{
		issuer: issuer,
		jwks:   jwks,
		store:  s,
	}, nil
}

// ValidateToken parses a provider-issued JWT and returns an Identity that
// maps to a local account, creating the account on first use.
func (p *OIDCProvider) ValidateToken(ctx context.Context, tokenStr string) (*Identity, error) {
	token, err := jwt.Parse(tokenStr, p.jwks.KeyfuncCtx(ctx),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrUnauthorized
	}

	username := sub
	switch {
	case claimStr(claims, "preferred_username") != "":
		username = claimStr(claims, "preferred_username")
	case claimStr(claims, "name") != "":
		username = claimStr(claims, "name")
	case claimStr(claims, "email") != "":
		username = claimStr(claims, "email")
	}

	user, err := p.provisionUser(ctx, sub, username)
	if err != nil {
		return nil, err
	}

	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, nil
}

// provisionUser finds the local account for an external subject, creating it
// if this is the first token seen for that subject.
func (p *OIDCProvider) provisionUser(ctx context.Context, sub, username string) (*store.User, error) {
	user, err := p.store.GetUserByExternalID(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("lookup external user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	username, err = p.uniqueUsername(ctx, sub, username)
	if err != nil {
		return nil, err
	}

	user = &store.User{
		ID:         uuid.New().String(),
		ExternalID: sub,
		Username:   username,
		Role:       "user",
		CreatedAt:  time.Now(),
	}
	if err := p.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("provision external user: %w", err)
	}
	return user, nil
}

// uniqueUsername resolves collisions between distinct subjects that carry the
// same preferred username. The first subject keeps the plain name; later ones
// get a suffix derived from their subject.
func (p *OIDCProvider) uniqueUsername(ctx context.Context, sub, username string) (string, error) {
	candidates := []string{username, username + "-" + shortID(sub), username + "-" + shortID(uuid.New().String())}
	for _, c := range candidates {
		existing, err := p.store.GetUser(ctx, c)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if existing == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no available username for subject %s", sub)
}

func shortID(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bootstrap is a no-op for OIDC (users are managed externally).
func (p *OIDCProvider) Bootstrap(ctx context.Context) error {
	return nil
}

// claimStr extracts a string claim or returns "".
func claimStr(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

// Name returns the provider name.
func (p *OIDCProvider) Name() string { return "oidc" }
