package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendrickPhan/go-verify-apple-id-token/validator"
	"google.golang.org/api/idtoken"
)

const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"
)

// ExternalIdentity is what a third-party identity provider vouches for.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// IDTokenVerifier verifies a provider-issued ID token for one audience.
type IDTokenVerifier func(ctx context.Context, token, audience string) (*ExternalIdentity, error)

var errMissingIDToken = errors.New("missing id token")

func VerifyGoogleIDToken(ctx context.Context, token, audience string) (*ExternalIdentity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errMissingIDToken
	}
	if strings.TrimSpace(audience) == "" {
		return nil, errors.New("missing google client id")
	}

	payload, err := idtoken.Validate(ctx, token, audience)
	if err != nil {
		return nil, fmt.Errorf("validate google id token: %w", err)
	}
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return nil, fmt.Errorf("unexpected issuer: %s", payload.Issuer)
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, errors.New("google email not verified")
	}

	return &ExternalIdentity{
		Provider: ProviderGoogle,
		Subject:  payload.Subject,
		Email:    stringClaim(payload.Claims, "email"),
		Name:     stringClaim(payload.Claims, "name"),
	}, nil
}

func VerifyAppleIDToken(_ context.Context, token, audience string) (*ExternalIdentity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errMissingIDToken
	}
	if strings.TrimSpace(audience) == "" {
		return nil, errors.New("missing apple service id")
	}

	claims, err := validator.NewClient().VerifyIdToken(audience, token)
	if err != nil {
		return nil, fmt.Errorf("validate apple id token: %w", err)
	}
	if claims.Iss != "https://appleid.apple.com" {
		return nil, fmt.Errorf("unexpected issuer: %s", claims.Iss)
	}

	return &ExternalIdentity{
		Provider: ProviderApple,
		Subject:  claims.Sub,
		Email:    claims.Email,
	}, nil
}

func stringClaim(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
