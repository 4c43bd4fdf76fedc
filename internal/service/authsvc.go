package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"thumbforge/internal/auth"
	"thumbforge/internal/domain"
)

const (
	defaultResetTTL = 10 * time.Minute
	resetTokenBytes = 32
)

type UsersStore interface {
	CreateUser(ctx context.Context, u domain.NewUser) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error)
	// SetResetToken stores token and expiry together without touching other fields.
	SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	// ConsumeResetToken atomically replaces the password hash and clears both reset
	// fields of the user whose token matches and has not expired at now.
	// It returns domain.ErrNotFound when no such user exists.
	ConsumeResetToken(ctx context.Context, token string, now time.Time, passwordHash string) error
}

type AuthService struct {
	Users    UsersStore
	Tokens   *auth.TokenManager
	ResetTTL time.Duration
	Now      func() time.Time

	GoogleClientID      string
	AppleClientID       string
	VerifyGoogleIDToken auth.IDTokenVerifier
	VerifyAppleIDToken  auth.IDTokenVerifier
}

type RegisterParams struct {
	Name     string
	Email    string
	Password string
	Country  string
}

func (s *AuthService) Register(ctx context.Context, p RegisterParams) (domain.User, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.Country = strings.TrimSpace(p.Country)

	fields := map[string]string{}
	if p.Name == "" {
		fields["name"] = "Name, email and password are required"
	}
	if p.Email == "" {
		fields["email"] = "Name, email and password are required"
	}
	if p.Password == "" {
		fields["password"] = "Name, email and password are required"
	}
	if len(fields) > 0 {
		return domain.User{}, domain.NewValidationError(fields)
	}

	_, err := s.Users.GetUserByEmail(ctx, p.Email)
	if err == nil {
		return domain.User{}, domain.ErrEmailTaken
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}

	passwordHash, err := auth.HashPassword(p.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.Users.CreateUser(ctx, domain.NewUser{
		Email:        p.Email,
		Name:         p.Name,
		Country:      p.Country,
		PasswordHash: passwordHash,
	})
}

// Login returns a bearer token. Unknown email and wrong password both yield
// domain.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", domain.NewValidationError(map[string]string{
			"credentials": "Email and password are required",
		})
	}

	u, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrInvalidCredentials
		}
		return "", err
	}

	ok, err := auth.VerifyPassword(u.PasswordHash, password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrInvalidCredentials
	}

	return s.Tokens.Issue(u.ID)
}

// Logout is a no-op: bearer tokens are not tracked server side and stay valid
// until they expire.
func (s *AuthService) Logout(context.Context, string) error {
	return nil
}

// ForgotPassword issues a reset token for the user and returns it raw.
// The token is stored as issued so it can be matched on reset.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", domain.NewValidationError(map[string]string{"email": "Email is required"})
	}

	u, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	token, err := newResetToken()
	if err != nil {
		return "", err
	}

	ttl := s.ResetTTL
	if ttl <= 0 {
		ttl = defaultResetTTL
	}
	if err := s.Users.SetResetToken(ctx, u.ID, token, s.now().Add(ttl)); err != nil {
		return "", err
	}
	return token, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if newPassword == "" {
		return domain.NewValidationError(map[string]string{"newPassword": "New password is required"})
	}
	if token == "" {
		return domain.ErrResetTokenInvalid
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.Users.ConsumeResetToken(ctx, token, s.now(), hash); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrResetTokenInvalid
		}
		return err
	}
	return nil
}

func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (string, error) {
	return s.loginWithExternal(ctx, idToken, s.GoogleClientID, s.VerifyGoogleIDToken)
}

func (s *AuthService) LoginWithApple(ctx context.Context, idToken string) (string, error) {
	return s.loginWithExternal(ctx, idToken, s.AppleClientID, s.VerifyAppleIDToken)
}

// loginWithExternal trusts the provider-verified email: an existing account
// with that email is signed in, otherwise a new one is created with an
// unusable password (the user can set one through the reset flow).
func (s *AuthService) loginWithExternal(ctx context.Context, idToken, audience string, verify auth.IDTokenVerifier) (string, error) {
	if verify == nil || audience == "" {
		return "", errors.New("external sign-in not configured")
	}
	if strings.TrimSpace(idToken) == "" {
		return "", domain.NewValidationError(map[string]string{"idToken": "ID token is required"})
	}

	identity, err := verify(ctx, idToken, audience)
	if err != nil {
		return "", domain.ErrUnauthorized
	}
	email := strings.TrimSpace(identity.Email)
	if email == "" {
		return "", domain.NewValidationError(map[string]string{"email": "Identity provider did not share an email"})
	}

	u, err := s.Users.GetUserByEmail(ctx, email)
	if err == nil {
		return s.Tokens.Issue(u.ID)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	hash, err := auth.UnusablePasswordHash()
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	created, err := s.Users.CreateUser(ctx, domain.NewUser{Email: email, Name: name, PasswordHash: hash})
	if err != nil {
		return "", err
	}
	return s.Tokens.Issue(created.ID)
}

func (s *AuthService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func newResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
