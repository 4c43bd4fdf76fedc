package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumbforge/internal/auth"
	"thumbforge/internal/domain"
)

type stubUsersStore struct {
	t *testing.T

	createUserFunc        func(context.Context, domain.NewUser) (domain.User, error)
	getUserByEmailFunc    func(context.Context, string) (domain.UserWithPassword, error)
	setResetTokenFunc     func(context.Context, string, string, time.Time) error
	consumeResetTokenFunc func(context.Context, string, time.Time, string) error
}

func (s *stubUsersStore) CreateUser(ctx context.Context, u domain.NewUser) (domain.User, error) {
	if s.createUserFunc != nil {
		return s.createUserFunc(ctx, u)
	}
	s.t.Fatalf("CreateUser called unexpectedly")
	return domain.User{}, errors.New("unexpected call")
}

func (s *stubUsersStore) GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error) {
	if s.getUserByEmailFunc != nil {
		return s.getUserByEmailFunc(ctx, email)
	}
	s.t.Fatalf("GetUserByEmail called unexpectedly")
	return domain.UserWithPassword{}, errors.New("unexpected call")
}

func (s *stubUsersStore) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if s.setResetTokenFunc != nil {
		return s.setResetTokenFunc(ctx, userID, token, expiresAt)
	}
	s.t.Fatalf("SetResetToken called unexpectedly")
	return errors.New("unexpected call")
}

func (s *stubUsersStore) ConsumeResetToken(ctx context.Context, token string, now time.Time, passwordHash string) error {
	if s.consumeResetTokenFunc != nil {
		return s.consumeResetTokenFunc(ctx, token, now, passwordHash)
	}
	s.t.Fatalf("ConsumeResetToken called unexpectedly")
	return errors.New("unexpected call")
}

func newTestTokens() *auth.TokenManager {
	return auth.NewTokenManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour, "test")
}

func TestRegisterTrimsAndHashes(t *testing.T) {
	var created domain.NewUser
	svc := &AuthService{
		Users: &stubUsersStore{
			t: t,
			getUserByEmailFunc: func(_ context.Context, email string) (domain.UserWithPassword, error) {
				assert.Equal(t, "ann@x.com", email)
				return domain.UserWithPassword{}, domain.ErrNotFound
			},
			createUserFunc: func(_ context.Context, u domain.NewUser) (domain.User, error) {
				created = u
				return domain.User{ID: "u1", Email: u.Email, Name: u.Name, Country: u.Country}, nil
			},
		},
		Tokens: newTestTokens(),
	}

	u, err := svc.Register(context.Background(), RegisterParams{
		Name: " Ann ", Email: " ann@x.com ", Password: "secret1", Country: " US ",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "Ann", created.Name)
	assert.Equal(t, "US", created.Country)
	assert.NotEqual(t, "secret1", created.PasswordHash)

	ok, err := auth.VerifyPassword(created.PasswordHash, "secret1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterMissingFields(t *testing.T) {
	svc := &AuthService{Users: &stubUsersStore{t: t}}

	_, err := svc.Register(context.Background(), RegisterParams{Name: "Ann", Email: " "})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.NotContains(t, verr.Fields, "name")
}

func TestRegisterEmailTaken(t *testing.T) {
	svc := &AuthService{Users: &stubUsersStore{
		t: t,
		getUserByEmailFunc: func(context.Context, string) (domain.UserWithPassword, error) {
			return domain.UserWithPassword{User: domain.User{ID: "u1"}}, nil
		},
	}}

	_, err := svc.Register(context.Background(), RegisterParams{Name: "A", Email: "a@x.com", Password: "p"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestRegisterEmailTakenByConcurrentInsert(t *testing.T) {
	svc := &AuthService{Users: &stubUsersStore{
		t: t,
		getUserByEmailFunc: func(context.Context, string) (domain.UserWithPassword, error) {
			return domain.UserWithPassword{}, domain.ErrNotFound
		},
		createUserFunc: func(context.Context, domain.NewUser) (domain.User, error) {
			return domain.User{}, domain.ErrEmailTaken
		},
	}}

	_, err := svc.Register(context.Background(), RegisterParams{Name: "A", Email: "a@x.com", Password: "p"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("secret1")
	require.NoError(t, err)

	tokens := newTestTokens()
	svc := &AuthService{
		Users: &stubUsersStore{
			t: t,
			getUserByEmailFunc: func(_ context.Context, email string) (domain.UserWithPassword, error) {
				if email != "ann@x.com" {
					return domain.UserWithPassword{}, domain.ErrNotFound
				}
				return domain.UserWithPassword{User: domain.User{ID: "u1"}, PasswordHash: hash}, nil
			},
		},
		Tokens: tokens,
	}

	token, err := svc.Login(context.Background(), "ann@x.com", "secret1")
	require.NoError(t, err)
	userID, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, wrongPassword := svc.Login(context.Background(), "ann@x.com", "nope")
	_, unknownEmail := svc.Login(context.Background(), "bob@x.com", "nope")
	assert.ErrorIs(t, wrongPassword, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, domain.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())

	_, err = svc.Login(context.Background(), "", "x")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLoginStoreFailureIsNotInvalidCredentials(t *testing.T) {
	boom := errors.New("db down")
	svc := &AuthService{Users: &stubUsersStore{
		t: t,
		getUserByEmailFunc: func(context.Context, string) (domain.UserWithPassword, error) {
			return domain.UserWithPassword{}, boom
		},
	}}

	_, err := svc.Login(context.Background(), "ann@x.com", "x")
	assert.ErrorIs(t, err, boom)
}

func TestForgotPasswordIssuesToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var (
		gotUser   string
		gotToken  string
		gotExpiry time.Time
	)
	svc := &AuthService{
		Users: &stubUsersStore{
			t: t,
			getUserByEmailFunc: func(context.Context, string) (domain.UserWithPassword, error) {
				return domain.UserWithPassword{User: domain.User{ID: "u1"}}, nil
			},
			setResetTokenFunc: func(_ context.Context, userID, token string, expiresAt time.Time) error {
				gotUser, gotToken, gotExpiry = userID, token, expiresAt
				return nil
			},
		},
		Now: func() time.Time { return now },
	}

	token, err := svc.ForgotPassword(context.Background(), "ann@x.com")
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", token)
	assert.Equal(t, "u1", gotUser)
	assert.Equal(t, token, gotToken)
	assert.Equal(t, now.Add(10*time.Minute), gotExpiry)

	second, err := svc.ForgotPassword(context.Background(), "ann@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, token, second)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	svc := &AuthService{Users: &stubUsersStore{
		t: t,
		getUserByEmailFunc: func(context.Context, string) (domain.UserWithPassword, error) {
			return domain.UserWithPassword{}, domain.ErrNotFound
		},
	}}

	_, err := svc.ForgotPassword(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResetPassword(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotHash string
	svc := &AuthService{
		Users: &stubUsersStore{
			t: t,
			consumeResetTokenFunc: func(_ context.Context, token string, at time.Time, hash string) error {
				if token != "good" {
					return domain.ErrNotFound
				}
				assert.Equal(t, now, at)
				gotHash = hash
				return nil
			},
		},
		Now: func() time.Time { return now },
	}

	require.NoError(t, svc.ResetPassword(context.Background(), "good", "newpass1"))
	ok, err := auth.VerifyPassword(gotHash, "newpass1")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, svc.ResetPassword(context.Background(), "stale", "newpass1"), domain.ErrResetTokenInvalid)
	assert.ErrorIs(t, svc.ResetPassword(context.Background(), "", "newpass1"), domain.ErrResetTokenInvalid)
	assert.ErrorIs(t, svc.ResetPassword(context.Background(), "good", ""), domain.ErrValidation)
}

func TestLoginWithExternalRequiresConfiguration(t *testing.T) {
	svc := &AuthService{Users: &stubUsersStore{t: t}, Tokens: newTestTokens()}

	_, err := svc.LoginWithApple(context.Background(), "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLoginWithAppleCreatesUser(t *testing.T) {
	var created domain.NewUser
	tokens := newTestTokens()
	svc := &AuthService{
		Users: &stubUsersStore{
			t: t,
			getUserByEmailFunc: func(context.Context, string) (domain.UserWithPassword, error) {
				return domain.UserWithPassword{}, domain.ErrNotFound
			},
			createUserFunc: func(_ context.Context, u domain.NewUser) (domain.User, error) {
				created = u
				return domain.User{ID: "u9", Email: u.Email, Name: u.Name}, nil
			},
		},
		Tokens:        tokens,
		AppleClientID: "com.example.app",
		VerifyAppleIDToken: func(_ context.Context, token, audience string) (*auth.ExternalIdentity, error) {
			assert.Equal(t, "com.example.app", audience)
			if token != "ok" {
				return nil, errors.New("bad signature")
			}
			return &auth.ExternalIdentity{Provider: auth.ProviderApple, Subject: "a-1", Email: "jo@icloud.com"}, nil
		},
	}

	token, err := svc.LoginWithApple(context.Background(), "ok")
	require.NoError(t, err)
	userID, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u9", userID)
	assert.Equal(t, "jo", created.Name)
	assert.NotEmpty(t, created.PasswordHash)

	_, err = svc.LoginWithApple(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.LoginWithApple(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
