package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"thumbforge/internal/auth"
	"thumbforge/internal/domain"
	"thumbforge/internal/service"
	"thumbforge/internal/storage"
)

const testSecret = "test-secret-test-secret-test-secret"

type memUser struct {
	domain.UserWithPassword
	resetToken  string
	resetExpiry time.Time
}

type memUsersStore struct {
	mu    sync.Mutex
	users map[string]*memUser
}

func newMemUsersStore() *memUsersStore {
	return &memUsersStore{users: map[string]*memUser{}}
}

func (s *memUsersStore) CreateUser(_ context.Context, nu domain.NewUser) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == nu.Email {
			return domain.User{}, domain.ErrEmailTaken
		}
	}
	now := time.Now().UTC()
	u := &memUser{UserWithPassword: domain.UserWithPassword{
		User: domain.User{
			ID:        uuid.NewString(),
			Email:     nu.Email,
			Name:      nu.Name,
			Country:   nu.Country,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: nu.PasswordHash,
	}}
	s.users[u.ID] = u
	return u.User, nil
}

func (s *memUsersStore) GetUserByEmail(_ context.Context, email string) (domain.UserWithPassword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u.UserWithPassword, nil
		}
	}
	return domain.UserWithPassword{}, domain.ErrNotFound
}

func (s *memUsersStore) SetResetToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.resetToken, u.resetExpiry = token, expiresAt
	return nil
}

func (s *memUsersStore) ConsumeResetToken(_ context.Context, token string, now time.Time, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.resetToken != "" && u.resetToken == token && u.resetExpiry.After(now) {
			u.PasswordHash = passwordHash
			u.resetToken, u.resetExpiry = "", time.Time{}
			return nil
		}
	}
	return domain.ErrNotFound
}

type memThumbnailsStore struct {
	mu    sync.Mutex
	items map[string]domain.Thumbnail
}

func newMemThumbnailsStore() *memThumbnailsStore {
	return &memThumbnailsStore{items: map[string]domain.Thumbnail{}}
}

func (s *memThumbnailsStore) CreateThumbnail(_ context.Context, nt domain.NewThumbnail) (domain.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	t := domain.Thumbnail{
		ID:        uuid.NewString(),
		UserID:    nt.UserID,
		VideoName: nt.VideoName,
		Version:   nt.Version,
		Image:     nt.Image,
		Paid:      nt.Paid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.items[t.ID] = t
	return t, nil
}

func (s *memThumbnailsStore) ListThumbnails(_ context.Context, userID string) ([]domain.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Thumbnail{}
	for _, t := range s.items {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memThumbnailsStore) GetThumbnail(_ context.Context, userID, id string) (domain.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok || t.UserID != userID {
		return domain.Thumbnail{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *memThumbnailsStore) UpdateThumbnail(_ context.Context, userID, id string, patch domain.ThumbnailPatch) (domain.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok || t.UserID != userID {
		return domain.Thumbnail{}, domain.ErrNotFound
	}
	if patch.VideoName != nil {
		t.VideoName = *patch.VideoName
	}
	if patch.Version != nil {
		t.Version = *patch.Version
	}
	if patch.Paid != nil {
		t.Paid = *patch.Paid
	}
	t.UpdatedAt = time.Now().UTC()
	s.items[id] = t
	return t, nil
}

func (s *memThumbnailsStore) DeleteThumbnail(_ context.Context, userID, id string) (domain.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok || t.UserID != userID {
		return domain.Thumbnail{}, domain.ErrNotFound
	}
	delete(s.items, id)
	return t, nil
}

func (s *memThumbnailsStore) DeleteThumbnailsByID(_ context.Context, userID string, ids []string) ([]domain.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Thumbnail{}
	for _, id := range ids {
		if t, ok := s.items[id]; ok && t.UserID == userID {
			delete(s.items, id)
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memThumbnailsStore) DeleteAllThumbnails(_ context.Context, userID string) ([]domain.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Thumbnail{}
	for id, t := range s.items {
		if t.UserID == userID {
			delete(s.items, id)
			out = append(out, t)
		}
	}
	return out, nil
}

type testEnv struct {
	t       *testing.T
	handler http.Handler
	users   *memUsersStore
	thumbs  *memThumbnailsStore
	disk    *storage.Disk
	authSvc *service.AuthService
	tokens  *auth.TokenManager
}

func newTestEnv(t *testing.T, mutate ...func(*RouterOpts)) *testEnv {
	t.Helper()

	users := newMemUsersStore()
	thumbs := newMemThumbnailsStore()
	disk := storage.NewDisk(t.TempDir())
	tokens := auth.NewTokenManager([]byte(testSecret), time.Hour, "thumbforge-test")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authSvc := &service.AuthService{Users: users, Tokens: tokens}
	opts := RouterOpts{
		Logger:      logger,
		Auth:        authSvc,
		Thumbnails:  &service.ThumbnailService{Store: thumbs, Images: disk, Logger: logger},
		CORSOrigins: []string{"*"},
		Uploads:     disk,
	}
	for _, m := range mutate {
		m(&opts)
	}

	return &testEnv{
		t:       t,
		handler: NewRouter(opts),
		users:   users,
		thumbs:  thumbs,
		disk:    disk,
		authSvc: authSvc,
		tokens:  tokens,
	}
}

func (e *testEnv) do(method, target, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// registerAndLogin creates an account and returns its bearer token.
func (e *testEnv) registerAndLogin(email string) string {
	e.t.Helper()

	rec := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ann", "email": email, "password": "secret1", "country": "US",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "secret1"})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())

	var out tokenResponse
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(e.t, out.Token)
	return out.Token
}

type uploadFile struct {
	name    string
	content string
}

func multipartBody(t *testing.T, fields map[string]string, files ...uploadFile) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile("image", f.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(token string, fields map[string]string, files ...uploadFile) *httptest.ResponseRecorder {
	e.t.Helper()

	body, contentType := multipartBody(e.t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, "/api/thumbnails", body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
