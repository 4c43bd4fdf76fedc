package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"thumbforge/internal/domain"
	"thumbforge/internal/storage"
)

const (
	// UploadsURLPrefix is the public path under which stored images are served.
	UploadsURLPrefix = "/uploads/"
	thumbnailsDir    = "Thumbnails"
	maxFieldBytes    = 64 << 10
)

type ThumbnailsStore interface {
	CreateThumbnail(ctx context.Context, t domain.NewThumbnail) (domain.Thumbnail, error)
	ListThumbnails(ctx context.Context, userID string) ([]domain.Thumbnail, error)
	GetThumbnail(ctx context.Context, userID, id string) (domain.Thumbnail, error)
	UpdateThumbnail(ctx context.Context, userID, id string, patch domain.ThumbnailPatch) (domain.Thumbnail, error)
	// DeleteThumbnail removes the record and returns it as it was.
	DeleteThumbnail(ctx context.Context, userID, id string) (domain.Thumbnail, error)
	DeleteThumbnailsByID(ctx context.Context, userID string, ids []string) ([]domain.Thumbnail, error)
	DeleteAllThumbnails(ctx context.Context, userID string) ([]domain.Thumbnail, error)
}

// ImageStore persists uploaded image bytes under a slash separated key.
type ImageStore interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) error
	Remove(ctx context.Context, key string) error
}

// PartReader yields multipart parts one at a time; *multipart.Reader satisfies it.
type PartReader interface {
	NextPart() (*multipart.Part, error)
}

type ThumbnailService struct {
	Store  ThumbnailsStore
	Images ImageStore
	Logger *slog.Logger
	Now    func() time.Time
}

// Create consumes an upload form. The single image part is streamed to the
// image store before the record is written, so a record never references a
// file that was not fully stored.
func (s *ThumbnailService) Create(ctx context.Context, userID string, form PartReader) (domain.Thumbnail, error) {
	var (
		fields   = map[string]string{}
		imageKey string
	)

	fail := func(err error) (domain.Thumbnail, error) {
		if imageKey != "" {
			s.removeImage(ctx, imageKey)
		}
		return domain.Thumbnail{}, err
	}

	for {
		part, err := form.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(uploadError(err))
		}

		if part.FileName() == "" {
			name := part.FormName()
			value, err := readField(part)
			_ = part.Close()
			if err != nil {
				return fail(err)
			}
			fields[name] = value
			continue
		}

		if imageKey != "" {
			_ = part.Close()
			return fail(domain.NewValidationError(map[string]string{"image": "Only one image file is allowed"}))
		}

		key := path.Join(thumbnailsDir, s.storedFileName(part.FileName()))
		err = s.Images.Save(ctx, key, contentType(key), part)
		_ = part.Close()
		if err != nil {
			return fail(uploadError(err))
		}
		imageKey = key
	}

	if imageKey == "" {
		return fail(domain.NewValidationError(map[string]string{"image": "Image file is required"}))
	}

	videoName := strings.TrimSpace(fields["videoName"])
	if videoName == "" {
		return fail(domain.NewValidationError(map[string]string{"videoName": "Video name is required"}))
	}
	paid, _ := strconv.ParseBool(strings.TrimSpace(fields["paid"]))

	t, err := s.Store.CreateThumbnail(ctx, domain.NewThumbnail{
		UserID:    userID,
		VideoName: videoName,
		Version:   strings.TrimSpace(fields["version"]),
		Image:     UploadsURLPrefix + imageKey,
		Paid:      paid,
	})
	if err != nil {
		return fail(err)
	}
	return t, nil
}

func (s *ThumbnailService) List(ctx context.Context, userID string) ([]domain.Thumbnail, error) {
	return s.Store.ListThumbnails(ctx, userID)
}

func (s *ThumbnailService) Get(ctx context.Context, userID, id string) (domain.Thumbnail, error) {
	return s.Store.GetThumbnail(ctx, userID, id)
}

// Update changes metadata only; the stored image is immutable.
func (s *ThumbnailService) Update(ctx context.Context, userID, id string, patch domain.ThumbnailPatch) (domain.Thumbnail, error) {
	if patch.VideoName != nil {
		name := strings.TrimSpace(*patch.VideoName)
		if name == "" {
			return domain.Thumbnail{}, domain.NewValidationError(map[string]string{"videoName": "Video name cannot be empty"})
		}
		patch.VideoName = &name
	}
	if patch.Version != nil {
		version := strings.TrimSpace(*patch.Version)
		patch.Version = &version
	}
	if patch.Empty() {
		return s.Store.GetThumbnail(ctx, userID, id)
	}
	return s.Store.UpdateThumbnail(ctx, userID, id, patch)
}

// Delete removes the record, then its file. A file that cannot be removed is
// logged and left behind.
func (s *ThumbnailService) Delete(ctx context.Context, userID, id string) error {
	t, err := s.Store.DeleteThumbnail(ctx, userID, id)
	if err != nil {
		return err
	}
	s.removeImage(ctx, imageKey(t.Image))
	return nil
}

// DeleteMany removes the listed records of the user, or all of them when ids
// is empty. Records and files are not removed atomically.
func (s *ThumbnailService) DeleteMany(ctx context.Context, userID string, ids []string) (int, error) {
	var (
		deleted []domain.Thumbnail
		err     error
	)
	if len(ids) == 0 {
		deleted, err = s.Store.DeleteAllThumbnails(ctx, userID)
	} else {
		clean := uniqueNonEmpty(ids)
		if len(clean) == 0 {
			return 0, nil
		}
		deleted, err = s.Store.DeleteThumbnailsByID(ctx, userID, clean)
	}
	if err != nil {
		return 0, err
	}

	for _, t := range deleted {
		s.removeImage(ctx, imageKey(t.Image))
	}
	return len(deleted), nil
}

func (s *ThumbnailService) removeImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.Images.Remove(ctx, key); err != nil {
		s.logger().Error("failed to delete image file", "key", key, "err", err)
	}
}

func (s *ThumbnailService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *ThumbnailService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// storedFileName builds "<unix millis>-<random>-<slug><ext>" from the client
// supplied name. Only the base name is kept.
func (s *ThumbnailService) storedFileName(original string) string {
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	stem := slug.Make(strings.TrimSuffix(base, path.Ext(base)))
	if stem == "" {
		stem = "image"
	}
	if _, ok := storage.ImageContentType(ext); !ok {
		ext = ""
	}

	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	return fmt.Sprintf("%d-%s-%s%s", s.now().UnixMilli(), hex.EncodeToString(suffix[:]), stem, ext)
}

// imageKey maps a stored image path back to its storage key. Only the base name
// is trusted, so a tampered path cannot address files outside the thumbnails dir.
func imageKey(image string) string {
	base := path.Base(image)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return path.Join(thumbnailsDir, base)
}

// contentType is derived from the stored name; the client supplied header is
// not trusted.
func contentType(key string) string {
	if ct, ok := storage.ImageContentType(path.Ext(key)); ok {
		return ct
	}
	return "application/octet-stream"
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", uploadError(err)
	}
	if len(b) > maxFieldBytes {
		return "", domain.NewValidationError(map[string]string{part.FormName(): "Field is too large"})
	}
	return string(b), nil
}

// uploadError turns request body failures into validation errors and leaves
// storage failures as they are.
func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.NewValidationError(map[string]string{"image": "Upload is too large"})
	}
	if errors.Is(err, multipart.ErrMessageTooLarge) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.NewValidationError(map[string]string{"body": "Malformed multipart body"})
	}
	if strings.HasPrefix(err.Error(), "multipart:") {
		return domain.NewValidationError(map[string]string{"body": "Malformed multipart body"})
	}
	return err
}

func uniqueNonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
