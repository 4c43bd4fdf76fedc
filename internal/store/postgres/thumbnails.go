package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"thumbforge/internal/domain"
)

type ThumbnailsStore struct {
	pool *pgxpool.Pool
}

func NewThumbnailsStore(pool *pgxpool.Pool) *ThumbnailsStore {
	return &ThumbnailsStore{pool: pool}
}

const thumbnailColumns = `id, user_id, video_name, version, image, paid, created_at, updated_at`

func (s *ThumbnailsStore) CreateThumbnail(ctx context.Context, nt domain.NewThumbnail) (domain.Thumbnail, error) {
	if !validID(nt.UserID) {
		return domain.Thumbnail{}, domain.ErrUnauthorized
	}

	q := `
		INSERT INTO thumbnails (user_id, video_name, version, image, paid)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + thumbnailColumns

	t, err := scanThumbnail(s.pool.QueryRow(ctx, q, nt.UserID, nt.VideoName, nt.Version, nt.Image, nt.Paid))
	if err != nil {
		return domain.Thumbnail{}, fmt.Errorf("create thumbnail: %w", err)
	}
	return t, nil
}

// ListThumbnails returns the user's thumbnails, newest first.
func (s *ThumbnailsStore) ListThumbnails(ctx context.Context, userID string) ([]domain.Thumbnail, error) {
	if !validID(userID) {
		return []domain.Thumbnail{}, nil
	}

	q := `SELECT ` + thumbnailColumns + `
		FROM thumbnails
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list thumbnails: %w", err)
	}
	out, err := collectThumbnails(rows)
	if err != nil {
		return nil, fmt.Errorf("list thumbnails: %w", err)
	}
	return out, nil
}

func (s *ThumbnailsStore) GetThumbnail(ctx context.Context, userID, id string) (domain.Thumbnail, error) {
	if !validID(userID) || !validID(id) {
		return domain.Thumbnail{}, domain.ErrNotFound
	}

	q := `SELECT ` + thumbnailColumns + `
		FROM thumbnails
		WHERE id = $1 AND user_id = $2`

	t, err := scanThumbnail(s.pool.QueryRow(ctx, q, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Thumbnail{}, domain.ErrNotFound
		}
		return domain.Thumbnail{}, fmt.Errorf("get thumbnail: %w", err)
	}
	return t, nil
}

func (s *ThumbnailsStore) UpdateThumbnail(ctx context.Context, userID, id string, patch domain.ThumbnailPatch) (domain.Thumbnail, error) {
	if !validID(userID) || !validID(id) {
		return domain.Thumbnail{}, domain.ErrNotFound
	}

	q := `
		UPDATE thumbnails
		SET video_name = COALESCE($3, video_name),
		    version    = COALESCE($4, version),
		    paid       = COALESCE($5, paid),
		    updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + thumbnailColumns

	t, err := scanThumbnail(s.pool.QueryRow(ctx, q, id, userID, patch.VideoName, patch.Version, patch.Paid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Thumbnail{}, domain.ErrNotFound
		}
		return domain.Thumbnail{}, fmt.Errorf("update thumbnail: %w", err)
	}
	return t, nil
}

func (s *ThumbnailsStore) DeleteThumbnail(ctx context.Context, userID, id string) (domain.Thumbnail, error) {
	if !validID(userID) || !validID(id) {
		return domain.Thumbnail{}, domain.ErrNotFound
	}

	q := `DELETE FROM thumbnails WHERE id = $1 AND user_id = $2 RETURNING ` + thumbnailColumns

	t, err := scanThumbnail(s.pool.QueryRow(ctx, q, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Thumbnail{}, domain.ErrNotFound
		}
		return domain.Thumbnail{}, fmt.Errorf("delete thumbnail: %w", err)
	}
	return t, nil
}

// DeleteThumbnailsByID deletes the listed thumbnails owned by userID. Ids that
// are malformed or belong to someone else are skipped.
func (s *ThumbnailsStore) DeleteThumbnailsByID(ctx context.Context, userID string, ids []string) ([]domain.Thumbnail, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if !validID(userID) || len(valid) == 0 {
		return []domain.Thumbnail{}, nil
	}

	q := `DELETE FROM thumbnails WHERE user_id = $1 AND id = ANY($2::uuid[]) RETURNING ` + thumbnailColumns

	rows, err := s.pool.Query(ctx, q, userID, valid)
	if err != nil {
		return nil, fmt.Errorf("delete thumbnails: %w", err)
	}
	out, err := collectThumbnails(rows)
	if err != nil {
		return nil, fmt.Errorf("delete thumbnails: %w", err)
	}
	return out, nil
}

func (s *ThumbnailsStore) DeleteAllThumbnails(ctx context.Context, userID string) ([]domain.Thumbnail, error) {
	if !validID(userID) {
		return []domain.Thumbnail{}, nil
	}

	q := `DELETE FROM thumbnails WHERE user_id = $1 RETURNING ` + thumbnailColumns

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("delete all thumbnails: %w", err)
	}
	out, err := collectThumbnails(rows)
	if err != nil {
		return nil, fmt.Errorf("delete all thumbnails: %w", err)
	}
	return out, nil
}

func scanThumbnail(row pgx.Row) (domain.Thumbnail, error) {
	var (
		t          domain.Thumbnail
		idUUID     pgtype.UUID
		userIDUUID pgtype.UUID
	)
	err := row.Scan(
		&idUUID,
		&userIDUUID,
		&t.VideoName,
		&t.Version,
		&t.Image,
		&t.Paid,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return domain.Thumbnail{}, err
	}
	t.ID = uuidOrEmpty(idUUID)
	t.UserID = uuidOrEmpty(userIDUUID)
	return t, nil
}

func collectThumbnails(rows pgx.Rows) ([]domain.Thumbnail, error) {
	defer rows.Close()

	out := []domain.Thumbnail{}
	for rows.Next() {
		t, err := scanThumbnail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
