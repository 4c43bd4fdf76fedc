package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"thumbforge/internal/domain"
)

type thumbnailDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	User      bson.ObjectID `bson:"user"`
	VideoName string        `bson:"videoName"`
	Version   string        `bson:"version,omitempty"`
	Image     string        `bson:"image"`
	Paid      bool          `bson:"paid"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d thumbnailDoc) toDomain() domain.Thumbnail {
	return domain.Thumbnail{
		ID:        d.ID.Hex(),
		UserID:    d.User.Hex(),
		VideoName: d.VideoName,
		Version:   d.Version,
		Image:     d.Image,
		Paid:      d.Paid,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type ThumbnailsStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewThumbnailsStore(db *mongo.Database) *ThumbnailsStore {
	return &ThumbnailsStore{coll: db.Collection(thumbnailsCollection), now: time.Now}
}

func (s *ThumbnailsStore) CreateThumbnail(ctx context.Context, nt domain.NewThumbnail) (domain.Thumbnail, error) {
	owner, ok := objectID(nt.UserID)
	if !ok {
		return domain.Thumbnail{}, domain.ErrUnauthorized
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	doc := thumbnailDoc{
		ID:        bson.NewObjectID(),
		User:      owner,
		VideoName: nt.VideoName,
		Version:   nt.Version,
		Image:     nt.Image,
		Paid:      nt.Paid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return domain.Thumbnail{}, fmt.Errorf("create thumbnail: %w", err)
	}
	return doc.toDomain(), nil
}

// ListThumbnails returns the user's thumbnails, newest first.
func (s *ThumbnailsStore) ListThumbnails(ctx context.Context, userID string) ([]domain.Thumbnail, error) {
	owner, ok := objectID(userID)
	if !ok {
		return []domain.Thumbnail{}, nil
	}
	return s.find(ctx, bson.D{{Key: "user", Value: owner}})
}

func (s *ThumbnailsStore) GetThumbnail(ctx context.Context, userID, id string) (domain.Thumbnail, error) {
	filter, ok := ownedFilter(userID, id)
	if !ok {
		return domain.Thumbnail{}, domain.ErrNotFound
	}

	var doc thumbnailDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.Thumbnail{}, mapFindError("get thumbnail", err)
	}
	return doc.toDomain(), nil
}

func (s *ThumbnailsStore) UpdateThumbnail(ctx context.Context, userID, id string, patch domain.ThumbnailPatch) (domain.Thumbnail, error) {
	filter, ok := ownedFilter(userID, id)
	if !ok {
		return domain.Thumbnail{}, domain.ErrNotFound
	}

	set := bson.D{{Key: "updatedAt", Value: s.now().UTC().Truncate(time.Millisecond)}}
	if patch.VideoName != nil {
		set = append(set, bson.E{Key: "videoName", Value: *patch.VideoName})
	}
	if patch.Version != nil {
		set = append(set, bson.E{Key: "version", Value: *patch.Version})
	}
	if patch.Paid != nil {
		set = append(set, bson.E{Key: "paid", Value: *patch.Paid})
	}

	var doc thumbnailDoc
	err := s.coll.FindOneAndUpdate(ctx, filter,
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return domain.Thumbnail{}, mapFindError("update thumbnail", err)
	}
	return doc.toDomain(), nil
}

func (s *ThumbnailsStore) DeleteThumbnail(ctx context.Context, userID, id string) (domain.Thumbnail, error) {
	filter, ok := ownedFilter(userID, id)
	if !ok {
		return domain.Thumbnail{}, domain.ErrNotFound
	}

	var doc thumbnailDoc
	if err := s.coll.FindOneAndDelete(ctx, filter).Decode(&doc); err != nil {
		return domain.Thumbnail{}, mapFindError("delete thumbnail", err)
	}
	return doc.toDomain(), nil
}

// DeleteThumbnailsByID deletes the listed thumbnails owned by userID. Ids that
// are malformed or belong to someone else are skipped.
func (s *ThumbnailsStore) DeleteThumbnailsByID(ctx context.Context, userID string, ids []string) ([]domain.Thumbnail, error) {
	owner, ok := objectID(userID)
	if !ok {
		return []domain.Thumbnail{}, nil
	}
	oids := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, ok := objectID(id); ok {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return []domain.Thumbnail{}, nil
	}
	return s.deleteMatching(ctx, bson.D{
		{Key: "user", Value: owner},
		{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}},
	})
}

func (s *ThumbnailsStore) DeleteAllThumbnails(ctx context.Context, userID string) ([]domain.Thumbnail, error) {
	owner, ok := objectID(userID)
	if !ok {
		return []domain.Thumbnail{}, nil
	}
	return s.deleteMatching(ctx, bson.D{{Key: "user", Value: owner}})
}

// deleteMatching reads the matching documents, then deletes exactly those ids.
// A document removed concurrently between the two steps is still reported.
func (s *ThumbnailsStore) deleteMatching(ctx context.Context, filter bson.D) ([]domain.Thumbnail, error) {
	found, err := s.find(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return found, nil
	}

	oids := make([]bson.ObjectID, 0, len(found))
	for _, t := range found {
		oid, _ := objectID(t.ID)
		oids = append(oids, oid)
	}
	if _, err := s.coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}}); err != nil {
		return nil, fmt.Errorf("delete thumbnails: %w", err)
	}
	return found, nil
}

func (s *ThumbnailsStore) find(ctx context.Context, filter bson.D) ([]domain.Thumbnail, error) {
	cur, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find thumbnails: %w", err)
	}
	defer cur.Close(ctx)

	var docs []thumbnailDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode thumbnails: %w", err)
	}
	out := make([]domain.Thumbnail, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func ownedFilter(userID, id string) (bson.D, bool) {
	owner, ok := objectID(userID)
	if !ok {
		return nil, false
	}
	oid, ok := objectID(id)
	if !ok {
		return nil, false
	}
	return bson.D{{Key: "_id", Value: oid}, {Key: "user", Value: owner}}, true
}

func mapFindError(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
