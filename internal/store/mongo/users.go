package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"thumbforge/internal/domain"
)

type userDoc struct {
	ID                 bson.ObjectID `bson:"_id,omitempty"`
	Name               string        `bson:"name"`
	Email              string        `bson:"email"`
	Password           string        `bson:"password"`
	Country            string        `bson:"country,omitempty"`
	ResetPasswordToken string        `bson:"resetpasswordtoken,omitempty"`
	ResetPasswordExp   *time.Time    `bson:"resetpasswordExpiry,omitempty"`
	CreatedAt          time.Time     `bson:"createdAt"`
	UpdatedAt          time.Time     `bson:"updatedAt"`
}

func (d userDoc) toDomain() domain.UserWithPassword {
	return domain.UserWithPassword{
		User: domain.User{
			ID:        d.ID.Hex(),
			Email:     d.Email,
			Name:      d.Name,
			Country:   d.Country,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		PasswordHash: d.Password,
	}
}

type UsersStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewUsersStore(db *mongo.Database) *UsersStore {
	return &UsersStore{coll: db.Collection(usersCollection), now: time.Now}
}

func (s *UsersStore) CreateUser(ctx context.Context, nu domain.NewUser) (domain.User, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	doc := userDoc{
		ID:        bson.NewObjectID(),
		Name:      nu.Name,
		Email:     nu.Email,
		Password:  nu.PasswordHash,
		Country:   nu.Country,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return doc.toDomain().User, nil
}

func (s *UsersStore) GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.UserWithPassword{}, domain.ErrNotFound
		}
		return domain.UserWithPassword{}, fmt.Errorf("get user by email: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *UsersStore) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	oid, ok := objectID(userID)
	if !ok {
		return domain.ErrNotFound
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "resetpasswordtoken", Value: token},
			{Key: "resetpasswordExpiry", Value: expiresAt},
			{Key: "updatedAt", Value: s.now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ConsumeResetToken matches and clears the token in a single document update,
// so the same token cannot be redeemed twice.
func (s *UsersStore) ConsumeResetToken(ctx context.Context, token string, now time.Time, passwordHash string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.D{
			{Key: "resetpasswordtoken", Value: token},
			{Key: "resetpasswordExpiry", Value: bson.D{{Key: "$gt", Value: now}}},
		},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "password", Value: passwordHash},
				{Key: "updatedAt", Value: now.UTC()},
			}},
			{Key: "$unset", Value: bson.D{
				{Key: "resetpasswordtoken", Value: ""},
				{Key: "resetpasswordExpiry", Value: ""},
			}},
		},
	)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
