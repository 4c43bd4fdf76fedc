package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"thumbforge/internal/domain"
)

func TestObjectID(t *testing.T) {
	oid := bson.NewObjectID()
	got, ok := objectID(oid.Hex())
	require.True(t, ok)
	assert.Equal(t, oid, got)

	for _, bad := range []string{"", "abc", "8f14e45f-ceea-467f-a0e6-0a2f5b8c1d2e", "zzzzzzzzzzzzzzzzzzzzzzzz"} {
		_, ok := objectID(bad)
		assert.False(t, ok, bad)
	}
}

func TestOwnedFilter(t *testing.T) {
	owner, id := bson.NewObjectID(), bson.NewObjectID()

	f, ok := ownedFilter(owner.Hex(), id.Hex())
	require.True(t, ok)
	assert.Equal(t, bson.D{{Key: "_id", Value: id}, {Key: "user", Value: owner}}, f)

	_, ok = ownedFilter("bad", id.Hex())
	assert.False(t, ok)
	_, ok = ownedFilter(owner.Hex(), "bad")
	assert.False(t, ok)
}

func TestUserDocFieldNames(t *testing.T) {
	exp := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := userDoc{
		ID:                 bson.NewObjectID(),
		Name:               "Ada",
		Email:              "ada@example.com",
		Password:           "$2b$10$hash",
		ResetPasswordToken: "tok",
		ResetPasswordExp:   &exp,
	}
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	for _, key := range []string{"_id", "name", "email", "password", "resetpasswordtoken", "resetpasswordExpiry"} {
		assert.Contains(t, m, key)
	}
	assert.NotContains(t, m, "country", "empty country is omitted")

	u := doc.toDomain()
	assert.Equal(t, doc.ID.Hex(), u.ID)
	assert.Equal(t, "$2b$10$hash", u.PasswordHash)
}

func TestThumbnailDocDecodesLegacyRecord(t *testing.T) {
	// Records written before timestamps were tracked have no createdAt,
	// updatedAt or version.
	id, owner := bson.NewObjectID(), bson.NewObjectID()
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: id},
		{Key: "user", Value: owner},
		{Key: "videoName", Value: "Intro"},
		{Key: "image", Value: "/uploads/Thumbnails/1-intro.png"},
		{Key: "paid", Value: true},
		{Key: "__v", Value: 0},
	})
	require.NoError(t, err)

	var doc thumbnailDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))

	got := doc.toDomain()
	assert.Equal(t, domain.Thumbnail{
		ID:        id.Hex(),
		UserID:    owner.Hex(),
		VideoName: "Intro",
		Image:     "/uploads/Thumbnails/1-intro.png",
		Paid:      true,
	}, got)
}

func TestStoresRejectMalformedIDs(t *testing.T) {
	// Connect does not dial; malformed ids are answered before any command.
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database("thumbnails_test")
	ctx := context.Background()
	store := NewThumbnailsStore(db)
	owner := bson.NewObjectID().Hex()

	_, err = store.CreateThumbnail(ctx, domain.NewThumbnail{UserID: "nope"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = store.GetThumbnail(ctx, owner, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.UpdateThumbnail(ctx, owner, "nope", domain.ThumbnailPatch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.DeleteThumbnail(ctx, owner, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	deleted, err := store.DeleteThumbnailsByID(ctx, owner, []string{"nope", ""})
	require.NoError(t, err)
	assert.Empty(t, deleted)

	list, err := store.ListThumbnails(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, list)

	users := NewUsersStore(db)
	assert.ErrorIs(t, users.SetResetToken(ctx, "nope", "tok", time.Now()), domain.ErrNotFound)
}
