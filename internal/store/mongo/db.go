// Package mongo stores users and thumbnails in MongoDB. Documents use the
// field names of the existing "users" and "thumbnails" collections, so data
// written by earlier deployments stays readable.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	usersCollection      = "users"
	thumbnailsCollection = "thumbnails"
)

func Open(ctx context.Context, dsn, dbName string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(dbName), nil
}

// EnsureIndexes creates the indexes the stores rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_uq"),
		},
		{
			Keys: bson.D{{Key: "resetpasswordtoken", Value: 1}},
			Options: options.Index().SetName("users_reset_token").
				SetPartialFilterExpression(bson.D{{Key: "resetpasswordtoken", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
	})
	if err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}

	_, err = db.Collection(thumbnailsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("thumbnails_user_created"),
	})
	if err != nil {
		return fmt.Errorf("create thumbnails indexes: %w", err)
	}
	return nil
}

// objectID parses a hex id. Malformed ids cannot match a document and are
// reported as false.
func objectID(id string) (bson.ObjectID, bool) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, false
	}
	return oid, true
}
