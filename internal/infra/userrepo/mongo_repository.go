package userrepo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/yanqian/todoauth/internal/domain/auth"
)

const (
	usersCollection = "users"
	googleIDIndex   = "google_id_unique"
)

type userDocument struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Email        string        `bson:"email"`
	Name         string        `bson:"name"`
	Role         string        `bson:"role"`
	PasswordHash string        `bson:"passwordHash,omitempty"`
	GoogleID     string        `bson:"googleId,omitempty"`
	PictureURL   string        `bson:"photo,omitempty"`
	CreatedAt    time.Time     `bson:"createdAt"`
	LastLoginAt  time.Time     `bson:"lastLogin"`
}

func (d userDocument) toUser() auth.User {
	return auth.User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		Name:         d.Name,
		Role:         auth.Role(d.Role),
		PasswordHash: d.PasswordHash,
		GoogleID:     d.GoogleID,
		PictureURL:   d.PictureURL,
		CreatedAt:    d.CreatedAt.UTC(),
		LastLoginAt:  d.LastLoginAt.UTC(),
	}
}

// MongoRepository persists users in a MongoDB collection.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository wraps the users collection of db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique email index and the sparse unique Google id index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys: bson.D{{Key: "googleId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName(googleIDIndex).
				SetPartialFilterExpression(bson.D{{Key: "googleId", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
	})
	return err
}

// Create inserts a new user document.
func (r *MongoRepository) Create(ctx context.Context, in auth.NewUser) (auth.User, error) {
	now := time.Now().UTC()
	lastLogin := in.LastLoginAt
	if lastLogin.IsZero() {
		lastLogin = now
	}
	doc := userDocument{
		ID:           bson.NewObjectID(),
		Email:        in.Email,
		Name:         in.Name,
		Role:         string(in.Role),
		PasswordHash: in.PasswordHash,
		GoogleID:     in.GoogleID,
		PictureURL:   in.PictureURL,
		CreatedAt:    now,
		LastLoginAt:  lastLogin,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return auth.User{}, duplicateKeyError(err)
		}
		return auth.User{}, err
	}
	return doc.toUser(), nil
}

// FindByEmail fetches a user by email.
func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (auth.User, bool, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

// FindByExternalID fetches the user linked to a Google account.
func (r *MongoRepository) FindByExternalID(ctx context.Context, externalID string) (auth.User, bool, error) {
	return r.findOne(ctx, bson.D{{Key: "googleId", Value: externalID}})
}

// FindByID fetches by object id. Ids that are not valid object ids match nothing.
func (r *MongoRepository) FindByID(ctx context.Context, id string) (auth.User, bool, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return auth.User{}, false, nil
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

// Update applies the non-nil fields of update and returns the stored document.
func (r *MongoRepository) Update(ctx context.Context, id string, update auth.UserUpdate) (auth.User, bool, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return auth.User{}, false, nil
	}
	set := bson.D{}
	if update.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *update.Name})
	}
	if update.Role != nil {
		set = append(set, bson.E{Key: "role", Value: string(*update.Role)})
	}
	if update.PictureURL != nil {
		set = append(set, bson.E{Key: "photo", Value: *update.PictureURL})
	}
	if update.LastLoginAt != nil {
		set = append(set, bson.E{Key: "lastLogin", Value: update.LastLoginAt.UTC()})
	}
	if len(set) == 0 {
		return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
	}

	var doc userDocument
	err = r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return auth.User{}, false, nil
		}
		return auth.User{}, false, err
	}
	return doc.toUser(), true, nil
}

// SetPasswordHash replaces the stored hash.
func (r *MongoRepository) SetPasswordHash(ctx context.Context, id, passwordHash string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "passwordHash", Value: passwordHash}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// List returns all users ordered by creation time.
func (r *MongoRepository) List(ctx context.Context) ([]auth.User, error) {
	cursor, err := r.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "email", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]auth.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toUser())
	}
	return users, nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D) (auth.User, bool, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return auth.User{}, false, nil
		}
		return auth.User{}, false, err
	}
	return doc.toUser(), true, nil
}

var _ auth.Repository = (*MongoRepository)(nil)

// duplicateKeyError maps a duplicate key failure to the sentinel of the violated index.
func duplicateKeyError(err error) error {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if strings.Contains(e.Message, googleIDIndex) {
				return auth.ErrExternalIDExists
			}
		}
	}
	return auth.ErrEmailExists
}
