package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

type userDocument struct {
	ID            string     `bson:"_id"`
	Email         string     `bson:"email"`
	FirstName     string     `bson:"firstName"`
	LastName      string     `bson:"lastName"`
	PasswordHash  string     `bson:"password"`
	LoginAttempts int        `bson:"loginAttempts"`
	LockedUntil   *time.Time `bson:"lockedUntil,omitempty"`
	MFAEnabled    bool       `bson:"mfaEnabled"`
	MFASecret     string     `bson:"mfaSecret,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt"`
}

func (d userDocument) user() User {
	u := User{
		ID:            d.ID,
		Email:         d.Email,
		FirstName:     d.FirstName,
		LastName:      d.LastName,
		PasswordHash:  d.PasswordHash,
		LoginAttempts: d.LoginAttempts,
		MFAEnabled:    d.MFAEnabled,
		MFASecret:     d.MFASecret,
		CreatedAt:     d.CreatedAt.UTC(),
	}
	if d.LockedUntil != nil {
		t := d.LockedUntil.UTC()
		u.LockedUntil = &t
	}
	return u
}

// MongoRepository stores users as documents in the "users" collection.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository builds a MongoDB-backed identity repository.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique email index backing duplicate detection.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

// Insert stores a new user document.
func (r *MongoRepository) Insert(ctx context.Context, user User) error {
	doc := userDocument{
		ID:            user.ID,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		PasswordHash:  user.PasswordHash,
		LoginAttempts: user.LoginAttempts,
		LockedUntil:   utcPtr(user.LockedUntil),
		MFAEnabled:    user.MFAEnabled,
		MFASecret:     user.MFASecret,
		CreatedAt:     user.CreatedAt.UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail fetches a user by email.
func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// FindByID fetches a user by identifier.
func (r *MongoRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (User, error) {
	var doc userDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.user(), nil
}

// UpdateFields applies changes with a single $set/$unset update.
func (r *MongoRepository) UpdateFields(ctx context.Context, id string, changes Changes) (bool, error) {
	set := bson.M{}
	unset := bson.M{}
	if changes.LoginAttempts != nil {
		set["loginAttempts"] = *changes.LoginAttempts
	}
	if changes.ClearLock {
		unset["lockedUntil"] = ""
	} else if changes.LockedUntil != nil {
		set["lockedUntil"] = changes.LockedUntil.UTC()
	}
	if changes.MFAEnabled != nil {
		set["mfaEnabled"] = *changes.MFAEnabled
	}
	if changes.ClearMFASecret {
		unset["mfaSecret"] = ""
	} else if changes.MFASecret != nil {
		set["mfaSecret"] = *changes.MFASecret
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return false, fmt.Errorf("lookup user: %w", err)
		}
		return n > 0, nil
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// IncrementLoginAttempts uses $inc with FindOneAndUpdate for increment-and-fetch.
func (r *MongoRepository) IncrementLoginAttempts(ctx context.Context, id string) (int, error) {
	var doc userDocument
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"loginAttempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment login attempts: %w", err)
	}
	return doc.LoginAttempts, nil
}
