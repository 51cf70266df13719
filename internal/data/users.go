// Package data provides DB models and stores.
package data

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	// ErrUserExists is returned when a signup collides with the unique email index.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when a lookup matches no user document.
	ErrUserNotFound = errors.New("user not found")
)

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is the "users" collection; set via NewUsersStore and used by every
	// method below
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user document with an already-hashed password and
// the stored file names of the two photos captured at signup.
func (u *UsersStore) CreateUser(ctx context.Context, name, email, hashedPassword, profilePhoto, aiHalfPhoto string) (*User, error) {
	now := time.Now()
	user := &User{
		Name:            name,
		Email:           email,
		Password:        hashedPassword,
		ProfilePhoto:    profilePhoto,
		AIHalfPhoto:     aiHalfPhoto,
		OutgoingMatches: []MatchRecord{},
		IncomingMatches: []MatchRecord{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// Unique email index violation means the address is taken.
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	// MongoDB auto-generates _id; surface it so callers can mint tokens and
	// room ids from it.
	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID finds a user by ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByPhoto resolves a profile photo file name to its owner. This is the
// reverse lookup the match ingestor uses to turn scorer output back into a
// user; it is backed by the profile_photo index.
func (u *UsersStore) GetUserByPhoto(ctx context.Context, photoRef string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"profile_photo": photoRef}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListCandidates returns every user except the given one that has a profile
// photo on record, i.e. the pool a comparison run is scored against.
func (u *UsersStore) ListCandidates(ctx context.Context, exclude bson.ObjectID) ([]*User, error) {
	filter := bson.M{
		"_id":           bson.M{"$ne": exclude},
		"profile_photo": bson.M{"$ne": ""},
	}

	cursor, err := u.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []*User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ReplaceOutgoingMatches overwrites the user's entire outgoing match list.
// Last comparison wins: records from earlier runs do not survive.
func (u *UsersStore) ReplaceOutgoingMatches(ctx context.Context, id bson.ObjectID, matches []MatchRecord) error {
	if matches == nil {
		matches = []MatchRecord{}
	}

	update := bson.M{"$set": bson.M{
		"outgoing_matches": matches,
		"updated_at":       time.Now(),
	}}

	result, err := u.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AppendIncomingMatchIfAbsent appends a record to the user's incoming match
// list unless an entry for the same counterpart is already present. The
// dedup check and the append happen in a single filtered update, so the
// operation is atomic with respect to concurrent ingestion runs targeting
// the same user. Returns true when a record was actually appended.
func (u *UsersStore) AppendIncomingMatchIfAbsent(ctx context.Context, id bson.ObjectID, rec MatchRecord) (bool, error) {
	filter := bson.M{
		"_id": id,
		"incoming_matches.matched_user_id": bson.M{"$ne": rec.MatchedUserID},
	}
	update := bson.M{
		"$push": bson.M{"incoming_matches": rec},
		"$set":  bson.M{"updated_at": time.Now()},
	}

	result, err := u.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}

	// MatchedCount == 0 means either the user is gone or the counterpart is
	// already in the list. Distinguish the two so a vanished user surfaces
	// as an error instead of a silent no-op.
	if result.MatchedCount == 0 {
		count, err := u.coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return false, err
		}
		if count == 0 {
			return false, ErrUserNotFound
		}
		return false, nil
	}
	return true, nil
}
