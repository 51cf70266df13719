package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// RoomsStore provides the durable per-room message log.
type RoomsStore struct {
	// coll is the "chat_rooms" collection; one document per room with the
	// ordered message log embedded
	coll *mongo.Collection
}

// NewRoomsStore returns a RoomsStore using the given collection.
func NewRoomsStore(coll *mongo.Collection) *RoomsStore {
	return &RoomsStore{coll: coll}
}

// GetOrCreate returns the room document for roomID, creating an empty one if
// it does not exist. The upsert is a single atomic operation against the
// unique room_id index, so concurrent callers for the same room id always
// converge on one document.
func (r *RoomsStore) GetOrCreate(ctx context.Context, roomID string) (*ChatRoom, error) {
	filter := bson.M{"room_id": roomID}
	update := bson.M{"$setOnInsert": bson.M{"messages": []Message{}}}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var room ChatRoom
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Append adds a message to the room's log, creating the room if absent, and
// returns the appended message with its server-assigned timestamp. Order is
// defined by arrival here, not by any client clock: each $push lands in
// document order under MongoDB's per-document atomicity.
func (r *RoomsStore) Append(ctx context.Context, roomID string, senderID bson.ObjectID, body string) (*Message, error) {
	msg := Message{
		SenderID: senderID,
		Body:     body,
		SentAt:   time.Now(),
	}

	filter := bson.M{"room_id": roomID}
	update := bson.M{"$push": bson.M{"messages": msg}}

	opts := options.UpdateOne().SetUpsert(true)
	if _, err := r.coll.UpdateOne(ctx, filter, update, opts); err != nil {
		return nil, err
	}
	return &msg, nil
}

// History returns the full ordered message log for roomID. A room that does
// not exist yet is an empty history, not an error.
func (r *RoomsStore) History(ctx context.Context, roomID string) ([]Message, error) {
	var room ChatRoom
	err := r.coll.FindOne(ctx, bson.M{"room_id": roomID}).Decode(&room)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return []Message{}, nil
		}
		return nil, err
	}
	if room.Messages == nil {
		return []Message{}, nil
	}
	return room.Messages, nil
}
