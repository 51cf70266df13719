package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User maps to the users collection. The two match lists are embedded: the
// outgoing list holds matches this user's comparison run produced and is
// replaced wholesale on every run; the incoming list holds matches other
// users' runs produced against this user and only ever grows, deduplicated
// by the counterpart's id.
type User struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name     string        `bson:"name" json:"name"`
	Email    string        `bson:"email" json:"email"`
	Password string        `bson:"password" json:"-"`

	// ProfilePhoto is the file name other users' comparison runs are scored
	// against; it is the reverse-lookup key that resolves scorer output back
	// to a user.
	ProfilePhoto string `bson:"profile_photo" json:"profile_photo"`

	// AIHalfPhoto is the reference image this user's own comparison runs
	// start from. Empty means the user cannot initiate a comparison.
	AIHalfPhoto string `bson:"ai_half_photo" json:"ai_half_photo"`

	OutgoingMatches []MatchRecord `bson:"outgoing_matches" json:"outgoing_matches"`
	IncomingMatches []MatchRecord `bson:"incoming_matches" json:"incoming_matches"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// MatchRecord is one side of a pairing. The same record shape appears in the
// initiator's outgoing list and the counterpart's incoming list; RoomID is
// identical on both sides and is always the canonical id for the pair.
type MatchRecord struct {
	MatchedUserID bson.ObjectID `bson:"matched_user_id" json:"matched_user_id"`
	RoomID        string        `bson:"room_id" json:"room_id"`
	ImageRef      string        `bson:"image_ref" json:"image_ref"`
	Distance      float64       `bson:"distance" json:"distance"`
	Confidence    float64       `bson:"confidence" json:"confidence"`
}

// ChatRoom maps to the chat_rooms collection: one document per room with the
// full ordered message log embedded. Rooms are created lazily on first
// message; RoomID is always supplied by the caller, never derived here.
type ChatRoom struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"id"`
	RoomID   string        `bson:"room_id" json:"room_id"`
	Messages []Message     `bson:"messages" json:"messages"`
}

// Message is immutable once appended. SentAt is assigned by the server at
// append time; arrival order at the store defines message order.
type Message struct {
	SenderID bson.ObjectID `bson:"sender_id" json:"sender_id"`
	Body     string        `bson:"body" json:"body"`
	SentAt   time.Time     `bson:"sent_at" json:"sent_at"`
}
