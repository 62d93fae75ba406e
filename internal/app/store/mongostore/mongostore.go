/*
Package mongostore implements the message store and user directory on MongoDB.

Documents mirror the JSON shape clients see: users keyed by string _id with
name, role, field and profileImage; messages with sender, recipient, content,
read and createdAt.
*/
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mentorlink/internal/app/messaging"
	"mentorlink/internal/app/user"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

// Store implements messaging.Store and user.Directory.
type Store struct {
	users    *mongo.Collection
	messages *mongo.Collection
}

// Connect dials uri and verifies the deployment is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}

// New returns a Store over db.
func New(db *mongo.Database) *Store {
	return &Store{
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
	}
}

// EnsureIndexes creates the indexes the conversation queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "recipient", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "sender", Value: 1}, {Key: "read", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("find user %s: %w", id, err)
	}
	return u, nil
}

// UpsertUser inserts or replaces u.
func (s *Store) UpsertUser(ctx context.Context, u user.User) error {
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

func (s *Store) SaveMessage(ctx context.Context, m messaging.Message) error {
	if _, err := s.messages.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"sender": a, "recipient": b},
		bson.M{"sender": b, "recipient": a},
	}}
}

func (s *Store) HasConversation(ctx context.Context, a, b string) (bool, error) {
	err := s.messages.FindOne(ctx, pairFilter(a, b), options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("check conversation: %w", err)
	}
	return true, nil
}

func (s *Store) ListConversation(ctx context.Context, a, b string) ([]messaging.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.messages.Find(ctx, pairFilter(a, b), opts)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}

	messages := make([]messaging.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return messages, nil
}

// partnersPipeline groups userID's non-empty messages by counterpart, keeps the
// latest one per counterpart and joins the counterpart's profile.
func partnersPipeline(userID string, partnerRole user.Role) mongo.Pipeline {
	isUnreadFromPartner := bson.M{"$and": bson.A{
		bson.M{"$eq": bson.A{"$sender", "$partnerId"}},
		bson.M{"$eq": bson.A{"$read", false}},
	}}

	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"$or": bson.A{
				bson.M{"sender": userID},
				bson.M{"recipient": userID},
			},
			"content": bson.M{"$exists": true, "$ne": ""},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$addFields", Value: bson.M{
			"partnerId": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$sender", userID}},
				"$recipient",
				"$sender",
			}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":             "$partnerId",
			"lastMessage":     bson.M{"$last": "$content"},
			"lastMessageTime": bson.M{"$last": "$createdAt"},
			"messageCount":    bson.M{"$sum": 1},
			"unreadCount":     bson.M{"$sum": bson.M{"$cond": bson.A{isUnreadFromPartner, 1, 0}}},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         usersCollection,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "partner",
		}}},
		{{Key: "$unwind", Value: "$partner"}},
		{{Key: "$match", Value: bson.M{"partner.role": string(partnerRole)}}},
		{{Key: "$project", Value: bson.M{
			"_id":             1,
			"name":            "$partner.name",
			"role":            "$partner.role",
			"field":           "$partner.field",
			"profileImage":    "$partner.profileImage",
			"lastMessage":     1,
			"lastMessageTime": 1,
			"messageCount":    1,
			"unreadCount":     1,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastMessageTime", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

func (s *Store) ListPartners(ctx context.Context, userID string, partnerRole user.Role) ([]messaging.PartnerSummary, error) {
	cursor, err := s.messages.Aggregate(ctx, partnersPipeline(userID, partnerRole))
	if err != nil {
		return nil, fmt.Errorf("aggregate partners: %w", err)
	}

	partners := make([]messaging.PartnerSummary, 0)
	if err := cursor.All(ctx, &partners); err != nil {
		return nil, fmt.Errorf("decode partners: %w", err)
	}
	return partners, nil
}

func (s *Store) MarkRead(ctx context.Context, readerID, senderID string) (int64, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"sender": senderID, "recipient": readerID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.ModifiedCount, nil
}
