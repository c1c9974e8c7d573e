package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/persistence/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type roomRepository struct {
	collection *mongo.Collection
	idle       time.Duration
}

// NewRoomRepository persists rooms as documents keyed by room code. Rooms
// untouched for idle are dropped by a TTL index; zero disables expiry.
func NewRoomRepository(database *mongo.Database, collection string, idle time.Duration) domain.RoomStore {
	if collection == "" {
		collection = db.RoomsCollection
	}
	return &roomRepository{
		collection: database.Collection(collection),
		idle:       idle,
	}
}

// roomDocument adds bookkeeping fields that never leave this package.
type roomDocument struct {
	domain.Room `bson:",inline"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (r *roomRepository) Insert(ctx context.Context, room *domain.Room) error {
	doc := roomDocument{Room: *room.Clone(), UpdatedAt: time.Now().UTC()}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrRoomAlreadyExists
		}
		return storeFailure("insert", err)
	}
	return nil
}

func (r *roomRepository) FindOne(ctx context.Context, id string) (*domain.Room, error) {
	var doc roomDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, storeFailure("find", err)
	}
	return normalize(&doc.Room), nil
}

func (r *roomRepository) Update(ctx context.Context, id string, mutate func(*domain.Room) error) (*domain.Room, error) {
	room, err := r.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(room); err != nil {
		return nil, err
	}

	doc := roomDocument{Room: *room, UpdatedAt: time.Now().UTC()}
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return nil, storeFailure("replace", err)
	}
	if res.MatchedCount == 0 {
		return nil, domain.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (r *roomRepository) Remove(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeFailure("delete", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *roomRepository) EnsureIndexes(ctx context.Context) error {
	if r.idle <= 0 {
		return nil
	}
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(r.idle.Seconds())),
	})
	return err
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreFailure, op, err)
}

// normalize restores empty slices that bson decodes as nil.
func normalize(room *domain.Room) *domain.Room {
	if room.Users == nil {
		room.Users = []string{}
	}
	if room.Buzzer.CurrentBuzz == nil {
		room.Buzzer.CurrentBuzz = []domain.Buzz{}
	}
	if room.Buzzer.Buzzed == nil {
		room.Buzzer.Buzzed = []domain.Buzz{}
	}
	return room
}
