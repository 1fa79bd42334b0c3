package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// LogSink writes each event as one structured log line.
type LogSink struct{}

func (LogSink) Write(_ context.Context, event *Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	log.Info().
		Str("standard", event.Standard).
		Str("version", event.Version).
		Str("event", event.Event).
		RawJSON("data", data).
		Msg("[Events] emitted")
	return nil
}

// MongoSink archives events in a collection.
type MongoSink struct {
	collection *mongo.Collection
}

func NewMongoSink(database *mongo.Database, collection string) *MongoSink {
	return &MongoSink{collection: database.Collection(collection)}
}

func (s *MongoSink) Write(ctx context.Context, event *Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.collection.InsertOne(ctx, bson.M{
		"standard":   event.Standard,
		"version":    event.Version,
		"event":      event.Event,
		"data":       event.Data,
		"created_at": time.Now().UTC(),
	})
	return err
}
