package storage

import (
	"Muse/lib/sl"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "dialogs"

type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

func NewMongoStorage(uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	collection := client.Database(database).Collection(collectionName)

	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		log.Warn("creating index", sl.Err(err))
	}

	return &MongoStorage{
		client:     client,
		collection: collection,
		log:        log.With(sl.Module("mongo")),
	}, nil
}

func (m *MongoStorage) GetDialog(chatId int64) (*DialogContext, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var dialog DialogContext
	err := m.collection.FindOne(ctx, bson.M{"chat_id": chatId}).Decode(&dialog)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding dialog: %w", err)
	}
	return &dialog, nil
}

func (m *MongoStorage) AppendMessage(chatId int64, message Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	message.Tokens = len([]rune(message.Text))
	message.Timestamp = time.Now()

	existing, err := m.GetDialog(chatId)
	if err != nil {
		return err
	}

	if existing == nil {
		_, err = m.collection.InsertOne(ctx, &DialogContext{
			ChatId:    chatId,
			Messages:  []Message{message},
			Tokens:    message.Tokens,
			UpdatedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("inserting dialog: %w", err)
		}
		return nil
	}

	existing.Tokens += message.Tokens
	trimToBudget(existing, maxTokens)
	existing.Messages = append(existing.Messages, message)
	existing.UpdatedAt = time.Now()

	if _, err = m.collection.ReplaceOne(ctx, bson.M{"chat_id": chatId}, existing); err != nil {
		return fmt.Errorf("replacing dialog: %w", err)
	}
	return nil
}

func (m *MongoStorage) SetTopic(chatId int64, topic string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"topic":      topic,
			"updated_at": time.Now(),
		},
		"$setOnInsert": bson.M{
			"chat_id":  chatId,
			"messages": []Message{},
			"tokens":   0,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := m.collection.UpdateOne(ctx, bson.M{"chat_id": chatId}, update, opts)
	return err
}

func (m *MongoStorage) ClearDialog(chatId int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.collection.DeleteOne(ctx, bson.M{"chat_id": chatId})
	return err
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
