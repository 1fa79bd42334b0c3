package db

import (
	"context"
	"fmt"
	"time"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/db/models"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DatabaseAdapter struct {
	PostgresClient *gorm.DB
	MongoClient    *mongo.Client
	MongoDatabase  *mongo.Database
}

// NewDatabaseAdapter opens the connections configured in cfg. Postgres is only opened
// for the postgres driver and mongo only when a URI is set.
func NewDatabaseAdapter(ctx context.Context, cfg *config.DatabaseConfig) (*DatabaseAdapter, error) {
	adapter := &DatabaseAdapter{}
	var err error
	if cfg.Driver == config.DriverPostgres {
		adapter.PostgresClient, err = NewPostgresClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres client: %w", err)
		}
	}
	if cfg.MongoURI != "" {
		adapter.MongoClient, adapter.MongoDatabase, err = NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
	}
	return adapter, nil
}

// Store returns the state store matching the configured driver.
func (da *DatabaseAdapter) Store() Store {
	if da.PostgresClient != nil {
		return NewPostgresStore(da.PostgresClient)
	}
	return NewMemoryStore()
}

func (da *DatabaseAdapter) Close(ctx context.Context) {
	if da.MongoClient != nil {
		if err := da.MongoClient.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Msg("[DatabaseAdapter] [Close] cannot disconnect mongo client")
		}
	}
	if da.PostgresClient != nil {
		if db, err := da.PostgresClient.DB(); err == nil {
			db.Close()
		}
	}
}

func NewPostgresClient(url string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

func NewMongoClient(ctx context.Context, uri string, database string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Info().Str("database", database).Msg("[DatabaseAdapter] Connected to MongoDB")
	return client, client.Database(database), nil
}
