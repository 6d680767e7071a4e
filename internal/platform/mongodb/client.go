package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/paperscope/backend/internal/config"
	"github.com/paperscope/backend/internal/platform/logger"
)

type Client struct {
	Mongo    *mongo.Client
	Database *mongo.Database
	log      *logger.Logger
}

// New connects and pings the primary store. A failed ping is fatal for the
// run: the caller aborts before processing any batch.
func New(log *logger.Logger, cfg config.MongoConfig) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("mongodb: logger required")
	}

	opts := options.Client().ApplyURI(cfg.URI)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}

	return &Client{
		Mongo:    client,
		Database: client.Database(cfg.Database),
		log:      log.With("client", "MongoDB"),
	}, nil
}

func (c *Client) Collection(name string) *mongo.Collection {
	return c.Database.Collection(name)
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Mongo == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Mongo.Disconnect(ctx)
	c.Mongo = nil
	return err
}
