// Package graph projects similarity edges into a Neo4j compatible graph over Bolt.
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Config holds graph database configuration
type Config struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
}

// Enabled reports whether a graph host is configured.
func (c Config) Enabled() bool {
	return c.Host != ""
}

// URI is the bolt address for the configured host.
func (c Config) URI() string {
	port := c.Port
	if port == 0 {
		port = 7687
	}
	return fmt.Sprintf("bolt://%s:%d", c.Host, port)
}

// Statement is one parameterized Cypher statement.
type Statement struct {
	Cypher string
	Params map[string]any
}

// Client wraps the Neo4j driver
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   ectologger.Logger
}

// NewClient creates a new graph database client
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI(), auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}

	return &Client{
		driver:   driver,
		database: cfg.Database,
		logger:   logger,
	}, nil
}

// Close closes the driver connection
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// VerifyConnectivity checks if the database is reachable
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) session(ctx context.Context, accessMode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   accessMode,
		DatabaseName: c.database,
	})
}

// Write runs statements in order inside one write transaction.
func (c *Client) Write(ctx context.Context, statements ...Statement) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Write")
	defer span.End()

	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range statements {
			result, err := tx.Run(ctx, stmt.Cypher, stmt.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Neighbors returns the ids of the games gameID points at, strongest first.
func (c *Client) Neighbors(ctx context.Context, gameID int64, limit int) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Neighbors")
	defer span.End()

	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, neighborsCypher, map[string]any{"game_id": gameID, "limit": limit})
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, limit)
		for result.Next(ctx) {
			id, _ := result.Record().Get("id")
			if v, ok := id.(int64); ok {
				ids = append(ids, v)
			}
		}
		return ids, result.Err()
	})
	if err != nil {
		return nil, err
	}
	return res.([]int64), nil
}
