package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"go.uber.org/zap"
)

// Store is the Neo4j-backed graph store adapter. Typed entity operations
// are built on the raw Query/Write surface so callers never hold node
// references, only stable string ids.
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewStore connects to Neo4j and returns a ready store.
func NewStore(uri, user, password string, logger *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{driver: driver, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the Neo4j connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Query runs a read statement and returns the result rows keyed by alias.
func (s *Store) Query(ctx context.Context, stmt string, params map[string]interface{}) ([]map[string]interface{}, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	return s.collect(ctx, session, stmt, params)
}

// Write runs a mutating statement and returns any rows it yields.
// Each statement executes in its own transaction, which is what makes
// single-statement read-modify-writes atomic under concurrent callers.
func (s *Store) Write(ctx context.Context, stmt string, params map[string]interface{}) ([]map[string]interface{}, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	return s.collect(ctx, session, stmt, params)
}

func (s *Store) collect(ctx context.Context, session neo4j.SessionWithContext, stmt string, params map[string]interface{}) ([]map[string]interface{}, error) {
	result, err := session.Run(ctx, stmt, params)
	if err != nil {
		return nil, err
	}

	var rows []map[string]interface{}
	for result.Next(ctx) {
		rec := result.Record()
		row := make(map[string]interface{}, len(rec.Keys))
		for _, key := range rec.Keys {
			v, _ := rec.Get(key)
			row[key] = v
		}
		rows = append(rows, row)
	}
	return rows, result.Err()
}

// Row accessors. Neo4j returns int64 for integers and dbtype.Time values
// for datetimes; absent or null properties come back as nil.

func rowString(row map[string]interface{}, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func rowFloat(row map[string]interface{}, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func rowInt(row map[string]interface{}, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func rowTime(row map[string]interface{}, key string) time.Time {
	switch v := row[key].(type) {
	case time.Time:
		return v
	case dbtype.LocalDateTime:
		return v.Time()
	case dbtype.Date:
		return v.Time()
	}
	return time.Time{}
}
