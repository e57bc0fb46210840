package fabric

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jStore persists the mesh as (:MeshNode)-[:RESONATES]-(:MeshNode).
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jStore connects to a Neo4j server.
func NewNeo4jStore(uri, user, password string, logger *zap.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Neo4jStore{driver: driver, logger: logger}, nil
}

// Ping verifies the connection.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close shuts down the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// SaveNode creates or updates a mesh node.
func (s *Neo4jStore) SaveNode(ctx context.Context, n NodeInfo) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (n:MeshNode {id: $id})
		 SET n.address = $address, n.health = $health, n.last_seen = $lastSeen`,
		map[string]any{
			"id":       n.ID,
			"address":  n.Address,
			"health":   n.Health,
			"lastSeen": n.LastSeen.UnixMilli(),
		})
	if err != nil {
		return fmt.Errorf("save mesh node: %w", err)
	}
	return nil
}

// SaveLink creates or updates the link between two nodes.
func (s *Neo4jStore) SaveLink(ctx context.Context, l Link) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:MeshNode {id: $from})
		 MERGE (b:MeshNode {id: $to})
		 MERGE (a)-[r:RESONATES]->(b)
		 ON CREATE SET r.established_at = $established
		 SET r.resonance = $resonance, r.latency_ms = $latency, r.last_sync = $lastSync`,
		map[string]any{
			"from":        l.From,
			"to":          l.To,
			"resonance":   l.Resonance,
			"latency":     int64(l.LatencyMS),
			"established": l.EstablishedAt.UnixMilli(),
			"lastSync":    l.LastSync.UnixMilli(),
		})
	if err != nil {
		return fmt.Errorf("save mesh link: %w", err)
	}
	return nil
}

// LoadLinks returns every stored link.
func (s *Neo4jStore) LoadLinks(ctx context.Context) ([]Link, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:MeshNode)-[r:RESONATES]->(b:MeshNode)
		 RETURN a.id, b.id, r.resonance, r.latency_ms, r.established_at, r.last_sync`,
		nil)
	if err != nil {
		return nil, fmt.Errorf("load mesh links: %w", err)
	}

	var links []Link
	for result.Next(ctx) {
		rec := result.Record()
		from, _ := rec.Get("a.id")
		to, _ := rec.Get("b.id")
		res, _ := rec.Get("r.resonance")
		latency, _ := rec.Get("r.latency_ms")
		established, _ := rec.Get("r.established_at")
		lastSync, _ := rec.Get("r.last_sync")

		l := Link{
			From:          asString(from),
			To:            asString(to),
			Resonance:     asFloat(res),
			LatencyMS:     uint64(asInt(latency)),
			EstablishedAt: time.UnixMilli(asInt(established)).UTC(),
			LastSync:      time.UnixMilli(asInt(lastSync)).UTC(),
		}
		if l.From == "" || l.To == "" {
			continue
		}
		links = append(links, l)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("load mesh links: %w", err)
	}
	return links, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	}
	return 0
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	}
	return 0
}
