// Package vectorstore indexes archon memories in Qdrant for semantic recall.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultCollection holds archon memories.
const DefaultCollection = "archon_memories"

const (
	payloadChamber  = "chamber"
	payloadMemoryID = "memory_id"
)

// pointSpace derives Qdrant point UUIDs from memory IDs.
var pointSpace = uuid.MustParse("6f1c2b8e-3d4a-5b6c-9d7e-8f9a0b1c2d3e")

// PointID maps a memory ID to its Qdrant point ID. UUIDs map to themselves.
func PointID(memoryID string) string {
	if u, err := uuid.Parse(memoryID); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(pointSpace, []byte(memoryID)).String()
}

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	Collection string `json:"collection" yaml:"collection"`
}

// Client is a Backend over one Qdrant collection.
type Client struct {
	conn        *grpc.ClientConn
	collection  string
	collections pb.CollectionsClient
	points      pb.PointsClient
}

var _ Backend = (*Client)(nil)

// NewClient dials the Qdrant gRPC endpoint. The connection is lazy, so an
// unreachable server surfaces on first use.
func NewClient(cfg QdrantConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	return &Client{
		conn:        conn,
		collection:  cfg.Collection,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// Collection is the collection the client writes to.
func (c *Client) Collection() string { return c.collection }

// EnsureCollection creates the collection with cosine distance unless it
// already exists.
func (c *Client) EnsureCollection(ctx context.Context, dimension uint64) error {
	if _, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: c.collection}); err == nil {
		return nil
	}
	_, err := c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: dimension, Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", c.collection, err)
	}
	return nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func pointID(memoryID string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(memoryID)}}
}

// Upsert writes one memory vector.
func (c *Client) Upsert(ctx context.Context, p Point) error {
	wait := true
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: c.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      pointID(p.MemoryID),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: map[string]*pb.Value{
				payloadChamber:  stringValue(p.Chamber),
				payloadMemoryID: stringValue(p.MemoryID),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert memory %s: %w", p.MemoryID, err)
	}
	return nil
}

// Delete removes a memory's vector. Deleting an absent point is not an error.
func (c *Client) Delete(ctx context.Context, memoryID string) error {
	_, err := c.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: c.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID(memoryID)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete memory %s: %w", memoryID, err)
	}
	return nil
}

// Search returns the limit nearest memories, best first.
func (c *Client) Search(ctx context.Context, vector []float32, limit uint64) ([]Hit, error) {
	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: c.collection,
		Vector:         vector,
		Limit:          limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.collection, err)
	}
	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		h := Hit{Score: r.Score, MemoryID: r.Id.GetUuid()}
		if v := r.Payload[payloadMemoryID].GetStringValue(); v != "" {
			h.MemoryID = v
		}
		h.Chamber = r.Payload[payloadChamber].GetStringValue()
		hits = append(hits, h)
	}
	return hits, nil
}

// Close tears down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
