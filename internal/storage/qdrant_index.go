package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Qdrant defaults.
const (
	DefaultQdrantPort       = 6334
	DefaultQdrantCollection = "rlm_analyses"
)

// payloadFileKey holds the record file name on each point.
const payloadFileKey = "file"

// QdrantConfig locates a Qdrant server. An empty Address disables Qdrant.
type QdrantConfig struct {
	// Address is host or host:port of the gRPC endpoint.
	Address    string
	APIKey     string
	Collection string
}

// QdrantVectorIndex stores vectors in a Qdrant collection. Distances are
// Euclidean so scores convert through DistanceScore like the SQLite index.
type QdrantVectorIndex struct {
	client     *qdrant.Client
	collection string
}

// OpenQdrantVectorIndex connects, checks the server answers, and creates the
// collection for dim-sized vectors if it does not exist.
func OpenQdrantVectorIndex(ctx context.Context, cfg QdrantConfig, dim int) (*QdrantVectorIndex, error) {
	if cfg.Address == "" {
		return nil, errors.New("no qdrant address configured")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dim)
	}
	host, port, err := parseQdrantAddress(cfg.Address)
	if err != nil {
		return nil, err
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultQdrantCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		APIKey:                 cfg.APIKey,
		PoolSize:               1,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	if _, err := client.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant not responding at %s: %w", cfg.Address, err)
	}

	q := &QdrantVectorIndex{client: client, collection: collection}
	if err := q.ensureCollection(ctx, dim); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *QdrantVectorIndex) ensureCollection(ctx context.Context, dim int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	return nil
}

// Collection returns the collection name.
func (q *QdrantVectorIndex) Collection() string {
	return q.collection
}

// Upsert implements VectorIndex.
func (q *QdrantVectorIndex) Upsert(ctx context.Context, id string, vec []float32) error {
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(qdrantPointID(id)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(map[string]any{payloadFileKey: id}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", id, err)
	}
	return nil
}

// Nearest implements VectorIndex.
func (q *QdrantVectorIndex) Nearest(ctx context.Context, vec []float32, limit int) ([]Neighbor, error) {
	if limit <= 0 {
		return nil, nil
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	return neighborsFromPoints(points), nil
}

// Close implements VectorIndex.
func (q *QdrantVectorIndex) Close() error {
	return q.client.Close()
}

// neighborsFromPoints keeps the server's order. With Euclidean distance the
// point score is the distance itself.
func neighborsFromPoints(points []*qdrant.ScoredPoint) []Neighbor {
	out := make([]Neighbor, 0, len(points))
	for _, p := range points {
		file := p.GetPayload()[payloadFileKey].GetStringValue()
		if file == "" {
			continue
		}
		out = append(out, Neighbor{ID: file, Distance: float64(p.GetScore())})
	}
	return out
}

// qdrantPointID derives a stable point id from a record file name; Qdrant
// only accepts UUIDs and integers.
func qdrantPointID(file string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("rlm:"+file)).String()
}

func parseQdrantAddress(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port given.
		return addr, DefaultQdrantPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid qdrant port in %q", addr)
	}
	if host == "" {
		host = "localhost"
	}
	return host, port, nil
}

var _ VectorIndex = (*QdrantVectorIndex)(nil)
