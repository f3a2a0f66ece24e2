package index

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/xponent/shopcore/internal/domain"
)

// QdrantConfig holds connection settings for a Qdrant-backed store.
// API keys imply TLS (Qdrant Cloud); local deployments use neither.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	APIKey     string
	UseTLS     bool
	Dimension  int
}

// pointNamespace makes point IDs deterministic: the same product ID always
// maps to the same UUID, so re-upserts replace instead of duplicating.
var pointNamespace = uuid.MustParse("9f2c1710-3a5e-4b8f-9d21-6c7e8a4b0d53")

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantStore implements Store against a remote Qdrant collection. It is the
// alternate backend for deployments that outgrow the local index file.
type QdrantStore struct {
	conn          *grpc.ClientConn
	pointsClient  pb.PointsClient
	collectClient pb.CollectionsClient
	collection    string
	dimension     int

	mu     sync.RWMutex
	closed bool
}

// NewQdrantStore connects to Qdrant and ensures the collection exists with
// cosine distance and the configured dimension.
// Parameters:
//   - ctx: used for collection creation.
//   - cfg: connection settings.
// Returns:
//   - *QdrantStore: ready store.
//   - error: non-nil on connection or collection failure.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	s := &QdrantStore{
		conn:          conn,
		pointsClient:  pb.NewPointsClient(conn),
		collectClient: pb.NewCollectionsClient(conn),
		collection:    cfg.Collection,
		dimension:     cfg.Dimension,
	}

	if err := s.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	info, err := s.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: s.collection,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(s.dimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d: %w",
				s.collection, size, s.dimension, domain.ErrDimensionMismatch)
		}
		return nil
	}

	_, err = s.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil || info.GetConfig() == nil {
		return 0, false
	}
	params := info.GetConfig().GetParams()
	if params == nil || params.GetVectorsConfig() == nil {
		return 0, false
	}
	if single := params.GetVectorsConfig().GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}

func pointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// Upsert inserts or replaces a vector and its payload.
func (s *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, meta Metadata) error {
	if len(vector) != s.dimension {
		return &domain.IndexWriteError{Op: "upsert", ID: id, Err: fmt.Errorf(
			"got %d floats, want %d: %w", len(vector), s.dimension, domain.ErrDimensionMismatch)}
	}

	payload := map[string]*pb.Value{
		"product_id": {Kind: &pb.Value_StringValue{StringValue: id}},
		"category":   {Kind: &pb.Value_StringValue{StringValue: meta.Category}},
		"brand":      {Kind: &pb.Value_StringValue{StringValue: meta.Brand}},
		"color":      {Kind: &pb.Value_StringValue{StringValue: meta.Color}},
	}
	if meta.Price != nil {
		payload["price"] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: *meta.Price}}
	}
	if meta.InStock != nil {
		payload["in_stock"] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: *meta.InStock}}
	}

	_, err := s.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(id)},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: vector},
					},
				},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return &domain.IndexWriteError{Op: "upsert", ID: id, Err: err}
	}
	return nil
}

// Delete removes an ID. Qdrant treats absent points as a no-op already.
func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	_, err := s.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(id)}},
					},
				},
			},
		},
	})
	if err != nil {
		return &domain.IndexWriteError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// Query performs a similarity search. Qdrant returns cosine similarity
// scores, converted here to distances so both backends agree on ordering.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector has %d floats, want %d: %w",
			len(vector), s.dimension, domain.ErrDimensionMismatch)
	}
	if k <= 0 {
		return []Match{}, nil
	}

	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}
	if f := buildFilter(filter); f != nil {
		req.Filter = f
	}

	resp, err := s.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, scored := range resp.Result {
		id, meta := parsePayload(scored.Payload)
		if id == "" {
			continue
		}
		matches = append(matches, Match{
			ID:       id,
			Distance: 1 - scored.Score,
			Metadata: meta,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	return matches, nil
}

func buildFilter(filter *Filter) *pb.Filter {
	if filter == nil {
		return nil
	}
	var conditions []*pb.Condition

	if filter.Category != nil && *filter.Category != "" {
		conditions = append(conditions, keywordCondition("category", *filter.Category))
	}
	if filter.Brand != nil && *filter.Brand != "" {
		conditions = append(conditions, keywordCondition("brand", *filter.Brand))
	}
	if filter.InStock != nil {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "in_stock",
					Match: &pb.Match{
						MatchValue: &pb.Match_Boolean{Boolean: *filter.InStock},
					},
				},
			},
		})
	}

	if len(conditions) == 0 {
		return nil
	}
	return &pb.Filter{Must: conditions}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func parsePayload(payload map[string]*pb.Value) (string, Metadata) {
	var meta Metadata
	if payload == nil {
		return "", meta
	}
	id := payload["product_id"].GetStringValue()
	meta.Category = payload["category"].GetStringValue()
	meta.Brand = payload["brand"].GetStringValue()
	meta.Color = payload["color"].GetStringValue()
	if v, ok := payload["price"]; ok {
		price := v.GetDoubleValue()
		meta.Price = &price
	}
	if v, ok := payload["in_stock"]; ok {
		inStock := v.GetBoolValue()
		meta.InStock = &inStock
	}
	return id, meta
}

// Len returns the exact point count, or 0 if the count call fails.
func (s *QdrantStore) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exact := true
	resp, err := s.pointsClient.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil || resp.GetResult() == nil {
		return 0
	}
	return int(resp.GetResult().GetCount())
}

// Ready reports whether the collection is reachable.
func (s *QdrantStore) Ready() bool {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: s.collection,
	})
	return err == nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
