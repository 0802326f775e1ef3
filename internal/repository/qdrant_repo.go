package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/tubechat/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 1536
	defaultNamespace       = "chat"

	payloadRecordID  = "record_id"
	payloadNamespace = "namespace"
	payloadText      = "text"
	payloadSource    = "source"
	payloadBatch     = "batch"
	payloadSequence  = "sequence"
	payloadModel     = "model"
)

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	Namespace       string
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository stores transcript chunks as Qdrant points. The namespace
// is a payload field so several namespaces can share one collection.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	namespace       string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key)
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	var opts []grpc.DialOption

	// TLS is enabled if: APIKey is set OR UseTLS is explicitly true
	useTLS := cfg.UseTLS || cfg.APIKey != ""

	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))

		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, domain.Upstream("qdrant", fmt.Errorf("failed to connect: %w", err))
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		namespace:       namespace,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureIndex creates the collection and its payload indexes if they don't exist.
func (r *QdrantRepository) EnsureIndex(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("%w: collection %s has vector size %d, expected %d",
				domain.ErrDimensionMismatch, r.collectionName, size, r.vectorDimension)
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
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
		return domain.Upstream("qdrant", fmt.Errorf("failed to create collection: %w", err))
	}

	for _, field := range []string{payloadNamespace, payloadSource, payloadBatch} {
		_, err := r.pointsClient.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collectionName,
			FieldName:      field,
			FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return domain.Upstream("qdrant", fmt.Errorf("failed to index payload field %s: %w", field, err))
		}
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	for _, vectorParams := range vectors.GetParamsMap().GetMap() {
		if size := vectorParams.GetSize(); size > 0 {
			return size, true
		}
	}

	return 0, false
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
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

// Upsert inserts or updates a chunk vector with its provenance payload.
func (r *QdrantRepository) Upsert(ctx context.Context, record *domain.IndexRecord) error {
	if err := checkDimension(record.Vector, r.vectorDimension); err != nil {
		return err
	}

	md := record.Metadata
	points := []*pb.PointStruct{
		{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(r.namespace, record.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: record.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				payloadRecordID:  stringValue(record.ID),
				payloadNamespace: stringValue(r.namespace),
				payloadText:      stringValue(md.Text),
				payloadSource:    stringValue(md.Source),
				payloadBatch:     stringValue(md.Batch),
				payloadSequence:  {Kind: &pb.Value_IntegerValue{IntegerValue: int64(md.Sequence)}},
				payloadModel:     stringValue(md.Model),
			},
		},
	}

	wait := true
	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return domain.Upstream("qdrant", fmt.Errorf("failed to upsert point: %w", err))
	}

	return nil
}

// Query performs a cosine similarity search inside the namespace.
func (r *QdrantRepository) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]domain.Match, error) {
	if err := checkDimension(vector, r.vectorDimension); err != nil {
		return nil, err
	}

	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(opts.TopK),
		Filter:         r.filter(opts.Source),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: opts.IncludeMetadata},
		},
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, domain.Upstream("qdrant", fmt.Errorf("failed to search: %w", err))
	}

	matches := make([]domain.Match, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		m := domain.Match{
			ID:    scored.GetId().GetUuid(),
			Score: scored.GetScore(),
		}
		if payload := scored.GetPayload(); len(payload) > 0 {
			if id := payload[payloadRecordID].GetStringValue(); id != "" {
				m.ID = id
			}
			if opts.IncludeMetadata {
				m.Metadata = parsePayload(payload)
			}
		}
		matches = append(matches, m)
	}

	return matches, nil
}

func (r *QdrantRepository) filter(source string) *pb.Filter {
	conditions := []*pb.Condition{keywordCondition(payloadNamespace, r.namespace)}
	if source != "" {
		conditions = append(conditions, keywordCondition(payloadSource, source))
	}
	return &pb.Filter{Must: conditions}
}

func parsePayload(payload map[string]*pb.Value) *domain.RecordMetadata {
	return &domain.RecordMetadata{
		Text:     payload[payloadText].GetStringValue(),
		Source:   payload[payloadSource].GetStringValue(),
		Batch:    payload[payloadBatch].GetStringValue(),
		Sequence: int(payload[payloadSequence].GetIntegerValue()),
		Model:    payload[payloadModel].GetStringValue(),
	}
}

// DeleteSourceExcept deletes the points of source that belong to other batches.
func (r *QdrantRepository) DeleteSourceExcept(ctx context.Context, source, keepBatch string) error {
	wait := true
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must:    r.filter(source).Must,
					MustNot: []*pb.Condition{keywordCondition(payloadBatch, keepBatch)},
				},
			},
		},
	})
	if err != nil {
		return domain.Upstream("qdrant", fmt.Errorf("failed to delete stale points: %w", err))
	}

	return nil
}
