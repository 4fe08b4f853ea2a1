package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sentientmesh/synapse/internal/models"
)

const (
	qdrantDialTimeout  = 10 * time.Second
	qdrantReadTimeout  = 10 * time.Second
	qdrantWriteTimeout = 30 * time.Second
)

func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

// QdrantStore implements Store using Qdrant's gRPC API. Owner isolation is
// enforced by an owner_id payload filter attached to every point operation.
type QdrantStore struct {
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collection pb.CollectionsClient
	collName   string
	dimension  uint64
	logger     *slog.Logger
}

// NewQdrantStore creates a new Qdrant store connection.
func NewQdrantStore(host string, port int, collection string, dimension uint64, useTLS bool, logger *slog.Logger) (*QdrantStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	opts := []grpc.DialOption{}
	if !useTLS {
		logger.Warn("Qdrant connection using insecure credentials (no TLS)")
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to Qdrant at %s: %v", ErrUnavailable, addr, err)
	}

	// Verify the connection with a timeout by issuing a lightweight RPC.
	dialCtx, dialCancel := context.WithTimeout(context.Background(), qdrantDialTimeout)
	defer dialCancel()
	if _, err := pb.NewCollectionsClient(conn).List(dialCtx, &pb.ListCollectionsRequest{}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: verifying Qdrant connection at %s: %v", ErrUnavailable, addr, err)
	}

	logger.Info("connected to Qdrant", "addr", addr, "collection", collection)

	return &QdrantStore{
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		collection: pb.NewCollectionsClient(conn),
		collName:   collection,
		dimension:  dimension,
		logger:     logger,
	}, nil
}

func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	rctx, rcancel := withTimeout(ctx, qdrantReadTimeout)
	defer rcancel()
	resp, err := q.collection.List(rctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("%w: listing collections: %v", ErrUnavailable, err)
	}

	for _, c := range resp.GetCollections() {
		if c.GetName() == q.collName {
			q.logger.Info("collection already exists", "name", q.collName)
			return nil
		}
	}

	wctx, wcancel := withTimeout(ctx, qdrantWriteTimeout)
	defer wcancel()
	_, err = q.collection.Create(wctx, &pb.CreateCollection{
		CollectionName: q.collName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     q.dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", q.collName, err)
	}

	q.logger.Info("created collection", "name", q.collName, "dimension", q.dimension)

	// Payload indexes for the filter fields every query carries. The unix
	// timestamp fields back the sweeper's range filters.
	indexFields := []string{"owner_id", "conversation_id", "active", "expires_at_unix", "inactive_at_unix"}
	for _, field := range indexFields {
		ictx, icancel := withTimeout(ctx, qdrantWriteTimeout)
		fieldType := pb.FieldType_FieldTypeKeyword
		switch field {
		case "active":
			fieldType = pb.FieldType_FieldTypeBool
		case "expires_at_unix", "inactive_at_unix":
			fieldType = pb.FieldType_FieldTypeInteger
		}
		_, err := q.points.CreateFieldIndex(ictx, &pb.CreateFieldIndexCollection{
			CollectionName: q.collName,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
		})
		icancel()
		if err != nil {
			q.logger.Warn("creating field index", "field", field, "error", err)
		}
	}

	return nil
}

func (q *QdrantStore) Insert(ctx context.Context, record models.MemoryRecord) error {
	ctx, cancel := withTimeout(ctx, qdrantWriteTimeout)
	defer cancel()

	vector := record.Embedding
	if vector == nil {
		// Qdrant requires a vector for every point; a zero vector never
		// matches cosine search, so no-embedding records stay lexical-only.
		vector = make([]float32, q.dimension)
	}

	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collName,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: record.ID},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: vector},
					},
				},
				Payload: recordToPayload(record),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: upserting point %s: %v", ErrUnavailable, record.ID, err)
	}

	q.logger.Debug("inserted memory", "id", record.ID, "owner", record.OwnerID)
	return nil
}

func (q *QdrantStore) SearchVector(ctx context.Context, ownerID string, vector []float32, limit uint64, minScore float64) ([]VectorMatch, error) {
	ctx, cancel := withTimeout(ctx, qdrantReadTimeout)
	defer cancel()

	minScore32 := float32(minScore)
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collName,
		Vector:         vector,
		Limit:          limit,
		ScoreThreshold: &minScore32,
		Filter:         ownerFilter(ownerID, true),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: searching: %v", ErrUnavailable, err)
	}

	matches := make([]VectorMatch, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		rec := payloadToRecord(point.GetId().GetUuid(), point.GetPayload())
		matches = append(matches, VectorMatch{
			Record: rec,
			Score:  float64(point.GetScore()),
		})
	}

	return matches, nil
}

func (q *QdrantStore) ListByOwner(ctx context.Context, ownerID string, activeOnly bool, limit uint64, cursor string) ([]models.MemoryRecord, string, error) {
	return q.scroll(ctx, ownerFilter(ownerID, activeOnly), limit, cursor)
}

func (q *QdrantStore) ListExpired(ctx context.Context, before time.Time, limit uint64, cursor string) ([]models.MemoryRecord, string, error) {
	filter := &pb.Filter{
		Must: []*pb.Condition{
			activeCondition(),
			rangeCondition("expires_at_unix", before.Unix()),
		},
	}
	return q.scroll(ctx, filter, limit, cursor)
}

func (q *QdrantStore) ListInactiveSince(ctx context.Context, before time.Time, limit uint64, cursor string) ([]models.MemoryRecord, string, error) {
	filter := &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key:   "active",
						Match: &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: false}},
					},
				},
			},
			rangeCondition("inactive_at_unix", before.Unix()),
		},
	}
	return q.scroll(ctx, filter, limit, cursor)
}

func (q *QdrantStore) scroll(ctx context.Context, filter *pb.Filter, limit uint64, cursor string) ([]models.MemoryRecord, string, error) {
	ctx, cancel := withTimeout(ctx, qdrantReadTimeout)
	defer cancel()

	limit32 := uint32(limit)
	req := &pb.ScrollPoints{
		CollectionName: q.collName,
		Filter:         filter,
		Limit:          &limit32,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if cursor != "" {
		req.Offset = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: cursor}}
	}

	resp, err := q.points.Scroll(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: scrolling points: %v", ErrUnavailable, err)
	}

	records := make([]models.MemoryRecord, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		records = append(records, payloadToRecord(point.GetId().GetUuid(), point.GetPayload()))
	}

	var nextCursor string
	if npo := resp.GetNextPageOffset(); npo != nil {
		nextCursor = npo.GetUuid()
	}
	return records, nextCursor, nil
}

func (q *QdrantStore) Get(ctx context.Context, ownerID, id string) (*models.MemoryRecord, error) {
	ctx, cancel := withTimeout(ctx, qdrantReadTimeout)
	defer cancel()
	resp, err := q.points.Get(ctx, &pb.GetPoints{
		CollectionName: q.collName,
		Ids: []*pb.PointId{
			{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
		},
		WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: getting point %s: %v", ErrUnavailable, id, err)
	}

	if len(resp.GetResult()) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	point := resp.GetResult()[0]
	rec := payloadToRecord(point.GetId().GetUuid(), point.GetPayload())
	// Owner check after fetch: a foreign id behaves exactly like a missing one.
	if rec.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &rec, nil
}

func (q *QdrantStore) MarkInactive(ctx context.Context, ownerID, id string) error {
	if _, err := q.Get(ctx, ownerID, id); err != nil {
		return err
	}

	now := time.Now().UTC()
	wctx, wcancel := withTimeout(ctx, qdrantWriteTimeout)
	defer wcancel()
	_, err := q.points.SetPayload(wctx, &pb.SetPayloadPoints{
		CollectionName: q.collName,
		PointsSelector: pointSelector(id),
		Payload: map[string]*pb.Value{
			"active":           {Kind: &pb.Value_BoolValue{BoolValue: false}},
			"inactive_at":      {Kind: &pb.Value_StringValue{StringValue: now.Format(time.RFC3339)}},
			"inactive_at_unix": {Kind: &pb.Value_IntegerValue{IntegerValue: now.Unix()}},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: marking %s inactive: %v", ErrUnavailable, id, err)
	}

	q.logger.Debug("marked memory inactive", "id", id, "owner", ownerID)
	return nil
}

func (q *QdrantStore) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := q.Get(ctx, ownerID, id); err != nil {
		return err
	}

	wctx, wcancel := withTimeout(ctx, qdrantWriteTimeout)
	defer wcancel()
	_, err := q.points.Delete(wctx, &pb.DeletePoints{
		CollectionName: q.collName,
		Points:         pointSelector(id),
	})
	if err != nil {
		return fmt.Errorf("%w: deleting point %s: %v", ErrUnavailable, id, err)
	}

	q.logger.Debug("deleted memory", "id", id, "owner", ownerID)
	return nil
}

func (q *QdrantStore) TouchExpiry(ctx context.Context, ownerID, id string, expiresAt time.Time) error {
	if _, err := q.Get(ctx, ownerID, id); err != nil {
		return err
	}

	wctx, wcancel := withTimeout(ctx, qdrantWriteTimeout)
	defer wcancel()
	_, err := q.points.SetPayload(wctx, &pb.SetPayloadPoints{
		CollectionName: q.collName,
		PointsSelector: pointSelector(id),
		Payload: map[string]*pb.Value{
			"expires_at":      {Kind: &pb.Value_StringValue{StringValue: expiresAt.UTC().Format(time.RFC3339)}},
			"expires_at_unix": {Kind: &pb.Value_IntegerValue{IntegerValue: expiresAt.Unix()}},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: touching expiry for %s: %v", ErrUnavailable, id, err)
	}

	return nil
}

// Stats returns collection statistics. The active count is fetched
// concurrently with the total.
func (q *QdrantStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	stats := &models.StoreStats{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rctx, rcancel := withTimeout(gctx, qdrantReadTimeout)
		defer rcancel()
		info, err := q.collection.Get(rctx, &pb.GetCollectionInfoRequest{CollectionName: q.collName})
		if err != nil {
			return fmt.Errorf("%w: getting collection info: %v", ErrUnavailable, err)
		}
		stats.TotalRecords = int64(info.GetResult().GetPointsCount())
		return nil
	})

	g.Go(func() error {
		cctx, ccancel := withTimeout(gctx, qdrantReadTimeout)
		defer ccancel()
		exact := true
		resp, err := q.points.Count(cctx, &pb.CountPoints{
			CollectionName: q.collName,
			Filter: &pb.Filter{
				Must: []*pb.Condition{activeCondition()},
			},
			Exact: &exact,
		})
		if err != nil {
			q.logger.Warn("counting active records", "error", err)
			return nil
		}
		stats.ActiveRecords = int64(resp.GetResult().GetCount())
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return stats, nil
}

func (q *QdrantStore) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// --- Helper functions ---

func recordToPayload(r models.MemoryRecord) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"owner_id":   {Kind: &pb.Value_StringValue{StringValue: r.OwnerID}},
		"content":    {Kind: &pb.Value_StringValue{StringValue: r.Content}},
		"importance": {Kind: &pb.Value_DoubleValue{DoubleValue: r.Importance}},
		"created_at": {Kind: &pb.Value_StringValue{StringValue: r.CreatedAt.UTC().Format(time.RFC3339)}},
		"active":     {Kind: &pb.Value_BoolValue{BoolValue: r.Active}},
		// Qdrant vectors are mandatory, so record whether a real embedding
		// was stored; zero-filled placeholders must not count as vectors.
		"has_embedding": {Kind: &pb.Value_BoolValue{BoolValue: len(r.Embedding) > 0}},
		"embedding_dim": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(len(r.Embedding))}},
	}

	if r.ConversationID != "" {
		payload["conversation_id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.ConversationID}}
	}
	if !r.ExpiresAt.IsZero() {
		payload["expires_at"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.ExpiresAt.UTC().Format(time.RFC3339)}}
		payload["expires_at_unix"] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: r.ExpiresAt.Unix()}}
	}
	if !r.InactiveAt.IsZero() {
		payload["inactive_at"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.InactiveAt.UTC().Format(time.RFC3339)}}
		payload["inactive_at_unix"] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: r.InactiveAt.Unix()}}
	}
	if len(r.Tags) > 0 {
		tagValues := make([]*pb.Value, len(r.Tags))
		for i, tag := range r.Tags {
			tagValues[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tag}}
		}
		payload["tags"] = &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: tagValues}}}
	}

	return payload
}

func payloadToRecord(id string, payload map[string]*pb.Value) models.MemoryRecord {
	r := models.MemoryRecord{
		ID:             id,
		OwnerID:        getStringValue(payload, "owner_id"),
		ConversationID: getStringValue(payload, "conversation_id"),
		Content:        getStringValue(payload, "content"),
		Importance:     getDoubleValue(payload, "importance"),
		Active:         getBoolValue(payload, "active"),
	}

	if ts := getStringValue(payload, "created_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			r.CreatedAt = t
		}
	}
	if ts := getStringValue(payload, "expires_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			r.ExpiresAt = t
		}
	}
	if ts := getStringValue(payload, "inactive_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			r.InactiveAt = t
		}
	}

	if tagVal, ok := payload["tags"]; ok {
		if lv := tagVal.GetListValue(); lv != nil {
			for _, v := range lv.GetValues() {
				r.Tags = append(r.Tags, v.GetStringValue())
			}
		}
	}

	// Vectors are not returned on scroll/search payloads; reconstruct a
	// dimension marker so the retriever can detect dimension mismatches.
	if getBoolValue(payload, "has_embedding") {
		dim := getIntValue(payload, "embedding_dim")
		if dim > 0 {
			r.Embedding = make([]float32, dim)
		}
	}

	return r
}

// ownerFilter builds the payload filter every query carries. Owner scoping
// at this layer is the security invariant; callers cannot bypass it.
func ownerFilter(ownerID string, activeOnly bool) *pb.Filter {
	conditions := []*pb.Condition{
		{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   "owner_id",
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: ownerID}},
				},
			},
		},
	}
	if activeOnly {
		conditions = append(conditions, activeCondition())
	}
	return &pb.Filter{Must: conditions}
}

func activeCondition() *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   "active",
				Match: &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: true}},
			},
		},
	}
}

func rangeCondition(key string, lt int64) *pb.Condition {
	ltf := float64(lt)
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Range: &pb.Range{Lt: &ltf},
			},
		},
	}
}

func pointSelector(id string) *pb.PointsSelector {
	return &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{
				Ids: []*pb.PointId{
					{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				},
			},
		},
	}
}

func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func getDoubleValue(payload map[string]*pb.Value, key string) float64 {
	if v, ok := payload[key]; ok {
		return v.GetDoubleValue()
	}
	return 0
}

func getIntValue(payload map[string]*pb.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

func getBoolValue(payload map[string]*pb.Value, key string) bool {
	if v, ok := payload[key]; ok {
		return v.GetBoolValue()
	}
	return false
}
