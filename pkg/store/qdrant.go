package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

const (
	DefaultQdrantPrefix = "rag_"
	qdrantUpsertBatch   = 256
)

type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
	// Prefix is prepended to the index name to form the collection name.
	Prefix string
}

// QdrantStore keeps one collection per index.
type QdrantStore struct {
	client *qdrant.Client
	prefix string
}

func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultQdrantPrefix
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, rag.Wrap(rag.ErrConfiguration, "store", fmt.Errorf("qdrant client: %w", err))
	}
	return &QdrantStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) collection(name string) (string, error) {
	if !rag.ValidIndexName(name) {
		return "", rag.Errorf(rag.ErrValidation, "store", "invalid index name %q", name)
	}
	return s.prefix + name, nil
}

func (s *QdrantStore) Exists(ctx context.Context, name string) (bool, error) {
	coll, err := s.collection(name)
	if err != nil {
		return false, err
	}
	return s.client.CollectionExists(ctx, coll)
}

// Save drops and recreates the collection, then upserts every segment.
func (s *QdrantStore) Save(ctx context.Context, name string, idx *rag.VectorIndex) error {
	coll, err := s.collection(name)
	if err != nil {
		return err
	}
	if idx.Dimension <= 0 {
		return fmt.Errorf("index %q has no vectors", name)
	}

	exists, err := s.client.CollectionExists(ctx, coll)
	if err != nil {
		return err
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, coll); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
	}
	if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: coll,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(idx.Dimension),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	}); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	for start := 0; start < idx.Len(); start += qdrantUpsertBatch {
		end := min(start+qdrantUpsertBatch, idx.Len())
		pts := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			seg := idx.Segments[i]
			pts = append(pts, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(seg.ID),
				Vectors: qdrant.NewVectors(idx.Vectors[i]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"text":      seg.Content,
					"source":    seg.Source,
					"title":     seg.Title,
					"seg_index": seg.Index,
					"position":  i,
					"model":     idx.Model,
				}),
			})
		}
		wait := true
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: coll,
			Wait:           &wait,
			Points:         pts,
		}); err != nil {
			return fmt.Errorf("upsert [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (s *QdrantStore) Open(ctx context.Context, name string) (rag.Searcher, error) {
	ok, err := s.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &rag.Error{Kind: rag.ErrIndexNotFound, Op: "store", Err: fmt.Errorf("collection for %q does not exist", name)}
	}
	return &qdrantSearcher{client: s.client, collection: s.prefix + name}, nil
}

// List describes every collection carrying the store prefix. The embedding
// model lives in point payloads only, so Model is left empty.
func (s *QdrantStore) List(ctx context.Context) ([]rag.IndexInfo, error) {
	colls, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	var out []rag.IndexInfo
	for _, name := range indexNames(s.prefix, colls) {
		info, err := s.client.GetCollectionInfo(ctx, s.prefix+name)
		if err != nil {
			return nil, fmt.Errorf("collection info %q: %w", name, err)
		}
		out = append(out, rag.IndexInfo{
			Name:      name,
			Dimension: int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()),
			Segments:  int(info.GetPointsCount()),
		})
	}
	return out, nil
}

// indexNames keeps the collections owned by prefix, stripped of it.
func indexNames(prefix string, collections []string) []string {
	var out []string
	for _, c := range collections {
		name, ok := strings.CutPrefix(c, prefix)
		if !ok || !rag.ValidIndexName(name) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type qdrantSearcher struct {
	client     *qdrant.Client
	collection string
}

func (q *qdrantSearcher) Search(ctx context.Context, vec []float32, topK int) ([]rag.ScoredSegment, error) {
	if topK <= 0 {
		topK = 4
	}
	limit := uint64(topK)
	resp, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Limit:          &limit,
		Query:          qdrant.NewQuery(vec...),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	out := make([]rag.ScoredSegment, 0, len(resp))
	positions := make([]int, 0, len(resp))
	for _, r := range resp {
		md := make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			md[k] = convertQdrantValue(v)
		}

		var h rag.ScoredSegment
		h.Score = r.Score
		h.Content = stringField(md, "text")
		h.Source = stringField(md, "source")
		h.Title = stringField(md, "title")
		h.Index = intField(md, "seg_index")
		if r.Id != nil {
			if u, ok := r.Id.PointIdOptions.(*qdrant.PointId_Uuid); ok {
				h.ID = u.Uuid
			}
		}
		out = append(out, h)
		positions = append(positions, intField(md, "position"))
	}

	// empate de score: vence a ordem de inserção
	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if out[ia].Score != out[ib].Score {
			return out[ia].Score > out[ib].Score
		}
		return positions[ia] < positions[ib]
	})
	sorted := make([]rag.ScoredSegment, len(out))
	for i, j := range order {
		sorted[i] = out[j]
	}
	return sorted, nil
}

func stringField(md map[string]any, key string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}

func intField(md map[string]any, key string) int {
	switch v := md[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func convertQdrantValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		out := make([]any, len(val.ListValue.Values))
		for i, lv := range val.ListValue.Values {
			out[i] = convertQdrantValue(lv)
		}
		return out
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(val.StructValue.Fields))
		for k, nv := range val.StructValue.Fields {
			out[k] = convertQdrantValue(nv)
		}
		return out
	}
	return nil
}

var (
	_ rag.IndexStore  = (*QdrantStore)(nil)
	_ rag.IndexLister = (*QdrantStore)(nil)
)
