package vectorstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"time"

	"nemochat/internal/config"
	"nemochat/internal/models"

	redis "github.com/redis/go-redis/v9"
)

const (
	docPrefix  = "doc:"
	scoreAlias = "vector_score"
)

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewClient creates the redis client from app config and verifies the
// connection.
func NewClient(cfg *config.Config) (*redis.Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Index is the similarity-search client over a RediSearch vector index.
// Passages are stored as hashes under doc:<id> with a FLOAT32 cosine vector.
type Index struct {
	rdb       *redis.Client
	embedder  Embedder
	indexName string
	dimension int
	topK      int
}

func NewIndex(rdb *redis.Client, embedder Embedder, cfg *config.Config) *Index {
	return &Index{
		rdb:       rdb,
		embedder:  embedder,
		indexName: cfg.Redis.IndexName,
		dimension: cfg.Redis.VectorDimension,
		topK:      cfg.Retrieval.TopK,
	}
}

// Init ensures the search index exists, creating it on first use.
func (s *Index) Init(ctx context.Context) error {
	if err := s.rdb.FTInfo(ctx, s.indexName).Err(); err == nil {
		log.Printf("vectorstore: using existing index %s", s.indexName)
		return nil
	}

	log.Printf("vectorstore: creating index %s (dim %d)", s.indexName, s.dimension)
	err := s.rdb.FTCreate(ctx, s.indexName,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{docPrefix},
		},
		&redis.FieldSchema{
			FieldName: "text",
			FieldType: redis.SearchFieldTypeText,
		},
		&redis.FieldSchema{
			FieldName: "embedding",
			FieldType: redis.SearchFieldTypeVector,
			VectorArgs: &redis.FTVectorArgs{
				FlatOptions: &redis.FTFlatOptions{
					Type:           "FLOAT32",
					Dim:            s.dimension,
					DistanceMetric: "COSINE",
				},
			},
		},
	).Err()
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.indexName, err)
	}
	return nil
}

// AddDocument embeds a passage and stores it in the index.
func (s *Index) AddDocument(ctx context.Context, id, text string) error {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	if len(vectors) == 0 {
		return errors.New("embedder returned no vector")
	}
	err = s.rdb.HSet(ctx, docPrefix+id, map[string]interface{}{
		"text":      text,
		"embedding": encodeVector(vectors[0]),
	}).Err()
	if err != nil {
		return fmt.Errorf("store document %s: %w", id, err)
	}
	return nil
}

// SimilaritySearch embeds the query and returns the nearest passages ordered
// by descending relevance. Failures propagate; strictness is the caller's
// policy decision.
func (s *Index) SimilaritySearch(ctx context.Context, query string) ([]models.RetrievalResult, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("embedder returned no vector")
	}

	knn := fmt.Sprintf("*=>[KNN %d @embedding $vec AS %s]", s.topK, scoreAlias)
	res, err := s.rdb.FTSearchWithArgs(ctx, s.indexName, knn, &redis.FTSearchOptions{
		Params:         map[string]interface{}{"vec": encodeVector(vectors[0])},
		SortBy:         []redis.FTSearchSortBy{{FieldName: scoreAlias, Asc: true}},
		Limit:          s.topK,
		DialectVersion: 2,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("search index %s: %w", s.indexName, err)
	}
	return resultsFromDocs(res.Docs), nil
}

// resultsFromDocs converts search hits to retrieval results. RediSearch
// reports cosine distance (0 = identical); relevance is 1-distance so higher
// ranks first.
func resultsFromDocs(docs []redis.Document) []models.RetrievalResult {
	results := make([]models.RetrievalResult, 0, len(docs))
	for _, doc := range docs {
		text, ok := doc.Fields["text"]
		if !ok {
			continue
		}
		score := 0.0
		if raw, ok := doc.Fields[scoreAlias]; ok {
			if dist, err := strconv.ParseFloat(raw, 64); err == nil {
				score = 1 - dist
			}
		}
		results = append(results, models.RetrievalResult{Text: text, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
