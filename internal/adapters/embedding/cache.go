package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math"

	"github.com/philippgille/chromem-go"

	"github.com/campusify/coursechat/internal/domain/ports"
)

const cacheCollection = "embeddings"

// CachedEmbedder wraps an EmbeddingService with a chromem-go backed cache
// keyed by model and text. Non-zero vectors always come back unit-normalized,
// so a hit and a miss for the same text return identical values.
type CachedEmbedder struct {
	next       ports.EmbeddingService
	model      string
	collection *chromem.Collection
}

// NewCachedEmbedder opens the cache. An empty path keeps it in memory only.
func NewCachedEmbedder(next ports.EmbeddingService, model, path string) (*CachedEmbedder, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, fmt.Errorf("opening embedding cache: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(cacheCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating cache collection: %w", err)
	}

	return &CachedEmbedder{
		next:       next,
		model:      model,
		collection: collection,
	}, nil
}

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	if doc, err := c.collection.GetByID(ctx, key); err == nil && len(doc.Embedding) > 0 {
		return doc.Embedding, nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if isZero(vec) {
		return vec, nil
	}

	vec = normalize(vec)
	err = c.collection.AddDocument(ctx, chromem.Document{
		ID:        key,
		Content:   text,
		Embedding: vec,
		Metadata:  map[string]string{"model": c.model},
	})
	if err != nil {
		log.Printf("[WARN] Caching embedding failed: %v", err)
	}
	return vec, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.collection.Count()
}

func (c *CachedEmbedder) key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// normalize scales vec to unit length using the same float32 arithmetic as
// chromem-go, so the stored copy is the one returned here.
func normalize(vec []float32) []float32 {
	var sq float64
	for _, v := range vec {
		sq += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sq)-1) < 1e-6 {
		return vec
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// isZero reports whether vec has no magnitude; such vectors cannot be normalized.
func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
