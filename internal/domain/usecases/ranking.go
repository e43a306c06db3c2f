package usecases

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/campusify/coursechat/internal/domain/entities"
	"github.com/campusify/coursechat/internal/domain/ports"
)

// DefaultTopK is the number of chunks passed to the answer synthesizer.
const DefaultTopK = 3

var blankLine = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)

// SplitChunks splits extracted text into paragraph chunks on blank lines.
// Whitespace-only chunks are dropped.
func SplitChunks(text string) []string {
	var chunks []string
	for _, part := range blankLine.Split(text, -1) {
		if p := strings.TrimSpace(part); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}

// CosineSimilarity returns dot(a,b)/(|a||b|). Vectors of different length
// or zero magnitude score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Ranker scores chunks against a question and keeps the best K.
type Ranker struct {
	embedder    ports.EmbeddingService
	topK        int
	maxParallel int
}

// NewRanker creates a Ranker. topK <= 0 uses DefaultTopK; maxParallel <= 0 uses 4.
func NewRanker(embedder ports.EmbeddingService, topK, maxParallel int) *Ranker {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Ranker{
		embedder:    embedder,
		topK:        topK,
		maxParallel: maxParallel,
	}
}

// Rank embeds the question and every chunk and returns the top K chunks by
// descending cosine similarity. Equal scores keep chunk order.
// Only a failure to embed the question is an error; a chunk that cannot be
// embedded scores 0.
func (r *Ranker) Rank(ctx context.Context, question string, chunks []string) ([]entities.RankedChunk, error) {
	questionVec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding question: %w", entities.ErrEmbeddingFailed, err)
	}

	vectors := r.embedChunks(ctx, chunks)

	scored := make([]entities.RankedChunk, len(chunks))
	for i, chunk := range chunks {
		scored[i] = entities.RankedChunk{
			Text:  chunk,
			Score: CosineSimilarity(questionVec, vectors[i]),
			Index: i,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > r.topK {
		scored = scored[:r.topK]
	}
	return scored, nil
}

// embedChunks embeds chunks concurrently. Failed slots stay nil.
func (r *Ranker) embedChunks(ctx context.Context, chunks []string) [][]float32 {
	vectors := make([][]float32, len(chunks))

	var g errgroup.Group
	g.SetLimit(r.maxParallel)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			vec, err := r.embedder.Embed(ctx, chunk)
			if err != nil {
				log.Printf("[WARN] Embedding chunk %d failed, scoring as non-matching: %v", i, err)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()

	return vectors
}

// JoinContext concatenates ranked chunk texts separated by a blank line.
func JoinContext(ranked []entities.RankedChunk) string {
	parts := make([]string, len(ranked))
	for i, r := range ranked {
		parts[i] = r.Text
	}
	return strings.Join(parts, "\n\n")
}
