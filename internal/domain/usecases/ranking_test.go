package usecases

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/campusify/coursechat/internal/domain/entities"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	a := []float32{0.3, -1.2, 4.5, 0.01}
	b := []float32{2.2, 0.4, -0.7, 9.1}
	if CosineSimilarity(a, b) != CosineSimilarity(b, a) {
		t.Error("similarity should be symmetric")
	}
}

func TestSplitChunks(t *testing.T) {
	text := "Trees are hierarchical.\n\n  \n\nA stack is LIFO.\r\n\r\nQueues are FIFO.\nSecond line.\n\n\n"
	chunks := SplitChunks(text)

	want := []string{"Trees are hierarchical.", "A stack is LIFO.", "Queues are FIFO.\nSecond line."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], chunks[i])
		}
	}

	if got := SplitChunks("   \n\n  "); len(got) != 0 {
		t.Errorf("whitespace-only text should yield no chunks, got %q", got)
	}
}

func TestRanker_TopKByScore(t *testing.T) {
	embedder := &mockEmbedder{embedFn: keywordEmbedder}
	ranker := NewRanker(embedder, 0, 2)

	chunks := []string{
		"Queues are FIFO.",
		"A tree has a root.",
		"A stack pushes and pops.",
		"Binary tree traversal.",
		"Unrelated prose.",
	}
	ranked, err := ranker.Rank(context.Background(), "How does a stack work?", chunks)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}

	if len(ranked) != DefaultTopK {
		t.Fatalf("expected %d chunks, got %d", DefaultTopK, len(ranked))
	}
	if ranked[0].Text != "A stack pushes and pops." {
		t.Errorf("expected stack chunk first, got %q", ranked[0].Text)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("scores not descending at %d", i)
		}
	}
	if embedder.callCount() != len(chunks)+1 {
		t.Errorf("expected %d embed calls, got %d", len(chunks)+1, embedder.callCount())
	}
}

func TestRanker_TiesKeepChunkOrder(t *testing.T) {
	embedder := &mockEmbedder{}
	ranker := NewRanker(embedder, 3, 4)

	chunks := []string{"a", "b", "c", "d", "e"}
	ranked, err := ranker.Rank(context.Background(), "q", chunks)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}

	for i, r := range ranked {
		if r.Index != i || r.Text != chunks[i] {
			t.Errorf("position %d: expected chunk %d, got %d (%q)", i, i, r.Index, r.Text)
		}
	}
}

func TestRanker_FewerChunksThanK(t *testing.T) {
	ranker := NewRanker(&mockEmbedder{}, 3, 1)

	ranked, err := ranker.Rank(context.Background(), "q", []string{"only"})
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if len(ranked) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(ranked))
	}

	ranked, err = ranker.Rank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("expected no chunks, got %d", len(ranked))
	}
}

func TestRanker_ChunkEmbeddingFailureScoresZero(t *testing.T) {
	embedder := &mockEmbedder{
		embedFn: func(text string) ([]float32, error) {
			if strings.Contains(text, "broken") {
				return nil, errors.New("upstream 500")
			}
			return keywordEmbedder(text)
		},
	}
	ranker := NewRanker(embedder, 3, 2)

	chunks := []string{"broken stack chunk", "stack basics", "stack and queue"}
	ranked, err := ranker.Rank(context.Background(), "stack", chunks)
	if err != nil {
		t.Fatalf("chunk failures should not fail ranking: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(ranked))
	}
	last := ranked[len(ranked)-1]
	if last.Text != "broken stack chunk" || last.Score != 0 {
		t.Errorf("failed chunk should rank last with score 0, got %q %f", last.Text, last.Score)
	}
}

func TestRanker_QuestionEmbeddingFailure(t *testing.T) {
	embedder := &mockEmbedder{
		embedFn: func(text string) ([]float32, error) {
			return nil, errors.New("connection refused")
		},
	}
	ranker := NewRanker(embedder, 3, 2)

	_, err := ranker.Rank(context.Background(), "q", []string{"a", "b"})
	if !errors.Is(err, entities.ErrEmbeddingFailed) {
		t.Errorf("expected embedding failure, got %v", err)
	}
	if embedder.callCount() != 1 {
		t.Errorf("chunks should not be embedded after question failure, got %d calls", embedder.callCount())
	}
}

func TestJoinContext(t *testing.T) {
	ranked := []entities.RankedChunk{{Text: "one"}, {Text: "two"}}
	if got := JoinContext(ranked); got != "one\n\ntwo" {
		t.Errorf("unexpected context %q", got)
	}
	if got := JoinContext(nil); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}
