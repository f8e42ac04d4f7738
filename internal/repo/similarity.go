package repo

import (
    "math"
    "sort"

    "github.com/sherryismail/AI-Agent-JIRA/internal/domain"
)

// RankBySimilarity orders entries by cosine similarity to the query vector,
// descending, and returns at most k of them. Empty input yields an empty
// result, never an error.
func RankBySimilarity(entries []domain.IndexEntry, query []float64, k int) []domain.ScoredChunk {
    if len(entries) == 0 || len(query) == 0 || k <= 0 { return nil }
    scored := make([]domain.ScoredChunk, 0, len(entries))
    for _, e := range entries {
        scored = append(scored, domain.ScoredChunk{Chunk: e.Chunk, Score: CosineSimilarity(query, e.Embedding)})
    }
    sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
    if len(scored) > k { scored = scored[:k] }
    return scored
}

// CosineSimilarity of two vectors; 0 when either has no magnitude or the
// dimensions disagree.
func CosineSimilarity(a, b []float64) float64 {
    if len(a) == 0 || len(a) != len(b) { return 0 }
    var dot, na, nb float64
    for i := range a {
        dot += a[i] * b[i]
        na += a[i] * a[i]
        nb += b[i] * b[i]
    }
    if na == 0 || nb == 0 { return 0 }
    return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
