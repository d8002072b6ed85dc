package retriever

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"ragcore/internal/adapter/memstore"
	"ragcore/internal/domain"
)

func randomPassages(rng *rand.Rand, docs, perDoc, dim int) []domain.Passage {
	passages := make([]domain.Passage, 0, docs*perDoc)
	for d := 0; d < docs; d++ {
		for o := 0; o < perDoc; o++ {
			vec := make([]float32, dim)
			for i := range vec {
				// coarse values produce plenty of exact ties
				vec[i] = float32(rng.Intn(3) - 1)
			}
			passages = append(passages, domain.Passage{
				DocumentID: fmt.Sprintf("doc-%03d", d),
				Ordinal:    o,
				Text:       fmt.Sprintf("passage %d of %d", o, d),
				Vector:     vec,
			})
		}
	}
	return passages
}

// exactRanking is the reference ranking: a stable sort of the scan.
func exactRanking(t testing.TB, store *memstore.MemoryStore, query []float32, k int) []string {
	var all []domain.ScoredPassage
	err := store.Scan(context.Background(), func(p domain.Passage) error {
		all = append(all, domain.ScoredPassage{
			DocumentID: p.DocumentID,
			Ordinal:    p.Ordinal,
			Score:      CosineSimilarity(query, p.Vector),
		})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if k > len(all) {
		k = len(all)
	}
	return keys(all[:k])
}

func keys(results []domain.ScoredPassage) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = fmt.Sprintf("%s#%d", r.DocumentID, r.Ordinal)
	}
	return out
}

func TestScanEngineMatchesStableSort(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	store := memstore.NewMemoryStore()
	if err := store.InsertBatch(context.Background(), randomPassages(rng, 40, 5, 4)); err != nil {
		t.Fatal(err)
	}
	engine := NewScanEngine(store)

	for trial := 0; trial < 50; trial++ {
		query := make([]float32, 4)
		for i := range query {
			query[i] = float32(rng.Intn(5) - 2)
		}
		for _, k := range []int{1, 3, 10, 199, 200, 500} {
			got, err := engine.Retrieve(context.Background(), query, k)
			if err != nil {
				t.Fatal(err)
			}
			want := exactRanking(t, store, query, k)
			if fmt.Sprint(keys(got)) != fmt.Sprint(want) {
				t.Fatalf("trial %d k=%d: got %v, want %v", trial, k, keys(got), want)
			}
			if r := RecallAtK(keys(got), want); len(want) > 0 && r != 1 {
				t.Errorf("recall = %.3f, want 1", r)
			}
		}
	}
}

func TestRecallAtK(t *testing.T) {
	cases := []struct {
		name      string
		retrieved []string
		relevant  []string
		wantR     float64
	}{
		{"perfect", []string{"a", "b", "c"}, []string{"a", "b", "c"}, 1.0},
		{"partial", []string{"a", "b", "x"}, []string{"a", "b", "c"}, 0.666},
		{"none", []string{"x", "y", "z"}, []string{"a", "b", "c"}, 0.0},
		{"empty_relevant", []string{"a", "b"}, []string{}, 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := RecallAtK(tc.retrieved, tc.relevant)
			if diff := r - tc.wantR; diff > 0.01 || diff < -0.01 {
				t.Errorf("recall = %.3f, want %.3f", r, tc.wantR)
			}
		})
	}
}

func RecallAtK(retrieved, relevant []string) float64 {
	if len(relevant) == 0 {
		return 0
	}
	relevantSet := make(map[string]bool)
	for _, r := range relevant {
		relevantSet[r] = true
	}
	hits := 0
	for _, r := range retrieved {
		if relevantSet[r] {
			hits++
		}
	}
	return float64(hits) / float64(len(relevant))
}

func BenchmarkScanEngineRetrieve(b *testing.B) {
	for _, size := range []int{1_000, 10_000} {
		b.Run(fmt.Sprintf("passages=%d", size), func(b *testing.B) {
			rng := rand.New(rand.NewSource(1))
			store := memstore.NewMemoryStore()
			passages := randomPassages(rng, size/10, 10, 384)
			if err := store.InsertBatch(context.Background(), passages); err != nil {
				b.Fatal(err)
			}
			engine := NewScanEngine(store)

			query := make([]float32, 384)
			for i := range query {
				query[i] = float32(math.Sin(float64(i)))
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Retrieve(context.Background(), query, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
