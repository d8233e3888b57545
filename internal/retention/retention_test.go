package retention_test

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"pulsecam/internal/retention"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func files(n int) []retention.Candidate {
	out := make([]retention.Candidate, n)
	for i := range out {
		out[i] = retention.Candidate{ID: fmt.Sprintf("f%d", i+1), OrderingKey: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestSteadyStateEvictsTwoOldest(t *testing.T) {
	cands := files(12)
	rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

	got := retention.SelectForEviction(cands, 10)
	if !slices.Equal(got, []string{"f1", "f2"}) {
		t.Fatalf("expected f1 and f2 evicted, got %v", got)
	}

	decision := retention.Plan(cands, 10)
	if len(decision.Keep) != 10 {
		t.Fatalf("expected 10 kept, got %d", len(decision.Keep))
	}
	for _, kept := range decision.Keep {
		if kept.ID == "f1" || kept.ID == "f2" {
			t.Fatalf("evicted id %s also kept", kept.ID)
		}
	}
}

func TestNoEvictionAtOrBelowLimit(t *testing.T) {
	for _, n := range []int{0, 1, 5, 10} {
		cands := files(n)
		slices.Reverse(cands)
		if got := retention.SelectForEviction(cands, 10); len(got) != 0 {
			t.Fatalf("n=%d: expected no eviction, got %v", n, got)
		}
	}
}

func TestEvictedAreStrictlyOlderThanKept(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	for trial := 0; trial < 200; trial++ {
		n := 3 + rng.IntN(30)
		k := 2 + rng.IntN(n-2)
		cands := make([]retention.Candidate, n)
		for i := range cands {
			cands[i] = retention.Candidate{
				ID:          fmt.Sprintf("id-%d", i),
				OrderingKey: base.Add(time.Duration(rng.IntN(1_000_000)) * time.Millisecond),
			}
		}
		decision := retention.Plan(cands, k)
		if n > k && len(decision.Evict) != n-k {
			t.Fatalf("trial %d: expected %d evictions, got %d", trial, n-k, len(decision.Evict))
		}
		if len(decision.Keep) != min(n, k) {
			t.Fatalf("trial %d: expected %d kept, got %d", trial, min(n, k), len(decision.Keep))
		}
		for _, ev := range decision.Evict {
			for _, kept := range decision.Keep {
				if ev.OrderingKey.After(kept.OrderingKey) {
					t.Fatalf("trial %d: evicted %s newer than kept %s", trial, ev.ID, kept.ID)
				}
			}
		}
	}
}

func TestTiesKeepInputOrder(t *testing.T) {
	same := base
	cands := []retention.Candidate{
		{ID: "c", OrderingKey: same},
		{ID: "a", OrderingKey: same},
		{ID: "b", OrderingKey: same},
		{ID: "newest", OrderingKey: same.Add(time.Hour)},
	}
	first := retention.SelectForEviction(cands, 2)
	second := retention.SelectForEviction(cands, 2)
	if !slices.Equal(first, []string{"c", "a"}) {
		t.Fatalf("expected input order among ties, got %v", first)
	}
	if !slices.Equal(first, second) {
		t.Fatalf("selection is not deterministic: %v vs %v", first, second)
	}
}

func TestPlanDoesNotMutateInput(t *testing.T) {
	cands := files(5)
	slices.Reverse(cands)
	before := slices.Clone(cands)
	_ = retention.Plan(cands, 2)
	if !slices.Equal(cands, before) {
		t.Fatal("Plan reordered the caller's slice")
	}
}
