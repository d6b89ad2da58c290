package balance

import (
	"math"
	"testing"
)

func TestWeightedPickerConvergesToWeightRatios(t *testing.T) {
	weights := map[string]float64{
		"node-1": 1.0,
		"node-2": 0.5,
		"node-3": 0.1,
	}
	total := 1.6
	draws := 100000

	picker := NewWeightedPicker(42)
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		id, ok := picker.Pick(weights)
		if !ok {
			t.Fatalf("pick %d failed unexpectedly", i)
		}
		counts[id]++
	}

	for id, w := range weights {
		expected := w / total
		got := float64(counts[id]) / float64(draws)
		if math.Abs(got-expected) > 0.01 {
			t.Fatalf("%s: expected frequency %.3f, got %.3f", id, expected, got)
		}
	}
}

func TestWeightedPickerRejectsZeroTotal(t *testing.T) {
	picker := NewWeightedPicker(1)

	if _, ok := picker.Pick(nil); ok {
		t.Fatalf("expected failure on empty map")
	}
	if _, ok := picker.Pick(map[string]float64{"node-1": 0, "node-2": 0}); ok {
		t.Fatalf("expected failure on all-zero weights")
	}
}

func TestWeightedPickerSingleNode(t *testing.T) {
	picker := NewWeightedPicker(7)
	for i := 0; i < 10; i++ {
		id, ok := picker.Pick(map[string]float64{"node-9": 0.1})
		if !ok || id != "node-9" {
			t.Fatalf("expected node-9, got %q ok=%v", id, ok)
		}
	}
}

func TestRoundRobinCyclesUniformly(t *testing.T) {
	ids := []string{"node-2", "node-1", "node-3"}
	rr := NewRoundRobin()

	counts := make(map[string]int)
	for i := 0; i < 300; i++ {
		id, ok := rr.Next(ids)
		if !ok {
			t.Fatalf("next failed on non-empty ids")
		}
		counts[id]++
	}
	for _, id := range ids {
		if counts[id] != 100 {
			t.Fatalf("%s: expected exactly 100 selections, got %d", id, counts[id])
		}
	}
}

func TestRoundRobinSortsInput(t *testing.T) {
	rr := NewRoundRobin()
	first, _ := rr.Next([]string{"node-3", "node-1", "node-2"})
	if first != "node-1" {
		t.Fatalf("expected rotation to start at node-1, got %s", first)
	}
	second, _ := rr.Next([]string{"node-3", "node-1", "node-2"})
	if second != "node-2" {
		t.Fatalf("expected node-2 second, got %s", second)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	rr := NewRoundRobin()
	if _, ok := rr.Next(nil); ok {
		t.Fatalf("expected failure on empty id list")
	}
}
