package fit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/riverchem/saltflux/internal/models"
)

type testRow struct {
	Param string
	Site  string
	Value float64
}

func testKey(r testRow) Key {
	return Key{
		{Name: "parameter", Value: r.Param},
		{Name: "site", Value: r.Site},
	}
}

func TestRunPartitionsIndependently(t *testing.T) {
	rows := []testRow{
		{"Calcium", "S1", 1},
		{"Calcium", "S1", 2},
		{"Chloride", "S1", 3}, // this partition's model fails
		{"Calcium", "S2", 4},
		{"Calcium", "S1", 5}, // same partition as the first two
	}

	model := func(partition []testRow) ([]Coefficient, error) {
		if partition[0].Param == "Chloride" {
			return nil, fmt.Errorf("only %d points: %w", len(partition), ErrInsufficientData)
		}
		var sum float64
		for _, r := range partition {
			sum += r.Value
		}
		return []Coefficient{{Term: "sum", Estimate: sum}}, nil
	}

	out := Run(rows, testKey, model)

	// Successful partitions, in order of first appearance, with keys attached.
	wantKeys := [][]models.KeyValue{
		{{Name: "parameter", Value: "Calcium"}, {Name: "site", Value: "S1"}},
		{{Name: "parameter", Value: "Calcium"}, {Name: "site", Value: "S2"}},
	}
	if len(out.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(out.Results))
	}
	for i, want := range wantKeys {
		if diff := cmp.Diff(want, out.Results[i].Keys); diff != "" {
			t.Errorf("result %d keys mismatch (-want +got):\n%s", i, diff)
		}
	}
	if out.Results[0].Estimate != 8 {
		t.Errorf("Calcium/S1 sum = %v, want 8 (all three rows in one partition)", out.Results[0].Estimate)
	}
	if out.Results[1].Estimate != 4 {
		t.Errorf("Calcium/S2 sum = %v, want 4", out.Results[1].Estimate)
	}

	// The failed partition contributes zero result rows and one failure.
	if len(out.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(out.Failures))
	}
	failure := out.Failures[0]
	if failure.Key.String() != "parameter=Chloride site=S1" {
		t.Errorf("failure key = %q", failure.Key)
	}
	if !errors.Is(failure.Err, ErrInsufficientData) {
		t.Errorf("failure err = %v, want ErrInsufficientData", failure.Err)
	}
}

func TestRunKeySetMatchesInput(t *testing.T) {
	rows := []testRow{
		{"A", "S1", 1}, {"B", "S1", 1}, {"A", "S2", 1}, {"A", "S1", 2},
	}

	out := Run(rows, testKey, func(partition []testRow) ([]Coefficient, error) {
		return []Coefficient{{Term: "n", Estimate: float64(len(partition))}}, nil
	})

	distinct := make(map[string]bool)
	for _, r := range rows {
		distinct[testKey(r).String()] = true
	}
	got := make(map[string]bool)
	for _, r := range out.Results {
		got[Key(r.Keys).String()] = true
	}
	if diff := cmp.Diff(distinct, got); diff != "" {
		t.Errorf("partition key set mismatch (-want +got):\n%s", diff)
	}
	if len(out.Failures) != 0 {
		t.Errorf("unexpected failures: %+v", out.Failures)
	}
}

func TestRunEmptyInput(t *testing.T) {
	out := Run(nil, testKey, func([]testRow) ([]Coefficient, error) {
		t.Fatal("model must not be invoked for empty input")
		return nil, nil
	})
	if len(out.Results) != 0 || len(out.Failures) != 0 {
		t.Errorf("empty input produced output: %+v", out)
	}
}

func TestRunRowOrderWithinPartition(t *testing.T) {
	rows := []testRow{
		{"A", "S1", 10}, {"A", "S1", 20}, {"A", "S1", 30},
	}
	var seen []float64
	Run(rows, testKey, func(partition []testRow) ([]Coefficient, error) {
		for _, r := range partition {
			seen = append(seen, r.Value)
		}
		return nil, nil
	})
	if diff := cmp.Diff([]float64{10, 20, 30}, seen); diff != "" {
		t.Errorf("partition rows out of input order (-want +got):\n%s", diff)
	}
}
