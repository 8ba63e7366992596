package pipeline

import "testing"

func TestThenComposesStages(t *testing.T) {
	double := StageFunc[int, int](func(n int) int { return n * 2 })
	toString := StageFunc[int, string](func(n int) string {
		if n == 0 {
			return "zero"
		}
		return "nonzero"
	})
	chained := Then[int, int, string](double, toString)
	if got := chained.Update(0); got != "zero" {
		t.Fatalf("got %q, want zero", got)
	}
	if got := chained.Update(3); got != "nonzero" {
		t.Fatalf("got %q, want nonzero", got)
	}
}

func TestMultiplexRoutesBySource(t *testing.T) {
	a := StageFunc[int, string](func(n int) string { return "a" })
	b := StageFunc[int, string](func(n int) string { return "b" })
	mux := Multiplex[int, string](a, b)

	if got := mux.Update(MultiplexInput[int]{FromA: true, Event: 1}); got != "a" {
		t.Fatalf("got %q, want a", got)
	}
	if got := mux.Update(MultiplexInput[int]{FromA: false, Event: 1}); got != "b" {
		t.Fatalf("got %q, want b", got)
	}
}
