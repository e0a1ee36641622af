package metrics

import (
	"testing"
	"time"
)

func TestObserveRunRegistered(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	ObserveRun("alns", "completed", 20*time.Millisecond, 150)

	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]bool{"optimization_runs_total": false, "optimization_duration_seconds": false, "optimization_iterations": false}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
			if f.GetName() == "optimization_runs_total" && f.GetMetric()[0].GetCounter().GetValue() < 1 {
				t.Fatalf("runs counter not incremented")
			}
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("metric %s not gathered", name)
		}
	}
}
