package metrics

import (
	"testing"

	"github.com/pixil98/go-testutil"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	InstanceTransitions.WithLabelValues("start", "ok").Inc()
	IslandLockBusy.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	testutil.AssertEqual(t, "transitions exported", names["isleborn_instance_transitions_total"], true)
	testutil.AssertEqual(t, "busy exported", names["isleborn_island_lock_busy_total"], true)

	// A second registration on the same registry must be refused.
	if err := Register(reg); err == nil {
		t.Error("expected duplicate registration error")
	}
}
