package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	InstanceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "isleborn",
		Name:      "instance_transitions_total",
		Help:      "Instance lifecycle operations by operation and result.",
	}, []string{"op", "result"})

	InstancesByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "isleborn",
		Name:      "instances",
		Help:      "Tracked instance records by lifecycle state.",
	}, []string{"state"})

	IslandReads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "isleborn",
		Name:      "island_reads_total",
		Help:      "Island reads by serving tier and result.",
	}, []string{"tier", "result"})

	IslandWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "isleborn",
		Name:      "island_writes_total",
		Help:      "Island writes by accepting tier and result.",
	}, []string{"tier", "result"})

	IslandLockBusy = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "isleborn",
		Name:      "island_lock_busy_total",
		Help:      "Upserts rejected because the owner's write lock was held.",
	})

	IslandPromotions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "isleborn",
		Name:      "island_promotions_total",
		Help:      "Fallback copies pushed back to the primary tier, by result.",
	}, []string{"result"})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		InstanceTransitions,
		InstancesByState,
		IslandReads,
		IslandWrites,
		IslandLockBusy,
		IslandPromotions,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
