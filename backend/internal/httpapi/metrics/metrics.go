// Package metrics 暴露运维可见性指标（/metrics），不承载任何核心逻辑。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_active_connections",
		Help: "Number of live websocket connections.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_active_rooms",
		Help: "Number of rooms with at least one connection on this instance.",
	})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_online_users",
		Help: "Number of distinct users connected to this instance.",
	})

	OperationsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_operations_applied_total",
		Help: "Total accepted document operations.",
	})

	OperationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_operation_conflicts_total",
		Help: "Total stale-client conflicts requiring full resync.",
	})
)
