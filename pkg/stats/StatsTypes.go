package stats

import "net/http"

import "github.com/prometheus/client_golang/prometheus"


/*
	explicitly initialized metrics handle, passed through construction
	instead of living in ambient package state
*/

type TSOStats struct {
	Registry *prometheus.Registry

	issuedBatches *prometheus.GaugeVec
	issuedTimestamps *prometheus.GaugeVec
	notReadyErrors *prometheus.GaugeVec

	isMaster prometheus.Gauge
	reservedTimeThreshold prometheus.Gauge

	server *http.Server
}

/*
	one worker's counters as collected on a stats tick
*/

type WorkerStatsSnapshot struct {
	ShardId int
	IssuedBatches uint64
	IssuedTimestamps uint64
	NotReadyErrors uint64
}

const NAME = "Stats"
