package stats

import "net/http"
import "strconv"

import "github.com/prometheus/client_golang/prometheus"
import "github.com/prometheus/client_golang/prometheus/promhttp"

import "github.com/sirgallo/tso/pkg/logger"


//=========================================== TSO Stats


var Log = clog.NewCustomLog(NAME)

func NewTSOStats() *TSOStats {
	registry := prometheus.NewRegistry()

	tsoStats := &TSOStats{
		Registry: registry,
		issuedBatches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tso_worker_issued_batches_total",
			Help: "timestamp batches issued per worker shard",
		}, []string{"shard"}),
		issuedTimestamps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tso_worker_issued_timestamps_total",
			Help: "timestamps issued per worker shard",
		}, []string{"shard"}),
		notReadyErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tso_worker_not_ready_errors_total",
			Help: "requests rejected with not ready per worker shard",
		}, []string{"shard"}),
		isMaster: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tso_controller_is_master",
			Help: "1 while this instance holds the master lease",
		}),
		reservedTimeThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tso_controller_reserved_time_threshold_nanos",
			Help: "current reserved time threshold in nanoseconds since the TAI epoch",
		}),
	}

	registry.MustRegister(tsoStats.issuedBatches)
	registry.MustRegister(tsoStats.issuedTimestamps)
	registry.MustRegister(tsoStats.notReadyErrors)
	registry.MustRegister(tsoStats.isMaster)
	registry.MustRegister(tsoStats.reservedTimeThreshold)

	return tsoStats
}

/*
	record one worker's counter snapshot, called from the controller's
	stats tick after the cross shard collection
*/

func (tsoStats *TSOStats) RecordWorkerSnapshot(snapshot WorkerStatsSnapshot) {
	shardLabel := strconv.Itoa(snapshot.ShardId)

	tsoStats.issuedBatches.WithLabelValues(shardLabel).Set(float64(snapshot.IssuedBatches))
	tsoStats.issuedTimestamps.WithLabelValues(shardLabel).Set(float64(snapshot.IssuedTimestamps))
	tsoStats.notReadyErrors.WithLabelValues(shardLabel).Set(float64(snapshot.NotReadyErrors))
}

func (tsoStats *TSOStats) SetMasterState(isMaster bool) {
	if isMaster {
		tsoStats.isMaster.Set(1)
	} else { tsoStats.isMaster.Set(0) }
}

func (tsoStats *TSOStats) SetReservedTimeThreshold(thresholdNanos uint64) {
	tsoStats.reservedTimeThreshold.Set(float64(thresholdNanos))
}

/*
	expose the registry on /metrics, an empty address disables the listener
*/

func (tsoStats *TSOStats) ServeMetrics(addr string) {
	if addr == "" { return }

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(tsoStats.Registry, promhttp.HandlerOpts{}))

	tsoStats.server = &http.Server{
		Addr: addr,
		Handler: mux,
	}

	go func() {
		Log.Info("metrics listening on", addr)

		srvErr := tsoStats.server.ListenAndServe()
		if srvErr != nil && srvErr != http.ErrServerClosed { Log.Error("metrics server failed:", srvErr.Error()) }
	}()
}

func (tsoStats *TSOStats) StopMetrics() {
	if tsoStats.server != nil { tsoStats.server.Close() }
}
