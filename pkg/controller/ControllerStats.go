package controller

import "github.com/sirgallo/tso/pkg/stats"


//=========================================== TSO Controller Stats


/*
	Collect And Report Stats:
		one tick, runs serialized on shard 0. collects each worker's
		counters on that worker's own shard, aggregates and exports them.
		this task never blocks correctness, a slow tick is simply skipped.
*/

func (ctrl *TSOController) CollectAndReportStats() {
	var aggregate stats.WorkerStatsSnapshot

	for shardId := 1; shardId < ctrl.ShardSet.Count(); shardId++ {
		wrk := ctrl.Workers[shardId]

		var snapshot stats.WorkerStatsSnapshot

		collectErr := ctrl.ShardSet.SubmitWait(shardId, func() {
			counters := wrk.SnapshotCounters()

			snapshot = stats.WorkerStatsSnapshot{
				ShardId: shardId,
				IssuedBatches: counters.IssuedBatches,
				IssuedTimestamps: counters.IssuedTimestamps,
				NotReadyErrors: counters.NotReadyErrors,
			}
		})

		if collectErr != nil {
			ctrl.Log.Warn("stats collection failed for shard", shardId, ":", collectErr.Error())
			continue
		}

		ctrl.Stats.RecordWorkerSnapshot(snapshot)

		aggregate.IssuedBatches += snapshot.IssuedBatches
		aggregate.IssuedTimestamps += snapshot.IssuedTimestamps
		aggregate.NotReadyErrors += snapshot.NotReadyErrors
	}

	ctrl.Stats.SetMasterState(ctrl.IsMasterInstance)
	ctrl.Stats.SetReservedTimeThreshold(ctrl.ControlInfoToSend.ReservedTimeThreshold)

	ctrl.Log.Debug("stats tick, issued batches:", aggregate.IssuedBatches, "issued timestamps:", aggregate.IssuedTimestamps, "rejected:", aggregate.NotReadyErrors)
}
