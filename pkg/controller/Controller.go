package controller

import "sync/atomic"
import "time"

import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/paxos"
import "github.com/sirgallo/tso/pkg/shard"
import "github.com/sirgallo/tso/pkg/transport"
import "github.com/sirgallo/tso/pkg/utils"
import "github.com/sirgallo/tso/pkg/worker"


//=========================================== TSO Controller


func NewTSOController(opts TSOControllerOpts) *TSOController {
	ctrl := &TSOController{
		Conf: opts.Conf,
		Protocol: opts.Protocol,
		ShardSet: opts.ShardSet,
		Workers: opts.Workers,
		WorkerURLs: opts.WorkerURLs,
		Paxos: opts.Paxos,
		ClockSource: opts.ClockSource,
		Clock: opts.Clock,
		Stats: opts.Stats,
		timersStop: make(chan struct{}),
		ExitFunc: opts.ExitFunc,
		Log: clog.NewCustomLog(NAME),
	}

	return ctrl
}

/*
	Start:
		1.) InitializeInternal: seed the worker control info with issuance
			disabled and the step set to the worker count, then run a first
			time sync so the adjustment is live before joining
		2.) join the server cluster through consensus
		3.) SetRoleInternal with the join result, a fresh master waits out
			the previous reserved threshold before enabling workers
		4.) arm the heartbeat, time sync and stats timers and register the
			client facing control verbs
*/

func (ctrl *TSOController) Start() error {
	initErr := ctrl.InitializeInternal()
	if initErr != nil { return initErr }

	join := func() (*paxos.PaxosResponse, error) {
		return ctrl.Paxos.JoinServerCluster(ctrl.TimeAuthorityNow(), ctrl.GenNewLeaseVal(), ctrl.GenNewLeaseVal())
	}

	maxRetries := 5
	expOpts := utils.ExpBackoffOpts{ MaxRetries: &maxRetries, TimeoutInMilliseconds: 10 }
	expBackoff := utils.NewExponentialBackoffStrat[*paxos.PaxosResponse](expOpts)

	joinResp, joinErr := expBackoff.PerformBackoff(join)
	if joinErr != nil { return joinErr }

	ctrl.Log.Info("joined server cluster, master:", joinResp.IsMaster)

	if joinResp.IsMaster {
		ctrl.MyLeaseNanos = joinResp.LeaseExpiryNanos
		ctrl.ControlInfoToSend.ReservedTimeThreshold = joinResp.ReservedTimeThresholdNanos
	}

	ctrl.SetRoleInternal(joinResp.IsMaster, joinResp.PrevReservedTimeThresholdNanos, joinResp.MasterURL)

	ctrl.armTimers()
	ctrl.registerControlVerbs()

	return nil
}

/*
	Initialize Internal:
		runs before the cluster join, no other task touches controller state
		yet
*/

func (ctrl *TSOController) InitializeInternal() error {
	ctrl.InitWorkerControlInfo()

	syncErr := ctrl.DoTimeSync()
	if syncErr != nil { return syncErr }

	return nil
}

func (ctrl *TSOController) InitWorkerControlInfo() {
	ctrl.ControlInfoToSend = worker.TSOWorkerControlInfo{
		IsReadyToIssueTS: false,
		TbeNanoSecStep: uint16(ctrl.ShardSet.WorkerCount()),
		TsDelta: uint32(ctrl.Conf.TSO.CtrolTsBatchWinSize.Nanoseconds()),
		BatchTTL: uint32(ctrl.Conf.TSO.CtrolTsBatchWinSize.Nanoseconds()),
	}
}

/*
	Set Role Internal:
		flip between master and standby. when this instance becomes master,
		consensus has already written the lease record, so the only work
		left is waiting out the predecessor's reserved threshold and an
		out of band heartbeat plus worker broadcast to flip workers ready
		before the next regular tick.
*/

func (ctrl *TSOController) SetRoleInternal(isMaster bool, prevReservedTimeThreshold uint64, masterURL string) {
	ctrl.IsMasterInstance = isMaster

	if !isMaster {
		ctrl.MasterInstanceURL = masterURL
		return
	}

	ctrl.MasterInstanceURL = ctrl.Protocol.ServerEndpoint.URL()
	ctrl.PrevReservedTimeThreshold = prevReservedTimeThreshold

	for ctrl.TimeAuthorityNow() <= prevReservedTimeThreshold {
		time.Sleep(ThresholdWaitPoll)
	}

	ctrl.Log.Info("previous reserved threshold waited out, taking master role")
	ctrl.DoHeartBeat()
}

/*
	Stop:
		1.) set StopRequested on shard 0 so the next heartbeat rejects and
			the ready predicate goes false
		2.) unregister client facing verbs, new requests fail fast
		3.) run the during-stop heartbeat, which removes the lease from
			consensus, then cancel the timers and await in flight tasks
		4.) exit the server cluster
*/

func (ctrl *TSOController) GracefulStop() {
	ctrl.ShardSet.SubmitWait(shard.ControllerShardId, func() {
		ctrl.StopRequested = true
	})

	ctrl.unregisterControlVerbs()

	ctrl.ShardSet.SubmitWait(shard.ControllerShardId, func() {
		ctrl.DoHeartBeatDuringStop()
	})

	close(ctrl.timersStop)
	ctrl.timersDone.Wait()

	exitErr := ctrl.Paxos.ExitServerCluster()
	if exitErr != nil { ctrl.Log.Warn("exit server cluster failed:", exitErr.Error()) }

	ctrl.Log.Info("controller stopped")
}

/*
	Send Workers Control Info:
		the ready predicate is computed here and nowhere else: a worker may
		issue only while this instance is master, not stopping, and the
		predecessor's threshold has been waited out. identical snapshots are
		not re-broadcast.
*/

func (ctrl *TSOController) SendWorkersControlInfo() {
	ctrl.ControlInfoToSend.IsReadyToIssueTS = ctrl.IsMasterInstance &&
		!ctrl.StopRequested &&
		ctrl.TimeAuthorityNow() >= ctrl.PrevReservedTimeThreshold

	if ctrl.ControlInfoToSend == ctrl.LastSentControlInfo { return }

	infoToSend := ctrl.ControlInfoToSend

	ctrl.ShardSet.Broadcast(func(shardId int) {
		ctrl.Workers[shardId].UpdateWorkerControlInfo(infoToSend)
	})

	ctrl.LastSentControlInfo = infoToSend
}

/*
	Suicide:
		called when and only when this instance is master and finds the
		lease gone. the lease is already lost so there is nothing to revoke,
		workers stop issuing on their own once the reserved threshold runs
		out, which is why Tbe <= ReservedTimeThreshold is the only gate they
		apply.
*/

func (ctrl *TSOController) Suicide() {
	ctrl.Log.Error("master lost its lease, terminating")
	ctrl.ExitFunc(1)
}

// known TA time, local monotonic now plus the last synced difference
func (ctrl *TSOController) TimeAuthorityNow() uint64 {
	return ctrl.Clock.NowNanos() + ctrl.DiffTaLocalNanos
}

/*
	current TA time plus three heartbeat intervals and one extra
	millisecond, so up to three heartbeats can be missed before the lease
	runs out
*/

func (ctrl *TSOController) GenNewLeaseVal() uint64 {
	return ctrl.TimeAuthorityNow() + uint64(ctrl.Conf.TSO.CtrolHeartBeatInterval.Nanoseconds()) * 3 + uint64(LeaseSlack.Nanoseconds())
}

/*
	arm the three periodic tasks. ticks are delivered to shard 0 and a tick
	is skipped outright while the prior invocation of the same task is
	still in flight.
*/

func (ctrl *TSOController) armTimers() {
	ctrl.armTimer(ctrl.Conf.TSO.CtrolHeartBeatInterval.Duration, &ctrl.heartBeatBusy, ctrl.HeartBeat)
	ctrl.armTimer(ctrl.Conf.TSO.CtrolTimeSyncInterval.Duration, &ctrl.timeSyncBusy, ctrl.TimeSync)
	ctrl.armTimer(ctrl.Conf.TSO.CtrolStatsUpdateInterval.Duration, &ctrl.statsBusy, ctrl.CollectAndReportStats)
}

func (ctrl *TSOController) armTimer(interval time.Duration, busy *atomic.Bool, task func()) {
	ctrl.timersDone.Add(1)

	go func() {
		defer ctrl.timersDone.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
				case <- ctrl.timersStop:
					return
				case <- ticker.C:
					if !busy.CompareAndSwap(false, true) { continue }

					submitErr := ctrl.ShardSet.Submit(shard.ControllerShardId, func() {
						defer busy.Store(false)
						task()
					})

					if submitErr != nil { busy.Store(false) }
			}
		}
	}()
}

/*
	client facing control verbs, the master url and the per shard worker
	endpoint urls
*/

func (ctrl *TSOController) registerControlVerbs() {
	ctrl.Protocol.RegisterVerbHandler(transport.GET_TSO_MASTER_URL, transport.ACK_TIME, func(msg *transport.Message) ([]byte, transport.MessageMetadata) {
		var masterURL string

		ctrl.ShardSet.SubmitWait(shard.ControllerShardId, func() {
			masterURL = ctrl.MasterInstanceURL
		})

		payload, encErr := utils.EncodeStructToBytes[MasterURLPayload](MasterURLPayload{ MasterURL: masterURL })
		if encErr != nil { return nil, transport.MessageMetadata{ Status: transport.StatusError, ErrorMsg: encErr.Error() } }

		return payload, transport.MessageMetadata{ Status: transport.StatusOK }
	})

	ctrl.Protocol.RegisterVerbHandler(transport.GET_TSO_WORKERS_URLS, transport.ACK_TIME, func(msg *transport.Message) ([]byte, transport.MessageMetadata) {
		payload, encErr := utils.EncodeStructToBytes[[][]string](ctrl.WorkerURLs)
		if encErr != nil { return nil, transport.MessageMetadata{ Status: transport.StatusError, ErrorMsg: encErr.Error() } }

		return payload, transport.MessageMetadata{ Status: transport.StatusOK }
	})
}

func (ctrl *TSOController) unregisterControlVerbs() {
	ctrl.Protocol.UnregisterVerbHandler(transport.GET_TSO_MASTER_URL)
	ctrl.Protocol.UnregisterVerbHandler(transport.GET_TSO_WORKERS_URLS)
}
