package service

import "os"
import "strconv"

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/clock"
import "github.com/sirgallo/tso/pkg/config"
import "github.com/sirgallo/tso/pkg/controller"
import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/paxos"
import "github.com/sirgallo/tso/pkg/shard"
import "github.com/sirgallo/tso/pkg/stats"
import "github.com/sirgallo/tso/pkg/transport"
import "github.com/sirgallo/tso/pkg/worker"


//=========================================== TSO Service


var Log = clog.NewCustomLog(NAME)

/*
	initialize sub modules under the same tso service and link together

	fewer than two configured shards is fatal, the service needs one
	controller and at least one worker
*/

func NewTSOService(opts TSOServiceOpts) (*TSOService, error) {
	conf := opts.Conf

	shardSet, shardErr := shard.NewShardSet(conf.TSO.ShardCount)
	if shardErr != nil { return nil, shardErr }

	monotonic := clock.NewMonotonicClock()

	baseEndpoint, parseErr := transport.ParseEndpoint(conf.TSO.ListenURL)
	if parseErr != nil { return nil, parseErr }

	basePort, portErr := strconv.Atoi(baseEndpoint.Port)
	if portErr != nil { return nil, errors.Wrapf(portErr, "invalid listen port %s", baseEndpoint.Port) }

	var protocols []*transport.Protocol

	for shardId := 0; shardId < shardSet.Count(); shardId++ {
		shardEndpoint := transport.TxEndpoint{
			Proto: baseEndpoint.Proto,
			Host: baseEndpoint.Host,
			Port: strconv.Itoa(basePort + shardId),
		}

		protocol, protocolErr := transport.NewProtocol(transport.ProtocolOpts{
			ListenURL: shardEndpoint.URL(),
			EnableTxChecksum: conf.EnableTxChecksum,
		})

		if protocolErr != nil { return nil, protocolErr }
		protocols = append(protocols, protocol)
	}

	workers := make([]*worker.TSOWorker, shardSet.Count())
	workerURLs := make([][]string, 0, shardSet.WorkerCount())

	for shardId := 1; shardId < shardSet.Count(); shardId++ {
		workers[shardId] = worker.NewTSOWorker(worker.TSOWorkerOpts{
			TsoId: conf.TSO.TsoId,
			ShardId: shardId,
			Clock: monotonic,
		})

		workerURLs = append(workerURLs, []string{ protocols[shardId].ServerEndpoint.URL() })
	}

	if conf.TSO.PaxosURL == "" { return nil, errors.New("tso.paxos_url is required, the controller cannot join a cluster without consensus") }

	paxosEndpoint, paxosParseErr := transport.ParseEndpoint(conf.TSO.PaxosURL)
	if paxosParseErr != nil { return nil, paxosParseErr }

	paxosClient := paxos.NewPaxosClient(paxos.PaxosClientOpts{
		Protocol: protocols[shard.ControllerShardId],
		PaxosEndpoint: paxosEndpoint,
		MemberURL: protocols[shard.ControllerShardId].ServerEndpoint.URL(),
		Timeout: conf.TSO.CtrolHeartBeatInterval.Duration,
	})

	clockSource, clockErr := buildClockSource(conf, protocols[shard.ControllerShardId], monotonic)
	if clockErr != nil { return nil, clockErr }

	tsoStats := stats.NewTSOStats()

	exitFunc := opts.ExitFunc
	if exitFunc == nil { exitFunc = os.Exit }

	ctrl := controller.NewTSOController(controller.TSOControllerOpts{
		Conf: conf,
		Protocol: protocols[shard.ControllerShardId],
		ShardSet: shardSet,
		Workers: workers,
		WorkerURLs: workerURLs,
		Paxos: paxosClient,
		ClockSource: clockSource,
		Clock: monotonic,
		Stats: tsoStats,
		ExitFunc: exitFunc,
	})

	return &TSOService{
		Conf: conf,
		ShardSet: shardSet,
		Protocols: protocols,
		Workers: workers,
		Controller: ctrl,
		Stats: tsoStats,
		Clock: monotonic,
	}, nil
}

/*
	Start TSO Service:
		1.) start the shard drain loops
		2.) bind every shard's rpc listener
		3.) register the worker hot path verb on each worker endpoint
		4.) start the metrics listener when configured
		5.) start the controller, which joins the cluster, takes its role
			and arms the periodic tasks
*/

func (tso *TSOService) StartTSOService() error {
	tso.ShardSet.Start()

	for _, protocol := range tso.Protocols {
		startErr := protocol.Start()
		if startErr != nil { return startErr }
	}

	for shardId := 1; shardId < tso.ShardSet.Count(); shardId++ {
		tso.Workers[shardId].RegisterGetTimestampBatch(tso.Protocols[shardId], tso.ShardSet)
	}

	tso.Stats.ServeMetrics(tso.Conf.TSO.MetricsAddr)

	startErr := tso.Controller.Start()
	if startErr != nil { return startErr }

	Log.Info("tso service started with", tso.ShardSet.WorkerCount(), "workers on", tso.Protocols[0].ServerEndpoint.URL())
	return nil
}

/*
	Graceful Stop:
		1.) flip every worker into shutdown so requests fail fast
		2.) stop the controller, removing the lease from consensus
		3.) unregister the hot path verb and stop every rpc endpoint
		4.) stop metrics and drain the shards
*/

func (tso *TSOService) GracefulStop() {
	tso.stopMutex.Lock()
	if tso.stopped {
		tso.stopMutex.Unlock()
		return
	}

	tso.stopped = true
	tso.stopMutex.Unlock()

	tso.ShardSet.Broadcast(func(shardId int) {
		tso.Workers[shardId].RequestShutdown()
	})

	tso.Controller.GracefulStop()

	for shardId := 1; shardId < tso.ShardSet.Count(); shardId++ {
		tso.Workers[shardId].UnregisterGetTimestampBatch(tso.Protocols[shardId])
	}

	for _, protocol := range tso.Protocols {
		stopErr := protocol.Stop()
		if stopErr != nil { Log.Warn("protocol stop failed:", stopErr.Error()) }
	}

	tso.Stats.StopMetrics()
	tso.ShardSet.Stop()

	Log.Info("tso service stopped")
}

/*
	an unset clock url falls back to the local system clock as the time
	authority, otherwise the atomic/gps clock service is dialed over the
	controller's endpoint
*/

func buildClockSource(conf *config.Config, protocol *transport.Protocol, monotonic *clock.MonotonicClock) (clock.ClockSource, error) {
	if conf.TSO.ClockURL == "" {
		return clock.NewLocalClockSource(monotonic, DefaultClockUncertaintyNanos), nil
	}

	clockEndpoint, parseErr := transport.ParseEndpoint(conf.TSO.ClockURL)
	if parseErr != nil { return nil, parseErr }

	return clock.NewRemoteClockSource(protocol, clockEndpoint, monotonic, conf.TSO.CtrolTimeSyncInterval.Duration), nil
}
