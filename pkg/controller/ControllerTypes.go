package controller

import "sync"
import "sync/atomic"
import "time"

import "github.com/sirgallo/tso/pkg/clock"
import "github.com/sirgallo/tso/pkg/config"
import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/paxos"
import "github.com/sirgallo/tso/pkg/shard"
import "github.com/sirgallo/tso/pkg/stats"
import "github.com/sirgallo/tso/pkg/transport"
import "github.com/sirgallo/tso/pkg/worker"


/*
	the controller role, hosted on shard 0

	all mutable state below is confined to shard 0, every periodic task and
	every handler that touches it is submitted to that shard's queue.
	workers are addressed by shard id through the dispatcher, never by
	pointer cycles back into the controller.
*/

type TSOController struct {
	Conf *config.Config

	Protocol *transport.Protocol
	ShardSet *shard.ShardSet
	Workers []*worker.TSOWorker
	WorkerURLs [][]string

	Paxos *paxos.PaxosClient
	ClockSource clock.ClockSource
	Clock clock.LocalClock
	Stats *stats.TSOStats

	// set when joining the cluster or by heartbeat on role change
	IsMasterInstance bool
	MasterInstanceURL string

	// TAI minus the local monotonic clock, recomputed by time sync
	DiffTaLocalNanos uint64

	// a new master waits this value out before declaring itself ready
	PrevReservedTimeThreshold uint64

	// lease at paxos while master, extended by heartbeat
	MyLeaseNanos uint64

	StopRequested bool

	LastSentControlInfo worker.TSOWorkerControlInfo
	ControlInfoToSend worker.TSOWorkerControlInfo

	heartBeatBusy atomic.Bool
	timeSyncBusy atomic.Bool
	statsBusy atomic.Bool

	timersStop chan struct{}
	timersDone sync.WaitGroup

	// injected so lease loss can crash the process, overridable in tests
	ExitFunc func(code int)

	Log *clog.CustomLog
}

type TSOControllerOpts struct {
	Conf *config.Config
	Protocol *transport.Protocol
	ShardSet *shard.ShardSet
	Workers []*worker.TSOWorker
	WorkerURLs [][]string
	Paxos *paxos.PaxosClient
	ClockSource clock.ClockSource
	Clock clock.LocalClock
	Stats *stats.TSOStats
	ExitFunc func(code int)
}

// wire payload for GET_TSO_MASTER_URL responses
type MasterURLPayload struct {
	MasterURL string `json:"masterUrl"`
}

const NAME = "TSO Controller"

// extra slack on top of three heartbeat intervals when generating a lease
const LeaseSlack = 1 * time.Millisecond

// largest time sync correction applied in a single tick
const MaxTimeSyncStepNanos = uint64(1000000)

// poll interval while waiting out a predecessor's reserved threshold
const ThresholdWaitPoll = 100 * time.Microsecond
