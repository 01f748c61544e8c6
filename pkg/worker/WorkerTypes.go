package worker

import "github.com/sirgallo/tso/pkg/clock"
import "github.com/sirgallo/tso/pkg/logger"


/*
	the control info pushed controller -> worker, an immutable snapshot

	all ticks are in nanoseconds. TbeNanoSecStep equals the total worker
	count so all workers' timestamps interleave on the nanosecond axis
	without collision. no batch may end past ReservedTimeThreshold.
*/

type TSOWorkerControlInfo struct {
	IsReadyToIssueTS bool
	TbeNanoSecStep uint16
	TbeAdjustment uint64
	TsDelta uint32
	ReservedTimeThreshold uint64
	BatchTTL uint32
}

/*
	per worker issue counters, collected by the controller's stats task
*/

type WorkerCounters struct {
	IssuedBatches uint64
	IssuedTimestamps uint64
	NotReadyErrors uint64
}

/*
	a worker owns one shard's timestamp issuance state

	everything here is read and written only on the worker's shard, the
	issuance path is pure compute with no suspension points
*/

type TSOWorker struct {
	TsoId uint32
	ShardId int

	// position of this worker within the shard set, its residue class on
	// the nanosecond axis
	Offset uint16

	Clock clock.LocalClock

	CurControlInfo TSOWorkerControlInfo

	// last request's batch end time rounded to the microsecond
	LastRequestTbeMicroSecRounded uint64
	// timestamps issued within that microsecond so far, each worker can
	// issue up to 1000/TbeNanoSecStep per microsecond
	LastRequestTimestampCount uint16

	LastIssuedTbeNanos uint64

	// requests fail fast once the service has begun stopping
	ShutdownRequested bool

	// local clock value the worker must reach before serving again after a
	// control info update moved adjusted time backward
	ReadyAfterLocalNanos uint64

	Counters WorkerCounters

	Log *clog.CustomLog
}

type TSOWorkerOpts struct {
	TsoId uint32
	ShardId int
	Clock clock.LocalClock
}

const NAME = "TSO Worker"

// bounds on the busy yield into the next microsecond once the current
// one is exhausted
const SpinBoundNanos = 20000
const SpinBoundIterations = 65536
