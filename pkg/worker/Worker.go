package worker

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/timestamp"


//=========================================== TSO Worker


// the worker cannot issue right now, clients retry
var ErrNotReady = errors.New("server not ready to issue timestamps, retry later")

// the server is shutting down, requests fail fast
var ErrShutdown = errors.New("tso server shutting down")

/*
	initialize a worker for one shard, the worker's offset within the shard
	set is fixed at startup
*/

func NewTSOWorker(opts TSOWorkerOpts) *TSOWorker {
	return &TSOWorker{
		TsoId: opts.TsoId,
		ShardId: opts.ShardId,
		Offset: uint16(opts.ShardId - 1),
		Clock: opts.Clock,
		Log: clog.NewCustomLog(NAME),
	}
}

/*
	Update Worker Control Info:
		apply a new control info snapshot from the controller, runs on the
		worker's shard so the swap is atomic for the issuance path

		if the new adjustment moves adjusted time backward relative to the
		last issued Tbe, the worker refuses service until the local clock
		catches back up to the equivalent of that Tbe. re-applying an
		identical snapshot leaves the issuance counters untouched.
*/

func (wrk *TSOWorker) UpdateWorkerControlInfo(controlInfo TSOWorkerControlInfo) {
	if controlInfo == wrk.CurControlInfo { return }

	if wrk.LastIssuedTbeNanos > 0 {
		newNowTbe := wrk.Clock.NowNanos() + controlInfo.TbeAdjustment

		if newNowTbe < wrk.LastIssuedTbeNanos {
			wrk.ReadyAfterLocalNanos = wrk.LastIssuedTbeNanos - controlInfo.TbeAdjustment
			wrk.Log.Warn("control info moved adjusted time backward on shard", wrk.ShardId, ", holding issuance")
		} else { wrk.ReadyAfterLocalNanos = 0 }
	}

	wrk.CurControlInfo = controlInfo
}

/*
	Get Timestamp From TSO:
		the hot path, pure compute over shard local state

		1.) reject when not ready, held down after a backward adjustment, or
			asked for an empty batch
		2.) adjusted now is the local monotonic clock plus the controller
			supplied adjustment, rounded down to the microsecond
		3.) within one microsecond the worker owns 1000/TbeNanoSecStep slots
			at its residue offset, a second batch in the same microsecond
			continues where the previous one stopped
		4.) an exhausted microsecond busy yields (bounded) into the next one
		5.) the batch is clamped so its last timestamp never exceeds the
			reserved time threshold
*/

func (wrk *TSOWorker) GetTimestampFromTSO(batchSizeRequested uint16) (*timestamp.TimestampBatch, error) {
	ctl := &wrk.CurControlInfo

	if wrk.ShutdownRequested { return nil, ErrShutdown }

	if !ctl.IsReadyToIssueTS || batchSizeRequested == 0 {
		wrk.Counters.NotReadyErrors++
		return nil, ErrNotReady
	}

	localNow := wrk.Clock.NowNanos()
	if localNow < wrk.ReadyAfterLocalNanos {
		wrk.Counters.NotReadyErrors++
		return nil, ErrNotReady
	}

	nowTai := localNow + ctl.TbeAdjustment
	nowMicroSecRounded := nowTai / 1000

	slotsPerMicroSec := uint16(1000 / uint32(ctl.TbeNanoSecStep))

	if nowMicroSecRounded == wrk.LastRequestTbeMicroSecRounded && wrk.LastRequestTimestampCount >= slotsPerMicroSec {
		// this microsecond is spent, yield into the next one
		spun, spinOk := wrk.spinToNextMicroSec(nowMicroSecRounded, ctl.TbeAdjustment)
		if !spinOk {
			wrk.Counters.NotReadyErrors++
			return nil, ErrNotReady
		}

		nowMicroSecRounded = spun
	}

	var tbeBase uint64
	var available uint16
	sameMicroSec := nowMicroSecRounded == wrk.LastRequestTbeMicroSecRounded

	if sameMicroSec {
		available = slotsPerMicroSec - wrk.LastRequestTimestampCount
		tbeBase = nowMicroSecRounded * 1000 + uint64(wrk.Offset) + uint64(wrk.LastRequestTimestampCount) * uint64(ctl.TbeNanoSecStep)
	} else if nowMicroSecRounded > wrk.LastRequestTbeMicroSecRounded {
		available = slotsPerMicroSec
		tbeBase = nowMicroSecRounded * 1000 + uint64(wrk.Offset)
	} else {
		// adjusted time sits before the last request, the hold down above
		// should have caught this
		wrk.Counters.NotReadyErrors++
		return nil, ErrNotReady
	}

	count := batchSizeRequested
	if count > available { count = available }

	// clamp so the last timestamp of the batch stays at or below the
	// reserved time threshold
	if tbeBase > ctl.ReservedTimeThreshold {
		wrk.Counters.NotReadyErrors++
		return nil, ErrNotReady
	}

	maxCountUnderThreshold := (ctl.ReservedTimeThreshold - tbeBase) / uint64(ctl.TbeNanoSecStep) + 1
	if uint64(count) > maxCountUnderThreshold { count = uint16(maxCountUnderThreshold) }

	if count == 0 {
		wrk.Counters.NotReadyErrors++
		return nil, ErrNotReady
	}

	if sameMicroSec {
		wrk.LastRequestTimestampCount += count
	} else {
		wrk.LastRequestTbeMicroSecRounded = nowMicroSecRounded
		wrk.LastRequestTimestampCount = count
	}

	wrk.LastIssuedTbeNanos = tbeBase + uint64(count - 1) * uint64(ctl.TbeNanoSecStep)

	wrk.Counters.IssuedBatches++
	wrk.Counters.IssuedTimestamps += uint64(count)

	return &timestamp.TimestampBatch{
		TbeBaseNanos: tbeBase,
		TsDelta: ctl.TsDelta,
		TsoId: wrk.TsoId,
		TbeNanoSecStep: ctl.TbeNanoSecStep,
		Count: count,
		TTLNanos: ctl.BatchTTL,
	}, nil
}

/*
	flip the worker into shutdown, later requests fail fast with
	ErrShutdown. runs on the worker's shard.
*/

func (wrk *TSOWorker) RequestShutdown() {
	wrk.ShutdownRequested = true
}

/*
	copy of the issue counters, read on the worker's shard by the stats
	collection task
*/

func (wrk *TSOWorker) SnapshotCounters() WorkerCounters {
	return wrk.Counters
}

/*
	busy yield until the adjusted clock crosses into a later microsecond,
	bounded in both clock time and iterations so an exhausted worker fails
	fast instead of stalling the shard
*/

func (wrk *TSOWorker) spinToNextMicroSec(spentMicroSec uint64, tbeAdjustment uint64) (uint64, bool) {
	deadline := wrk.Clock.NowNanos() + SpinBoundNanos

	for i := 0; i < SpinBoundIterations; i++ {
		localNow := wrk.Clock.NowNanos()
		if localNow > deadline { return 0, false }

		nowMicroSecRounded := (localNow + tbeAdjustment) / 1000
		if nowMicroSecRounded > spentMicroSec { return nowMicroSecRounded, true }
	}

	return 0, false
}
