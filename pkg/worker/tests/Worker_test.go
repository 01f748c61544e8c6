package workertests

import "testing"

import "github.com/stretchr/testify/require"

import "github.com/sirgallo/tso/pkg/clock"
import "github.com/sirgallo/tso/pkg/worker"


const testAdjustment = uint64(100000000000)

func readyControlInfo() worker.TSOWorkerControlInfo {
	return worker.TSOWorkerControlInfo{
		IsReadyToIssueTS: true,
		TbeNanoSecStep: 4,
		TbeAdjustment: testAdjustment,
		TsDelta: 8000000,
		ReservedTimeThreshold: uint64(1000000000000000000),
		BatchTTL: 8000000,
	}
}

func setupWorker(manual *clock.ManualClock) *worker.TSOWorker {
	// shard 2 means worker offset 1
	wrk := worker.NewTSOWorker(worker.TSOWorkerOpts{
		TsoId: 1,
		ShardId: 2,
		Clock: manual,
	})

	wrk.UpdateWorkerControlInfo(readyControlInfo())
	return wrk
}

func TestSingleBatch(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	batch, issueErr := wrk.GetTimestampFromTSO(3)
	require.NoError(t, issueErr)

	// now rounds down to 100000000000 at the microsecond, plus offset 1
	require.Equal(t, uint64(100000000001), batch.TbeBaseNanos)
	require.Equal(t, uint16(4), batch.TbeNanoSecStep)
	require.Equal(t, uint16(3), batch.Count)
	require.Equal(t, uint32(1), batch.TsoId)

	expanded := batch.Expand()
	require.Equal(t, uint64(100000000001), expanded[0].TbeNanos)
	require.Equal(t, uint64(100000000005), expanded[1].TbeNanos)
	require.Equal(t, uint64(100000000009), expanded[2].TbeNanos)
}

func TestSecondBatchSameMicrosecond(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	first, firstErr := wrk.GetTimestampFromTSO(3)
	require.NoError(t, firstErr)
	require.Equal(t, uint64(100000000001), first.TbeBaseNanos)

	second, secondErr := wrk.GetTimestampFromTSO(2)
	require.NoError(t, secondErr)

	// continues where the first batch stopped within the same microsecond
	require.Equal(t, uint64(100000000013), second.TbeBaseNanos)
	require.Equal(t, uint16(2), second.Count)
}

func TestExhaustMicrosecond(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	// with step 4 a worker owns 250 slots per microsecond
	first, firstErr := wrk.GetTimestampFromTSO(250)
	require.NoError(t, firstErr)
	require.Equal(t, uint16(250), first.Count)

	// the clock is frozen so the bounded yield cannot reach the next
	// microsecond and the request fails
	_, exhaustedErr := wrk.GetTimestampFromTSO(1)
	require.ErrorIs(t, exhaustedErr, worker.ErrNotReady)

	// one microsecond later issuance resumes at the new base
	manual.Advance(1000)

	next, nextErr := wrk.GetTimestampFromTSO(1)
	require.NoError(t, nextErr)
	require.Equal(t, uint64(100000001001), next.TbeBaseNanos)
}

func TestBatchClampedBelowRequest(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	// a batch larger than the worker's slots in one microsecond is cut
	batch, issueErr := wrk.GetTimestampFromTSO(400)
	require.NoError(t, issueErr)
	require.Equal(t, uint16(250), batch.Count)
}

func TestThresholdClamp(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	clamped := readyControlInfo()
	clamped.ReservedTimeThreshold = 100000000005
	wrk.UpdateWorkerControlInfo(clamped)

	// threshold sits at base + one step, five requested, two fit
	batch, issueErr := wrk.GetTimestampFromTSO(5)
	require.NoError(t, issueErr)
	require.Equal(t, uint16(2), batch.Count)
	require.Equal(t, uint64(100000000001), batch.TbeBaseNanos)

	// the threshold is spent, nothing more can be issued
	_, spentErr := wrk.GetTimestampFromTSO(1)
	require.ErrorIs(t, spentErr, worker.ErrNotReady)
}

func TestThresholdBelowNow(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	exhausted := readyControlInfo()
	exhausted.ReservedTimeThreshold = 1000
	wrk.UpdateWorkerControlInfo(exhausted)

	_, issueErr := wrk.GetTimestampFromTSO(1)
	require.ErrorIs(t, issueErr, worker.ErrNotReady)
}

func TestBackwardAdjustmentHoldsIssuance(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	batch, issueErr := wrk.GetTimestampFromTSO(3)
	require.NoError(t, issueErr)

	lastTbe := batch.TbeBaseNanos + 2 * 4
	require.Equal(t, lastTbe, wrk.LastIssuedTbeNanos)

	// the new adjustment moves adjusted time one millisecond backward
	backward := readyControlInfo()
	backward.TbeAdjustment = testAdjustment - 1000000
	wrk.UpdateWorkerControlInfo(backward)

	_, heldErr := wrk.GetTimestampFromTSO(1)
	require.ErrorIs(t, heldErr, worker.ErrNotReady)

	// just before the local clock catches back up the worker still refuses
	manual.Advance(999000)
	_, stillHeldErr := wrk.GetTimestampFromTSO(1)
	require.ErrorIs(t, stillHeldErr, worker.ErrNotReady)

	// once local time reaches the equivalent of the last issued Tbe the
	// worker serves again without breaking monotonicity
	manual.Advance(2000)

	resumed, resumedErr := wrk.GetTimestampFromTSO(1)
	require.NoError(t, resumedErr)
	require.Greater(t, resumed.TbeBaseNanos, lastTbe)
}

func TestReapplyIdenticalControlInfoIsIdempotent(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	_, issueErr := wrk.GetTimestampFromTSO(3)
	require.NoError(t, issueErr)

	microBefore := wrk.LastRequestTbeMicroSecRounded
	countBefore := wrk.LastRequestTimestampCount

	wrk.UpdateWorkerControlInfo(readyControlInfo())

	require.Equal(t, microBefore, wrk.LastRequestTbeMicroSecRounded)
	require.Equal(t, countBefore, wrk.LastRequestTimestampCount)
}

func TestZeroBatchSize(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	_, issueErr := wrk.GetTimestampFromTSO(0)
	require.ErrorIs(t, issueErr, worker.ErrNotReady)
}

func TestNotReadyBeforeControlInfo(t *testing.T) {
	manual := clock.NewManualClock(500)

	wrk := worker.NewTSOWorker(worker.TSOWorkerOpts{
		TsoId: 1,
		ShardId: 1,
		Clock: manual,
	})

	_, issueErr := wrk.GetTimestampFromTSO(1)
	require.ErrorIs(t, issueErr, worker.ErrNotReady)
}

func TestShutdownFailsFast(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	wrk.RequestShutdown()

	_, issueErr := wrk.GetTimestampFromTSO(1)
	require.ErrorIs(t, issueErr, worker.ErrShutdown)
}

func TestMonotonicAcrossBatches(t *testing.T) {
	manual := clock.NewManualClock(500)
	wrk := setupWorker(manual)

	lastTbe := uint64(0)

	for i := 0; i < 200; i++ {
		batch, issueErr := wrk.GetTimestampFromTSO(7)
		if issueErr != nil {
			manual.Advance(1000)
			continue
		}

		for _, ts := range batch.Expand() {
			require.Greater(t, ts.TbeNanos, lastTbe)
			// offset 1 with step 4, the worker's residue class
			require.Equal(t, uint64(1), ts.TbeNanos % 4)
			lastTbe = ts.TbeNanos
		}

		if i % 3 == 0 { manual.Advance(250) }
	}
}
