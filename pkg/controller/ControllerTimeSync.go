package controller


//=========================================== TSO Controller Time Sync


/*
	Time Sync:
		one tick, runs serialized on shard 0. updates only the in memory
		control info, the next heartbeat propagates it to workers.
*/

func (ctrl *TSOController) TimeSync() {
	syncErr := ctrl.DoTimeSync()
	if syncErr != nil { ctrl.Log.Warn("time sync failed, keeping previous adjustment:", syncErr.Error()) }
}

/*
	Do Time Sync:
		1.) read the atomic/gps clock
		2.) move DiffTaLocalNanos toward the reading, bounded to one step
			per tick so the adjustment never jumps
		3.) recompute the batch adjustment and uncertainty window. the
			window is bounded below by the configured batch window size.
*/

func (ctrl *TSOController) DoTimeSync() error {
	reading, checkErr := ctrl.ClockSource.CheckAtomicGPSClock()
	if checkErr != nil { return checkErr }

	if ctrl.DiffTaLocalNanos == 0 {
		ctrl.DiffTaLocalNanos = reading.TaiMinusLocalNanos
	} else if reading.TaiMinusLocalNanos > ctrl.DiffTaLocalNanos {
		step := reading.TaiMinusLocalNanos - ctrl.DiffTaLocalNanos
		if step > MaxTimeSyncStepNanos { step = MaxTimeSyncStepNanos }

		ctrl.DiffTaLocalNanos += step
	} else if reading.TaiMinusLocalNanos < ctrl.DiffTaLocalNanos {
		step := ctrl.DiffTaLocalNanos - reading.TaiMinusLocalNanos
		if step > MaxTimeSyncStepNanos { step = MaxTimeSyncStepNanos }

		ctrl.DiffTaLocalNanos -= step
	}

	tsDelta := reading.UncertaintyNanos
	winSize := uint64(ctrl.Conf.TSO.CtrolTsBatchWinSize.Nanoseconds())
	if tsDelta < winSize { tsDelta = winSize }

	ctrl.ControlInfoToSend.TbeAdjustment = ctrl.DiffTaLocalNanos + reading.UncertaintyNanos / 2
	ctrl.ControlInfoToSend.TsDelta = uint32(tsDelta)

	return nil
}
