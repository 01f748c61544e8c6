package controller

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/paxos"


//=========================================== TSO Controller Heartbeat


/*
	Heart Beat:
		one tick, runs serialized on shard 0

		1.) while stopping, run the during-stop path which removes the lease
		2.) master path: renew the lease and extend the reserved threshold
			through consensus, push the new threshold to workers. a lost
			lease is fatal, a timed out heartbeat is fatal once the lease
			has actually run out (three misses).
		3.) standby path: heartbeat membership, a dead former master means
			this instance takes over in the same conditional write.
*/

func (ctrl *TSOController) HeartBeat() {
	if ctrl.StopRequested {
		ctrl.DoHeartBeatDuringStop()
		return
	}

	if ctrl.IsMasterInstance {
		ctrl.DoHeartBeat()
		return
	}

	ctrl.doStandByHeartBeat()
}

/*
	Do Heart Beat:
		the master path, also invoked out of band by SetRoleInternal so
		workers flip ready before the first regular tick
*/

func (ctrl *TSOController) DoHeartBeat() {
	now := ctrl.TimeAuthorityNow()
	newLease := ctrl.GenNewLeaseVal()

	leaseExpiry, threshold, renewErr := ctrl.Paxos.RenewLeaseAndExtendReservedTimeThreshold(now, newLease, newLease)

	if renewErr != nil {
		if errors.Is(renewErr, paxos.ErrLeaseLost) {
			ctrl.Suicide()
			return
		}

		// a missed heartbeat, fatal only once the lease itself has expired
		ctrl.Log.Warn("heartbeat missed:", renewErr.Error())

		if ctrl.TimeAuthorityNow() > ctrl.MyLeaseNanos {
			ctrl.Suicide()
		}

		return
	}

	ctrl.MyLeaseNanos = leaseExpiry
	ctrl.ControlInfoToSend.ReservedTimeThreshold = threshold

	ctrl.SendWorkersControlInfo()
}

func (ctrl *TSOController) doStandByHeartBeat() {
	now := ctrl.TimeAuthorityNow()
	newLease := ctrl.GenNewLeaseVal()

	response, hbErr := ctrl.Paxos.UpdateStandByHeartBeat(now, newLease, newLease)
	if hbErr != nil {
		ctrl.Log.Warn("standby heartbeat failed:", hbErr.Error())
		return
	}

	if response.IsMaster {
		ctrl.Log.Warn("former master lease expired, taking over")

		ctrl.MyLeaseNanos = response.LeaseExpiryNanos
		ctrl.ControlInfoToSend.ReservedTimeThreshold = response.ReservedTimeThresholdNanos
		ctrl.SetRoleInternal(true, response.PrevReservedTimeThresholdNanos, "")

		return
	}

	ctrl.MasterInstanceURL = response.MasterURL
}

/*
	Do Heart Beat During Stop:
		remove the lease from consensus, pushing the final reserved
		threshold into the masterless record so a successor still waits it
		out
*/

func (ctrl *TSOController) DoHeartBeatDuringStop() {
	if !ctrl.IsMasterInstance { return }

	removeErr := ctrl.Paxos.RemoveLeaseFromPaxos(ctrl.ControlInfoToSend.ReservedTimeThreshold)
	if removeErr != nil { ctrl.Log.Warn("lease removal during stop failed:", removeErr.Error()) }

	ctrl.IsMasterInstance = false
	ctrl.SendWorkersControlInfo()
}
