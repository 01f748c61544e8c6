package paxos

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/transport"
import "github.com/sirgallo/tso/pkg/utils"


//=========================================== Paxos Server


/*
	the stand-in consensus leader

	a real deployment replaces this process with the external paxos
	subsystem, the visible contract is only verbs 110-112 and the lease
	record semantics below. join and renew never report success unless the
	record write actually went through, I4 and I5 depend on that.
*/

func NewPaxosServer(opts PaxosServerOpts) *PaxosServer {
	server := &PaxosServer{
		Protocol: opts.Protocol,
		Store: opts.Store,
		Log: clog.NewCustomLog(NAME),
	}

	server.Protocol.RegisterVerbHandler(transport.GET_PAXOS_LEADER_URL, transport.ACK_PAXOS, server.handleGetLeaderURL)
	server.Protocol.RegisterVerbHandler(transport.UPDATE_PAXOS, transport.ACK_PAXOS, server.handleUpdate)

	return server
}

func (server *PaxosServer) handleGetLeaderURL(msg *transport.Message) ([]byte, transport.MessageMetadata) {
	payload, encErr := utils.EncodeStructToBytes[PaxosResponse](PaxosResponse{
		MasterURL: server.Protocol.ServerEndpoint.URL(),
	})

	if encErr != nil { return nil, transport.MessageMetadata{ Status: transport.StatusError, ErrorMsg: encErr.Error() } }
	return payload, transport.MessageMetadata{ Status: transport.StatusOK }
}

/*
	Handle Update:
		decode the op and run it as a conditional write on the lease record

		JOIN_CLUSTER: caller becomes master only if the record is free or the
		current lease is expired at the caller's TA time. the previous
		reserved threshold rides back so the new master can wait it out.

		RENEW_LEASE: extends lease and threshold only while the caller still
		owns the record, otherwise the caller has lost the lease.

		STANDBY_HEART_BEAT: reports master liveness. a dead master is
		replaced by the caller in the same op, handing over the previous
		threshold.

		REMOVE_LEASE: graceful release by the owner, the threshold survives
		in a masterless record for the successor to observe.
*/

func (server *PaxosServer) handleUpdate(msg *transport.Message) ([]byte, transport.MessageMetadata) {
	server.opMutex.Lock()
	defer server.opMutex.Unlock()

	request, decErr := utils.DecodeBytesToStruct[PaxosRequest](msg.Payload)
	if decErr != nil { return nil, transport.MessageMetadata{ Status: transport.StatusError, ErrorMsg: decErr.Error() } }

	var response PaxosResponse
	var opErr error

	switch request.Op {
		case OpJoinCluster:
			response, opErr = server.joinCluster(request)
		case OpRenewLease:
			response, opErr = server.renewLease(request)
		case OpStandByHeartBeat:
			response, opErr = server.standByHeartBeat(request)
		case OpRemoveLease:
			response, opErr = server.removeLease(request)
		default:
			opErr = errors.Newf("unknown paxos op: %s", request.Op)
	}

	if opErr != nil {
		server.Log.Error("paxos op", request.Op, "failed:", opErr.Error())
		return nil, transport.MessageMetadata{ Status: transport.StatusError, ErrorMsg: opErr.Error() }
	}

	payload, encErr := utils.EncodeStructToBytes[PaxosResponse](response)
	if encErr != nil { return nil, transport.MessageMetadata{ Status: transport.StatusError, ErrorMsg: encErr.Error() } }

	return payload, transport.MessageMetadata{ Status: transport.StatusOK }
}

func (server *PaxosServer) joinCluster(request *PaxosRequest) (PaxosResponse, error) {
	var response PaxosResponse

	updateErr := server.Store.UpdateLeaseRecord(func(current *LeaseRecord) (*LeaseRecord, error) {
		leaseFree := current == nil || current.MasterId == "" || request.NowNanos > current.LeaseExpiryNanos

		if !leaseFree {
			response = PaxosResponse{
				IsMaster: false,
				MasterURL: current.MasterURL,
				MasterAlive: true,
			}

			return nil, nil
		}

		prevThreshold := uint64(0)
		if current != nil { prevThreshold = current.ReservedTimeThresholdNanos }

		response = PaxosResponse{
			IsMaster: true,
			MasterURL: request.MemberURL,
			LeaseExpiryNanos: request.NewLeaseNanos,
			ReservedTimeThresholdNanos: maxUint64(request.NewThresholdNanos, prevThreshold),
			PrevReservedTimeThresholdNanos: prevThreshold,
		}

		return &LeaseRecord{
			MasterId: request.MemberId,
			MasterURL: request.MemberURL,
			LeaseExpiryNanos: request.NewLeaseNanos,
			ReservedTimeThresholdNanos: response.ReservedTimeThresholdNanos,
		}, nil
	})

	if updateErr != nil { return utils.GetZero[PaxosResponse](), updateErr }
	return response, nil
}

func (server *PaxosServer) renewLease(request *PaxosRequest) (PaxosResponse, error) {
	var response PaxosResponse

	updateErr := server.Store.UpdateLeaseRecord(func(current *LeaseRecord) (*LeaseRecord, error) {
		if current == nil || current.MasterId != request.MemberId {
			response = PaxosResponse{ IsMaster: false }
			if current != nil { response.MasterURL = current.MasterURL }

			return nil, nil
		}

		// lease and threshold only ever move forward
		next := &LeaseRecord{
			MasterId: current.MasterId,
			MasterURL: current.MasterURL,
			LeaseExpiryNanos: maxUint64(request.NewLeaseNanos, current.LeaseExpiryNanos),
			ReservedTimeThresholdNanos: maxUint64(request.NewThresholdNanos, current.ReservedTimeThresholdNanos),
		}

		response = PaxosResponse{
			IsMaster: true,
			MasterURL: next.MasterURL,
			LeaseExpiryNanos: next.LeaseExpiryNanos,
			ReservedTimeThresholdNanos: next.ReservedTimeThresholdNanos,
		}

		return next, nil
	})

	if updateErr != nil { return utils.GetZero[PaxosResponse](), updateErr }
	return response, nil
}

func (server *PaxosServer) standByHeartBeat(request *PaxosRequest) (PaxosResponse, error) {
	var response PaxosResponse

	updateErr := server.Store.UpdateLeaseRecord(func(current *LeaseRecord) (*LeaseRecord, error) {
		masterAlive := current != nil && current.MasterId != "" && request.NowNanos <= current.LeaseExpiryNanos

		if masterAlive {
			response = PaxosResponse{
				IsMaster: false,
				MasterAlive: true,
				MasterURL: current.MasterURL,
			}

			return nil, nil
		}

		prevThreshold := uint64(0)
		if current != nil { prevThreshold = current.ReservedTimeThresholdNanos }

		response = PaxosResponse{
			IsMaster: true,
			MasterAlive: false,
			MasterURL: request.MemberURL,
			LeaseExpiryNanos: request.NewLeaseNanos,
			ReservedTimeThresholdNanos: maxUint64(request.NewThresholdNanos, prevThreshold),
			PrevReservedTimeThresholdNanos: prevThreshold,
		}

		return &LeaseRecord{
			MasterId: request.MemberId,
			MasterURL: request.MemberURL,
			LeaseExpiryNanos: request.NewLeaseNanos,
			ReservedTimeThresholdNanos: response.ReservedTimeThresholdNanos,
		}, nil
	})

	if updateErr != nil { return utils.GetZero[PaxosResponse](), updateErr }
	return response, nil
}

func (server *PaxosServer) removeLease(request *PaxosRequest) (PaxosResponse, error) {
	var response PaxosResponse

	updateErr := server.Store.UpdateLeaseRecord(func(current *LeaseRecord) (*LeaseRecord, error) {
		if current == nil || current.MasterId != request.MemberId {
			response = PaxosResponse{ IsMaster: false }
			return nil, nil
		}

		// the record goes masterless but the threshold is preserved so a
		// successor still waits it out
		next := &LeaseRecord{
			ReservedTimeThresholdNanos: maxUint64(request.NewThresholdNanos, current.ReservedTimeThresholdNanos),
		}

		response = PaxosResponse{
			IsMaster: false,
			ReservedTimeThresholdNanos: next.ReservedTimeThresholdNanos,
		}

		return next, nil
	})

	if updateErr != nil { return utils.GetZero[PaxosResponse](), updateErr }
	return response, nil
}

func maxUint64(a uint64, b uint64) uint64 {
	if a > b { return a }
	return b
}
