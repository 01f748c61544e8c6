package paxos

import "github.com/cockroachdb/errors"
import "github.com/google/uuid"

import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/transport"
import "github.com/sirgallo/tso/pkg/utils"


//=========================================== Paxos Client


// raised when a master's renew heartbeat reports the lease gone, fatal
// while master
var ErrLeaseLost = errors.New("lease lost")

/*
	consensus client used by the controller, speaking verbs 110-112. each
	round trip waits at most the configured timeout (the service passes the
	heartbeat interval). an update first resolves the leader when none is
	cached, which costs one extra round trip.
*/

func NewPaxosClient(opts PaxosClientOpts) *PaxosClient {
	return &PaxosClient{
		Protocol: opts.Protocol,
		PaxosEndpoint: opts.PaxosEndpoint,
		MemberId: uuid.NewString(),
		MemberURL: opts.MemberURL,
		Timeout: opts.Timeout,
		Log: clog.NewCustomLog(NAME),
	}
}

/*
	resolve the paxos leader endpoint, cached until a later call fails
*/

func (client *PaxosClient) ResolveLeaderEndpoint() (transport.TxEndpoint, error) {
	if client.leaderEndpoint != nil { return *client.leaderEndpoint, nil }

	response, callErr := client.call(transport.GET_PAXOS_LEADER_URL, nil)
	if callErr != nil { return utils.GetZero[transport.TxEndpoint](), callErr }

	endpoint, parseErr := transport.ParseEndpoint(response.MasterURL)
	if parseErr != nil { return utils.GetZero[transport.TxEndpoint](), parseErr }

	client.leaderEndpoint = &endpoint
	return endpoint, nil
}

/*
	Join Server Cluster:
		returns whether this member is now master and, when master, the
		previous reserved time threshold to wait out before serving
*/

func (client *PaxosClient) JoinServerCluster(nowNanos uint64, newLeaseNanos uint64, newThresholdNanos uint64) (*PaxosResponse, error) {
	return client.update(PaxosRequest{
		Op: OpJoinCluster,
		MemberId: client.MemberId,
		MemberURL: client.MemberURL,
		NowNanos: nowNanos,
		NewLeaseNanos: newLeaseNanos,
		NewThresholdNanos: newThresholdNanos,
	})
}

/*
	Renew Lease And Extend Reserved Time Threshold:
		master path heartbeat. a response that no longer names this member
		as master surfaces ErrLeaseLost, the caller suicides on it.
*/

func (client *PaxosClient) RenewLeaseAndExtendReservedTimeThreshold(nowNanos uint64, newLeaseNanos uint64, newThresholdNanos uint64) (uint64, uint64, error) {
	response, updateErr := client.update(PaxosRequest{
		Op: OpRenewLease,
		MemberId: client.MemberId,
		MemberURL: client.MemberURL,
		NowNanos: nowNanos,
		NewLeaseNanos: newLeaseNanos,
		NewThresholdNanos: newThresholdNanos,
	})

	if updateErr != nil { return 0, 0, updateErr }
	if !response.IsMaster { return 0, 0, ErrLeaseLost }

	return response.LeaseExpiryNanos, response.ReservedTimeThresholdNanos, nil
}

/*
	Update Stand By Heart Beat:
		standby path heartbeat. the response reports whether the current
		master is alive, and on a dead master this member takes over in the
		same conditional write.
*/

func (client *PaxosClient) UpdateStandByHeartBeat(nowNanos uint64, newLeaseNanos uint64, newThresholdNanos uint64) (*PaxosResponse, error) {
	return client.update(PaxosRequest{
		Op: OpStandByHeartBeat,
		MemberId: client.MemberId,
		MemberURL: client.MemberURL,
		NowNanos: nowNanos,
		NewLeaseNanos: newLeaseNanos,
		NewThresholdNanos: newThresholdNanos,
	})
}

/*
	release the lease on graceful stop, optionally pushing a final reserved
	threshold into the masterless record
*/

func (client *PaxosClient) RemoveLeaseFromPaxos(finalThresholdNanos uint64) error {
	_, updateErr := client.update(PaxosRequest{
		Op: OpRemoveLease,
		MemberId: client.MemberId,
		MemberURL: client.MemberURL,
		NewThresholdNanos: finalThresholdNanos,
	})

	return updateErr
}

func (client *PaxosClient) ExitServerCluster() error {
	return client.RemoveLeaseFromPaxos(0)
}

func (client *PaxosClient) update(request PaxosRequest) (*PaxosResponse, error) {
	payload, encErr := utils.EncodeStructToBytes[PaxosRequest](request)
	if encErr != nil { return nil, encErr }

	leaderEndpoint, resolveErr := client.ResolveLeaderEndpoint()
	if resolveErr != nil { return nil, resolveErr }

	response, callErr := client.callEndpoint(transport.UPDATE_PAXOS, payload, leaderEndpoint)
	if callErr != nil {
		// leader may have moved, re-resolve on the next attempt
		client.leaderEndpoint = nil
		return nil, callErr
	}

	return response, nil
}

func (client *PaxosClient) call(verb transport.Verb, payload []byte) (*PaxosResponse, error) {
	return client.callEndpoint(verb, payload, client.PaxosEndpoint)
}

func (client *PaxosClient) callEndpoint(verb transport.Verb, payload []byte, endpoint transport.TxEndpoint) (*PaxosResponse, error) {
	message, callErr := client.Protocol.Call(verb, payload, endpoint, client.Timeout)
	if callErr != nil { return nil, callErr }

	if message.Metadata.Status != transport.StatusOK {
		return nil, errors.Newf("paxos returned status %s: %s", message.Metadata.Status, message.Metadata.ErrorMsg)
	}

	response, decErr := utils.DecodeBytesToStruct[PaxosResponse](message.Payload)
	if decErr != nil { return nil, decErr }

	return response, nil
}
