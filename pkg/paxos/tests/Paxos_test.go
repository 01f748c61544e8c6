package paxostests

import "fmt"
import "net"
import "path/filepath"
import "testing"
import "time"

import "github.com/stretchr/testify/require"

import "github.com/sirgallo/tso/pkg/paxos"
import "github.com/sirgallo/tso/pkg/transport"


func freePort(t *testing.T) int {
	listener, listenErr := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, listenErr)

	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	return port
}

func startPaxosServer(t *testing.T) (*transport.Protocol, transport.TxEndpoint) {
	url := fmt.Sprintf("tcp+k2rpc+127.0.0.1:%d", freePort(t))

	protocol, protocolErr := transport.NewProtocol(transport.ProtocolOpts{ ListenURL: url })
	require.NoError(t, protocolErr)

	store, storeErr := paxos.NewPaxosStore(filepath.Join(t.TempDir(), "paxos.db"))
	require.NoError(t, storeErr)

	paxos.NewPaxosServer(paxos.PaxosServerOpts{ Protocol: protocol, Store: store })

	require.NoError(t, protocol.Start())

	t.Cleanup(func() {
		protocol.Stop()
		store.Close()
	})

	return protocol, protocol.ServerEndpoint
}

func newMember(t *testing.T, serverEndpoint transport.TxEndpoint, memberURL string) *paxos.PaxosClient {
	clientProtocol, protocolErr := transport.NewProtocol(transport.ProtocolOpts{
		ListenURL: fmt.Sprintf("tcp+k2rpc+127.0.0.1:%d", freePort(t)),
	})

	require.NoError(t, protocolErr)

	t.Cleanup(func() { clientProtocol.Stop() })

	return paxos.NewPaxosClient(paxos.PaxosClientOpts{
		Protocol: clientProtocol,
		PaxosEndpoint: serverEndpoint,
		MemberURL: memberURL,
		Timeout: 500 * time.Millisecond,
	})
}

func TestJoinFreshCluster(t *testing.T) {
	_, serverEndpoint := startPaxosServer(t)
	member := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13000")

	response, joinErr := member.JoinServerCluster(1000, 5000, 5000)
	require.NoError(t, joinErr)

	require.True(t, response.IsMaster)
	require.Equal(t, uint64(0), response.PrevReservedTimeThresholdNanos)
	require.Equal(t, uint64(5000), response.LeaseExpiryNanos)
	require.Equal(t, uint64(5000), response.ReservedTimeThresholdNanos)
	require.Equal(t, "tcp+k2rpc+127.0.0.1:13000", response.MasterURL)
}

func TestSecondJoinRejectedWhileLeaseHeld(t *testing.T) {
	_, serverEndpoint := startPaxosServer(t)

	first := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13000")
	second := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13100")

	firstResp, firstErr := first.JoinServerCluster(1000, 5000, 5000)
	require.NoError(t, firstErr)
	require.True(t, firstResp.IsMaster)

	secondResp, secondErr := second.JoinServerCluster(2000, 6000, 6000)
	require.NoError(t, secondErr)

	require.False(t, secondResp.IsMaster)
	require.Equal(t, "tcp+k2rpc+127.0.0.1:13000", secondResp.MasterURL)
}

func TestJoinSucceedsAfterLeaseExpiry(t *testing.T) {
	_, serverEndpoint := startPaxosServer(t)

	first := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13000")
	second := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13100")

	_, firstErr := first.JoinServerCluster(1000, 5000, 7000)
	require.NoError(t, firstErr)

	// the second member observes an expired lease and takes mastership,
	// inheriting the previous threshold to wait out
	secondResp, secondErr := second.JoinServerCluster(6000, 9000, 9000)
	require.NoError(t, secondErr)

	require.True(t, secondResp.IsMaster)
	require.Equal(t, uint64(7000), secondResp.PrevReservedTimeThresholdNanos)
}

func TestRenewExtendsLeaseAndThreshold(t *testing.T) {
	_, serverEndpoint := startPaxosServer(t)
	member := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13000")

	_, joinErr := member.JoinServerCluster(1000, 5000, 5000)
	require.NoError(t, joinErr)

	lease, threshold, renewErr := member.RenewLeaseAndExtendReservedTimeThreshold(2000, 8000, 8000)
	require.NoError(t, renewErr)
	require.Equal(t, uint64(8000), lease)
	require.Equal(t, uint64(8000), threshold)

	// a renewal below the current values never moves them backward
	lease, threshold, renewErr = member.RenewLeaseAndExtendReservedTimeThreshold(2500, 7000, 7000)
	require.NoError(t, renewErr)
	require.Equal(t, uint64(8000), lease)
	require.Equal(t, uint64(8000), threshold)
}

func TestRenewByNonOwnerReportsLeaseLost(t *testing.T) {
	_, serverEndpoint := startPaxosServer(t)

	owner := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13000")
	usurper := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13100")

	_, joinErr := owner.JoinServerCluster(1000, 5000, 5000)
	require.NoError(t, joinErr)

	_, _, renewErr := usurper.RenewLeaseAndExtendReservedTimeThreshold(2000, 8000, 8000)
	require.ErrorIs(t, renewErr, paxos.ErrLeaseLost)
}

func TestStandbyHeartBeatAndTakeover(t *testing.T) {
	_, serverEndpoint := startPaxosServer(t)

	master := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13000")
	standby := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13100")

	_, joinErr := master.JoinServerCluster(1000, 5000, 7000)
	require.NoError(t, joinErr)

	// master alive, the standby stays standby
	aliveResp, aliveErr := standby.UpdateStandByHeartBeat(2000, 9000, 9000)
	require.NoError(t, aliveErr)
	require.False(t, aliveResp.IsMaster)
	require.True(t, aliveResp.MasterAlive)
	require.Equal(t, "tcp+k2rpc+127.0.0.1:13000", aliveResp.MasterURL)

	// once the lease has run out the standby takes over in the same op
	takeoverResp, takeoverErr := standby.UpdateStandByHeartBeat(6000, 9000, 9000)
	require.NoError(t, takeoverErr)
	require.True(t, takeoverResp.IsMaster)
	require.False(t, takeoverResp.MasterAlive)
	require.Equal(t, uint64(7000), takeoverResp.PrevReservedTimeThresholdNanos)

	// the deposed master's next renew reports the lease gone
	_, _, renewErr := master.RenewLeaseAndExtendReservedTimeThreshold(7000, 12000, 12000)
	require.ErrorIs(t, renewErr, paxos.ErrLeaseLost)
}

func TestRemoveLeasePreservesThreshold(t *testing.T) {
	_, serverEndpoint := startPaxosServer(t)

	first := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13000")
	second := newMember(t, serverEndpoint, "tcp+k2rpc+127.0.0.1:13100")

	_, joinErr := first.JoinServerCluster(1000, 5000, 5000)
	require.NoError(t, joinErr)

	require.NoError(t, first.RemoveLeaseFromPaxos(7500))

	// the record is masterless so a successor joins immediately even while
	// the old lease window is still open, but the final threshold survives
	secondResp, secondErr := second.JoinServerCluster(2000, 9000, 9000)
	require.NoError(t, secondErr)

	require.True(t, secondResp.IsMaster)
	require.Equal(t, uint64(7500), secondResp.PrevReservedTimeThresholdNanos)
}

func TestLeaseRecordPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "paxos.db")

	store, storeErr := paxos.NewPaxosStore(dbPath)
	require.NoError(t, storeErr)

	updateErr := store.UpdateLeaseRecord(func(current *paxos.LeaseRecord) (*paxos.LeaseRecord, error) {
		require.Nil(t, current)

		return &paxos.LeaseRecord{
			MasterId: "member-a",
			MasterURL: "tcp+k2rpc+127.0.0.1:13000",
			LeaseExpiryNanos: 5000,
			ReservedTimeThresholdNanos: 5000,
		}, nil
	})

	require.NoError(t, updateErr)
	require.NoError(t, store.Close())

	reopened, reopenErr := paxos.NewPaxosStore(dbPath)
	require.NoError(t, reopenErr)

	defer reopened.Close()

	record, getErr := reopened.GetLeaseRecord()
	require.NoError(t, getErr)
	require.NotNil(t, record)
	require.Equal(t, "member-a", record.MasterId)
	require.Equal(t, uint64(5000), record.LeaseExpiryNanos)
}
