package paxos

import "sync"
import "time"

import bolt "go.etcd.io/bbolt"

import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/transport"


/*
	the single record the consensus store keeps for a tso cluster

	a master holds the lease until LeaseExpiryNanos (TAI). no timestamp with
	Tbe above ReservedTimeThresholdNanos has ever been handed out, so a
	successor master waits that value out before serving.
*/

type LeaseRecord struct {
	MasterId string `json:"masterId"`
	MasterURL string `json:"masterUrl"`
	LeaseExpiryNanos uint64 `json:"leaseExpiryNanos"`
	ReservedTimeThresholdNanos uint64 `json:"reservedTimeThresholdNanos"`
}

// operations multiplexed on UPDATE_PAXOS
const (
	OpJoinCluster = "JOIN_CLUSTER"
	OpRenewLease = "RENEW_LEASE"
	OpStandByHeartBeat = "STANDBY_HEART_BEAT"
	OpRemoveLease = "REMOVE_LEASE"
)

type PaxosRequest struct {
	Op string `json:"op"`
	MemberId string `json:"memberId"`
	MemberURL string `json:"memberUrl"`
	NowNanos uint64 `json:"nowNanos"`
	NewLeaseNanos uint64 `json:"newLeaseNanos"`
	NewThresholdNanos uint64 `json:"newThresholdNanos"`
}

type PaxosResponse struct {
	IsMaster bool `json:"isMaster"`
	MasterURL string `json:"masterUrl"`
	MasterAlive bool `json:"masterAlive"`
	LeaseExpiryNanos uint64 `json:"leaseExpiryNanos"`
	ReservedTimeThresholdNanos uint64 `json:"reservedTimeThresholdNanos"`
	PrevReservedTimeThresholdNanos uint64 `json:"prevReservedTimeThresholdNanos"`
}

type PaxosStore struct {
	DBFile string
	DB *bolt.DB
}

/*
	single node stand-in for the consensus leader, serves the lease record
	with conditional write semantics over verbs 110-112
*/

type PaxosServer struct {
	Protocol *transport.Protocol
	Store *PaxosStore

	opMutex sync.Mutex

	Log *clog.CustomLog
}

type PaxosServerOpts struct {
	Protocol *transport.Protocol
	Store *PaxosStore
}

type PaxosClient struct {
	Protocol *transport.Protocol
	PaxosEndpoint transport.TxEndpoint
	MemberId string
	MemberURL string
	Timeout time.Duration

	leaderEndpoint *transport.TxEndpoint

	Log *clog.CustomLog
}

type PaxosClientOpts struct {
	Protocol *transport.Protocol
	PaxosEndpoint transport.TxEndpoint
	MemberURL string
	Timeout time.Duration
}

const NAME = "Paxos"
const Bucket = "lease"
const RecordKey = "record"
