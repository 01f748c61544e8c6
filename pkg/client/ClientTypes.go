package client

import "sync"
import "time"

import "github.com/sirgallo/tso/pkg/clock"
import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/timestamp"
import "github.com/sirgallo/tso/pkg/transport"


/*
	client side view of one issued batch

	ReceivedAtNanos pins the batch to the client's monotonic clock so the
	ttl can be enforced before any timestamp is handed out
*/

type ReceivedBatch struct {
	Batch *timestamp.TimestampBatch
	ReceivedAtNanos uint64
}

type TSOClient struct {
	Protocol *transport.Protocol
	ControllerEndpoint transport.TxEndpoint
	Timeout time.Duration
	Clock clock.LocalClock

	mutex sync.Mutex
	workerEndpoints []transport.TxEndpoint
	nextWorker int

	Log *clog.CustomLog
}

type TSOClientOpts struct {
	// url of any tso server instance's controller endpoint
	ServerURL string

	// local url this client identifies itself with on the wire
	LocalURL string

	Timeout time.Duration
	EnableTxChecksum bool
}

const NAME = "TSO Client"

const DefaultClientTimeout = 1 * time.Second
const BatchRetryMaxAttempts = 5
