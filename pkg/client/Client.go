package client

import "encoding/binary"

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/clock"
import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/timestamp"
import "github.com/sirgallo/tso/pkg/transport"
import "github.com/sirgallo/tso/pkg/utils"


//=========================================== TSO Client


// the batch outlived its ttl before being used, callers fetch a new one
var ErrBatchExpired = errors.New("timestamp batch expired")

// every worker rejected the request, callers retry later
var ErrNoTimestamps = errors.New("no timestamps available")

/*
	create a client against one tso server instance

	the client never listens, responses ride back on the channel the
	request went out on
*/

func NewTSOClient(opts TSOClientOpts) (*TSOClient, error) {
	controllerEndpoint, parseErr := transport.ParseEndpoint(opts.ServerURL)
	if parseErr != nil { return nil, parseErr }

	localURL := opts.LocalURL
	if localURL == "" { localURL = "tcp+k2rpc+127.0.0.1:0" }

	protocol, protocolErr := transport.NewProtocol(transport.ProtocolOpts{
		ListenURL: localURL,
		EnableTxChecksum: opts.EnableTxChecksum,
	})

	if protocolErr != nil { return nil, protocolErr }

	timeout := opts.Timeout
	if timeout == 0 { timeout = DefaultClientTimeout }

	return &TSOClient{
		Protocol: protocol,
		ControllerEndpoint: controllerEndpoint,
		Timeout: timeout,
		Clock: clock.NewMonotonicClock(),
		Log: clog.NewCustomLog(NAME),
	}, nil
}

/*
	Connect:
		1.) resolve the current master url from any instance
		2.) fetch the per shard worker urls from the master
		3.) keep the first advertised transport of every worker shard
*/

func (tsoClient *TSOClient) Connect() error {
	masterResp, masterErr := tsoClient.Protocol.Call(transport.GET_TSO_MASTER_URL, nil, tsoClient.ControllerEndpoint, tsoClient.Timeout)
	if masterErr != nil { return masterErr }
	if masterResp.Metadata.Status != transport.StatusOK { return errors.Newf("get master url status: %s", masterResp.Metadata.Status) }

	masterPayload, masterDecErr := utils.DecodeBytesToStruct[struct {
		MasterURL string `json:"masterUrl"`
	}](masterResp.Payload)

	if masterDecErr != nil { return masterDecErr }

	masterEndpoint, masterParseErr := transport.ParseEndpoint(masterPayload.MasterURL)
	if masterParseErr != nil { return masterParseErr }

	workersResp, workersErr := tsoClient.Protocol.Call(transport.GET_TSO_WORKERS_URLS, nil, masterEndpoint, tsoClient.Timeout)
	if workersErr != nil { return workersErr }
	if workersResp.Metadata.Status != transport.StatusOK { return errors.Newf("get worker urls status: %s", workersResp.Metadata.Status) }

	workerURLs, workersDecErr := utils.DecodeBytesToStruct[[][]string](workersResp.Payload)
	if workersDecErr != nil { return workersDecErr }

	var workerEndpoints []transport.TxEndpoint

	for _, transports := range *workerURLs {
		if len(transports) == 0 { continue }

		endpoint, parseErr := transport.ParseEndpoint(transports[0])
		if parseErr != nil { return parseErr }

		workerEndpoints = append(workerEndpoints, endpoint)
	}

	if len(workerEndpoints) == 0 { return errors.New("master advertised no worker endpoints") }

	tsoClient.mutex.Lock()
	tsoClient.workerEndpoints = workerEndpoints
	tsoClient.nextWorker = 0
	tsoClient.mutex.Unlock()

	tsoClient.Log.Info("connected,", len(workerEndpoints), "worker endpoints")
	return nil
}

/*
	Get Timestamp Batch:
		round robin across worker endpoints with exponential backoff on not
		ready responses, the worker may return fewer timestamps than asked
*/

func (tsoClient *TSOClient) GetTimestampBatch(batchSize uint16) (*ReceivedBatch, error) {
	request := make([]byte, 2)
	binary.LittleEndian.PutUint16(request, batchSize)

	fetchBatch := func() (*ReceivedBatch, error) {
		endpoint, endpointErr := tsoClient.pickWorker()
		if endpointErr != nil { return nil, endpointErr }

		response, callErr := tsoClient.Protocol.Call(transport.GET_GPS_CLOCK_TIME, request, endpoint, tsoClient.Timeout)
		if callErr != nil { return nil, callErr }

		switch response.Metadata.Status {
			case transport.StatusOK:
			case transport.StatusNotReady:
				return nil, errors.Wrap(ErrNoTimestamps, response.Metadata.ErrorMsg)
			case transport.StatusShutdown:
				return nil, errors.Newf("tso server shutting down: %s", response.Metadata.ErrorMsg)
			default:
				return nil, errors.Newf("batch request failed: %s", response.Metadata.ErrorMsg)
		}

		batch, decErr := timestamp.DecodeBatch(response.Payload)
		if decErr != nil { return nil, decErr }

		return &ReceivedBatch{
			Batch: batch,
			ReceivedAtNanos: tsoClient.Clock.NowNanos(),
		}, nil
	}

	maxRetries := BatchRetryMaxAttempts
	expOpts := utils.ExpBackoffOpts{ MaxRetries: &maxRetries, TimeoutInMilliseconds: 1 }
	expBackoff := utils.NewExponentialBackoffStrat[*ReceivedBatch](expOpts)

	received, fetchErr := expBackoff.PerformBackoff(fetchBatch)
	if fetchErr != nil { return nil, fetchErr }

	return received, nil
}

/*
	expand a received batch, refusing once the ttl has elapsed on the
	client's monotonic clock
*/

func (tsoClient *TSOClient) Timestamps(received *ReceivedBatch) ([]timestamp.Timestamp, error) {
	elapsed := tsoClient.Clock.NowNanos() - received.ReceivedAtNanos
	if elapsed > uint64(received.Batch.TTLNanos) { return nil, ErrBatchExpired }

	return received.Batch.Expand(), nil
}

func (tsoClient *TSOClient) Close() error {
	return tsoClient.Protocol.Stop()
}

func (tsoClient *TSOClient) pickWorker() (transport.TxEndpoint, error) {
	tsoClient.mutex.Lock()
	defer tsoClient.mutex.Unlock()

	if len(tsoClient.workerEndpoints) == 0 { return utils.GetZero[transport.TxEndpoint](), errors.New("client not connected, no worker endpoints") }

	endpoint := tsoClient.workerEndpoints[tsoClient.nextWorker]
	tsoClient.nextWorker = (tsoClient.nextWorker + 1) % len(tsoClient.workerEndpoints)

	return endpoint, nil
}
