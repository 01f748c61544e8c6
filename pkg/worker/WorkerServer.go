package worker

import "encoding/binary"

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/shard"
import "github.com/sirgallo/tso/pkg/timestamp"
import "github.com/sirgallo/tso/pkg/transport"


//=========================================== TSO Worker Server


/*
	Register Get Timestamp Batch:
		serve GET_GPS_CLOCK_TIME on this worker's endpoint

		the transport read loop delivers the request, the actual issuance is
		submitted to the worker's shard queue so all worker state stays
		single threaded. request payload is a little-endian uint16 batch
		size, the response payload is the encoded batch.
*/

func (wrk *TSOWorker) RegisterGetTimestampBatch(protocol *transport.Protocol, shardSet *shard.ShardSet) {
	protocol.RegisterVerbHandler(transport.GET_GPS_CLOCK_TIME, transport.ACK_TIME, func(msg *transport.Message) ([]byte, transport.MessageMetadata) {
		if len(msg.Payload) < 2 {
			return nil, transport.MessageMetadata{ Status: transport.StatusError, ErrorMsg: "batch request payload truncated" }
		}

		batchSizeRequested := binary.LittleEndian.Uint16(msg.Payload[0:2])

		var batch *timestamp.TimestampBatch
		var issueErr error

		submitErr := shardSet.SubmitWait(wrk.ShardId, func() {
			batch, issueErr = wrk.GetTimestampFromTSO(batchSizeRequested)
		})

		if submitErr != nil {
			return nil, transport.MessageMetadata{ Status: transport.StatusError, ErrorMsg: submitErr.Error() }
		}

		if issueErr != nil {
			if errors.Is(issueErr, ErrNotReady) {
				return nil, transport.MessageMetadata{ Status: transport.StatusNotReady, ErrorMsg: issueErr.Error() }
			}

			if errors.Is(issueErr, ErrShutdown) {
				return nil, transport.MessageMetadata{ Status: transport.StatusShutdown, ErrorMsg: issueErr.Error() }
			}

			return nil, transport.MessageMetadata{ Status: transport.StatusError, ErrorMsg: issueErr.Error() }
		}

		return timestamp.EncodeBatch(batch), transport.MessageMetadata{ Status: transport.StatusOK }
	})
}

func (wrk *TSOWorker) UnregisterGetTimestampBatch(protocol *transport.Protocol) {
	protocol.UnregisterVerbHandler(transport.GET_GPS_CLOCK_TIME)
}
