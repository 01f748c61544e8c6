package transport

import "time"

import "github.com/cockroachdb/errors"
import "github.com/google/uuid"


//=========================================== RPC Call


var ErrCallTimeout = errors.New("rpc call timed out")

/*
	Call:
		request/response round trip over the framed protocol

		1.) stamp the request with a fresh correlation id and this server's
			url so the peer can route the response
		2.) park a pending call entry keyed by the id
		3.) send on the resolved channel and await the response or timeout
*/

func (protocol *Protocol) Call(verb Verb, payload []byte, endpoint TxEndpoint, timeout time.Duration) (*Message, error) {
	requestId := uuid.NewString()

	metadata := MessageMetadata{
		RequestId: requestId,
		SourceURL: protocol.ServerEndpoint.URL(),
	}

	pending := make(chan *Message, 1)

	protocol.pendingMutex.Lock()
	protocol.pendingCalls[requestId] = pending
	protocol.pendingMutex.Unlock()

	abandon := func() {
		protocol.pendingMutex.Lock()
		delete(protocol.pendingCalls, requestId)
		protocol.pendingMutex.Unlock()
	}

	sendErr := protocol.Send(verb, payload, endpoint, metadata)
	if sendErr != nil {
		abandon()
		return nil, sendErr
	}

	select {
		case response :=<- pending:
			return response, nil
		case <- time.After(timeout):
			abandon()
			return nil, errors.Wrapf(ErrCallTimeout, "verb %d to %s after %s", verb, endpoint.URL(), timeout.String())
	}
}
