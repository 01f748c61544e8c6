package transport

import "net"
import "sync"

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/logger"
import "github.com/sirgallo/tso/pkg/utils"


//=========================================== RPC Protocol


/*
	the protocol owns the listener bound to the local endpoint and the map
	of active channels keyed by canonical peer url

	inbound and outbound channels share the same message observer, which
	routes responses to pending calls and requests to registered verb
	handlers
*/

func NewProtocol(opts ProtocolOpts) (*Protocol, error) {
	serverEndpoint, parseErr := ParseEndpoint(opts.ListenURL)
	if parseErr != nil { return nil, parseErr }

	return &Protocol{
		ServerEndpoint: serverEndpoint,
		enableTxChecksum: opts.EnableTxChecksum,
		verbHandlers: make(map[Verb]*VerbHandler),
		pendingCalls: make(map[string]chan *Message),
		acceptDone: make(chan struct{}),
		Log: clog.NewCustomLog(NAME),
	}, nil
}

/*
	Start:
		bind the listener on the local endpoint and launch the accept loop.
		each accepted connection yields an endpoint derived from the remote
		address, wrapped in a fresh channel and started. a prior channel for
		the same endpoint is evicted, last write wins, with a graceful close
		of the evicted entry.
*/

func (protocol *Protocol) Start() error {
	listener, listenErr := net.Listen("tcp", protocol.ServerEndpoint.Address())
	if listenErr != nil { return listenErr }

	protocol.listener = listener
	protocol.Log.Info("rpc protocol listening on", protocol.ServerEndpoint.URL())

	go func() {
		defer close(protocol.acceptDone)

		for {
			conn, acceptErr := protocol.listener.Accept()
			if acceptErr != nil {
				if !protocol.isStopped() { protocol.Log.Warn("accept failed:", acceptErr.Error()) }
				return
			}

			endpoint := protocol.endpointFromAddress(conn.RemoteAddr())
			protocol.handleNewChannel(conn, endpoint)
		}
	}()

	return nil
}

/*
	resolve the channel for an endpoint, creating an outbound connection if
	none is active
*/

func (protocol *Protocol) GetOrMakeChannel(endpoint TxEndpoint) (*Channel, error) {
	if protocol.isStopped() { return nil, errors.Wrap(ErrChannelDown, "protocol stopped") }

	existing, loaded := protocol.channels.Load(endpoint.URL())
	if loaded {
		chn := existing.(*Channel)
		if chn.State() == Running { return chn, nil }
	}

	conn, dialErr := net.Dial("tcp", endpoint.Address())
	if dialErr != nil { return nil, errors.Wrap(ErrChannelDown, dialErr.Error()) }

	return protocol.handleNewChannel(conn, endpoint), nil
}

/*
	send a one way message to an endpoint, resolving the channel first
*/

func (protocol *Protocol) Send(verb Verb, payload []byte, endpoint TxEndpoint, metadata MessageMetadata) error {
	chn, chnErr := protocol.GetOrMakeChannel(endpoint)
	if chnErr != nil { return chnErr }

	return chn.Send(verb, payload, metadata)
}

/*
	register the server side handler for a verb, the handler result is sent
	back with the registered response verb, correlated by request id
*/

func (protocol *Protocol) RegisterVerbHandler(verb Verb, responseVerb Verb, handle func(msg *Message) ([]byte, MessageMetadata)) {
	protocol.handlerMutex.Lock()
	defer protocol.handlerMutex.Unlock()

	protocol.verbHandlers[verb] = &VerbHandler{
		ResponseVerb: responseVerb,
		Handle: handle,
	}
}

func (protocol *Protocol) UnregisterVerbHandler(verb Verb) {
	protocol.handlerMutex.Lock()
	defer protocol.handlerMutex.Unlock()

	delete(protocol.verbHandlers, verb)
}

/*
	Stop:
		1.) mark stopped so new channels and calls are refused
		2.) close the listener and await the accept loop
		3.) gracefully close every channel in parallel and wait for all
*/

func (protocol *Protocol) Stop() error {
	protocol.stopMutex.Lock()
	if protocol.stopped {
		protocol.stopMutex.Unlock()
		return nil
	}

	protocol.stopped = true
	protocol.stopMutex.Unlock()

	if protocol.listener != nil {
		protocol.listener.Close()
		<- protocol.acceptDone
	}

	var closeWG sync.WaitGroup

	protocol.channels.Range(func(key, value interface{}) bool {
		chn := value.(*Channel)

		closeWG.Add(1)
		go func() {
			defer closeWG.Done()

			closeErr := chn.GracefulClose(DefaultGracefulCloseTimeout)
			if closeErr != nil { protocol.Log.Warn(closeErr.Error()) }
		}()

		return true
	})

	closeWG.Wait()
	return nil
}

func (protocol *Protocol) handleNewChannel(conn net.Conn, endpoint TxEndpoint) *Channel {
	chn := NewChannel(ChannelOpts{
		Conn: conn,
		Endpoint: endpoint,
		EnableTxChecksum: protocol.enableTxChecksum,
		MessageObserver: protocol.handleMessage,
		FailureObserver: func(failedEndpoint TxEndpoint, err error) {
			protocol.Log.Warn("transport failure on channel to", failedEndpoint.URL(), ":", err.Error())
		},
	})

	prior, loaded := protocol.channels.Load(endpoint.URL())
	if loaded {
		priorChn := prior.(*Channel)

		closeErr := priorChn.GracefulClose(DefaultGracefulCloseTimeout)
		if closeErr != nil { protocol.Log.Warn(closeErr.Error()) }
	}

	protocol.channels.Store(endpoint.URL(), chn)
	chn.Run()

	return chn
}

/*
	shared message observer for every channel

	responses carry the id of the request they answer and complete the
	matching pending call. requests dispatch to the registered verb handler
	and the handler result travels back on the same channel.
*/

func (protocol *Protocol) handleMessage(msg *Message) {
	if msg.Metadata.ResponseToId != "" {
		protocol.pendingMutex.Lock()
		pending, ok := protocol.pendingCalls[msg.Metadata.ResponseToId]
		if ok { delete(protocol.pendingCalls, msg.Metadata.ResponseToId) }
		protocol.pendingMutex.Unlock()

		if ok {
			pending <- msg
		} else { protocol.Log.Warn("no pending call for response id:", msg.Metadata.ResponseToId) }

		return
	}

	protocol.handlerMutex.Lock()
	handler, registered := protocol.verbHandlers[msg.Verb]
	protocol.handlerMutex.Unlock()

	if !registered {
		protocol.Log.Warn("message with verb", msg.Verb, "dropped, no handler registered")
		return
	}

	payload, respMetadata := handler.Handle(msg)
	respMetadata.ResponseToId = msg.Metadata.RequestId
	respMetadata.SourceURL = protocol.ServerEndpoint.URL()

	replyEndpoint := msg.Endpoint
	if msg.Metadata.SourceURL != "" {
		parsed, parseErr := ParseEndpoint(msg.Metadata.SourceURL)
		if parseErr == nil { replyEndpoint = parsed }
	}

	sendErr := protocol.respond(handler.ResponseVerb, payload, replyEndpoint, msg.Endpoint, respMetadata)
	if sendErr != nil { protocol.Log.Warn("failed to send response:", sendErr.Error()) }
}

/*
	respond on the accepted channel when possible, falling back to an
	outbound connection to the peer's advertised source url
*/

func (protocol *Protocol) respond(verb Verb, payload []byte, advertised TxEndpoint, accepted TxEndpoint, metadata MessageMetadata) error {
	existing, loaded := protocol.channels.Load(accepted.URL())
	if loaded {
		chn := existing.(*Channel)
		if chn.State() == Running { return chn.Send(verb, payload, metadata) }
	}

	return protocol.Send(verb, payload, advertised, metadata)
}

func (protocol *Protocol) endpointFromAddress(addr net.Addr) TxEndpoint {
	host, port := utils.SplitHostPort(addr.String())

	return TxEndpoint{
		Proto: protocol.ServerEndpoint.Proto,
		Host: host,
		Port: port,
	}
}

func (protocol *Protocol) isStopped() bool {
	protocol.stopMutex.Lock()
	defer protocol.stopMutex.Unlock()

	return protocol.stopped
}
