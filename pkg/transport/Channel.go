package transport

import "io"
import "time"

import "github.com/cockroachdb/errors"

import "github.com/sirgallo/tso/pkg/logger"


//=========================================== RPC Channel


// sentinel for sends on a channel that is not yet running
var ErrChannelDown = errors.New("channel down")

/*
	a channel wraps one connection to a single remote endpoint

	observers may be passed as nil, a logging default is installed so the
	dispatch path never branches on a missing observer
*/

func NewChannel(opts ChannelOpts) *Channel {
	chn := &Channel{
		Endpoint: opts.Endpoint,
		conn: opts.Conn,
		parser: NewParser(opts.EnableTxChecksum),
		state: Fresh,
		loopDone: make(chan struct{}),
		Log: clog.NewCustomLog(NAME),
	}

	chn.RegisterMessageObserver(opts.MessageObserver)
	chn.RegisterFailureObserver(opts.FailureObserver)

	return chn
}

/*
	Send:
		best effort, non blocking from the caller's point of view

		1.) fails with ErrChannelDown before Run has been called
		2.) fails silently once closing is in progress
		3.) otherwise frames the message and writes it out
*/

func (chn *Channel) Send(verb Verb, payload []byte, metadata MessageMetadata) error {
	chn.stateMutex.Lock()
	state := chn.state
	chn.stateMutex.Unlock()

	if state == Fresh { return ErrChannelDown }
	if state != Running {
		chn.Log.Warn("channel is going down, ignoring send to", chn.Endpoint.URL())
		return nil
	}

	frame, frameErr := chn.parser.PrepareForSend(verb, payload, metadata)
	if frameErr != nil { return frameErr }

	chn.sendMutex.Lock()
	defer chn.sendMutex.Unlock()

	_, writeErr := chn.conn.Write(frame)
	if writeErr != nil {
		chn.Log.Warn("write failed on channel to", chn.Endpoint.URL(), ":", writeErr.Error())
		return errors.Wrap(ErrChannelDown, writeErr.Error())
	}

	return nil
}

/*
	Run:
		start the receive loop. precondition: the channel has not run yet.

		the loop is the single reader of the connection. each turn either
		dispatches some already buffered messages (bounded, so the goroutine
		yields) or awaits one inbound buffer and feeds the parser. an empty
		read means remote EOF. a parser failure fires the failure observer
		once and transitions to closing.
*/

func (chn *Channel) Run() {
	chn.stateMutex.Lock()
	if chn.state != Fresh {
		chn.stateMutex.Unlock()
		chn.Log.Warn("run called twice on channel to", chn.Endpoint.URL())
		return
	}

	chn.state = Running
	chn.stateMutex.Unlock()

	chn.parser.RegisterMessageObserver(func(verb Verb, metadata MessageMetadata, payload []byte) {
		if chn.isClosing() { return }

		chn.messageObserver(&Message{
			Verb: verb,
			Endpoint: chn.Endpoint,
			Metadata: metadata,
			Payload: payload,
		})
	})

	go chn.readLoop()
}

func (chn *Channel) readLoop() {
	defer close(chn.loopDone)
	defer chn.setState(Closed)

	buffer := make([]byte, ReadBufferSize)

	for {
		if chn.isClosing() { break }

		if chn.parser.CanDispatch() {
			dispatchErr := chn.parser.DispatchSome(MaxDispatchPerRound)
			if dispatchErr != nil {
				chn.failAndClose(dispatchErr)
				break
			}

			continue
		}

		n, readErr := chn.conn.Read(buffer)

		if n > 0 {
			chn.parser.Feed(buffer[:n])

			dispatchErr := chn.parser.DispatchSome(MaxDispatchPerRound)
			if dispatchErr != nil {
				chn.failAndClose(dispatchErr)
				break
			}
		}

		if readErr != nil {
			if readErr != io.EOF && !chn.isClosing() {
				chn.Log.Warn("recv failed on channel to", chn.Endpoint.URL(), ":", readErr.Error())
			}

			chn.initiateClose()
			break
		}
	}

	chn.conn.Close()
}

/*
	Graceful Close:
		initiate the close and wait for the read loop to finish, up to the
		given timeout. the timeout is enforced: if the loop has not exited in
		time the connection is already hard closed and an error is returned.
*/

func (chn *Channel) GracefulClose(timeout time.Duration) error {
	chn.stateMutex.Lock()
	neverRan := chn.state == Fresh
	chn.stateMutex.Unlock()

	chn.initiateClose()
	chn.conn.Close()

	if neverRan {
		chn.setState(Closed)
		return nil
	}

	select {
		case <- chn.loopDone:
			return nil
		case <- time.After(timeout):
			return errors.Newf("graceful close timed out after %s for channel to %s", timeout.String(), chn.Endpoint.URL())
	}
}

/*
	observers install at most once per registration, nil installs a logging
	default. after closing starts no observer fires.
*/

func (chn *Channel) RegisterMessageObserver(observer MessageObserver) {
	if observer == nil {
		chn.messageObserver = func(msg *Message) {
			if !chn.isClosing() {
				chn.Log.Warn("message with verb", msg.Verb, "ignored, no message observer registered")
			}
		}

		return
	}

	chn.messageObserver = observer
}

func (chn *Channel) RegisterFailureObserver(observer FailureObserver) {
	if observer == nil {
		chn.failureObserver = func(endpoint TxEndpoint, err error) {
			if !chn.isClosing() {
				chn.Log.Warn("failure on channel to", endpoint.URL(), "ignored, no failure observer registered:", err.Error())
			}
		}

		return
	}

	chn.failureObserver = observer
}

func (chn *Channel) State() ChannelState {
	chn.stateMutex.Lock()
	defer chn.stateMutex.Unlock()

	return chn.state
}

// failure observer fires at most once per transport error, then close
func (chn *Channel) failAndClose(err error) {
	chn.failureObserver(chn.Endpoint, err)
	chn.initiateClose()
}

func (chn *Channel) initiateClose() {
	chn.stateMutex.Lock()
	defer chn.stateMutex.Unlock()

	if chn.state == Running || chn.state == Fresh { chn.state = Closing }
}

func (chn *Channel) isClosing() bool {
	chn.stateMutex.Lock()
	defer chn.stateMutex.Unlock()

	return chn.state == Closing || chn.state == Closed
}

func (chn *Channel) setState(state ChannelState) {
	chn.stateMutex.Lock()
	defer chn.stateMutex.Unlock()

	chn.state = state
}
