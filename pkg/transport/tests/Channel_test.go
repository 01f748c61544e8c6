package transporttests

import "net"
import "testing"
import "time"

import "github.com/stretchr/testify/require"

import "github.com/sirgallo/tso/pkg/transport"


func makeConnPair(t *testing.T) (net.Conn, net.Conn) {
	listener, listenErr := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, listenErr)

	defer listener.Close()

	accepted := make(chan net.Conn, 1)

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr == nil { accepted <- conn }
	}()

	dialed, dialErr := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, dialErr)

	select {
		case conn :=<- accepted:
			return dialed, conn
		case <- time.After(2 * time.Second):
			t.Fatal("accept timed out")
			return nil, nil
	}
}

func testEndpoint() transport.TxEndpoint {
	return transport.TxEndpoint{ Proto: "tcp+k2rpc", Host: "127.0.0.1", Port: "0" }
}

func TestChannelSendBeforeRun(t *testing.T) {
	local, remote := makeConnPair(t)
	defer remote.Close()

	chn := transport.NewChannel(transport.ChannelOpts{ Conn: local, Endpoint: testEndpoint() })

	sendErr := chn.Send(transport.ACK_TIME, nil, transport.MessageMetadata{})
	require.ErrorIs(t, sendErr, transport.ErrChannelDown)

	require.NoError(t, chn.GracefulClose(time.Second))
}

func TestChannelDeliversMessages(t *testing.T) {
	local, remote := makeConnPair(t)
	defer remote.Close()

	received := make(chan *transport.Message, 4)

	chn := transport.NewChannel(transport.ChannelOpts{
		Conn: local,
		Endpoint: testEndpoint(),
		MessageObserver: func(msg *transport.Message) { received <- msg },
	})

	chn.Run()
	require.Equal(t, transport.Running, chn.State())

	sender := transport.NewParser(false)

	frame, frameErr := sender.PrepareForSend(transport.GET_GPS_CLOCK_TIME, []byte{ 0x08, 0x00 }, transport.MessageMetadata{ RequestId: "abc" })
	require.NoError(t, frameErr)

	_, writeErr := remote.Write(frame)
	require.NoError(t, writeErr)

	select {
		case msg :=<- received:
			require.Equal(t, transport.GET_GPS_CLOCK_TIME, msg.Verb)
			require.Equal(t, "abc", msg.Metadata.RequestId)
			require.Equal(t, []byte{ 0x08, 0x00 }, msg.Payload)
		case <- time.After(2 * time.Second):
			t.Fatal("message not delivered")
	}

	// remote EOF drives the channel to closed
	remote.Close()
	require.NoError(t, chn.GracefulClose(2 * time.Second))
	require.Equal(t, transport.Closed, chn.State())
}

func TestChannelParserFailureFiresObserverOnce(t *testing.T) {
	local, remote := makeConnPair(t)
	defer remote.Close()

	failures := make(chan error, 4)

	chn := transport.NewChannel(transport.ChannelOpts{
		Conn: local,
		Endpoint: testEndpoint(),
		FailureObserver: func(endpoint transport.TxEndpoint, err error) { failures <- err },
	})

	chn.Run()

	garbage := make([]byte, 64)
	garbage[0] = 0xff

	_, writeErr := remote.Write(garbage)
	require.NoError(t, writeErr)

	select {
		case failureErr :=<- failures:
			require.ErrorIs(t, failureErr, transport.ErrParser)
		case <- time.After(2 * time.Second):
			t.Fatal("failure observer not invoked")
	}

	require.NoError(t, chn.GracefulClose(2 * time.Second))
	require.Len(t, failures, 0)
}

func TestChannelSilentSendWhileClosing(t *testing.T) {
	local, remote := makeConnPair(t)
	defer remote.Close()

	chn := transport.NewChannel(transport.ChannelOpts{ Conn: local, Endpoint: testEndpoint() })
	chn.Run()

	require.NoError(t, chn.GracefulClose(2 * time.Second))

	// closing channels drop sends without surfacing an error
	sendErr := chn.Send(transport.ACK_TIME, []byte("late"), transport.MessageMetadata{})
	require.NoError(t, sendErr)
}

func TestChannelGracefulCloseEnforcesTimeout(t *testing.T) {
	local, remote := makeConnPair(t)
	defer remote.Close()

	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	chn := transport.NewChannel(transport.ChannelOpts{
		Conn: local,
		Endpoint: testEndpoint(),
		MessageObserver: func(msg *transport.Message) {
			entered <- struct{}{}
			<- release
		},
	})

	chn.Run()

	sender := transport.NewParser(false)
	frame, frameErr := sender.PrepareForSend(transport.ACK_TIME, []byte("block"), transport.MessageMetadata{})
	require.NoError(t, frameErr)

	_, writeErr := remote.Write(frame)
	require.NoError(t, writeErr)

	select {
		case <- entered:
		case <- time.After(2 * time.Second):
			t.Fatal("message observer not invoked")
	}

	// the read loop is stuck inside the observer, the close must give up
	// once its timeout elapses instead of waiting forever
	closeErr := chn.GracefulClose(50 * time.Millisecond)
	require.Error(t, closeErr)

	close(release)
}
