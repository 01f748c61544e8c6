package transport

import "net"
import "sync"
import "time"

import "github.com/sirgallo/tso/pkg/logger"


// verbs carried on the wire, one byte each
type Verb = uint8

const (
	GET_PAXOS_LEADER_URL Verb = 110 // controller to any paxos instance, resolve the leader url
	UPDATE_PAXOS Verb = 111 // controller to paxos leader, heartbeat and lease updates
	ACK_PAXOS Verb = 112 // paxos to controller, response wrapper
	GET_TSO_MASTER_URL Verb = 113 // client to any tso instance, resolve current master url
	GET_TSO_WORKERS_URLS Verb = 114 // client to tso master, worker endpoint urls per shard
	GET_ATOMIC_CLOCK_TIME Verb = 115 // controller to atomic/gps clock service
	GET_GPS_CLOCK_TIME Verb = 116 // client to worker, get a timestamp batch
	ACK_TIME Verb = 117 // response wrapper for time verbs
)

// response status values carried in message metadata
const (
	StatusOK = "OK"
	StatusNotReady = "NotReady"
	StatusShutdown = "Shutdown"
	StatusError = "Error"
)

/*
	per message metadata, json encoded into the frame between header and payload

	RequestId correlates a response to its request, Status and ErrorMsg carry
	failure results so the payload can stay empty on errors
*/

type MessageMetadata struct {
	RequestId string `json:"requestId,omitempty"`
	ResponseToId string `json:"responseToId,omitempty"`
	Status string `json:"status,omitempty"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

/*
	a fully parsed inbound message, handed to the message observer
*/

type Message struct {
	Verb Verb
	Endpoint TxEndpoint
	Metadata MessageMetadata
	Payload []byte
}

type MessageObserver = func(msg *Message)
type FailureObserver = func(endpoint TxEndpoint, err error)

// channel lifecycle states
type ChannelState int

const (
	Fresh ChannelState = iota
	Running
	Closing
	Closed
)

type Channel struct {
	Endpoint TxEndpoint

	conn net.Conn
	parser *Parser

	messageObserver MessageObserver
	failureObserver FailureObserver

	stateMutex sync.Mutex
	state ChannelState

	sendMutex sync.Mutex

	loopDone chan struct{}

	Log *clog.CustomLog
}

type ChannelOpts struct {
	Conn net.Conn
	Endpoint TxEndpoint
	EnableTxChecksum bool
	MessageObserver MessageObserver
	FailureObserver FailureObserver
}

/*
	a registered server side handler for one verb

	the handler result is sent back on the same channel with the registered
	response verb, correlated through the request id
*/

type VerbHandler struct {
	ResponseVerb Verb
	Handle func(msg *Message) ([]byte, MessageMetadata)
}

type Protocol struct {
	ServerEndpoint TxEndpoint

	listener net.Listener
	enableTxChecksum bool

	channels sync.Map // canonical url -> *Channel

	handlerMutex sync.Mutex
	verbHandlers map[Verb]*VerbHandler

	pendingMutex sync.Mutex
	pendingCalls map[string]chan *Message

	stopMutex sync.Mutex
	stopped bool
	acceptDone chan struct{}

	Log *clog.CustomLog
}

type ProtocolOpts struct {
	ListenURL string
	EnableTxChecksum bool
}

const NAME = "Transport"

const ReadBufferSize = 8192
const MaxDispatchPerRound = 16
const DefaultGracefulCloseTimeout = 1 * time.Second
