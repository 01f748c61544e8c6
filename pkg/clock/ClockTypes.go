package clock

import "time"

import "github.com/sirgallo/tso/pkg/transport"


/*
	a strictly non decreasing local nanosecond counter
*/

type LocalClock interface {
	NowNanos() uint64
}

/*
	the production LocalClock, anchored at an arbitrary origin when the
	process starts. all timestamp arithmetic runs against this clock plus a
	controller supplied adjustment to TAI.
*/

type MonotonicClock struct {
	origin time.Time
}

/*
	a hand advanced LocalClock for tests
*/

type ManualClock struct {
	Nanos uint64
}

/*
	one reading of the time authority

	TaiMinusLocalNanos is the difference between TAI now and the local
	monotonic clock now, UncertaintyNanos is the width of the uncertainty
	window around the authority's time
*/

type TimeSyncReading struct {
	TaiMinusLocalNanos uint64
	UncertaintyNanos uint64
}

/*
	a source of authoritative time the controller syncs against
*/

type ClockSource interface {
	CheckAtomicGPSClock() (TimeSyncReading, error)
}

// wire payload for GET_ATOMIC_CLOCK_TIME responses
type ClockTimePayload struct {
	TaiNowNanos uint64 `json:"taiNowNanos"`
	UncertaintyNanos uint64 `json:"uncertaintyNanos"`
}

type RemoteClockSource struct {
	Protocol *transport.Protocol
	Endpoint transport.TxEndpoint
	Monotonic LocalClock
	Timeout time.Duration
}

type LocalClockSource struct {
	Monotonic LocalClock
	UncertaintyNanos uint64
}

const NAME = "Clock"
