package timestamp


/*
	a single 128-bit logical timestamp handed to a transaction

	TbeNanos is the end of the uncertainty window in nanoseconds since the
	TAI epoch, the start of the window is TbeNanos - TsDelta. TsoId
	identifies the issuing cluster and TbeNanoSecStep is the per tick
	increment between adjacent timestamps issued by one worker.
*/

type Timestamp struct {
	TbeNanos uint64
	TsDelta uint32
	TsoId uint32
	TbeNanoSecStep uint16
}

/*
	a contiguous run of timestamps issued by a single worker in one response

	a client expands the batch into Count timestamps whose batch end values
	are TbeBaseNanos, TbeBaseNanos + TbeNanoSecStep, and so on. the batch
	must not be used once TTLNanos has elapsed since it was received.
*/

type TimestampBatch struct {
	TbeBaseNanos uint64
	TsDelta uint32
	TsoId uint32
	TbeNanoSecStep uint16
	Count uint16
	TTLNanos uint32
}

// fixed little-endian size of an encoded batch on the wire
const BatchWireSize = 24
