package clock

import "time"


//=========================================== Monotonic Clock


func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{
		origin: time.Now(),
	}
}

/*
	nanoseconds since the process clock origin

	the reading rides go's runtime monotonic clock so it never moves
	backward, wall clock steps do not affect it
*/

func (clk *MonotonicClock) NowNanos() uint64 {
	return uint64(time.Since(clk.origin).Nanoseconds())
}


//=========================================== Manual Clock


func NewManualClock(nanos uint64) *ManualClock {
	return &ManualClock{
		Nanos: nanos,
	}
}

func (clk *ManualClock) NowNanos() uint64 {
	return clk.Nanos
}

func (clk *ManualClock) Advance(nanos uint64) {
	clk.Nanos += nanos
}
