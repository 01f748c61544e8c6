package clocktests

import "testing"
import "time"

import "github.com/sirgallo/tso/pkg/clock"


func TestMonotonicClockNeverMovesBackward(t *testing.T) {
	monotonic := clock.NewMonotonicClock()

	prev := monotonic.NowNanos()

	for i := 0; i < 10000; i++ {
		now := monotonic.NowNanos()
		if now < prev { t.Fatalf("clock moved backward: prev(%d), now(%d)\n", prev, now) }
		prev = now
	}
}

func TestManualClockAdvance(t *testing.T) {
	manual := clock.NewManualClock(500)

	if manual.NowNanos() != 500 {
		t.Errorf("actual now not equal to expected: actual(%d), expected(%d)\n", manual.NowNanos(), 500)
	}

	manual.Advance(1000)

	if manual.NowNanos() != 1500 {
		t.Errorf("actual now not equal to expected: actual(%d), expected(%d)\n", manual.NowNanos(), 1500)
	}
}

func TestLocalClockSourceReading(t *testing.T) {
	manual := clock.NewManualClock(1000)
	source := clock.NewLocalClockSource(manual, 2000)

	before := uint64(time.Now().UnixNano())

	reading, checkErr := source.CheckAtomicGPSClock()
	if checkErr != nil { t.Fatalf("local source failed: %s\n", checkErr.Error()) }

	after := uint64(time.Now().UnixNano())

	if reading.UncertaintyNanos != 2000 {
		t.Errorf("actual uncertainty not equal to expected: actual(%d), expected(%d)\n", reading.UncertaintyNanos, 2000)
	}

	// the derived difference recovers TAI now when added to local now
	recovered := reading.TaiMinusLocalNanos + manual.NowNanos()

	if recovered < before || recovered > after {
		t.Errorf("recovered TA time outside the sampling window: recovered(%d), window(%d, %d)\n", recovered, before, after)
	}
}
